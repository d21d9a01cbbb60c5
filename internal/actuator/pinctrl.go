package actuator

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type Pin struct {
	Number     int  `json:"number"`
	ActiveHigh bool `json:"active_high"`
}

// PinctrlDriver drives relay boards wired to Raspberry Pi GPIO through the pinctrl tool.
type PinctrlDriver struct {
	pins map[string]Pin
}

func NewPinctrlDriver(pins map[string]Pin) *PinctrlDriver {
	return &PinctrlDriver{pins: pins}
}

var runPinctrl = func(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "pinctrl", args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("pinctrl %s failed: %w (output: %s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (d *PinctrlDriver) pin(id string) (Pin, error) {
	p, ok := d.pins[id]
	if !ok {
		return Pin{}, fmt.Errorf("no GPIO pin configured for actuator %q", id)
	}
	return p, nil
}

// Set drives the pin to its active level for on and the opposite level for off.
func (d *PinctrlDriver) Set(ctx context.Context, id string, on bool) error {
	p, err := d.pin(id)
	if err != nil {
		return err
	}
	drive := "dl"
	if on == p.ActiveHigh {
		drive = "dh"
	}
	_, err = runPinctrl(ctx, "set", fmt.Sprint(p.Number), "op", "pn", drive)
	return err
}

func (d *PinctrlDriver) State(ctx context.Context, id string) (bool, error) {
	p, err := d.pin(id)
	if err != nil {
		return false, err
	}
	out, err := runPinctrl(ctx, "lev", fmt.Sprint(p.Number))
	if err != nil {
		return false, err
	}
	level, err := parseLevel(string(out))
	if err != nil {
		return false, fmt.Errorf("pin %d: %w", p.Number, err)
	}
	return level == p.ActiveHigh, nil
}

func parseLevel(output string) (bool, error) {
	trimmed := strings.TrimSpace(output)
	switch trimmed {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected output from pinctrl lev: %q", trimmed)
	}
}
