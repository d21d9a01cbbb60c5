package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/thatsimonsguy/ferment-controller/internal/config"
	"github.com/thatsimonsguy/ferment-controller/internal/env"
)

// renderBootScript drives every relay pin to its inactive level so a reboot never leaves heat or cooling on.
func renderBootScript(pins map[string]config.Pin) string {
	lines := []string{"#!/bin/bash", "", "# Fermenter relay pins off at boot", ""}

	ids := make([]string, 0, len(pins))
	for id := range pins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		pin := pins[id]
		drive := "dh"
		if pin.ActiveHigh {
			drive = "dl"
		}
		lines = append(lines, fmt.Sprintf("# %s", id))
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", pin.Number, drive))
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n") + "\n"
}

func WriteStartupScript() error {
	return os.WriteFile(env.Cfg.BootScriptPath, []byte(renderBootScript(env.Cfg.Pins)), 0755)
}

func InstallStartupService() error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Turn fermenter relays off at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, env.Cfg.BootScriptPath)

	return os.WriteFile(env.Cfg.BootServicePath, []byte(unitContents), 0644)
}

func RunStartupScript() error {
	cmd := exec.Command("/bin/bash", env.Cfg.BootScriptPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func renderControllerUnit(cfg *config.Config) string {
	var after string
	if cfg.Driver == "pinctrl" {
		bootUnit := filepath.Base(cfg.BootServicePath)
		after = fmt.Sprintf("After=network-online.target %s\nRequires=%s\n", bootUnit, bootUnit)
	} else {
		after = "After=network-online.target\nWants=network-online.target\n"
	}

	return fmt.Sprintf(`[Unit]
Description=Fermentation temperature controller
%s
[Service]
Type=simple
User=%s
WorkingDirectory=%s
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, after, cfg.ServiceUser, cfg.ServiceWorkDir, cfg.ServiceExecStart)
}

func InstallControllerService() error {
	return os.WriteFile(env.Cfg.ControllerServicePath, []byte(renderControllerUnit(env.Cfg)), 0644)
}
