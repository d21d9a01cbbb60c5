package actuator

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// SafeModeDriver accepts every command without touching hardware and reports back what it was told.
type SafeModeDriver struct {
	mutex  sync.Mutex
	states map[string]bool
}

func NewSafeModeDriver() *SafeModeDriver {
	return &SafeModeDriver{states: make(map[string]bool)}
}

func (d *SafeModeDriver) Set(_ context.Context, id string, on bool) error {
	d.mutex.Lock()
	d.states[id] = on
	d.mutex.Unlock()

	log.Info().Str("actuator", id).Bool("on", on).Msg("Safe mode: skipping relay command")
	return nil
}

func (d *SafeModeDriver) State(_ context.Context, id string) (bool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.states[id], nil
}
