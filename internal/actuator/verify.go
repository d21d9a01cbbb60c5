package actuator

import (
	"context"
	"fmt"
)

// VerifyOff reads every actuator and returns an error naming the first one found energised.
func VerifyOff(ctx context.Context, driver Driver, ids []string) error {
	for _, id := range ids {
		on, err := driver.State(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read state of %s: %w", id, err)
		}
		if on {
			return fmt.Errorf("actuator %s is on at startup (expected off)", id)
		}
	}
	return nil
}

// AllOff commands every actuator off directly through the driver, bypassing the worker.
// It is used on process exit when the control loop is no longer running.
func AllOff(ctx context.Context, driver Driver, ids []string) error {
	var firstErr error
	for _, id := range ids {
		if err := driver.Set(ctx, id, false); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to turn off %s: %w", id, err)
		}
	}
	return firstErr
}
