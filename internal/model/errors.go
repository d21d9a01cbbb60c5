package model

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrSensorStale     = errors.New("sensor reading missing or stale")
	ErrCommandFailure  = errors.New("actuator command failed")
	ErrCommandTimeout  = errors.New("actuator command timed out")
	ErrSafetyViolation = errors.New("conflicting actuator states")
)

// Validate checks the invariants a config snapshot must hold before it may drive relays.
func (c ControlConfig) Validate() error {
	if c.LowLimit >= c.HighLimit {
		return fmt.Errorf("%w: low limit %.2f must be below high limit %.2f", ErrConfiguration, c.LowLimit, c.HighLimit)
	}
	if c.IntervalSeconds < 1 {
		return fmt.Errorf("%w: interval must be at least 1 second, got %d", ErrConfiguration, c.IntervalSeconds)
	}
	if c.HeatingEnabled && c.HeatingActuatorID == "" {
		return fmt.Errorf("%w: heating enabled without an actuator", ErrConfiguration)
	}
	if c.CoolingEnabled && c.CoolingActuatorID == "" {
		return fmt.Errorf("%w: cooling enabled without an actuator", ErrConfiguration)
	}
	if c.HeatingActuatorID != "" && c.HeatingActuatorID == c.CoolingActuatorID {
		return fmt.Errorf("%w: heating and cooling share actuator %q", ErrConfiguration, c.HeatingActuatorID)
	}
	switch c.Strategy {
	case "", StrategyThreshold, StrategyMidpoint:
	default:
		return fmt.Errorf("%w: unknown hysteresis strategy %q", ErrConfiguration, c.Strategy)
	}
	return nil
}
