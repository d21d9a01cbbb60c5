package failsafecontroller

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

const (
	StatusConfigurationError = "configuration error"
	StatusSensorInactive     = "sensor inactive — safety shutdown"
	StatusConflictingState   = "conflicting actuator state — safety shutdown"
)

type Input struct {
	Config    model.ControlConfig
	ConfigErr error
	Reading   *model.Reading
	Heating   model.ActuatorState
	Cooling   model.ActuatorState
	Now       time.Time
}

// Verdict tells the control loop whether it must abandon normal control this cycle and why.
type Verdict struct {
	Shutdown bool
	Trigger  model.TriggerName
	Status   string
	Err      error
}

// Evaluate checks, in order, for an invalid config, a missing or stale reading, and both actuators on at once.
func Evaluate(in Input) Verdict {
	if in.ConfigErr != nil {
		return Verdict{
			Shutdown: true,
			Trigger:  model.TriggerConfigurationError,
			Status:   StatusConfigurationError,
			Err:      in.ConfigErr,
		}
	}

	if in.Reading.Stale(in.Now, in.Config.Interval()) {
		err := fmt.Errorf("%w: no reading for sensor %q", model.ErrSensorStale, in.Config.ControlSensorID)
		if in.Reading != nil {
			err = fmt.Errorf("%w: last reading from %s at %s", model.ErrSensorStale, in.Reading.SourceID, in.Reading.ObservedAt.Format(time.RFC3339))
		}
		return Verdict{
			Shutdown: true,
			Trigger:  model.TriggerSafetyShutdown,
			Status:   StatusSensorInactive,
			Err:      err,
		}
	}

	if in.Heating.ConfirmedOn && in.Cooling.ConfirmedOn {
		log.Warn().
			Str("heating", in.Heating.ID).
			Str("heating_confirmation", string(in.Heating.Confirmation)).
			Str("cooling", in.Cooling.ID).
			Str("cooling_confirmation", string(in.Cooling.Confirmation)).
			Msg("Heating and cooling both on")
		return Verdict{
			Shutdown: true,
			Trigger:  model.TriggerConflictingState,
			Status:   StatusConflictingState,
			Err:      fmt.Errorf("%w: %s and %s both on", model.ErrSafetyViolation, in.Heating.ID, in.Cooling.ID),
		}
	}

	return Verdict{}
}
