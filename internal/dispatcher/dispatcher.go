package dispatcher

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/internal/datadog"
	"github.com/thatsimonsguy/ferment-controller/internal/model"
	"github.com/thatsimonsguy/ferment-controller/internal/state"
)

type Outcome string

const (
	Sent                Outcome = "sent"
	Overridden          Outcome = "overridden"
	SuppressedPending   Outcome = "suppressed_pending"
	SuppressedRedundant Outcome = "suppressed_redundant"
	Blocked             Outcome = "blocked"
)

// Dispatched reports whether a command actually went to the worker.
func (o Outcome) Dispatched() bool {
	return o == Sent || o == Overridden
}

// Auditor receives every dispatch decision that reached the worker or was refused by it.
type Auditor interface {
	CommandSent(cmd model.Command, outcome string)
}

type Dispatcher struct {
	table          *state.Table
	commands       chan<- model.Command
	recoveryWindow time.Duration
	audit          Auditor
	now            func() time.Time
}

func New(table *state.Table, commands chan<- model.Command, recoveryWindow time.Duration, audit Auditor) *Dispatcher {
	return &Dispatcher{
		table:          table,
		commands:       commands,
		recoveryWindow: recoveryWindow,
		audit:          audit,
		now:            time.Now,
	}
}

// Send requests action for the actuator, suppressing it when the same action is already in flight
// or the requested state was confirmed within the recovery window. An actuator whose last command
// failed is never suppressed.
func (d *Dispatcher) Send(id string, action model.Action) Outcome {
	return d.dispatch(id, action, func(s model.ActuatorState, now time.Time) bool {
		return !s.Error &&
			s.Confirmation == model.ConfirmationConfirmed &&
			s.ConfirmedOn == (action == model.ActionOn) &&
			now.Sub(s.LastConfirmedActionAt) < d.recoveryWindow
	})
}

// Force is the safety override. The only state it treats as redundant is one confirmed in the
// requested position at or after since, the moment the safety condition was first observed.
func (d *Dispatcher) Force(id string, action model.Action, since time.Time) Outcome {
	return d.dispatch(id, action, func(s model.ActuatorState, now time.Time) bool {
		return !s.Error &&
			s.Confirmation == model.ConfirmationConfirmed &&
			s.ConfirmedOn == (action == model.ActionOn) &&
			!s.LastConfirmedActionAt.Before(since)
	})
}

func (d *Dispatcher) dispatch(id string, action model.Action, redundant func(model.ActuatorState, time.Time) bool) Outcome {
	now := d.now()
	cmd := model.Command{ActuatorID: id, Action: action}

	var outcome Outcome
	var replaced model.Action
	d.table.Update(id, func(s *model.ActuatorState) {
		if s.Pending {
			if s.PendingAction == action {
				outcome = SuppressedPending
				return
			}
			replaced = s.PendingAction
		} else if redundant(*s, now) {
			outcome = SuppressedRedundant
			return
		}

		select {
		case d.commands <- cmd:
		default:
			outcome = Blocked
			return
		}

		outcome = Sent
		if replaced != model.ActionNone {
			outcome = Overridden
		}
		s.Pending = true
		s.PendingAction = action
		s.PendingSince = now
	})

	switch outcome {
	case SuppressedPending, SuppressedRedundant:
		log.Debug().
			Str("actuator", id).
			Str("action", string(action)).
			Str("outcome", string(outcome)).
			Msg("Command suppressed")
		return outcome
	case Blocked:
		log.Warn().
			Str("actuator", id).
			Str("action", string(action)).
			Msg("Command queue full, command not sent")
	case Overridden:
		log.Info().
			Str("actuator", id).
			Str("action", string(action)).
			Str("replaced", string(replaced)).
			Msg("Overriding pending command")
	default:
		log.Info().
			Str("actuator", id).
			Str("action", string(action)).
			Msg("Command sent")
	}

	datadog.Count("commands", 1, "actuator:"+id, "outcome:"+string(outcome))
	if d.audit != nil {
		d.audit.CommandSent(cmd, string(outcome))
	}
	return outcome
}
