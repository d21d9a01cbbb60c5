package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/internal/datadog"
	"github.com/thatsimonsguy/ferment-controller/internal/model"
	"github.com/thatsimonsguy/ferment-controller/internal/state"
)

const (
	DispositionApplied = "applied"
	DispositionStale   = "stale"
)

type Auditor interface {
	ResultReceived(res model.Result, disposition string)
	Assumed(id string, action model.Action, pendingSince time.Time)
}

// Reconciler folds worker results back into the actuator table and resolves commands whose result never arrived.
type Reconciler struct {
	table          *state.Table
	results        <-chan model.Result
	pendingTimeout time.Duration
	pollInterval   time.Duration
	audit          Auditor
	now            func() time.Time
}

func New(table *state.Table, results <-chan model.Result, pendingTimeout, pollInterval time.Duration, audit Auditor) *Reconciler {
	return &Reconciler{
		table:          table,
		results:        results,
		pendingTimeout: pendingTimeout,
		pollInterval:   pollInterval,
		audit:          audit,
		now:            time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	log.Info().
		Dur("pending_timeout", r.pendingTimeout).
		Dur("poll_interval", r.pollInterval).
		Msg("Starting result reconciler")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Result reconciler stopped")
			return nil
		case res := <-r.results:
			r.Apply(res)
		case <-ticker.C:
			r.CheckTimeouts()
		}
	}
}

// Apply records a worker result. Results that no longer match the actuator's pending command are
// ignored, except a late result for a command whose outcome was already assumed.
func (r *Reconciler) Apply(res model.Result) bool {
	now := r.now()

	applied := false
	r.table.Update(res.ActuatorID, func(s *model.ActuatorState) {
		switch {
		case s.Pending && s.PendingAction == res.Action:
		case !s.Pending && s.Confirmation == model.ConfirmationAssumed && model.ActionFor(s.ConfirmedOn) == res.Action:
		default:
			return
		}
		applied = true

		s.ClearPending()
		if res.Success {
			s.ConfirmedOn = res.Action == model.ActionOn
			s.Confirmation = model.ConfirmationConfirmed
			s.LastConfirmedActionAt = now
			s.Error = false
			s.ErrorMessage = ""
			return
		}
		s.Error = true
		s.ErrorMessage = res.Error
	})

	disposition := DispositionApplied
	switch {
	case !applied:
		disposition = DispositionStale
		log.Info().
			Str("actuator", res.ActuatorID).
			Str("action", string(res.Action)).
			Bool("success", res.Success).
			Msg("Ignoring result for superseded command")
	case res.Success:
		log.Info().
			Str("actuator", res.ActuatorID).
			Str("action", string(res.Action)).
			Msg("Actuator state confirmed")
	default:
		log.Warn().
			Str("actuator", res.ActuatorID).
			Str("action", string(res.Action)).
			Str("error", res.Error).
			Msg("Actuator command failed")
		datadog.Count("command_failures", 1, "actuator:"+res.ActuatorID)
	}

	if r.audit != nil {
		r.audit.ResultReceived(res, disposition)
	}
	return applied
}

// CheckTimeouts assumes the outcome of every command pending longer than the timeout and returns
// the affected actuator ids. The assumption is tagged so it is never mistaken for a confirmation.
func (r *Reconciler) CheckTimeouts() []string {
	now := r.now()

	var expired []string
	for _, id := range r.table.Pending() {
		var action model.Action
		var since time.Time
		r.table.Update(id, func(s *model.ActuatorState) {
			if !s.Pending || now.Sub(s.PendingSince) < r.pendingTimeout {
				return
			}
			action = s.PendingAction
			since = s.PendingSince
			s.ConfirmedOn = action == model.ActionOn
			s.Confirmation = model.ConfirmationAssumed
			s.ClearPending()
		})
		if action == model.ActionNone {
			continue
		}

		expired = append(expired, id)
		log.Warn().
			Str("actuator", id).
			Str("action", string(action)).
			Time("pending_since", since).
			Msg("No result before pending timeout, assuming command took effect")
		if r.audit != nil {
			r.audit.Assumed(id, action, since)
		}
	}
	return expired
}
