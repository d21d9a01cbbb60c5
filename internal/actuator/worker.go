package actuator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

// Driver talks to physical relays. Implementations hold their connection for the life of the process.
type Driver interface {
	Set(ctx context.Context, id string, on bool) error
	State(ctx context.Context, id string) (bool, error)
}

// Worker executes actuator commands one at a time and reports exactly one result per command.
type Worker struct {
	driver   Driver
	commands <-chan model.Command
	results  chan<- model.Result
	timeout  time.Duration
}

func NewWorker(driver Driver, commands <-chan model.Command, results chan<- model.Result, timeout time.Duration) *Worker {
	return &Worker{
		driver:   driver,
		commands: commands,
		results:  results,
		timeout:  timeout,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	log.Info().Dur("command_timeout", w.timeout).Msg("Starting actuator worker")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Actuator worker stopped")
			return nil
		case cmd := <-w.commands:
			res := w.execute(ctx, cmd)
			select {
			case w.results <- res:
			case <-ctx.Done():
				log.Warn().
					Str("actuator", res.ActuatorID).
					Str("action", string(res.Action)).
					Msg("Shutting down with undelivered command result")
				return nil
			}
		}
	}
}

func (w *Worker) execute(ctx context.Context, cmd model.Command) (res model.Result) {
	res = model.Result{ActuatorID: cmd.ActuatorID, Action: cmd.Action}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("%v: driver panic: %v", model.ErrCommandFailure, r)
			log.Error().Interface("panic", r).Str("actuator", cmd.ActuatorID).Msg("Recovered panic in actuator driver")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	started := time.Now()
	err := w.attempt(ctx, cmd)
	if err != nil {
		res.Error = err.Error()
		log.Warn().
			Err(err).
			Str("actuator", cmd.ActuatorID).
			Str("action", string(cmd.Action)).
			Dur("elapsed", time.Since(started)).
			Msg("Actuator command failed")
		return res
	}

	res.Success = true
	log.Debug().
		Str("actuator", cmd.ActuatorID).
		Str("action", string(cmd.Action)).
		Dur("elapsed", time.Since(started)).
		Msg("Actuator command verified")
	return res
}

func (w *Worker) attempt(ctx context.Context, cmd model.Command) error {
	var on bool
	switch cmd.Action {
	case model.ActionOn:
		on = true
	case model.ActionOff:
	default:
		return fmt.Errorf("%w: unknown action %q", model.ErrCommandFailure, cmd.Action)
	}

	if err := w.driver.Set(ctx, cmd.ActuatorID, on); err != nil {
		return classify(ctx, "set", err)
	}

	reported, err := w.driver.State(ctx, cmd.ActuatorID)
	if err != nil {
		return classify(ctx, "verify", err)
	}
	if reported != on {
		return fmt.Errorf("%w: actuator reports %s after %s", model.ErrCommandFailure, model.ActionFor(reported), cmd.Action)
	}
	return nil
}

func classify(ctx context.Context, step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", model.ErrCommandTimeout, step, err)
	}
	return fmt.Errorf("%w: %s: %v", model.ErrCommandFailure, step, err)
}
