package fermentercontroller

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/db"
	"github.com/thatsimonsguy/ferment-controller/internal/controllers/failsafecontroller"
	"github.com/thatsimonsguy/ferment-controller/internal/datadog"
	"github.com/thatsimonsguy/ferment-controller/internal/dispatcher"
	"github.com/thatsimonsguy/ferment-controller/internal/model"
	"github.com/thatsimonsguy/ferment-controller/internal/state"
	"github.com/thatsimonsguy/ferment-controller/internal/triggers"
)

const (
	StatusDisabled    = "control disabled"
	StatusUnavailable = "configuration unavailable"
	StatusHeating     = "heating"
	StatusCooling     = "cooling"
	StatusIdle        = "idle"
)

type ConfigSource interface {
	Load() (model.ControlConfig, error)
}

type ReadingSource interface {
	Latest(sensorID string) (*model.Reading, error)
	// Disabled reports whether the sensor's readings are being rejected and its last good value held.
	Disabled(sensorID string) bool
}

type Commander interface {
	Send(id string, action model.Action) dispatcher.Outcome
	Force(id string, action model.Action, since time.Time) dispatcher.Outcome
}

type TimeoutChecker interface {
	CheckTimeouts() []string
}

type StatusWriter interface {
	Save(snapshot *model.StatusSnapshot) error
}

// DBConfig loads the control config from the sqlite config store.
type DBConfig struct {
	DB *sql.DB
}

func (c DBConfig) Load() (model.ControlConfig, error) {
	return db.GetControlConfig(c.DB)
}

type Deps struct {
	Config           ConfigSource
	Readings         ReadingSource
	Dispatcher       Commander
	Reconciler       TimeoutChecker
	Table            *state.Table
	Triggers         *triggers.Set
	Store            StatusWriter // optional
	FallbackInterval time.Duration
}

// Controller runs the periodic temperature control loop for one fermentation vessel.
type Controller struct {
	Deps

	now        func() time.Time
	lastConfig *model.ControlConfig

	mutex  sync.RWMutex
	status model.StatusSnapshot
}

func New(deps Deps) *Controller {
	if deps.FallbackInterval <= 0 {
		deps.FallbackInterval = time.Minute
	}
	return &Controller{
		Deps: deps,
		now:  time.Now,
	}
}

// Run executes a cycle immediately and then once per configured interval until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	log.Info().Msg("Starting fermenter controller")

	for {
		c.RunCycle()

		timer := time.NewTimer(c.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Fermenter controller stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (c *Controller) interval() time.Duration {
	if c.lastConfig != nil && c.lastConfig.IntervalSeconds >= 1 {
		return c.lastConfig.Interval()
	}
	return c.FallbackInterval
}

// Status returns the snapshot published by the most recent cycle.
func (c *Controller) Status() model.StatusSnapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.status
}

// RunCycle performs one control cycle. A panic is logged and does not escape.
func (c *Controller) RunCycle() {
	logger := log.With().Str("cycle_id", uuid.NewString()).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Control cycle panicked")
		}
	}()

	c.Reconciler.CheckTimeouts()

	cfg, ok := c.loadConfig(logger)
	if !ok {
		c.publish(StatusUnavailable, nil, nil)
		return
	}

	in := failsafecontroller.Input{
		Config:    cfg,
		ConfigErr: cfg.Validate(),
		Heating:   c.actuator(cfg.HeatingActuatorID),
		Cooling:   c.actuator(cfg.CoolingActuatorID),
		Now:       c.now(),
	}

	c.Triggers.Observe(model.TriggerConfigurationError, in.ConfigErr != nil, model.SeverityCritical,
		condition(in.ConfigErr != nil, errText(in.ConfigErr), "configuration valid"))
	if in.ConfigErr != nil {
		logger.Error().Err(in.ConfigErr).Msg("Invalid control config, switching actuators off")
		blocked := c.sendAll(c.shutdownIDs(cfg), model.ActionOff)
		c.finishCycle(logger, failsafecontroller.StatusConfigurationError, &cfg, nil, blocked)
		return
	}

	if !cfg.HeatingEnabled && !cfg.CoolingEnabled {
		logger.Info().Msg("Heating and cooling disabled")
		blocked := c.sendAll(cfg.ActuatorIDs(), model.ActionOff)
		c.finishCycle(logger, StatusDisabled, &cfg, nil, blocked)
		return
	}

	in.Reading = c.latestReading(logger, cfg.ControlSensorID)
	verdict := failsafecontroller.Evaluate(in)

	stale := verdict.Trigger == model.TriggerSafetyShutdown
	c.Triggers.Observe(model.TriggerSafetyShutdown, stale, model.SeverityCritical,
		condition(stale, failsafecontroller.StatusSensorInactive, "sensor reading resumed"))
	if !stale {
		conflict := verdict.Trigger == model.TriggerConflictingState
		c.Triggers.Observe(model.TriggerConflictingState, conflict, model.SeverityCritical,
			condition(conflict, failsafecontroller.StatusConflictingState, "actuator conflict resolved"))
	}

	if verdict.Shutdown {
		logger.Error().Err(verdict.Err).Str("status", verdict.Status).Msg("Safety shutdown")
		since := c.Triggers.ArmedAt(verdict.Trigger)
		blocked := false
		for _, id := range cfg.ActuatorIDs() {
			if c.Dispatcher.Force(id, model.ActionOff, since) == dispatcher.Blocked {
				blocked = true
			}
		}
		reading := in.Reading
		if stale {
			reading = nil
		}
		c.finishCycle(logger, verdict.Status, &cfg, reading, blocked)
		return
	}

	temp := in.Reading.Temperature
	heat := EvaluateHeating(cfg, temp)
	cool := EvaluateCooling(cfg, temp)
	logger.Debug().
		Float64("temp", temp).
		Float64("low", cfg.LowLimit).
		Float64("high", cfg.HighLimit).
		Str("heating", heat.String()).
		Str("cooling", cool.String()).
		Msg("Hysteresis evaluated")

	blocked := c.apply(cfg, heat, cool)
	c.finishCycle(logger, c.activity(cfg), &cfg, in.Reading, blocked)
}

// loadConfig returns the current config, falling back to the last one read when the store fails.
func (c *Controller) loadConfig(logger zerolog.Logger) (model.ControlConfig, bool) {
	cfg, err := c.Config.Load()
	if err == nil {
		c.lastConfig = &cfg
		return cfg, true
	}
	if c.lastConfig == nil {
		logger.Error().Err(err).Msg("Could not load control config and none cached, skipping cycle")
		return model.ControlConfig{}, false
	}
	logger.Error().Err(err).Msg("Could not load control config, reusing last loaded config")
	return *c.lastConfig, true
}

func (c *Controller) latestReading(logger zerolog.Logger, sensorID string) *model.Reading {
	reading, err := c.Readings.Latest(sensorID)
	if err != nil {
		logger.Error().Err(err).Str("sensor", sensorID).Msg("Could not read temperature")
		return nil
	}
	return reading
}

func (c *Controller) actuator(id string) model.ActuatorState {
	if id == "" {
		return model.ActuatorState{}
	}
	return c.Table.Get(id)
}

// shutdownIDs covers the actuators named by an invalid config as well as those of the last valid one.
func (c *Controller) shutdownIDs(cfg model.ControlConfig) []string {
	seen := map[string]bool{}
	for _, id := range cfg.ActuatorIDs() {
		seen[id] = true
	}
	for _, s := range c.Table.Snapshot() {
		seen[s.ID] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Controller) sendAll(ids []string, action model.Action) bool {
	blocked := false
	for _, id := range ids {
		if c.Dispatcher.Send(id, action) == dispatcher.Blocked {
			blocked = true
		}
	}
	return blocked
}

// apply dispatches the hysteresis decisions, switching off before switching on.
func (c *Controller) apply(cfg model.ControlConfig, heat, cool Decision) bool {
	type request struct {
		id       string
		decision Decision
	}
	var offs, ons []request
	for _, r := range []request{{cfg.HeatingActuatorID, heat}, {cfg.CoolingActuatorID, cool}} {
		switch {
		case r.id == "" || r.decision == Maintain:
		case r.decision == TurnOff:
			offs = append(offs, r)
		default:
			ons = append(ons, r)
		}
	}

	blocked := false
	for _, r := range append(offs, ons...) {
		if c.Dispatcher.Send(r.id, r.decision.Action()) == dispatcher.Blocked {
			blocked = true
		}
	}
	return blocked
}

// activity describes what the actuators are doing or have been asked to do.
func (c *Controller) activity(cfg model.ControlConfig) string {
	switch {
	case wantsOn(c.actuator(cfg.HeatingActuatorID)):
		return StatusHeating
	case wantsOn(c.actuator(cfg.CoolingActuatorID)):
		return StatusCooling
	default:
		return StatusIdle
	}
}

func wantsOn(s model.ActuatorState) bool {
	if s.Pending {
		return s.PendingAction == model.ActionOn
	}
	return s.ConfirmedOn
}

func (c *Controller) finishCycle(logger zerolog.Logger, status string, cfg *model.ControlConfig, reading *model.Reading, blocked bool) {
	c.evaluateTriggers(cfg, reading, blocked)
	c.publish(status, cfg, reading)
	logger.Info().Str("status", status).Msg("Control cycle complete")
}

// evaluateTriggers updates the limit and actuator triggers. Limit triggers are left as they are
// when there is no usable reading.
func (c *Controller) evaluateTriggers(cfg *model.ControlConfig, reading *model.Reading, blocked bool) {
	if reading != nil && cfg != nil {
		below := reading.Temperature < cfg.LowLimit
		c.Triggers.Observe(model.TriggerBelowLimit, below, model.SeverityWarning,
			condition(below,
				fmt.Sprintf("temperature %.1f below low limit %.1f", reading.Temperature, cfg.LowLimit),
				fmt.Sprintf("temperature %.1f back above low limit", reading.Temperature)))

		above := reading.Temperature > cfg.HighLimit
		c.Triggers.Observe(model.TriggerAboveLimit, above, model.SeverityWarning,
			condition(above,
				fmt.Sprintf("temperature %.1f above high limit %.1f", reading.Temperature, cfg.HighLimit),
				fmt.Sprintf("temperature %.1f back below high limit", reading.Temperature)))
	}

	var failed []string
	for _, s := range c.Table.Snapshot() {
		if s.Error {
			failed = append(failed, s.ID+": "+s.ErrorMessage)
		}
	}
	c.Triggers.Observe(model.TriggerActuatorError, len(failed) > 0, model.SeverityWarning,
		condition(len(failed) > 0, fmt.Sprintf("actuator command failed (%v)", failed), "actuator commands succeeding"))

	c.Triggers.Observe(model.TriggerCommandBlocked, blocked, model.SeverityWarning,
		condition(blocked, "command queue full, command not sent", "command queue accepting commands"))
}

func (c *Controller) publish(status string, cfg *model.ControlConfig, reading *model.Reading) {
	snapshot := model.StatusSnapshot{
		Status:    status,
		UpdatedAt: c.now(),
		Config:    cfg,
		Actuators: c.Table.Snapshot(),
		Triggers:  c.Triggers.Snapshot(),
	}
	if reading != nil {
		temp := reading.Temperature
		snapshot.Temperature = &temp
		snapshot.SensorID = reading.SourceID
		snapshot.SensorHeld = c.Readings.Disabled(reading.SourceID)
	}

	c.mutex.Lock()
	c.status = snapshot
	c.mutex.Unlock()

	if c.Store != nil {
		if err := c.Store.Save(&snapshot); err != nil {
			log.Error().Err(err).Msg("Failed to write status file")
		}
	}

	if snapshot.Temperature != nil {
		datadog.Gauge("temperature", *snapshot.Temperature, "sensor:"+snapshot.SensorID)
	}
	if cfg != nil {
		datadog.Gauge("low_limit", cfg.LowLimit)
		datadog.Gauge("high_limit", cfg.HighLimit)
	}
	for _, s := range snapshot.Actuators {
		datadog.BoolGauge("actuator_on", s.ConfirmedOn, "actuator:"+s.ID, "confirmation:"+string(s.Confirmation))
		datadog.BoolGauge("actuator_error", s.Error, "actuator:"+s.ID)
	}
	for _, t := range snapshot.Triggers {
		datadog.BoolGauge("trigger_armed", t.Armed, "trigger:"+string(t.Name))
	}
}

func condition(armed bool, armedMsg, clearedMsg string) string {
	if armed {
		return armedMsg
	}
	return clearedMsg
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
