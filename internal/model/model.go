package model

import "time"

type Action string

const (
	ActionNone Action = ""
	ActionOn   Action = "on"
	ActionOff  Action = "off"
)

// ActionFor maps a desired relay state to the action that produces it.
func ActionFor(on bool) Action {
	if on {
		return ActionOn
	}
	return ActionOff
}

type HysteresisStrategy string

const (
	StrategyThreshold HysteresisStrategy = "threshold" // default: separate on/off limits
	StrategyMidpoint  HysteresisStrategy = "midpoint"
)

// ControlConfig is the operator-editable snapshot re-read from the config store every cycle.
type ControlConfig struct {
	HeatingEnabled    bool               `json:"heating_enabled"`
	CoolingEnabled    bool               `json:"cooling_enabled"`
	LowLimit          float64            `json:"low_limit"`
	HighLimit         float64            `json:"high_limit"`
	HeatingActuatorID string             `json:"heating_actuator_id"`
	CoolingActuatorID string             `json:"cooling_actuator_id"`
	IntervalSeconds   int                `json:"interval_seconds"`
	ControlSensorID   string             `json:"control_sensor_id"`
	Strategy          HysteresisStrategy `json:"strategy"`
}

func (c ControlConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ActuatorIDs returns the configured, non-empty actuator ids (heating first).
func (c ControlConfig) ActuatorIDs() []string {
	var ids []string
	if c.HeatingActuatorID != "" {
		ids = append(ids, c.HeatingActuatorID)
	}
	if c.CoolingActuatorID != "" {
		ids = append(ids, c.CoolingActuatorID)
	}
	return ids
}

type Reading struct {
	Temperature float64   `json:"temperature"`
	SourceID    string    `json:"source_id"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Stale reports whether the reading is too old to drive control decisions.
func (r *Reading) Stale(now time.Time, interval time.Duration) bool {
	if r == nil {
		return true
	}
	return now.Sub(r.ObservedAt) >= 2*interval
}

type Confirmation string

const (
	ConfirmationUnknown   Confirmation = "unknown"
	ConfirmationConfirmed Confirmation = "confirmed"
	ConfirmationAssumed   Confirmation = "assumed" // pending timed out, state taken on faith
)

type ActuatorState struct {
	ID                    string       `json:"id"`
	ConfirmedOn           bool         `json:"confirmed_on"`
	Confirmation          Confirmation `json:"confirmation"`
	Pending               bool         `json:"pending"`
	PendingAction         Action       `json:"pending_action"`
	PendingSince          time.Time    `json:"pending_since"`
	LastConfirmedActionAt time.Time    `json:"last_confirmed_action_at"`
	Error                 bool         `json:"error"`
	ErrorMessage          string       `json:"error_message"`
}

// ClearPending drops the outstanding command record.
func (s *ActuatorState) ClearPending() {
	s.Pending = false
	s.PendingAction = ActionNone
	s.PendingSince = time.Time{}
}

type Command struct {
	ActuatorID string `json:"actuator_id"`
	Action     Action `json:"action"`
}

type Result struct {
	ActuatorID string `json:"actuator_id"`
	Action     Action `json:"action"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type TriggerName string

const (
	TriggerBelowLimit         TriggerName = "below_limit"
	TriggerAboveLimit         TriggerName = "above_limit"
	TriggerSafetyShutdown     TriggerName = "safety_shutdown"
	TriggerConflictingState   TriggerName = "conflicting_state"
	TriggerConfigurationError TriggerName = "configuration_error"
	TriggerActuatorError      TriggerName = "actuator_error"
	TriggerCommandBlocked     TriggerName = "command_blocked"
)

// Event is emitted on trigger arm and disarm transitions only.
type Event struct {
	Trigger  TriggerName `json:"trigger"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Armed    bool        `json:"armed"`
	At       time.Time   `json:"at"`
}

type TriggerState struct {
	Name    TriggerName `json:"name"`
	Armed   bool        `json:"armed"`
	ArmedAt time.Time   `json:"armed_at"`
}

// StatusSnapshot is what the controller publishes after every cycle.
type StatusSnapshot struct {
	Status      string          `json:"status"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Temperature *float64        `json:"temperature,omitempty"`
	SensorID    string          `json:"sensor_id,omitempty"`
	SensorHeld  bool            `json:"sensor_held,omitempty"`
	Config      *ControlConfig  `json:"config,omitempty"`
	Actuators   []ActuatorState `json:"actuators"`
	Triggers    []TriggerState  `json:"triggers"`
}

type AuditKind string

const (
	AuditCommand    AuditKind = "command"
	AuditResult     AuditKind = "result"
	AuditTrigger    AuditKind = "trigger"
	AuditAssumption AuditKind = "assumption"
)

type AuditRecord struct {
	ID         int64     `json:"id"`
	At         time.Time `json:"at"`
	Kind       AuditKind `json:"kind"`
	ActuatorID string    `json:"actuator_id,omitempty"`
	Action     Action    `json:"action,omitempty"`
	Detail     string    `json:"detail"`
}
