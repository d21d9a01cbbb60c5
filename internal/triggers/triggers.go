package triggers

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

// Sink receives trigger transitions. Implementations must not block for long.
type Sink interface {
	Notify(ev model.Event)
}

var names = []model.TriggerName{
	model.TriggerBelowLimit,
	model.TriggerAboveLimit,
	model.TriggerSafetyShutdown,
	model.TriggerConflictingState,
	model.TriggerConfigurationError,
	model.TriggerActuatorError,
	model.TriggerCommandBlocked,
}

// Set holds one edge-triggered flag per named condition for the lifetime of the process.
type Set struct {
	mutex    sync.Mutex
	triggers map[model.TriggerName]*model.TriggerState
	sinks    []Sink
	now      func() time.Time
}

func New(sinks ...Sink) *Set {
	s := &Set{
		triggers: make(map[model.TriggerName]*model.TriggerState, len(names)),
		sinks:    sinks,
		now:      time.Now,
	}
	for _, name := range names {
		s.triggers[name] = &model.TriggerState{Name: name}
	}
	return s
}

// Observe records the current truth of a condition. An event is emitted only when the trigger
// arms (false to true) or disarms (true to false); the return value reports whether that happened.
func (s *Set) Observe(name model.TriggerName, condition bool, severity model.Severity, message string) bool {
	now := s.now()

	s.mutex.Lock()
	t, ok := s.triggers[name]
	if !ok {
		t = &model.TriggerState{Name: name}
		s.triggers[name] = t
	}
	if t.Armed == condition {
		s.mutex.Unlock()
		return false
	}
	t.Armed = condition
	if condition {
		t.ArmedAt = now
	} else {
		t.ArmedAt = time.Time{}
	}
	s.mutex.Unlock()

	if !condition {
		severity = model.SeverityInfo
	}
	ev := model.Event{
		Trigger:  name,
		Severity: severity,
		Message:  message,
		Armed:    condition,
		At:       now,
	}

	log.Info().
		Str("trigger", string(name)).
		Bool("armed", condition).
		Str("severity", string(severity)).
		Msg(message)

	for _, sink := range s.sinks {
		sink.Notify(ev)
	}
	return true
}

func (s *Set) Armed(name model.TriggerName) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	t, ok := s.triggers[name]
	return ok && t.Armed
}

// ArmedAt returns when the trigger last armed, or the zero time if it is disarmed.
func (s *Set) ArmedAt(name model.TriggerName) time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if t, ok := s.triggers[name]; ok {
		return t.ArmedAt
	}
	return time.Time{}
}

func (s *Set) Snapshot() []model.TriggerState {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]model.TriggerState, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
