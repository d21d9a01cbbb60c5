package state

import (
	"sort"
	"sync"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

// Table holds the runtime state of every actuator. It is the only structure shared between the
// control loop (through the dispatcher) and the reconciler, and it is never replaced by a config reload.
type Table struct {
	mutex     sync.Mutex
	actuators map[string]*model.ActuatorState
}

func NewTable(ids ...string) *Table {
	t := &Table{actuators: make(map[string]*model.ActuatorState)}
	for _, id := range ids {
		t.entry(id)
	}
	return t
}

// entry must be called with the mutex held.
func (t *Table) entry(id string) *model.ActuatorState {
	s, ok := t.actuators[id]
	if !ok {
		s = &model.ActuatorState{ID: id, Confirmation: model.ConfirmationUnknown}
		t.actuators[id] = s
	}
	return s
}

// Get returns a copy of the actuator's state, creating a default record for unseen ids.
func (t *Table) Get(id string) model.ActuatorState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return *t.entry(id)
}

// Update applies fn to the actuator's state under the table lock and returns the resulting copy.
func (t *Table) Update(id string, fn func(s *model.ActuatorState)) model.ActuatorState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	s := t.entry(id)
	fn(s)
	return *s
}

// Snapshot returns copies of all actuator states ordered by id.
func (t *Table) Snapshot() []model.ActuatorState {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	out := make([]model.ActuatorState, 0, len(t.actuators))
	for _, s := range t.actuators {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Pending returns the ids of actuators with a command in flight.
func (t *Table) Pending() []string {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var ids []string
	for id, s := range t.actuators {
		if s.Pending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
