package triggers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

type recordingSink struct {
	events []model.Event
}

func (r *recordingSink) Notify(ev model.Event) {
	r.events = append(r.events, ev)
}

func TestObserveFiresOnTransitionsOnly(t *testing.T) {
	sink := &recordingSink{}
	set := New(sink)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	set.now = func() time.Time { return now }

	observations := []struct {
		condition bool
		fired     bool
	}{
		{false, false},
		{true, true},
		{true, false},
		{true, false},
		{false, true},
		{false, false},
		{true, true},
	}

	for i, o := range observations {
		now = now.Add(time.Minute)
		fired := set.Observe(model.TriggerBelowLimit, o.condition, model.SeverityWarning, "below low limit")
		assert.Equal(t, o.fired, fired, "observation %d", i)
	}

	assert.Len(t, sink.events, 3)
	assert.True(t, sink.events[0].Armed)
	assert.Equal(t, model.SeverityWarning, sink.events[0].Severity)
	assert.False(t, sink.events[1].Armed)
	assert.Equal(t, model.SeverityInfo, sink.events[1].Severity, "disarm is informational")
	assert.True(t, sink.events[2].Armed)
}

func TestArmedAtTracksArmTime(t *testing.T) {
	set := New()
	armed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	set.now = func() time.Time { return armed }

	assert.True(t, set.ArmedAt(model.TriggerSafetyShutdown).IsZero())
	set.Observe(model.TriggerSafetyShutdown, true, model.SeverityCritical, "sensor inactive")

	set.now = func() time.Time { return armed.Add(time.Hour) }
	set.Observe(model.TriggerSafetyShutdown, true, model.SeverityCritical, "sensor inactive")
	assert.Equal(t, armed, set.ArmedAt(model.TriggerSafetyShutdown), "staying armed keeps the original arm time")
	assert.True(t, set.Armed(model.TriggerSafetyShutdown))

	set.Observe(model.TriggerSafetyShutdown, false, model.SeverityCritical, "sensor resumed")
	assert.True(t, set.ArmedAt(model.TriggerSafetyShutdown).IsZero())
	assert.False(t, set.Armed(model.TriggerSafetyShutdown))
}

func TestTriggersAreIndependent(t *testing.T) {
	sink := &recordingSink{}
	set := New(sink)

	set.Observe(model.TriggerAboveLimit, true, model.SeverityWarning, "above")
	set.Observe(model.TriggerActuatorError, true, model.SeverityWarning, "error")
	set.Observe(model.TriggerAboveLimit, true, model.SeverityWarning, "above")

	assert.Len(t, sink.events, 2)
	assert.True(t, set.Armed(model.TriggerAboveLimit))
	assert.True(t, set.Armed(model.TriggerActuatorError))
	assert.False(t, set.Armed(model.TriggerBelowLimit))
}

func TestSnapshotListsAllTriggers(t *testing.T) {
	set := New()
	snap := set.Snapshot()

	assert.Len(t, snap, 7)
	for i := 1; i < len(snap); i++ {
		assert.Less(t, string(snap[i-1].Name), string(snap[i].Name))
	}
}
