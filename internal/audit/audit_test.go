package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/ferment-controller/db"
	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

func TestRecorderWritesEveryKind(t *testing.T) {
	dbConn, err := db.Open(":memory:")
	require.NoError(t, err)
	defer dbConn.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRecorder(dbConn)
	r.now = func() time.Time { return at }

	r.CommandSent(model.Command{ActuatorID: "fermenter_heat", Action: model.ActionOn}, "sent")
	r.ResultReceived(model.Result{ActuatorID: "fermenter_heat", Action: model.ActionOn, Success: false, Error: "timeout"}, "applied")
	r.Assumed("fermenter_cool", model.ActionOff, at.Add(-time.Minute))
	r.Notify(model.Event{Trigger: model.TriggerAboveLimit, Severity: model.SeverityWarning, Message: "above high limit", Armed: true})

	records, err := db.GetAuditRecords(dbConn, 10)
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, model.AuditTrigger, records[0].Kind)
	assert.Equal(t, "above_limit armed (warning): above high limit", records[0].Detail)

	assert.Equal(t, model.AuditAssumption, records[1].Kind)
	assert.Equal(t, "fermenter_cool", records[1].ActuatorID)
	assert.Contains(t, records[1].Detail, "unconfirmed")

	assert.Equal(t, model.AuditResult, records[2].Kind)
	assert.Equal(t, "result success=false applied: timeout", records[2].Detail)

	assert.Equal(t, model.AuditCommand, records[3].Kind)
	assert.Equal(t, model.ActionOn, records[3].Action)
	assert.True(t, at.Equal(records[3].At))
}

func TestRecorderWithoutDatabase(t *testing.T) {
	r := NewRecorder(nil)
	assert.NotPanics(t, func() {
		r.CommandSent(model.Command{ActuatorID: "fermenter_heat", Action: model.ActionOff}, "blocked")
	})
}
