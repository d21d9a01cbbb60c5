package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/db"
	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

// Recorder writes one timestamped audit row per command, result, trigger transition and timeout assumption.
// A nil database logs only.
type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

func NewRecorder(database *sql.DB) *Recorder {
	return &Recorder{db: database, now: time.Now}
}

func (r *Recorder) record(rec model.AuditRecord) {
	rec.At = r.now()

	log.Info().
		Str("audit", string(rec.Kind)).
		Str("actuator", rec.ActuatorID).
		Str("action", string(rec.Action)).
		Msg(rec.Detail)

	if r.db == nil {
		return
	}
	if err := db.InsertAuditRecord(r.db, rec); err != nil {
		log.Error().Err(err).Str("audit", string(rec.Kind)).Msg("Failed to write audit record")
	}
}

func (r *Recorder) CommandSent(cmd model.Command, outcome string) {
	r.record(model.AuditRecord{
		Kind:       model.AuditCommand,
		ActuatorID: cmd.ActuatorID,
		Action:     cmd.Action,
		Detail:     "command " + outcome,
	})
}

func (r *Recorder) ResultReceived(res model.Result, disposition string) {
	detail := fmt.Sprintf("result success=%t %s", res.Success, disposition)
	if res.Error != "" {
		detail += ": " + res.Error
	}
	r.record(model.AuditRecord{
		Kind:       model.AuditResult,
		ActuatorID: res.ActuatorID,
		Action:     res.Action,
		Detail:     detail,
	})
}

func (r *Recorder) Assumed(id string, action model.Action, pendingSince time.Time) {
	r.record(model.AuditRecord{
		Kind:       model.AuditAssumption,
		ActuatorID: id,
		Action:     action,
		Detail:     fmt.Sprintf("no result since %s, assumed %s (unconfirmed)", pendingSince.UTC().Format(time.RFC3339), action),
	})
}

// Notify records a trigger transition.
func (r *Recorder) Notify(ev model.Event) {
	state := "disarmed"
	if ev.Armed {
		state = "armed"
	}
	r.record(model.AuditRecord{
		Kind:   model.AuditTrigger,
		Detail: fmt.Sprintf("%s %s (%s): %s", ev.Trigger, state, ev.Severity, ev.Message),
	})
}
