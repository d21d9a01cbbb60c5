package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func updateConfigWithTx(tx *sql.Tx, assignments string, args ...interface{}) error {
	args = append(args, time.Now().UTC().Format(time.RFC3339))
	res, err := tx.Exec(`UPDATE control_config SET `+assignments+`, updated_at = ? WHERE id = 1`, args...)
	if err != nil {
		return fmt.Errorf("update control config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update control config: %w", sql.ErrNoRows)
	}
	return nil
}

func updateConfig(db *sql.DB, assignments string, args ...interface{}) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := updateConfigWithTx(tx, assignments, args...); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

// ApplyLimits sets new bounds only if the resulting config validates. The config is read and
// updated inside one transaction.
func ApplyLimits(db *sql.DB, low, high float64) (model.ControlConfig, error) {
	tx, err := StartTransaction(db)
	if err != nil {
		return model.ControlConfig{}, err
	}
	defer RollbackTransaction(tx)

	cfg, err := getControlConfig(tx)
	if err != nil {
		return cfg, err
	}
	cfg.LowLimit = low
	cfg.HighLimit = high
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if err := updateConfigWithTx(tx, `low_limit = ?, high_limit = ?`, low, high); err != nil {
		return cfg, err
	}
	return cfg, CommitTransaction(tx)
}

// UpdateLimits stores new bounds. Bounds are not validated here: an inverted pair is caught by the
// control loop, which then holds both actuators off.
func UpdateLimits(db *sql.DB, low, high float64) error {
	return updateConfig(db, `low_limit = ?, high_limit = ?`, low, high)
}

func SetHeatingEnabled(db *sql.DB, enabled bool) error {
	return updateConfig(db, `heating_enabled = ?`, enabled)
}

func SetCoolingEnabled(db *sql.DB, enabled bool) error {
	return updateConfig(db, `cooling_enabled = ?`, enabled)
}

func SetActuatorIDs(db *sql.DB, heatingID, coolingID string) error {
	return updateConfig(db, `heating_actuator_id = ?, cooling_actuator_id = ?`, heatingID, coolingID)
}

func SetInterval(db *sql.DB, seconds int) error {
	return updateConfig(db, `interval_seconds = ?`, seconds)
}

func SetControlSensor(db *sql.DB, sensorID string) error {
	return updateConfig(db, `control_sensor_id = ?`, sensorID)
}

func SetStrategy(db *sql.DB, strategy model.HysteresisStrategy) error {
	return updateConfig(db, `strategy = ?`, string(strategy))
}

func InsertReading(db *sql.DB, r model.Reading) error {
	_, err := db.Exec(`INSERT INTO readings (sensor_id, temperature, observed_at) VALUES (?, ?, ?)`,
		r.SourceID, r.Temperature, r.ObservedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// PruneReadings deletes readings observed before cutoff and returns how many were removed.
func PruneReadings(db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM readings WHERE observed_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	return res.RowsAffected()
}

func InsertAuditRecord(db *sql.DB, rec model.AuditRecord) error {
	_, err := db.Exec(`INSERT INTO audit_log (at, kind, actuator_id, action, detail) VALUES (?, ?, ?, ?, ?)`,
		rec.At.UTC().Format(time.RFC3339Nano), string(rec.Kind), rec.ActuatorID, string(rec.Action), rec.Detail)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
