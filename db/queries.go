package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

// GetControlConfig reads the operator-editable control config.
func GetControlConfig(db *sql.DB) (model.ControlConfig, error) {
	return getControlConfig(db)
}

func getControlConfig(q rowQuerier) (model.ControlConfig, error) {
	var cfg model.ControlConfig
	var strategy string
	err := q.QueryRow(`SELECT heating_enabled, cooling_enabled, low_limit, high_limit, heating_actuator_id,
		cooling_actuator_id, interval_seconds, control_sensor_id, strategy FROM control_config WHERE id = 1`).
		Scan(&cfg.HeatingEnabled, &cfg.CoolingEnabled, &cfg.LowLimit, &cfg.HighLimit, &cfg.HeatingActuatorID,
			&cfg.CoolingActuatorID, &cfg.IntervalSeconds, &cfg.ControlSensorID, &strategy)
	if err != nil {
		return cfg, fmt.Errorf("failed to get control config: %w", err)
	}
	cfg.Strategy = model.HysteresisStrategy(strategy)
	return cfg, nil
}

// GetLatestReading returns the newest reading for the sensor, or the newest from any sensor when
// sensorID is empty. It returns nil without error when there is none.
func GetLatestReading(db *sql.DB, sensorID string) (*model.Reading, error) {
	var row *sql.Row
	if sensorID == "" {
		row = db.QueryRow(`SELECT sensor_id, temperature, observed_at FROM readings ORDER BY observed_at DESC, id DESC LIMIT 1`)
	} else {
		row = db.QueryRow(`SELECT sensor_id, temperature, observed_at FROM readings WHERE sensor_id = ?
			ORDER BY observed_at DESC, id DESC LIMIT 1`, sensorID)
	}

	var r model.Reading
	var observedMillis int64
	err := row.Scan(&r.SourceID, &r.Temperature, &observedMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}
	r.ObservedAt = time.UnixMilli(observedMillis).UTC()
	return &r, nil
}

// GetAuditRecords returns up to limit audit records, newest first.
func GetAuditRecords(db *sql.DB, limit int) ([]model.AuditRecord, error) {
	rows, err := db.Query(`SELECT id, at, kind, actuator_id, action, detail FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		var rec model.AuditRecord
		var at, kind, action string
		if err := rows.Scan(&rec.ID, &at, &kind, &rec.ActuatorID, &action, &rec.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit record %d time: %w", rec.ID, err)
		}
		rec.Kind = model.AuditKind(kind)
		rec.Action = model.Action(action)
		records = append(records, rec)
	}
	return records, rows.Err()
}
