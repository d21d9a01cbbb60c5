package db

import (
	"database/sql"
	"time"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

func withDB(dbPath string, fn func(db *sql.DB) error) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()
	return fn(dbConn)
}

func SetLimitsCLI(dbPath string, low, high float64) error {
	return withDB(dbPath, func(db *sql.DB) error { return UpdateLimits(db, low, high) })
}

func SetHeatingEnabledCLI(dbPath string, enabled bool) error {
	return withDB(dbPath, func(db *sql.DB) error { return SetHeatingEnabled(db, enabled) })
}

func SetCoolingEnabledCLI(dbPath string, enabled bool) error {
	return withDB(dbPath, func(db *sql.DB) error { return SetCoolingEnabled(db, enabled) })
}

func SetActuatorsCLI(dbPath, heatingID, coolingID string) error {
	return withDB(dbPath, func(db *sql.DB) error { return SetActuatorIDs(db, heatingID, coolingID) })
}

func SetIntervalCLI(dbPath string, seconds int) error {
	return withDB(dbPath, func(db *sql.DB) error { return SetInterval(db, seconds) })
}

func SetControlSensorCLI(dbPath, sensorID string) error {
	return withDB(dbPath, func(db *sql.DB) error { return SetControlSensor(db, sensorID) })
}

func SetStrategyCLI(dbPath, strategy string) error {
	return withDB(dbPath, func(db *sql.DB) error { return SetStrategy(db, model.HysteresisStrategy(strategy)) })
}

func InsertReadingCLI(dbPath, sensorID string, temperature float64) error {
	return withDB(dbPath, func(db *sql.DB) error {
		return InsertReading(db, model.Reading{Temperature: temperature, SourceID: sensorID, ObservedAt: time.Now()})
	})
}

func ShowConfigCLI(dbPath string) (model.ControlConfig, error) {
	var cfg model.ControlConfig
	err := withDB(dbPath, func(db *sql.DB) error {
		var err error
		cfg, err = GetControlConfig(db)
		return err
	})
	return cfg, err
}

func AuditTailCLI(dbPath string, limit int) ([]model.AuditRecord, error) {
	var records []model.AuditRecord
	err := withDB(dbPath, func(db *sql.DB) error {
		var err error
		records, err = GetAuditRecords(db, limit)
		return err
	})
	return records, err
}
