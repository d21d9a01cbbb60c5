package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Open opens the sqlite database at path and makes sure the schema exists.
func Open(path string) (*sql.DB, error) {
	dbConn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases intact and serialises writers
	dbConn.SetMaxOpenConns(1)

	if err := ApplySchema(dbConn); err != nil {
		dbConn.Close()
		return nil, err
	}
	return dbConn, nil
}

func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SeedDatabase inserts the initial control config unless one already exists.
func SeedDatabase(db *sql.DB, defaults model.ControlConfig) error {
	strategy := defaults.Strategy
	if strategy == "" {
		strategy = model.StrategyThreshold
	}

	res, err := db.Exec(`INSERT OR IGNORE INTO control_config
		(id, heating_enabled, cooling_enabled, low_limit, high_limit, heating_actuator_id, cooling_actuator_id, interval_seconds, control_sensor_id, strategy, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		defaults.HeatingEnabled, defaults.CoolingEnabled, defaults.LowLimit, defaults.HighLimit,
		defaults.HeatingActuatorID, defaults.CoolingActuatorID, defaults.IntervalSeconds,
		defaults.ControlSensorID, string(strategy), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to seed control config: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		log.Info().
			Float64("low_limit", defaults.LowLimit).
			Float64("high_limit", defaults.HighLimit).
			Msg("Seeded control config")
	}
	return nil
}
