package temperature

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/ferment-controller/db"
	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	dbConn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbConn.Close() })
	return dbConn
}

type scenario struct {
	name             string
	readings         []float64
	expectedReturned []float64
	expectedDisabled bool
}

func runScenario(t *testing.T, sc scenario) {
	dbConn := setupTestDB(t)
	service := NewService(dbConn, 5.0, 3)
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for i, temp := range sc.readings {
		require.NoError(t, db.InsertReading(dbConn, model.Reading{
			SourceID:    "ble_probe",
			Temperature: temp,
			ObservedAt:  start.Add(time.Duration(i) * time.Minute),
		}))

		got, err := service.Latest("ble_probe")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.InDelta(t, sc.expectedReturned[i], got.Temperature, 0.01, "reading %d (%.1f)", i, temp)
	}

	assert.Equal(t, sc.expectedDisabled, service.Disabled("ble_probe"))
}

func TestAnomalyScenarios(t *testing.T) {
	scenarios := []scenario{
		{
			name:             "gradual changes accepted",
			readings:         []float64{68.0, 68.5, 69.0, 68.7, 68.2},
			expectedReturned: []float64{68.0, 68.5, 69.0, 68.7, 68.2},
		},
		{
			name:             "single spike held at last good",
			readings:         []float64{68.0, 185.0, 68.3},
			expectedReturned: []float64{68.0, 68.0, 68.3},
		},
		{
			name:             "stable shift becomes new baseline",
			readings:         []float64{68.0, 80.0, 80.5, 80.2, 80.4},
			expectedReturned: []float64{68.0, 68.0, 68.0, 80.2, 80.4},
		},
		{
			name:             "erratic sensor disabled",
			readings:         []float64{68.0, 120.0, 20.0, 150.0},
			expectedReturned: []float64{68.0, 68.0, 68.0, 68.0},
			expectedDisabled: true,
		},
		{
			name:             "disabled sensor recovers on good reading",
			readings:         []float64{68.0, 120.0, 20.0, 150.0, 67.5},
			expectedReturned: []float64{68.0, 68.0, 68.0, 68.0, 67.5},
		},
	}

	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			runScenario(t, sc)
		})
	}
}

func TestRejectedReadingKeepsOldTimestamp(t *testing.T) {
	dbConn := setupTestDB(t)
	service := NewService(dbConn, 5.0, 3)
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, db.InsertReading(dbConn, model.Reading{SourceID: "ble_probe", Temperature: 68.0, ObservedAt: start}))
	_, err := service.Latest("")
	require.NoError(t, err)

	require.NoError(t, db.InsertReading(dbConn, model.Reading{SourceID: "ble_probe", Temperature: 140.0, ObservedAt: start.Add(5 * time.Minute)}))
	got, err := service.Latest("")
	require.NoError(t, err)

	assert.True(t, got.ObservedAt.Equal(start))
	assert.True(t, got.Stale(start.Add(5*time.Minute), 2*time.Minute))
}

func TestRepeatedRowNotCountedTwice(t *testing.T) {
	dbConn := setupTestDB(t)
	service := NewService(dbConn, 5.0, 2)
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, db.InsertReading(dbConn, model.Reading{SourceID: "ble_probe", Temperature: 68.0, ObservedAt: start}))
	_, err := service.Latest("ble_probe")
	require.NoError(t, err)
	require.NoError(t, db.InsertReading(dbConn, model.Reading{SourceID: "ble_probe", Temperature: 140.0, ObservedAt: start.Add(time.Minute)}))

	for i := 0; i < 3; i++ {
		_, err := service.Latest("ble_probe")
		require.NoError(t, err)
	}
	assert.False(t, service.Disabled("ble_probe"))
}

func TestFilteringDisabled(t *testing.T) {
	dbConn := setupTestDB(t)
	service := NewService(dbConn, 0, 3)
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, db.InsertReading(dbConn, model.Reading{SourceID: "ble_probe", Temperature: 68.0, ObservedAt: start}))
	_, err := service.Latest("ble_probe")
	require.NoError(t, err)

	require.NoError(t, db.InsertReading(dbConn, model.Reading{SourceID: "ble_probe", Temperature: 140.0, ObservedAt: start.Add(time.Minute)}))
	got, err := service.Latest("ble_probe")
	require.NoError(t, err)
	assert.Equal(t, 140.0, got.Temperature)
}

func TestNoReadings(t *testing.T) {
	service := NewService(setupTestDB(t), 5.0, 3)
	got, err := service.Latest("ble_probe")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestPruneOnce(t *testing.T) {
	dbConn := setupTestDB(t)
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

	require.NoError(t, db.InsertReading(dbConn, model.Reading{SourceID: "ble_probe", Temperature: 66.0, ObservedAt: now.Add(-72 * time.Hour)}))
	require.NoError(t, db.InsertReading(dbConn, model.Reading{SourceID: "ble_probe", Temperature: 68.0, ObservedAt: now}))

	pruneOnce(dbConn, now.Add(-48*time.Hour))

	var count int
	require.NoError(t, dbConn.QueryRow(`SELECT COUNT(*) FROM readings`).Scan(&count))
	assert.Equal(t, 1, count)
}
