package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/ferment-controller/db"
	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

type fixedStatus struct {
	snapshot model.StatusSnapshot
}

func (f fixedStatus) Status() model.StatusSnapshot {
	return f.snapshot
}

func setupTestDB(t *testing.T) *sql.DB {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.SeedDatabase(database, model.ControlConfig{
		HeatingEnabled:    true,
		LowLimit:          64,
		HighLimit:         68,
		HeatingActuatorID: "fermenter_heat",
		CoolingActuatorID: "fermenter_cool",
		IntervalSeconds:   60,
		Strategy:          model.StrategyThreshold,
	}))
	return database
}

func setupServer(t *testing.T, snapshot model.StatusSnapshot) (*sql.DB, http.Handler) {
	database := setupTestDB(t)
	return database, NewServer(database, fixedStatus{snapshot: snapshot}).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetStatus(t *testing.T) {
	temp := 66.4
	_, h := setupServer(t, model.StatusSnapshot{
		Status:      "idle",
		UpdatedAt:   time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		Temperature: &temp,
		SensorID:    "ble_probe",
		Actuators:   []model.ActuatorState{{ID: "fermenter_heat", Confirmation: model.ConfirmationConfirmed}},
		Triggers:    []model.TriggerState{{Name: model.TriggerBelowLimit}},
	})

	w := do(t, h, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var got model.StatusSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "idle", got.Status)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 66.4, *got.Temperature)
	assert.Len(t, got.Actuators, 1)
	assert.Len(t, got.Triggers, 1)
}

func TestGetActuators(t *testing.T) {
	_, h := setupServer(t, model.StatusSnapshot{
		Actuators: []model.ActuatorState{
			{ID: "fermenter_cool"},
			{ID: "fermenter_heat", ConfirmedOn: true, Confirmation: model.ConfirmationAssumed},
		},
	})

	w := do(t, h, http.MethodGet, "/api/actuators", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var got []model.ActuatorState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, model.ConfirmationAssumed, got[1].Confirmation)
}

func TestGetActuatorsBeforeFirstCycle(t *testing.T) {
	_, h := setupServer(t, model.StatusSnapshot{})

	w := do(t, h, http.MethodGet, "/api/actuators", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	_, h := setupServer(t, model.StatusSnapshot{})

	for _, path := range []string{"/api/status", "/api/actuators", "/api/audit", "/api/config"} {
		w := do(t, h, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
	}
	w := do(t, h, http.MethodGet, "/api/config/limits", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPreflight(t *testing.T) {
	_, h := setupServer(t, model.StatusSnapshot{})

	w := do(t, h, http.MethodOptions, "/api/config/limits", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestGetAudit(t *testing.T) {
	database, h := setupServer(t, model.StatusSnapshot{})
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.InsertAuditRecord(database, model.AuditRecord{
			At:         base.Add(time.Duration(i) * time.Second),
			Kind:       model.AuditCommand,
			ActuatorID: "fermenter_heat",
			Action:     model.ActionOn,
			Detail:     "command sent",
		}))
	}

	w := do(t, h, http.MethodGet, "/api/audit?limit=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var got []model.AuditRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	w = do(t, h, http.MethodGet, "/api/audit?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetConfig(t *testing.T) {
	_, h := setupServer(t, model.StatusSnapshot{})

	w := do(t, h, http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var got model.ControlConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 64.0, got.LowLimit)
	assert.Equal(t, "fermenter_heat", got.HeatingActuatorID)
}

func TestSetLimits(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		expectedCode int
		expectedLow  float64
		expectedHigh float64
	}{
		{name: "valid", body: `{"low_limit": 66, "high_limit": 70}`, expectedCode: http.StatusOK, expectedLow: 66, expectedHigh: 70},
		{name: "inverted", body: `{"low_limit": 72, "high_limit": 70}`, expectedCode: http.StatusBadRequest, expectedLow: 64, expectedHigh: 68},
		{name: "equal", body: `{"low_limit": 70, "high_limit": 70}`, expectedCode: http.StatusBadRequest, expectedLow: 64, expectedHigh: 68},
		{name: "malformed", body: `{"low_limit":`, expectedCode: http.StatusBadRequest, expectedLow: 64, expectedHigh: 68},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database, h := setupServer(t, model.StatusSnapshot{})

			w := do(t, h, http.MethodPut, "/api/config/limits", []byte(tt.body))
			assert.Equal(t, tt.expectedCode, w.Code)

			cfg, err := db.GetControlConfig(database)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedLow, cfg.LowLimit)
			assert.Equal(t, tt.expectedHigh, cfg.HighLimit)
		})
	}
}

func TestConfigNotSeeded(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	defer database.Close()

	h := NewServer(database, fixedStatus{}).Handler()
	w := do(t, h, http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetLimitsNotSeeded(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	defer database.Close()

	h := NewServer(database, fixedStatus{}).Handler()
	w := do(t, h, http.MethodPut, "/api/config/limits", []byte(`{"low_limit": 66, "high_limit": 70}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
