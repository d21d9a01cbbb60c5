package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := New(path)

	temp := 67.2
	snapshot := &model.StatusSnapshot{
		Status:      "heating",
		UpdatedAt:   time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		Temperature: &temp,
		SensorID:    "ble_probe",
		Actuators: []model.ActuatorState{
			{ID: "fermenter_heat", ConfirmedOn: true, Confirmation: model.ConfirmationConfirmed},
		},
	}
	require.NoError(t, s.Save(snapshot))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "heating", loaded.Status)
	require.NotNil(t, loaded.Temperature)
	assert.Equal(t, 67.2, *loaded.Temperature)
	require.Len(t, loaded.Actuators, 1)
	assert.True(t, loaded.Actuators[0].ConfirmedOn)
	assert.True(t, snapshot.UpdatedAt.Equal(loaded.UpdatedAt))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.json")).Load()
	assert.True(t, os.IsNotExist(err))
}
