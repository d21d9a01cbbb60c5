package fermentercontroller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

func TestEvaluateHeating(t *testing.T) {
	threshold := model.ControlConfig{HeatingEnabled: true, LowLimit: 64, HighLimit: 68, Strategy: model.StrategyThreshold}
	midpoint := threshold
	midpoint.Strategy = model.StrategyMidpoint
	disabled := threshold
	disabled.HeatingEnabled = false

	tests := []struct {
		name     string
		cfg      model.ControlConfig
		temp     float64
		expected Decision
	}{
		{"below low turns on", threshold, 63.0, TurnOn},
		{"at low turns on", threshold, 64.0, TurnOn},
		{"inside band maintains", threshold, 66.5, Maintain},
		{"at high turns off", threshold, 68.0, TurnOff},
		{"above high turns off", threshold, 70.0, TurnOff},
		{"empty strategy acts as threshold", model.ControlConfig{HeatingEnabled: true, LowLimit: 64, HighLimit: 68}, 67.0, Maintain},
		{"midpoint turns off at mid", midpoint, 66.0, TurnOff},
		{"midpoint maintains below mid", midpoint, 65.0, Maintain},
		{"midpoint still turns on at low", midpoint, 64.0, TurnOn},
		{"disabled always off", disabled, 50.0, TurnOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EvaluateHeating(tt.cfg, tt.temp))
		})
	}
}

func TestEvaluateCooling(t *testing.T) {
	threshold := model.ControlConfig{CoolingEnabled: true, LowLimit: 64, HighLimit: 68, Strategy: model.StrategyThreshold}
	midpoint := threshold
	midpoint.Strategy = model.StrategyMidpoint
	disabled := threshold
	disabled.CoolingEnabled = false

	tests := []struct {
		name     string
		cfg      model.ControlConfig
		temp     float64
		expected Decision
	}{
		{"above high turns on", threshold, 69.0, TurnOn},
		{"at high turns on", threshold, 68.0, TurnOn},
		{"inside band maintains", threshold, 65.5, Maintain},
		{"at low turns off", threshold, 64.0, TurnOff},
		{"midpoint turns off at mid", midpoint, 66.0, TurnOff},
		{"midpoint maintains above mid", midpoint, 67.0, Maintain},
		{"disabled always off", disabled, 90.0, TurnOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EvaluateCooling(tt.cfg, tt.temp))
		})
	}
}

func TestDecisionAction(t *testing.T) {
	assert.Equal(t, model.ActionOn, TurnOn.Action())
	assert.Equal(t, model.ActionOff, TurnOff.Action())
	assert.Equal(t, model.ActionNone, Maintain.Action())
	assert.Equal(t, "maintain", Maintain.String())
}
