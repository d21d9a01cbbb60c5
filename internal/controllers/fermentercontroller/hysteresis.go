package fermentercontroller

import "github.com/thatsimonsguy/ferment-controller/internal/model"

type Decision int

const (
	Maintain Decision = iota
	TurnOn
	TurnOff
)

func (d Decision) String() string {
	switch d {
	case TurnOn:
		return "turn_on"
	case TurnOff:
		return "turn_off"
	default:
		return "maintain"
	}
}

// Action returns the command for a decision, or ActionNone for Maintain.
func (d Decision) Action() model.Action {
	switch d {
	case TurnOn:
		return model.ActionOn
	case TurnOff:
		return model.ActionOff
	default:
		return model.ActionNone
	}
}

// offThresholds returns the temperatures at which heating and cooling switch off.
func offThresholds(cfg model.ControlConfig) (heatOff, coolOff float64) {
	if cfg.Strategy == model.StrategyMidpoint {
		mid := (cfg.LowLimit + cfg.HighLimit) / 2
		return mid, mid
	}
	return cfg.HighLimit, cfg.LowLimit
}

func EvaluateHeating(cfg model.ControlConfig, temp float64) Decision {
	if !cfg.HeatingEnabled {
		return TurnOff
	}
	heatOff, _ := offThresholds(cfg)
	switch {
	case temp <= cfg.LowLimit:
		return TurnOn
	case temp >= heatOff:
		return TurnOff
	default:
		return Maintain
	}
}

func EvaluateCooling(cfg model.ControlConfig, temp float64) Decision {
	if !cfg.CoolingEnabled {
		return TurnOff
	}
	_, coolOff := offThresholds(cfg)
	switch {
	case temp >= cfg.HighLimit:
		return TurnOn
	case temp <= coolOff:
		return TurnOff
	default:
		return Maintain
	}
}
