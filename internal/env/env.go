package env

import (
	"github.com/thatsimonsguy/ferment-controller/internal/config"
)

var (
	Cfg *config.Config
)
