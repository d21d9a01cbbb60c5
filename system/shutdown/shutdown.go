package shutdown

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/internal/actuator"
)

var (
	mutex       sync.Mutex
	driver      actuator.Driver
	actuatorIDs []string

	exitFunc = os.Exit
)

const offTimeout = 15 * time.Second

// Register records the driver and actuators to switch off when the process stops.
func Register(d actuator.Driver, ids []string) {
	mutex.Lock()
	defer mutex.Unlock()
	driver = d
	actuatorIDs = append([]string(nil), ids...)
}

// Shutdown switches every registered actuator off directly through the driver.
func Shutdown() {
	mutex.Lock()
	d, ids := driver, actuatorIDs
	mutex.Unlock()

	if d == nil {
		log.Warn().Msg("No actuator driver registered, nothing to switch off")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), offTimeout)
	defer cancel()

	if err := actuator.AllOff(ctx, d, ids); err != nil {
		log.Error().Err(err).Msg("Failed to switch all actuators off")
		return
	}
	log.Info().Strs("actuators", ids).Msg("All actuators switched off")
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown()
	exitFunc(1)
}
