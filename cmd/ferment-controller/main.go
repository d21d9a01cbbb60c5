package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thatsimonsguy/ferment-controller/db"
	"github.com/thatsimonsguy/ferment-controller/internal/actuator"
	"github.com/thatsimonsguy/ferment-controller/internal/api"
	"github.com/thatsimonsguy/ferment-controller/internal/audit"
	"github.com/thatsimonsguy/ferment-controller/internal/config"
	"github.com/thatsimonsguy/ferment-controller/internal/controllers/fermentercontroller"
	"github.com/thatsimonsguy/ferment-controller/internal/datadog"
	"github.com/thatsimonsguy/ferment-controller/internal/dispatcher"
	"github.com/thatsimonsguy/ferment-controller/internal/env"
	"github.com/thatsimonsguy/ferment-controller/internal/logging"
	"github.com/thatsimonsguy/ferment-controller/internal/model"
	"github.com/thatsimonsguy/ferment-controller/internal/notifications"
	"github.com/thatsimonsguy/ferment-controller/internal/reconciler"
	"github.com/thatsimonsguy/ferment-controller/internal/state"
	"github.com/thatsimonsguy/ferment-controller/internal/store"
	"github.com/thatsimonsguy/ferment-controller/internal/temperature"
	"github.com/thatsimonsguy/ferment-controller/internal/triggers"
	"github.com/thatsimonsguy/ferment-controller/system/shutdown"
)

const pruneInterval = time.Hour

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile, cfg.LogConsole)
	env.Cfg = &cfg

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db", cfg.DBPath).
		Str("driver", cfg.Driver).
		Msg("Starting fermentation controller")

	datadog.InitMetrics()

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer dbConn.Close()

	if err := db.SeedDatabase(dbConn, cfg.Defaults); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed control config")
	}

	driver, closeDriver := openDriver(&cfg)
	defer closeDriver()

	ids := cfg.ActuatorIDs()
	shutdown.Register(driver, ids)
	ensureOff(driver, ids, time.Duration(cfg.CommandTimeoutSeconds)*time.Second)

	commands := make(chan model.Command, cfg.CommandQueueSize)
	results := make(chan model.Result, cfg.CommandQueueSize)

	table := state.NewTable(ids...)
	recorder := audit.NewRecorder(dbConn)
	ntfy := notifications.New(cfg.NtfyServer, cfg.NtfyTopic)
	trig := triggers.New(recorder, ntfy)

	worker := actuator.NewWorker(driver, commands, results, time.Duration(cfg.CommandTimeoutSeconds)*time.Second)
	rec := reconciler.New(table, results,
		time.Duration(cfg.PendingTimeoutSeconds)*time.Second,
		time.Duration(cfg.ReconcilePollSeconds)*time.Second,
		recorder)
	disp := dispatcher.New(table, commands, time.Duration(cfg.RecoveryWindowSeconds)*time.Second, recorder)

	var statusStore fermentercontroller.StatusWriter
	if cfg.StatusFile != "" {
		statusFile := store.New(cfg.StatusFile)
		if previous, err := statusFile.Load(); err == nil {
			log.Info().
				Str("status", previous.Status).
				Time("updated_at", previous.UpdatedAt).
				Msg("Status at previous shutdown")
		}
		statusStore = statusFile
	}

	controller := fermentercontroller.New(fermentercontroller.Deps{
		Config:           fermentercontroller.DBConfig{DB: dbConn},
		Readings:         temperature.NewService(dbConn, cfg.TempMaxDelta, cfg.TempMaxAnomalies),
		Dispatcher:       disp,
		Reconciler:       rec,
		Table:            table,
		Triggers:         trig,
		Store:            statusStore,
		FallbackInterval: time.Duration(cfg.FallbackIntervalSeconds) * time.Second,
	})
	server := api.NewServer(dbConn, controller)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return rec.Run(gctx) })
	g.Go(func() error { return controller.Run(gctx) })
	g.Go(func() error { return ntfy.Run(gctx) })
	g.Go(func() error {
		return temperature.RunPruner(gctx, dbConn, time.Duration(cfg.ReadingRetentionHours)*time.Hour, pruneInterval)
	})
	g.Go(func() error { return server.Start(gctx, cfg.APIPort) })

	err = g.Wait()
	shutdown.Shutdown()
	if err != nil {
		log.Error().Err(err).Msg("Fermentation controller stopped with error")
		return
	}
	log.Info().Msg("Fermentation controller stopped")
}

// openDriver returns the relay driver and a function releasing it.
func openDriver(cfg *config.Config) (actuator.Driver, func()) {
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED — relay commands are logged, not executed")
		return actuator.NewSafeModeDriver(), func() {}
	}

	switch cfg.Driver {
	case "mqtt":
		d, err := actuator.ConnectMQTT(actuator.MQTTOptions{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			CommandTopic:   cfg.MQTT.CommandTopic,
			StateTopic:     cfg.MQTT.StateTopic,
			QoS:            byte(cfg.MQTT.QoS),
			ConnectTimeout: time.Duration(cfg.MQTT.ConnectTimeoutSeconds) * time.Second,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect relay driver")
		}
		return d, d.Close
	default:
		pins := make(map[string]actuator.Pin, len(cfg.Pins))
		for id, p := range cfg.Pins {
			pins[id] = actuator.Pin{Number: p.Number, ActiveHigh: p.ActiveHigh}
		}
		return actuator.NewPinctrlDriver(pins), func() {}
	}
}

// ensureOff refuses to start control unless every relay reads off, switching them off once if needed.
func ensureOff(driver actuator.Driver, ids []string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := actuator.VerifyOff(ctx, driver, ids)
	if err == nil {
		return
	}
	log.Warn().Err(err).Msg("Relays not confirmed off at startup, switching off")

	if err := actuator.AllOff(ctx, driver, ids); err != nil {
		log.Fatal().Err(err).Msg("Refusing to start with relays in an unknown state")
	}
	if err := actuator.VerifyOff(ctx, driver, ids); err != nil {
		log.Fatal().Err(err).Msg("Refusing to start with relays in an unknown state")
	}
}
