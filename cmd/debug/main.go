package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/thatsimonsguy/ferment-controller/db"
	"github.com/thatsimonsguy/ferment-controller/internal/config"
	"github.com/thatsimonsguy/ferment-controller/internal/env"
	"github.com/thatsimonsguy/ferment-controller/system/startup"
)

const commands = "set-limits, set-heating, set-cooling, set-actuators, set-interval, set-sensor, set-strategy, " +
	"insert-reading, show-config, audit-tail, install-service"

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, configFile, heatingID, coolingID, sensorID, strategy string
	var low, high, temp float64
	var enabled, runBootScript bool
	var interval, limit int

	flag.StringVar(&dbPath, "db", "data/ferment.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: "+commands)
	flag.StringVar(&configFile, "config-file", "config.json", "Controller config file (install-service)")
	flag.Float64Var(&low, "low", 0, "Low limit (set-limits)")
	flag.Float64Var(&high, "high", 0, "High limit (set-limits)")
	flag.BoolVar(&enabled, "enabled", false, "Enable flag (set-heating, set-cooling)")
	flag.StringVar(&heatingID, "heating", "", "Heating actuator ID (set-actuators)")
	flag.StringVar(&coolingID, "cooling", "", "Cooling actuator ID (set-actuators)")
	flag.IntVar(&interval, "interval", 0, "Control interval in seconds (set-interval)")
	flag.StringVar(&sensorID, "sensor", "", "Sensor ID (set-sensor, insert-reading); empty means any sensor")
	flag.StringVar(&strategy, "strategy", "", "Hysteresis strategy: threshold or midpoint (set-strategy)")
	flag.Float64Var(&temp, "temp", 0, "Temperature (insert-reading)")
	flag.IntVar(&limit, "limit", 20, "Number of records (audit-tail)")
	flag.BoolVar(&runBootScript, "run-boot-script", false, "Run the relay boot script after installing (install-service)")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of ferment-debug:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	var err error
	switch command {
	case "set-limits":
		err = db.SetLimitsCLI(dbPath, low, high)
	case "set-heating":
		err = db.SetHeatingEnabledCLI(dbPath, enabled)
	case "set-cooling":
		err = db.SetCoolingEnabledCLI(dbPath, enabled)
	case "set-actuators":
		err = db.SetActuatorsCLI(dbPath, heatingID, coolingID)
	case "set-interval":
		err = db.SetIntervalCLI(dbPath, interval)
	case "set-sensor":
		err = db.SetControlSensorCLI(dbPath, sensorID)
	case "set-strategy":
		err = db.SetStrategyCLI(dbPath, strategy)
	case "insert-reading":
		if sensorID == "" {
			fmt.Println("Error: sensor ID is required")
			os.Exit(1)
		}
		err = db.InsertReadingCLI(dbPath, sensorID, temp)
	case "show-config":
		err = showConfig(dbPath)
	case "audit-tail":
		err = auditTail(dbPath, limit)
	case "install-service":
		err = installService(configFile, runBootScript)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func showConfig(dbPath string) error {
	cfg, err := db.ShowConfigCLI(dbPath)
	if err != nil {
		return err
	}
	fmt.Printf("heating:   enabled=%t actuator=%q\n", cfg.HeatingEnabled, cfg.HeatingActuatorID)
	fmt.Printf("cooling:   enabled=%t actuator=%q\n", cfg.CoolingEnabled, cfg.CoolingActuatorID)
	fmt.Printf("limits:    %.2f .. %.2f (%s)\n", cfg.LowLimit, cfg.HighLimit, cfg.Strategy)
	fmt.Printf("interval:  %ds\n", cfg.IntervalSeconds)
	fmt.Printf("sensor:    %q\n", cfg.ControlSensorID)
	if err := cfg.Validate(); err != nil {
		fmt.Printf("WARNING:   %v\n", err)
	}
	return nil
}

func auditTail(dbPath string, limit int) error {
	records, err := db.AuditTailCLI(dbPath, limit)
	if err != nil {
		return err
	}
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		fmt.Printf("%s  %-10s %-16s %-4s %s\n",
			r.At.Local().Format(time.DateTime), r.Kind, r.ActuatorID, strings.ToUpper(string(r.Action)), r.Detail)
	}
	return nil
}

func installService(configFile string, runBootScript bool) error {
	file, err := os.Open(configFile)
	if err != nil {
		return err
	}
	defer file.Close()

	cfg, err := config.Parse(file)
	if err != nil {
		return err
	}
	env.Cfg = &cfg

	if cfg.Driver == "pinctrl" {
		if err := startup.WriteStartupScript(); err != nil {
			return fmt.Errorf("write boot script: %w", err)
		}
		if err := startup.InstallStartupService(); err != nil {
			return fmt.Errorf("install boot service: %w", err)
		}
		if runBootScript {
			if err := startup.RunStartupScript(); err != nil {
				return fmt.Errorf("run boot script: %w", err)
			}
		}
	}
	return startup.InstallControllerService()
}
