package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

type MQTT struct {
	Broker                string `json:"broker" validate:"omitempty,url"`
	ClientID              string `json:"client_id"`
	Username              string `json:"username"`
	Password              string `json:"password"`
	CommandTopic          string `json:"command_topic" validate:"topic_template"`
	StateTopic            string `json:"state_topic" validate:"topic_template"`
	QoS                   int    `json:"qos" validate:"min=0,max=2"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds" validate:"min=1"`
}

type Pin struct {
	Number     int  `json:"number" validate:"min=0,max=27"`
	ActiveHigh bool `json:"active_high"`
}

type Config struct {
	ConfigFile string        `json:"-"`
	LogLevel   zerolog.Level `json:"-"`

	DBPath     string `json:"db_path" validate:"required"`
	StatusFile string `json:"status_file"`
	LogFile    string `json:"log_file"`
	LogConsole bool   `json:"log_console"`
	SafeMode   bool   `json:"safe_mode"`
	APIPort    int    `json:"api_port" validate:"min=0,max=65535"`

	Driver string         `json:"driver" validate:"required,oneof=mqtt pinctrl"`
	MQTT   MQTT           `json:"mqtt"`
	Pins   map[string]Pin `json:"pins" validate:"dive"`

	CommandTimeoutSeconds   int `json:"command_timeout_seconds" validate:"min=1"`
	PendingTimeoutSeconds   int `json:"pending_timeout_seconds" validate:"min=1"`
	RecoveryWindowSeconds   int `json:"recovery_window_seconds" validate:"min=0"`
	ReconcilePollSeconds    int `json:"reconcile_poll_seconds" validate:"min=1"`
	CommandQueueSize        int `json:"command_queue_size" validate:"min=1"`
	FallbackIntervalSeconds int `json:"fallback_interval_seconds" validate:"min=1"`

	TempMaxDelta          float64 `json:"temp_max_delta" validate:"gte=0"`
	TempMaxAnomalies      int     `json:"temp_max_anomalies" validate:"min=1"`
	ReadingRetentionHours int     `json:"reading_retention_hours" validate:"min=0"`

	// seeds the control_config row on first start only
	Defaults model.ControlConfig `json:"defaults"`

	NtfyServer string `json:"ntfy_server" validate:"omitempty,url"`
	NtfyTopic  string `json:"ntfy_topic"`

	BootScriptPath        string `json:"boot_script_path"`
	BootServicePath       string `json:"boot_service_path"`
	ControllerServicePath string `json:"controller_service_path"`
	ServiceUser           string `json:"service_user"`
	ServiceWorkDir        string `json:"service_work_dir"`
	ServiceExecStart      string `json:"service_exec_start"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr" validate:"required_if=EnableDatadog true"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`
}

var (
	structValidator *validator.Validate
	validatorOnce   sync.Once
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		structValidator = validator.New()
		if err := structValidator.RegisterValidation("topic_template", validateTopicTemplate); err != nil {
			panic(err)
		}
	})
	return structValidator
}

// validateTopicTemplate accepts an empty value or a topic with exactly one %s for the actuator id.
func validateTopicTemplate(fl validator.FieldLevel) bool {
	topic := fl.Field().String()
	return topic == "" || strings.Count(topic, "%s") == 1 && strings.Count(topic, "%") == 1
}

func Load() Config {
	var configFile, logLevel string

	flag.StringVar(&configFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	file, err := os.Open(configFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	cfg, err := Parse(file)
	if err != nil {
		panic(err.Error())
	}
	cfg.ConfigFile = configFile
	cfg.LogLevel = parseLogLevel(logLevel)
	return cfg
}

// Parse decodes a JSON config, fills defaults and validates it.
func Parse(r io.Reader) (Config, error) {
	var cfg Config
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.DBPath == "" {
		cfg.DBPath = "data/ferment.db"
	}
	if cfg.CommandTimeoutSeconds == 0 {
		cfg.CommandTimeoutSeconds = 30
	}
	if cfg.PendingTimeoutSeconds == 0 {
		cfg.PendingTimeoutSeconds = 45
	}
	if cfg.RecoveryWindowSeconds == 0 {
		cfg.RecoveryWindowSeconds = 600
	}
	if cfg.ReconcilePollSeconds == 0 {
		cfg.ReconcilePollSeconds = 1
	}
	if cfg.CommandQueueSize == 0 {
		cfg.CommandQueueSize = 8
	}
	if cfg.FallbackIntervalSeconds == 0 {
		cfg.FallbackIntervalSeconds = 60
	}
	if cfg.TempMaxAnomalies == 0 {
		cfg.TempMaxAnomalies = 3
	}
	if cfg.NtfyServer == "" {
		cfg.NtfyServer = "https://ntfy.sh"
	}
	if cfg.MQTT.CommandTopic == "" {
		cfg.MQTT.CommandTopic = "cmnd/%s/POWER"
	}
	if cfg.MQTT.StateTopic == "" {
		cfg.MQTT.StateTopic = "stat/%s/POWER"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "ferment-controller"
	}
	if cfg.MQTT.QoS == 0 {
		cfg.MQTT.QoS = 1
	}
	if cfg.MQTT.ConnectTimeoutSeconds == 0 {
		cfg.MQTT.ConnectTimeoutSeconds = 10
	}
	if cfg.BootScriptPath == "" {
		cfg.BootScriptPath = "/usr/local/bin/ferment-relays-off.sh"
	}
	if cfg.BootServicePath == "" {
		cfg.BootServicePath = "/etc/systemd/system/ferment-relays.service"
	}
	if cfg.ControllerServicePath == "" {
		cfg.ControllerServicePath = "/etc/systemd/system/ferment-controller.service"
	}
	if cfg.ServiceUser == "" {
		cfg.ServiceUser = "pi"
	}
	if cfg.ServiceWorkDir == "" {
		cfg.ServiceWorkDir = "/home/pi/ferment-controller"
	}
	if cfg.ServiceExecStart == "" {
		cfg.ServiceExecStart = "/usr/local/bin/ferment-controller -config-file " + cfg.ServiceWorkDir + "/config.json"
	}
	if cfg.Defaults.IntervalSeconds == 0 {
		cfg.Defaults.IntervalSeconds = cfg.FallbackIntervalSeconds
	}
}

func (cfg *Config) validate() error {
	if err := getValidator().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var problems []string
	switch cfg.Driver {
	case "mqtt":
		if cfg.MQTT.Broker == "" && !cfg.SafeMode {
			problems = append(problems, "mqtt.broker is required for the mqtt driver")
		}
	case "pinctrl":
		if cfg.SafeMode {
			break
		}
		usedPins := map[int]string{}
		for _, id := range cfg.Defaults.ActuatorIDs() {
			if _, ok := cfg.Pins[id]; !ok {
				problems = append(problems, fmt.Sprintf("no pin configured for actuator %s", id))
			}
		}
		for id, pin := range cfg.Pins {
			if other, exists := usedPins[pin.Number]; exists {
				problems = append(problems, fmt.Sprintf("pins.%s and pins.%s both use pin %d", id, other, pin.Number))
			}
			usedPins[pin.Number] = id
		}
	}
	if cfg.Defaults.LowLimit != 0 || cfg.Defaults.HighLimit != 0 {
		if err := cfg.Defaults.Validate(); err != nil {
			problems = append(problems, "defaults: "+err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, ", "))
	}
	return nil
}

// ActuatorIDs lists every actuator the process may drive, for startup checks and shutdown.
func (cfg *Config) ActuatorIDs() []string {
	seen := map[string]bool{}
	var ids []string
	for _, id := range cfg.Defaults.ActuatorIDs() {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	pinIDs := make([]string, 0, len(cfg.Pins))
	for id := range cfg.Pins {
		pinIDs = append(pinIDs, id)
	}
	sort.Strings(pinIDs)
	for _, id := range pinIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
