package startup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/ferment-controller/internal/config"
	"github.com/thatsimonsguy/ferment-controller/internal/env"
)

func TestRenderBootScript(t *testing.T) {
	script := renderBootScript(map[string]config.Pin{
		"fermenter_heat": {Number: 17, ActiveHigh: true},
		"fermenter_cool": {Number: 27, ActiveHigh: false},
	})

	assert.Contains(t, script, "pinctrl set 17 op pn dl\n")
	assert.Contains(t, script, "pinctrl set 27 op pn dh\n")
	assert.Less(t, strings.Index(script, "fermenter_cool"), strings.Index(script, "fermenter_heat"), "pins are written in id order")
}

func TestRenderControllerUnit(t *testing.T) {
	cfg := &config.Config{
		Driver:           "pinctrl",
		BootServicePath:  "/etc/systemd/system/ferment-relays.service",
		ServiceUser:      "brewer",
		ServiceWorkDir:   "/opt/ferment",
		ServiceExecStart: "/opt/ferment/ferment-controller",
	}

	unit := renderControllerUnit(cfg)
	assert.Contains(t, unit, "Requires=ferment-relays.service")
	assert.Contains(t, unit, "User=brewer")
	assert.Contains(t, unit, "ExecStart=/opt/ferment/ferment-controller")

	cfg.Driver = "mqtt"
	assert.NotContains(t, renderControllerUnit(cfg), "ferment-relays.service")
}

func TestInstallWritesFiles(t *testing.T) {
	dir := t.TempDir()
	original := env.Cfg
	t.Cleanup(func() { env.Cfg = original })
	env.Cfg = &config.Config{
		Driver:                "pinctrl",
		Pins:                  map[string]config.Pin{"fermenter_heat": {Number: 17, ActiveHigh: true}},
		BootScriptPath:        filepath.Join(dir, "relays-off.sh"),
		BootServicePath:       filepath.Join(dir, "ferment-relays.service"),
		ControllerServicePath: filepath.Join(dir, "ferment-controller.service"),
		ServiceUser:           "pi",
		ServiceWorkDir:        dir,
		ServiceExecStart:      "ferment-controller",
	}

	require.NoError(t, WriteStartupScript())
	require.NoError(t, InstallStartupService())
	require.NoError(t, InstallControllerService())

	unit, err := os.ReadFile(env.Cfg.BootServicePath)
	require.NoError(t, err)
	assert.Contains(t, string(unit), "ExecStart="+env.Cfg.BootScriptPath)

	info, err := os.Stat(env.Cfg.BootScriptPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0100, "boot script must be executable")
}
