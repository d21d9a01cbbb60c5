package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/ferment-controller/internal/actuator"
)

func TestShutdownWithErrorSwitchesOffAndExits(t *testing.T) {
	ctx := context.Background()
	d := actuator.NewSafeModeDriver()
	require.NoError(t, d.Set(ctx, "fermenter_heat", true))
	require.NoError(t, d.Set(ctx, "fermenter_cool", true))

	var exitCode = -1
	originalExit := exitFunc
	exitFunc = func(code int) { exitCode = code }
	t.Cleanup(func() {
		exitFunc = originalExit
		Register(nil, nil)
	})

	Register(d, []string{"fermenter_heat", "fermenter_cool"})
	ShutdownWithError(errors.New("broker unreachable"), "Fatal error")

	assert.Equal(t, 1, exitCode)
	assert.NoError(t, actuator.VerifyOff(ctx, d, []string{"fermenter_heat", "fermenter_cool"}))
}

func TestShutdownWithoutDriver(t *testing.T) {
	Register(nil, nil)
	assert.NotPanics(t, Shutdown)
}
