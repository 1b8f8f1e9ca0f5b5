package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printforge/printctl/internal/testutil/testlog"
	"github.com/printforge/printctl/internal/vision"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "printctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8883, cfg.Device.Port)
	assert.Equal(t, "bblp", cfg.Device.Username)
	assert.Equal(t, 6000, cfg.Camera.Port)
	assert.Equal(t, 60, cfg.Monitor.IntervalSeconds)
	assert.Equal(t, 3, cfg.Monitor.StrikeThreshold)
	assert.Equal(t, vision.BackendStatic, cfg.Vision.Backend)
}

func TestLoadFile(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
[device]
host = "10.0.0.42"
serial = "01S00A000000000"
access_code = "12345678"

[monitor]
interval_seconds = 30

[vision]
backend = "openai"
base_url = "https://api.example.test/v1"
api_key = "sk-test"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.42", cfg.Device.Host)
	assert.Equal(t, "01S00A000000000", cfg.Device.Serial)
	assert.Equal(t, 30, cfg.Monitor.IntervalSeconds)
	assert.Equal(t, 8883, cfg.Device.Port, "defaults fill unlisted fields")
	assert.Equal(t, "openai", cfg.Vision.Backend)
}

func TestEnvOverridesFile(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
[device]
host = "10.0.0.42"

[monitor]
interval_seconds = 30
`)

	t.Setenv("PRINTCTL_DEVICE_HOST", "10.0.0.99")
	t.Setenv("PRINTCTL_MONITOR_INTERVAL", "45")
	t.Setenv("PRINTCTL_VISION_BACKEND", "openai")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.99", cfg.Device.Host)
	assert.Equal(t, 45, cfg.Monitor.IntervalSeconds)
	assert.Equal(t, "openai", cfg.Vision.Backend)
}

func TestEnvNonIntegerRejected(t *testing.T) {
	testlog.Start(t)
	t.Setenv("PRINTCTL_CAMERA_PORT", "six-thousand")
	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidation(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name string
		body string
	}{
		{"interval below minimum", "[monitor]\ninterval_seconds = 5\n"},
		{"zero strikes", "[monitor]\nstrike_threshold = 0\n"},
		{"bad device port", "[device]\nport = 70000\n"},
		{"bad camera port", "[camera]\nport = 0\n"},
		{"unknown backend", "[vision]\nbackend = \"crystal-ball\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.ErrorIs(t, err, ErrLoad)
}

func TestComponentConfigs(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
[device]
host = "10.0.0.42"
serial = "01S00A000000000"
access_code = "12345678"

[monitor]
interval_seconds = 120
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	dev := cfg.DeviceConfig()
	assert.Equal(t, "10.0.0.42", dev.Host)
	assert.Equal(t, 8883, dev.Port)
	assert.Equal(t, "12345678", dev.AccessCode)
	assert.Equal(t, 10*time.Second, dev.CommandTimeout, "client defaults carry through")

	cam := cfg.CameraConfig()
	assert.Equal(t, "10.0.0.42", cam.Host, "camera shares the device host")
	assert.Equal(t, 6000, cam.Port)
	assert.Equal(t, "12345678", cam.AccessCode)

	mon := cfg.MonitorConfig()
	assert.Equal(t, 2*time.Minute, mon.Interval)
	assert.Equal(t, 3, mon.StrikeThreshold)
}
