// Package config loads the printctl configuration: defaults, then an
// optional TOML file, then PRINTCTL_* environment overrides. Validation is
// type and range only; whether a section is actually usable (say, a device
// host for connect) is checked by the component that consumes it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/printforge/printctl/internal/camera"
	"github.com/printforge/printctl/internal/cloud"
	"github.com/printforge/printctl/internal/device"
	"github.com/printforge/printctl/internal/monitor"
	"github.com/printforge/printctl/internal/vision"
)

var (
	ErrLoad          = errors.New("config: load failed")
	ErrInvalidConfig = errors.New("config: invalid")
)

type DeviceSection struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Serial     string `toml:"serial"`
	Username   string `toml:"username"`
	AccessCode string `toml:"access_code"`
}

type CameraSection struct {
	Port int `toml:"port"`
}

type MonitorSection struct {
	IntervalSeconds int `toml:"interval_seconds"`
	StrikeThreshold int `toml:"strike_threshold"`
	MinVisionLayer  int `toml:"min_vision_layer"`
}

type VisionSection struct {
	Backend string `toml:"backend"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

type CloudSection struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

type TransferSection struct {
	SpoolDir string `toml:"spool_dir"`
}

type Config struct {
	Device   DeviceSection   `toml:"device"`
	Camera   CameraSection   `toml:"camera"`
	Monitor  MonitorSection  `toml:"monitor"`
	Vision   VisionSection   `toml:"vision"`
	Cloud    CloudSection    `toml:"cloud"`
	Transfer TransferSection `toml:"transfer"`
}

func Default() Config {
	return Config{
		Device:  DeviceSection{Port: 8883, Username: "bblp"},
		Camera:  CameraSection{Port: 6000},
		Monitor: MonitorSection{IntervalSeconds: 60, StrikeThreshold: 3, MinVisionLayer: 2},
		Vision:  VisionSection{Backend: vision.BackendStatic},
		Cloud:   CloudSection{BaseURL: "https://api.bambulab.com"},
		Transfer: TransferSection{
			SpoolDir: filepath.Join(os.TempDir(), "printctl-spool"),
		},
	}
}

// Load builds the effective configuration. An empty path skips the file
// layer; a named file must exist and parse.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrLoad, err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrLoad, path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Environment overrides beat file values, which beat defaults.
func applyEnv(cfg *Config) error {
	envString("PRINTCTL_DEVICE_HOST", &cfg.Device.Host)
	envString("PRINTCTL_DEVICE_SERIAL", &cfg.Device.Serial)
	envString("PRINTCTL_DEVICE_USERNAME", &cfg.Device.Username)
	envString("PRINTCTL_ACCESS_CODE", &cfg.Device.AccessCode)
	envString("PRINTCTL_VISION_BACKEND", &cfg.Vision.Backend)
	envString("PRINTCTL_VISION_BASE_URL", &cfg.Vision.BaseURL)
	envString("PRINTCTL_VISION_API_KEY", &cfg.Vision.APIKey)
	envString("PRINTCTL_VISION_MODEL", &cfg.Vision.Model)
	envString("PRINTCTL_CLOUD_BASE_URL", &cfg.Cloud.BaseURL)
	envString("PRINTCTL_CLOUD_TOKEN", &cfg.Cloud.Token)
	envString("PRINTCTL_SPOOL_DIR", &cfg.Transfer.SpoolDir)

	for _, e := range []struct {
		key string
		dst *int
	}{
		{"PRINTCTL_DEVICE_PORT", &cfg.Device.Port},
		{"PRINTCTL_CAMERA_PORT", &cfg.Camera.Port},
		{"PRINTCTL_MONITOR_INTERVAL", &cfg.Monitor.IntervalSeconds},
		{"PRINTCTL_MONITOR_STRIKES", &cfg.Monitor.StrikeThreshold},
	} {
		if err := envInt(e.key, e.dst); err != nil {
			return err
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
	}
	*dst = n
	return nil
}

func (c Config) Validate() error {
	if err := validPort("device.port", c.Device.Port); err != nil {
		return err
	}
	if err := validPort("camera.port", c.Camera.Port); err != nil {
		return err
	}
	if c.Monitor.IntervalSeconds < 10 {
		return fmt.Errorf("%w: monitor.interval_seconds %d below minimum 10", ErrInvalidConfig, c.Monitor.IntervalSeconds)
	}
	if c.Monitor.StrikeThreshold < 1 {
		return fmt.Errorf("%w: monitor.strike_threshold must be at least 1", ErrInvalidConfig)
	}
	switch c.Vision.Backend {
	case vision.BackendOpenAI, vision.BackendStatic:
	default:
		return fmt.Errorf("%w: unknown vision.backend %q", ErrInvalidConfig, c.Vision.Backend)
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %s out of range: %d", ErrInvalidConfig, name, port)
	}
	return nil
}

// DeviceConfig resolves the device client configuration.
func (c Config) DeviceConfig() device.Config {
	out := device.DefaultConfig()
	out.Host = c.Device.Host
	out.Port = c.Device.Port
	out.Serial = c.Device.Serial
	if c.Device.Username != "" {
		out.Username = c.Device.Username
	}
	out.AccessCode = c.Device.AccessCode
	return out
}

func (c Config) CameraConfig() camera.Config {
	out := camera.DefaultConfig()
	out.Host = c.Device.Host
	out.Port = c.Camera.Port
	if c.Device.Username != "" {
		out.Username = c.Device.Username
	}
	out.AccessCode = c.Device.AccessCode
	return out
}

func (c Config) MonitorConfig() monitor.Config {
	return monitor.Config{
		Interval:        time.Duration(c.Monitor.IntervalSeconds) * time.Second,
		StrikeThreshold: c.Monitor.StrikeThreshold,
		MinVisionLayer:  c.Monitor.MinVisionLayer,
	}
}

func (c Config) VisionConfig() vision.Config {
	return vision.Config{
		Backend: c.Vision.Backend,
		BaseURL: c.Vision.BaseURL,
		APIKey:  c.Vision.APIKey,
		Model:   c.Vision.Model,
	}
}

func (c Config) CloudConfig() cloud.Config {
	return cloud.Config{
		BaseURL: c.Cloud.BaseURL,
		Token:   c.Cloud.Token,
	}
}
