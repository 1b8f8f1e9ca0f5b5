package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "PRINTCTL_LOG_LEVEL"
	EnvLogTimestamp = "PRINTCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "PRINTCTL_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

type settings struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultSettings(profile)
		applyEnvOverrides(&cfg)
		zerolog.SetGlobalLevel(cfg.Level)
	})
}

// New returns a component logger writing to stderr with the configured
// profile. Call Configure first; New on its own does not touch globals.
func New(app string) zerolog.Logger {
	return NewWithOutput(app, os.Stderr)
}

func NewWithOutput(app string, out io.Writer) zerolog.Logger {
	cfg := defaultSettings(ProfileRuntime)
	applyEnvOverrides(&cfg)
	writer := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    cfg.NoColor,
	}
	ctx := zerolog.New(writer).With().Str("app", app)
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func defaultSettings(profile Profile) settings {
	switch profile {
	case ProfileTest:
		return settings{Level: zerolog.DebugLevel, Timestamp: false, NoColor: true}
	default:
		return settings{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

func applyEnvOverrides(cfg *settings) {
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		if level, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			cfg.Level = level
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvLogTimestamp)); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.Timestamp = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvLogNoColor)); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.NoColor = v
		}
	}
}
