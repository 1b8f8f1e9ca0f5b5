package device

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// BackoffConfig defines reconnect retry behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines one printer session: endpoint, credential, and the
// timing contract the client runs under.
type Config struct {
	Host       string
	Port       int
	Serial     string
	Username   string
	AccessCode string

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	CommandTimeout time.Duration
	StatusSettle   time.Duration
	Backoff        BackoffConfig
}

// DefaultConfig returns the device timing defaults: 10s correlated-command
// timeout and a 2s settle window after a pushall, per the control-channel
// contract.
func DefaultConfig() Config {
	return Config{
		Port:           8883,
		Username:       "bblp",
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   5 * time.Second,
		CommandTimeout: 10 * time.Second,
		StatusSettle:   2 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port out of range: %d", ErrInvalidConfig, c.Port)
	}
	if strings.TrimSpace(c.Serial) == "" {
		return fmt.Errorf("%w: missing serial", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.AccessCode) == "" {
		return fmt.Errorf("%w: missing access code", ErrInvalidConfig)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("%w: command timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) requestTopic() string {
	return "device/" + c.Serial + "/request"
}

func (c Config) reportTopic() string {
	return "device/" + c.Serial + "/report"
}

// NextBackoffDelay returns the reconnect delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}
