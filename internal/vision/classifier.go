// Package vision defines the failure-classification capability the monitor
// depends on, plus the interchangeable backends behind it.
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrClassification = errors.New("vision: classification failed")
	ErrUnknownBackend = errors.New("vision: unknown backend")
	ErrInvalidConfig  = errors.New("vision: invalid config")
)

// Verdict is one classification result with timing metadata.
type Verdict struct {
	Failed  bool
	Reason  string
	Model   string
	Elapsed time.Duration
}

// Classifier judges a captured frame against a textual description of the
// expected visual state. Implementations must be safe for sequential reuse;
// the monitor never issues concurrent calls.
type Classifier interface {
	Classify(ctx context.Context, frame []byte, expected string) (Verdict, error)
}

// Backend names selectable at configuration time.
const (
	BackendOpenAI = "openai"
	BackendStatic = "static"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend string

	// openai backend
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration

	// static backend
	StaticFailed bool
	StaticReason string
}

// New constructs the configured backend. Unknown names fail here, at
// construction, never at classification time.
func New(cfg Config) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendOpenAI:
		return newOpenAIClassifier(cfg)
	case BackendStatic:
		return &StaticClassifier{Failed: cfg.StaticFailed, Reason: cfg.StaticReason}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
