// Package monitor supervises an active print: it periodically combines
// cached device status with visual inspection of a camera frame and issues
// a safety abort on confident, repeated failure signals.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/printforge/printctl/internal/device"
	"github.com/printforge/printctl/internal/protocol"
	"github.com/printforge/printctl/internal/vision"
)

var (
	ErrAlreadyActive = errors.New("monitor: already active")
	ErrNotStarted    = errors.New("monitor: never started")
)

// Printer is the slice of the device client the monitor reads and, on an
// abort decision, commands.
type Printer interface {
	IsConnected() bool
	CachedStatus() (protocol.Status, device.CacheInfo)
	Stop(ctx context.Context) error
}

// Capturer produces one frame per call from the camera channel.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Config sets the cycle timing and the failure-decision policy.
type Config struct {
	Interval        time.Duration
	StrikeThreshold int
	MinVisionLayer  int
}

const (
	defaultInterval   = 60 * time.Second
	minInterval       = 10 * time.Second
	defaultStrikes    = 3
	defaultMinVLLayer = 2
)

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.Interval < minInterval {
		c.Interval = minInterval
	}
	if c.StrikeThreshold <= 0 {
		c.StrikeThreshold = defaultStrikes
	}
	if c.MinVisionLayer <= 0 {
		c.MinVisionLayer = defaultMinVLLayer
	}
	return c
}

// CycleError is one non-fatal error recorded during a cycle. These never
// interrupt the print or the loop.
type CycleError struct {
	Cycle   int
	At      time.Time
	Stage   string
	Message string
}

// Session is the state of one monitoring run. Owned exclusively by the
// monitor; State returns copies.
type Session struct {
	ID              string
	Active          bool
	StartedAt       time.Time
	Cycles          int
	Strikes         int
	LastVerdict     *vision.Verdict
	FailureDetected bool
	Reason          string
	AbortIssued     bool
	AbortDelivered  bool
	LastState       protocol.PrintState
	LastPercent     int
	LastLayer       int
	Errors          []CycleError
}

func (s Session) clone() Session {
	out := s
	if s.LastVerdict != nil {
		v := *s.LastVerdict
		out.LastVerdict = &v
	}
	out.Errors = make([]CycleError, len(s.Errors))
	copy(out.Errors, s.Errors)
	return out
}

// Summary is the terminal report of a finished run.
type Summary struct {
	SessionID       string
	Cycles          int
	FailureDetected bool
	Reason          string
	AbortIssued     bool
	AbortDelivered  bool
	LastState       protocol.PrintState
	LastPercent     int
	LastLayer       int
	Errors          []CycleError
}

// Monitor drives the cycle loop for one print.
type Monitor struct {
	cfg        Config
	log        zerolog.Logger
	printer    Printer
	camera     Capturer
	classifier vision.Classifier

	mu       sync.Mutex
	active   bool
	started  bool
	session  Session
	summary  Summary
	stop     chan struct{}
	stopOnce *sync.Once
	wg       sync.WaitGroup
}

func New(cfg Config, log zerolog.Logger, printer Printer, camera Capturer, classifier vision.Classifier) *Monitor {
	return &Monitor{
		cfg:        cfg.withDefaults(),
		log:        log.With().Str("component", "monitor").Logger(),
		printer:    printer,
		camera:     camera,
		classifier: classifier,
	}
}

// Start begins the cycle loop: one cycle immediately, then one per
// interval. Fails if a run is already active.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return ErrAlreadyActive
	}
	m.active = true
	m.started = true
	m.session = Session{
		ID:        uuid.NewString(),
		Active:    true,
		StartedAt: time.Now(),
		LastState: protocol.StateUnknown,
	}
	m.stop = make(chan struct{})
	m.stopOnce = &sync.Once{}
	m.wg.Add(1)
	go m.run(m.stop)
	m.log.Info().Str("session", m.session.ID).Dur("interval", m.cfg.Interval).Msg("monitoring started")
	return nil
}

// Stop tears down the loop (letting an in-flight cycle finish) and returns
// the terminal summary. After a self-terminated run it returns that run's
// summary without error.
func (m *Monitor) Stop() (Summary, error) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return Summary{}, ErrNotStarted
	}
	stop := m.stop
	once := m.stopOnce
	m.mu.Unlock()

	once.Do(func() { close(stop) })
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary, nil
}

// State returns a snapshot copy of the current session.
func (m *Monitor) State() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.clone()
}

func (m *Monitor) run(stop chan struct{}) {
	defer m.wg.Done()
	ctx := context.Background()

	if m.runCycle(ctx) {
		m.finalize()
		return
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			m.finalize()
			return
		case <-ticker.C:
			// Cycles never overlap: this loop is the only cycle
			// runner and the ticker drops missed ticks.
			if m.runCycle(ctx) {
				m.finalize()
				return
			}
		}
	}
}

// runCycle executes one supervision pass. It returns true when the run is
// terminal: device failure abort, confirmed vision abort, or completion.
func (m *Monitor) runCycle(ctx context.Context) bool {
	m.mu.Lock()
	m.session.Cycles++
	cycle := m.session.Cycles
	m.mu.Unlock()

	// Stale data must not drive a decision.
	if !m.printer.IsConnected() {
		m.recordError(cycle, "device", "printer disconnected, skipping cycle")
		return false
	}

	status, info := m.printer.CachedStatus()
	state := status.State()
	percent := intOrZero(status.Percent)
	layer := intOrZero(status.Layer)
	totalLayers := intOrZero(status.TotalLayers)
	hwErr := status.HardwareError()

	m.mu.Lock()
	m.session.LastState = state
	m.session.LastPercent = percent
	m.session.LastLayer = layer
	m.mu.Unlock()

	frame, captureErr := m.camera.Capture(ctx)
	if captureErr != nil {
		// Transient camera trouble must never by itself stop a print.
		m.recordError(cycle, "camera", captureErr.Error())
		frame = nil
	}

	// Hardware error codes are authoritative: abort on first occurrence,
	// no corroboration needed.
	if hwErr != 0 || state == protocol.StateFailed {
		reason := fmt.Sprintf("device reported failure (error code %d, state %s)", hwErr, state)
		m.abort(ctx, reason)
		return true
	}

	if state == protocol.StateFinished {
		m.log.Info().Int("cycle", cycle).Msg("print finished, stopping monitor")
		m.mu.Lock()
		m.session.Reason = "print finished"
		m.mu.Unlock()
		return true
	}

	if frame == nil || !info.HasData || layer < m.cfg.MinVisionLayer {
		return false
	}

	verdict, err := m.classifier.Classify(ctx, frame, vision.StageContext(layer, totalLayers, percent))
	if err != nil {
		// A failed classification advances nothing, in either direction.
		m.recordError(cycle, "vision", err.Error())
		return false
	}

	m.mu.Lock()
	v := verdict
	m.session.LastVerdict = &v
	if verdict.Failed {
		m.session.Strikes++
	} else {
		m.session.Strikes = 0
	}
	strikes := m.session.Strikes
	m.mu.Unlock()

	m.log.Debug().Int("cycle", cycle).Bool("failed", verdict.Failed).Int("strikes", strikes).Msg("vision verdict")

	// Single-frame vision judgments are noisy; only consecutive adverse
	// verdicts may trigger the destructive action.
	if verdict.Failed && strikes >= m.cfg.StrikeThreshold {
		reason := fmt.Sprintf("vision reported failure on %d consecutive cycles: %s", strikes, verdict.Reason)
		m.abort(ctx, reason)
		return true
	}
	return false
}

func (m *Monitor) abort(ctx context.Context, reason string) {
	m.mu.Lock()
	m.session.FailureDetected = true
	m.session.Reason = reason
	m.session.AbortIssued = true
	cycle := m.session.Cycles
	m.mu.Unlock()

	m.log.Error().Int("cycle", cycle).Str("reason", reason).Msg("issuing abort")
	err := m.printer.Stop(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		// Recorded, not retried: the supervising caller must detect the
		// undelivered abort from the summary and intervene.
		m.session.Errors = append(m.session.Errors, CycleError{
			Cycle:   cycle,
			At:      time.Now(),
			Stage:   "abort",
			Message: err.Error(),
		})
		return
	}
	m.session.AbortDelivered = true
}

func (m *Monitor) finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	m.active = false
	m.session.Active = false
	m.summary = Summary{
		SessionID:       m.session.ID,
		Cycles:          m.session.Cycles,
		FailureDetected: m.session.FailureDetected,
		Reason:          m.session.Reason,
		AbortIssued:     m.session.AbortIssued,
		AbortDelivered:  m.session.AbortDelivered,
		LastState:       m.session.LastState,
		LastPercent:     m.session.LastPercent,
		LastLayer:       m.session.LastLayer,
		Errors:          append([]CycleError(nil), m.session.Errors...),
	}
	m.log.Info().Int("cycles", m.summary.Cycles).Bool("failure", m.summary.FailureDetected).Msg("monitoring stopped")
}

func (m *Monitor) recordError(cycle int, stage, message string) {
	m.log.Warn().Int("cycle", cycle).Str("stage", stage).Str("error", message).Msg("non-fatal cycle error")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Errors = append(m.session.Errors, CycleError{
		Cycle:   cycle,
		At:      time.Now(),
		Stage:   stage,
		Message: message,
	})
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
