package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/printforge/printctl/internal/protocol"
	"github.com/printforge/printctl/internal/testutil/testlog"
)

type fakeTransport struct {
	mu         sync.Mutex
	published  [][]byte
	topics     []string
	subscribed string
	handler    func(topic string, payload []byte)
	publishErr error
	closed     bool
}

func (f *fakeTransport) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	f.published = append(f.published, buf)
	f.topics = append(f.topics, topic)
	return nil
}

func (f *fakeTransport) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = topic
	f.handler = handler
	return nil
}

func (f *fakeTransport) IsConnected() bool { return true }

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) inject(t *testing.T, payload string) {
	t.Helper()
	f.mu.Lock()
	handler := f.handler
	topic := f.subscribed
	f.mu.Unlock()
	if handler == nil {
		t.Fatalf("no report subscription")
	}
	handler(topic, []byte(payload))
}

func (f *fakeTransport) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeTransport) lastPublished() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return nil
	}
	return f.published[len(f.published)-1]
}

type fakeDialer struct {
	mu     sync.Mutex
	calls  int
	next   *fakeTransport
	onLost func(error)
	err    error
}

func (d *fakeDialer) dial(_ Config, onLost func(error)) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if d.next == nil {
		d.next = &fakeTransport{}
	}
	transport := d.next
	d.next = nil
	d.onLost = onLost
	return transport, nil
}

func (d *fakeDialer) dialCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) lose(t *testing.T, err error) {
	t.Helper()
	d.mu.Lock()
	onLost := d.onLost
	d.mu.Unlock()
	if onLost == nil {
		t.Fatalf("no connection-lost handler captured")
	}
	onLost(err)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Host = "printer.local"
	cfg.Serial = "01S00C123"
	cfg.AccessCode = "12345678"
	cfg.CommandTimeout = 250 * time.Millisecond
	cfg.StatusSettle = 20 * time.Millisecond
	cfg.Backoff = BackoffConfig{InitialDelay: 5 * time.Millisecond, Multiplier: 1.0, MaxDelay: 20 * time.Millisecond}
	return cfg
}

func newTestClient(t *testing.T) (*Client, *fakeTransport, *fakeDialer) {
	t.Helper()
	log := testlog.Start(t)
	transport := &fakeTransport{}
	dialer := &fakeDialer{next: transport}
	client := New(testConfig(), log, dialer.dial)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Disconnect)
	return client, transport, dialer
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectSubscribesReportChannel(t *testing.T) {
	client, transport, _ := newTestClient(t)
	if transport.subscribed != "device/01S00C123/report" {
		t.Fatalf("unexpected subscription: %q", transport.subscribed)
	}
	if !client.IsConnected() {
		t.Fatalf("expected connected client")
	}
	if err := client.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestSendCommandNotConnected(t *testing.T) {
	log := testlog.Start(t)
	client := New(testConfig(), log, (&fakeDialer{}).dial)
	if _, err := client.SendCommand(context.Background(), protocol.CmdStop, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

// A response for a later command arriving first must not resolve the
// earlier command; routing is strictly by sequence id.
func TestCommandCorrelationOutOfOrder(t *testing.T) {
	client, transport, _ := newTestClient(t)

	type result struct {
		body json.RawMessage
		err  error
	}
	resA := make(chan result, 1)
	resB := make(chan result, 1)

	go func() {
		body, err := client.SendCommand(context.Background(), protocol.CmdStop, nil)
		resA <- result{body, err}
	}()
	waitFor(t, "command A published", func() bool { return transport.publishedCount() == 1 })

	go func() {
		body, err := client.SendCommand(context.Background(), protocol.CmdPause, nil)
		resB <- result{body, err}
	}()
	waitFor(t, "command B published", func() bool { return transport.publishedCount() == 2 })

	// B's response (id 2) lands before A's (id 1).
	transport.inject(t, `{"print":{"command":"pause","sequence_id":"2","result":"success"}}`)
	b := <-resB
	if b.err != nil {
		t.Fatalf("command B: %v", b.err)
	}
	if !strings.Contains(string(b.body), `"pause"`) {
		t.Fatalf("command B got wrong body: %s", b.body)
	}

	select {
	case got := <-resA:
		t.Fatalf("command A resolved on B's response: %+v", got)
	case <-time.After(30 * time.Millisecond):
	}

	transport.inject(t, `{"print":{"command":"stop","sequence_id":"1","result":"success"}}`)
	a := <-resA
	if a.err != nil {
		t.Fatalf("command A: %v", a.err)
	}
	if !strings.Contains(string(a.body), `"stop"`) {
		t.Fatalf("command A got wrong body: %s", a.body)
	}
}

func TestCommandTimeoutRemovesPending(t *testing.T) {
	client, transport, _ := newTestClient(t)

	_, err := client.SendCommand(context.Background(), protocol.CmdStop, nil)
	if !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("expected ErrCommandTimeout, got %v", err)
	}
	var timeoutErr CommandTimeoutError
	if !errors.As(err, &timeoutErr) || timeoutErr.Command != "stop" {
		t.Fatalf("timeout error should name the command: %v", err)
	}
	if client.pending.size() != 0 {
		t.Fatalf("pending command not removed after timeout")
	}

	// A late response for the removed id is ignored, not delivered.
	transport.inject(t, `{"print":{"command":"stop","sequence_id":"1","result":"success"}}`)
	time.Sleep(20 * time.Millisecond)
	if client.pending.size() != 0 {
		t.Fatalf("late response recreated pending state")
	}
}

func TestDisconnectRejectsPending(t *testing.T) {
	client, transport, _ := newTestClient(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.SendCommand(context.Background(), protocol.CmdPause, nil)
		errCh <- err
	}()
	waitFor(t, "command published", func() bool { return transport.publishedCount() == 1 })

	client.Disconnect()
	if err := <-errCh; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if client.IsConnected() {
		t.Fatalf("client still connected after disconnect")
	}
	// Idempotent.
	client.Disconnect()
}

func TestStatusPushesMergeIntoCache(t *testing.T) {
	client, transport, _ := newTestClient(t)

	transport.inject(t, `{"print":{"command":"push_status","gcode_state":"RUNNING","mc_percent":10,"layer_num":3,"nozzle_temper":220.0}}`)
	waitFor(t, "first merge", func() bool {
		_, info := client.CachedStatus()
		return info.HasData
	})

	transport.inject(t, `{"print":{"command":"push_status","mc_percent":11}}`)
	waitFor(t, "second merge", func() bool {
		status, _ := client.CachedStatus()
		return status.Percent != nil && *status.Percent == 11
	})

	status, info := client.CachedStatus()
	if status.State() != protocol.StateRunning || *status.Layer != 3 || *status.NozzleTemp != 220.0 {
		t.Fatalf("merge lost earlier fields: %+v", status)
	}
	if !info.HasData || info.Age < 0 {
		t.Fatalf("unexpected cache info: %+v", info)
	}
}

func TestUnparseablePayloadsAreDiscarded(t *testing.T) {
	client, transport, _ := newTestClient(t)

	transport.inject(t, `not json at all`)
	transport.inject(t, `{"mcu":{"command":"x"}}`)
	transport.inject(t, `{"print":{"command":"push_status","mc_percent":42}}`)

	waitFor(t, "valid payload merged", func() bool {
		status, _ := client.CachedStatus()
		return status.Percent != nil && *status.Percent == 42
	})
}

func TestConnectionLostClearsCacheAndReconnects(t *testing.T) {
	client, transport, dialer := newTestClient(t)

	transport.inject(t, `{"print":{"command":"push_status","mc_percent":50}}`)
	waitFor(t, "merge before loss", func() bool {
		_, info := client.CachedStatus()
		return info.HasData
	})

	dialer.lose(t, fmt.Errorf("broker went away"))
	if _, info := client.CachedStatus(); info.HasData {
		t.Fatalf("cache must be cleared on transport loss")
	}

	waitFor(t, "background reconnect", func() bool {
		return dialer.dialCalls() == 2 && client.IsConnected()
	})
}

func TestRequestStatusPushallThenSettle(t *testing.T) {
	client, transport, _ := newTestClient(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) && transport.publishedCount() == 0 {
			time.Sleep(2 * time.Millisecond)
		}
		transport.mu.Lock()
		handler := transport.handler
		topic := transport.subscribed
		transport.mu.Unlock()
		if handler != nil {
			handler(topic, []byte(`{"print":{"command":"push_status","gcode_state":"RUNNING","mc_percent":77}}`))
		}
	}()

	status, info, err := client.RequestStatus(context.Background())
	<-done
	if err != nil {
		t.Fatalf("request status: %v", err)
	}
	if !strings.Contains(string(transport.lastPublished()), `"pushing"`) {
		t.Fatalf("expected pushall envelope, got %s", transport.lastPublished())
	}
	if !info.HasData || status.Percent == nil || *status.Percent != 77 {
		t.Fatalf("settle window did not capture the push: %+v %+v", status, info)
	}
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 1, rng)
	if got < 125*time.Millisecond || got > 375*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}
