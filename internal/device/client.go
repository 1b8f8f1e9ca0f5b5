package device

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/printforge/printctl/internal/protocol"
)

// Client mediates every command and status read for one printer session.
type Client struct {
	cfg  Config
	log  zerolog.Logger
	dial DialFunc

	seq     atomic.Uint64
	pending *pendingTable
	cache   *statusCache

	mu        sync.Mutex
	transport Transport
	connected bool
	closed    bool
	gen       uint64
	inbound   chan []byte
	done      chan struct{}
}

const inboundBuffer = 64

// New creates a client for one device. Dialing is injectable for tests;
// pass nil to use the MQTT/TLS transport.
func New(cfg Config, log zerolog.Logger, dial DialFunc) *Client {
	if dial == nil {
		dial = DialMQTT
	}
	return &Client{
		cfg:     cfg,
		log:     log.With().Str("component", "device").Str("serial", cfg.Serial).Logger(),
		dial:    dial,
		pending: newPendingTable(),
		cache:   newStatusCache(),
	}
}

// Connect opens the transport, authenticates, and subscribes to the report
// channel. It resolves once the subscription is confirmed and never retries
// itself; reconnection after an unexpected drop is background behavior.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.closed = false
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	transport, err := c.dial(c.cfg, func(lostErr error) { c.onLost(gen, lostErr) })
	if err != nil {
		return err
	}
	if err := transport.Subscribe(c.cfg.reportTopic(), c.enqueue); err != nil {
		transport.Close()
		return err
	}

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		transport.Close()
		return ErrClosed
	}
	c.transport = transport
	c.connected = true
	if c.done == nil {
		c.done = make(chan struct{})
		c.inbound = make(chan []byte, inboundBuffer)
		go c.mergeLoop(c.done, c.inbound)
	}
	c.mu.Unlock()

	c.log.Info().Str("host", c.cfg.Host).Int("port", c.cfg.Port).Msg("session established")
	return nil
}

// Disconnect closes the transport, rejects pending commands, and clears
// the status cache. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.gen++
	transport := c.transport
	c.transport = nil
	c.connected = false
	done := c.done
	c.done = nil
	c.inbound = nil
	c.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	if done != nil {
		close(done)
	}
	c.pending.failAll(ErrClosed)
	c.cache.clear()
	c.log.Info().Msg("session closed")
}

// IsConnected is a non-blocking liveness check.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendCommand publishes a command envelope. Commands that expect a response
// suspend until the correlated reply arrives or the command timeout
// elapses; uncorrelated commands resolve after the publish acknowledgment.
func (c *Client) SendCommand(ctx context.Context, kind protocol.CommandKind, params map[string]any) (json.RawMessage, error) {
	id := c.seq.Add(1)
	cmd, err := protocol.BuildCommand(kind, id, params)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	transport := c.transport
	connected := c.connected
	done := c.done
	c.mu.Unlock()
	if !connected || transport == nil {
		return nil, ErrNotConnected
	}

	if !cmd.Expects {
		return nil, transport.Publish(c.cfg.requestTopic(), cmd.Payload())
	}

	item := c.pending.add(id, cmd.Name)
	if err := transport.Publish(c.cfg.requestTopic(), cmd.Payload()); err != nil {
		c.pending.remove(id)
		return nil, err
	}
	c.log.Debug().Str("command", cmd.Name).Uint64("sequence_id", id).Msg("command published")

	timer := time.NewTimer(c.cfg.CommandTimeout)
	defer timer.Stop()
	select {
	case resp := <-item.ch:
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.Body, nil
	case <-timer.C:
		c.pending.remove(id)
		return nil, CommandTimeoutError{Command: cmd.Name, Timeout: c.cfg.CommandTimeout}
	case <-ctx.Done():
		c.pending.remove(id)
		return nil, ctx.Err()
	case <-done:
		return nil, ErrClosed
	}
}

// RequestStatus asks the device to push all state, waits the settle window
// for the asynchronous reports to land, and returns the merged cache.
//
// Caller contract: invoke at most about once per five minutes per device.
// The full-state push is expensive for the printer's own control loop; the
// client documents but does not enforce this.
func (c *Client) RequestStatus(ctx context.Context) (protocol.Status, CacheInfo, error) {
	if _, err := c.SendCommand(ctx, protocol.CmdPushAll, nil); err != nil {
		return protocol.Status{}, CacheInfo{}, err
	}

	settle := time.NewTimer(c.cfg.StatusSettle)
	defer settle.Stop()
	select {
	case <-ctx.Done():
		return protocol.Status{}, CacheInfo{}, ctx.Err()
	case <-settle.C:
	}

	status, info := c.cache.snapshot()
	return status, info, nil
}

// CachedStatus returns the merged status and freshness metadata without
// touching the network.
func (c *Client) CachedStatus() (protocol.Status, CacheInfo) {
	return c.cache.snapshot()
}

// enqueue hands a report payload to the merge loop. The paho callback must
// not block, so an overfull session drops the report instead of stalling
// the transport.
func (c *Client) enqueue(_ string, payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	c.mu.Lock()
	inbound := c.inbound
	c.mu.Unlock()
	if inbound == nil {
		return
	}
	select {
	case inbound <- buf:
	default:
		c.log.Warn().Int("bytes", len(buf)).Msg("inbound report dropped, merge loop backlogged")
	}
}

// mergeLoop is the single writer of the status cache and the sole resolver
// of pending correlations. Unparseable payloads are discarded silently.
func (c *Client) mergeLoop(done chan struct{}, inbound chan []byte) {
	for {
		select {
		case <-done:
			return
		case payload := <-inbound:
			rep, err := protocol.ParseReport(payload)
			if err != nil {
				c.log.Debug().Err(err).Msg("discarding unrecognized report payload")
				continue
			}
			if rep.SequenceID != "" {
				if id, err := protocol.ParseSequenceID(rep.SequenceID); err == nil {
					if c.pending.resolve(id, rep.Body) {
						c.log.Debug().Uint64("sequence_id", id).Str("command", rep.Command).Msg("response correlated")
					}
				}
			}
			if rep.Status != nil {
				c.cache.merge(*rep.Status)
			}
		}
	}
}

func (c *Client) onLost(gen uint64, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	newGen := c.gen
	c.connected = false
	c.transport = nil
	done := c.done
	c.mu.Unlock()

	c.pending.failAll(fmt.Errorf("%w: %v", ErrConnectionLost, err))
	// Whatever we knew is stale; consumers must observe an empty cache
	// until fresh pushes arrive on the restored session.
	c.cache.clear()
	c.log.Warn().Err(err).Msg("transport lost, reconnecting in background")

	go c.reconnectLoop(newGen, done)
}

func (c *Client) reconnectLoop(gen uint64, done chan struct{}) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		delay := NextBackoffDelay(c.cfg.Backoff, attempt, rng)
		timer := time.NewTimer(delay)
		select {
		case <-done:
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		stale := c.closed || c.gen != gen
		c.mu.Unlock()
		if stale {
			return
		}

		transport, err := c.dial(c.cfg, func(lostErr error) { c.onLost(gen, lostErr) })
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
			continue
		}
		if err := transport.Subscribe(c.cfg.reportTopic(), c.enqueue); err != nil {
			transport.Close()
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("resubscribe failed")
			continue
		}

		c.mu.Lock()
		if c.closed || c.gen != gen {
			c.mu.Unlock()
			transport.Close()
			return
		}
		c.transport = transport
		c.connected = true
		c.mu.Unlock()
		c.log.Info().Int("attempt", attempt).Msg("session restored")
		return
	}
}
