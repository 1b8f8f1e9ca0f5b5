package camera

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config defines the camera channel endpoint and credential.
type Config struct {
	Host       string
	Port       int
	Username   string
	AccessCode string
	Timeout    time.Duration
	Limits     Limits
}

func DefaultConfig() Config {
	return Config{
		Port:     6000,
		Username: "bblp",
		Timeout:  10 * time.Second,
		Limits:   DefaultLimits(),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port out of range: %d", ErrInvalidConfig, c.Port)
	}
	if strings.TrimSpace(c.AccessCode) == "" {
		return fmt.Errorf("%w: missing access code", ErrInvalidConfig)
	}
	return nil
}

// DialFunc opens the raw camera transport. Tests substitute net.Pipe.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

func dialTLS(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &tls.Dialer{
		// Same trust posture as the control channel: LAN devices are
		// self-signed, the access code authenticates.
		Config: &tls.Config{InsecureSkipVerify: true},
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

// Client produces one validated frame per Capture call.
type Client struct {
	cfg  Config
	log  zerolog.Logger
	dial DialFunc
}

func NewClient(cfg Config, log zerolog.Logger, dial DialFunc) *Client {
	if dial == nil {
		dial = dialTLS
	}
	return &Client{
		cfg:  cfg,
		log:  log.With().Str("component", "camera").Logger(),
		dial: dial,
	}
}

// Capture opens a fresh transport, authenticates, and returns the first
// frame that passes validation, then closes the transport. It never
// returns more than one frame per call.
func (c *Client) Capture(ctx context.Context) ([]byte, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrStream, addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStream, err)
	}

	if _, err := conn.Write(authBlock(c.cfg.Username, c.cfg.AccessCode)); err != nil {
		return nil, c.classify(err)
	}

	scanner := newFrameScanner(conn, c.cfg.Limits)
	frame, err := scanner.next()
	if err != nil {
		return nil, c.classify(err)
	}

	c.log.Debug().Int("bytes", len(frame)).Msg("frame captured")
	return frame, nil
}

func (c *Client) classify(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return CaptureTimeoutError{Timeout: c.cfg.Timeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CaptureTimeoutError{Timeout: c.cfg.Timeout}
	}
	if errors.Is(err, ErrFrameTooLarge) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStream, err)
}

const (
	authBlockLen = 80
	authMagic    = 0x40
	authKind     = 0x3000
	fieldLen     = 32
)

// authBlock is the fixed-length hello the camera channel expects: a
// 16-byte reserved header, then the account and access code as 32-byte
// zero-padded fields. Oversized credentials are truncated to field width.
func authBlock(username, accessCode string) []byte {
	block := make([]byte, authBlockLen)
	binary.LittleEndian.PutUint32(block[0:4], authMagic)
	binary.LittleEndian.PutUint32(block[4:8], authKind)
	copy(block[16:16+fieldLen], username)
	copy(block[48:48+fieldLen], accessCode)
	return block
}
