// Package cloud is a thin, best-effort client for the vendor account API.
// Nothing in LAN control depends on it; failures degrade to a fixed
// fallback message and are never retried.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrUnavailable   = errors.New("cloud: account service unavailable")
	ErrInvalidConfig = errors.New("cloud: invalid config")
)

// Fallback is the message surfaced in place of a profile when the account
// service cannot be reached.
const Fallback = "cloud account service unreachable; LAN printer control is unaffected"

// Profile is the subset of the account response we surface.
type Profile struct {
	Name    string `json:"name"`
	Handle  string `json:"handle"`
	Devices int    `json:"device_count"`
}

// Config points at an account API endpoint with a bearer token.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("%w: missing base url", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidConfig)
	}
	return nil
}

type Client struct {
	cfg   Config
	log   zerolog.Logger
	httpc *http.Client
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:   cfg,
		log:   log.With().Str("component", "cloud").Logger(),
		httpc: &http.Client{Timeout: timeout},
	}
}

// Profile fetches the account profile. One attempt only; any transport or
// non-200 outcome maps to ErrUnavailable.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	if err := c.cfg.Validate(); err != nil {
		return Profile{}, err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/user/profile"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("profile request failed")
		return Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Profile{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Msg("profile request rejected")
		return Profile{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var profile Profile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return Profile{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return profile, nil
}

// ProfileText renders the profile for display, or the fallback message when
// the service is unavailable. Config errors still surface as errors.
func (c *Client) ProfileText(ctx context.Context) (string, error) {
	profile, err := c.Profile(ctx)
	if errors.Is(err, ErrUnavailable) {
		return Fallback, nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (@%s), %d devices", profile.Name, profile.Handle, profile.Devices), nil
}
