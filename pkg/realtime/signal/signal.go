// Package signal performs the one-shot offer/answer exchange with the LEIA
// backend. The backend forwards the offer to the realtime speech endpoint and
// returns the answer together with the session configuration to apply later.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds the signaling round trip. It is the only
	// unbounded external wait in connection setup, so expiry is treated as
	// a setup failure by the caller.
	DefaultTimeout = 15 * time.Second

	sessionHeader = "X-Session-Id"

	maxAnswerBytes = 1 << 20
)

// SessionConfig is the session-parameter payload returned by the exchange.
// It is held by the session until the remote endpoint confirms readiness,
// then sent once and discarded.
type SessionConfig struct {
	Instructions  string          `json:"instructions"`
	TurnDetection json.RawMessage `json:"turn_detection"`
	Voice         string          `json:"voice"`
}

// Response is the signaling exchange result.
type Response struct {
	SDPAnswer     string        `json:"sdpAnswer"`
	SessionConfig SessionConfig `json:"sessionConfig"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("signal: base URL is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Exchange posts the local offer SDP and returns the remote answer plus the
// deferred session configuration.
func (c *Client) Exchange(ctx context.Context, sessionID, offerSDP string) (*Response, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("signal: session id is required")
	}
	if strings.TrimSpace(offerSDP) == "" {
		return nil, fmt.Errorf("signal: offer SDP is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + "/api/v1/realtime/session"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(offerSDP))
	if err != nil {
		return nil, fmt.Errorf("signal: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set(sessionHeader, sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signal: exchange offer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if err != nil {
		return nil, fmt.Errorf("signal: read answer: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("signaling exchange rejected", "status", resp.StatusCode, "session_id", sessionID)
		return nil, fmt.Errorf("signal: exchange failed with status %d", resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("signal: decode answer: %w", err)
	}
	if strings.TrimSpace(out.SDPAnswer) == "" {
		return nil, fmt.Errorf("signal: response is missing sdpAnswer")
	}
	return &out, nil
}
