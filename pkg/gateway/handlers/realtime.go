package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/leialabs/leia-realtime/pkg/gateway/apierror"
	"github.com/leialabs/leia-realtime/pkg/gateway/config"
	"github.com/leialabs/leia-realtime/pkg/realtime/signal"
)

// SessionConfigSource resolves per-session interview configuration. A nil
// source or an unknown session falls back to the gateway defaults.
type SessionConfigSource interface {
	SessionConfig(ctx context.Context, sessionID string) (signal.SessionConfig, bool, error)
}

// RealtimeSessionHandler brokers SDP offer/answer with the upstream
// realtime speech API. The client never sees the upstream API key.
type RealtimeSessionHandler struct {
	Config   config.Config
	Upstream *http.Client
	Configs  SessionConfigSource
	Logger   *slog.Logger
}

func (h RealtimeSessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, r, http.StatusMethodNotAllowed, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "method not allowed",
		})
		return
	}

	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/sdp") {
		writeAPIError(w, r, http.StatusUnsupportedMediaType, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "content type must be application/sdp",
			Param:   "Content-Type",
		})
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get("X-Session-Id"))
	if sessionID == "" {
		writeAPIError(w, r, http.StatusBadRequest, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "X-Session-Id header is required",
			Param:   "X-Session-Id",
		})
		return
	}

	offer, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes))
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "failed to read SDP offer",
		})
		return
	}
	if len(strings.TrimSpace(string(offer))) == 0 {
		writeAPIError(w, r, http.StatusBadRequest, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "SDP offer is empty",
		})
		return
	}

	answer, err := h.exchangeWithUpstream(r.Context(), offer)
	if err != nil {
		h.logger().Error("upstream SDP exchange failed", "session_id", sessionID, "error", err)
		writeAPIError(w, r, http.StatusBadGateway, &apierror.Error{
			Type:    apierror.ErrUpstream,
			Message: "realtime upstream rejected the offer",
		})
		return
	}

	cfg, err := h.sessionConfig(r.Context(), sessionID)
	if err != nil {
		// The upstream exchange already succeeded; fall back to defaults
		// instead of failing the call.
		h.logger().Warn("session config lookup failed, using defaults",
			"session_id", sessionID, "error", err)
		cfg = h.defaultConfig()
	}

	writeJSON(w, http.StatusOK, signal.Response{
		SDPAnswer:     answer,
		SessionConfig: cfg,
	})
}

func (h RealtimeSessionHandler) exchangeWithUpstream(ctx context.Context, offer []byte) (string, error) {
	target := h.Config.OpenAIRealtimeURL
	if strings.TrimSpace(h.Config.RealtimeModel) != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + "model=" + url.QueryEscape(h.Config.RealtimeModel)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(string(offer)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+h.Config.OpenAIAPIKey)
	req.Header.Set("Content-Type", "application/sdp")

	client := h.Upstream
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &apierror.Error{
			Type:    apierror.ErrUpstream,
			Message: "upstream status " + resp.Status,
		}
	}
	answer := strings.TrimSpace(string(body))
	if answer == "" {
		return "", &apierror.Error{
			Type:    apierror.ErrUpstream,
			Message: "upstream returned an empty answer",
		}
	}
	return answer, nil
}

func (h RealtimeSessionHandler) sessionConfig(ctx context.Context, sessionID string) (signal.SessionConfig, error) {
	if h.Configs != nil {
		cfg, ok, err := h.Configs.SessionConfig(ctx, sessionID)
		if err != nil {
			return signal.SessionConfig{}, err
		}
		if ok {
			return cfg, nil
		}
	}
	return h.defaultConfig(), nil
}

func (h RealtimeSessionHandler) defaultConfig() signal.SessionConfig {
	return signal.SessionConfig{
		Instructions: h.Config.DefaultInstructions,
		Voice:        h.Config.DefaultVoice,
	}
}

func (h RealtimeSessionHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
