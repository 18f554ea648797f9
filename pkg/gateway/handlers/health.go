package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/leialabs/leia-realtime/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config config.Config
	Store  pinger
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK           bool     `json:"ok"`
		StoreEnabled bool     `json:"store_enabled"`
		AdminEnabled bool     `json:"admin_enabled"`
		Issues       []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if strings.TrimSpace(h.Config.OpenAIRealtimeURL) == "" {
		issues = append(issues, "realtime upstream URL is empty")
	}
	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "realtime API key is not set")
	}
	if strings.TrimSpace(h.Config.RealtimeModel) == "" {
		issues = append(issues, "realtime model is empty")
	}
	if h.Config.AdminPassword != "" && h.Config.JWTSecret == "" {
		issues = append(issues, "admin password set but jwt secret missing")
	}
	if h.Config.MaxBodyBytes <= 0 {
		issues = append(issues, "max_body_bytes must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}
	if h.Config.UpstreamConnectTimeout <= 0 || h.Config.UpstreamResponseHeaderTimeout <= 0 {
		issues = append(issues, "upstream timeouts must be > 0")
	}

	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			issues = append(issues, "transcript store unreachable")
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, readyResp{
		OK:           ok,
		StoreEnabled: h.Store != nil,
		AdminEnabled: h.Config.AdminPassword != "",
		Issues:       issues,
	})
}
