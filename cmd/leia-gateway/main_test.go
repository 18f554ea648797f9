package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/leialabs/leia-realtime/pkg/gateway/config"
	gatewayserver "github.com/leialabs/leia-realtime/pkg/gateway/server"
	"github.com/leialabs/leia-realtime/pkg/gateway/store"
)

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, gatewayDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		openStore: func(context.Context, config.Config, *slog.Logger) (store.Store, error) {
			t.Fatalf("openStore should not be called when config load fails")
			return nil, nil
		},
		newGateway: func(cfg config.Config, logger *slog.Logger, opts gatewayserver.Options) *gatewayserver.Server {
			t.Fatalf("newGateway should not be called when config load fails")
			return nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if got := stderr.String(); got == "" {
		t.Fatalf("expected stderr output for startup error")
	}
}

func TestRunGateway_StoreFailureAborts(t *testing.T) {
	t.Parallel()

	err := runGateway(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), gatewayDeps{
		loadConfig: func() (config.Config, error) {
			return testGatewayConfig(), nil
		},
		openStore: func(context.Context, config.Config, *slog.Logger) (store.Store, error) {
			return nil, errors.New("connection refused")
		},
		newGateway: func(cfg config.Config, logger *slog.Logger, opts gatewayserver.Options) *gatewayserver.Server {
			t.Fatalf("newGateway should not be called when the store fails to open")
			return nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if err == nil {
		t.Fatalf("expected error when store open fails")
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != cfg.ReadTimeout {
		t.Fatalf("ReadTimeout=%v, want %v", srv.ReadTimeout, cfg.ReadTimeout)
	}
}

func TestGatewayHandlerStack_Smoke(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := gatewayserver.New(testGatewayConfig(), logger, gatewayserver.Options{})

	ts := httptest.NewServer(gw.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func testGatewayConfig() config.Config {
	return config.Config{
		Addr:                          "127.0.0.1:0",
		OpenAIRealtimeURL:             "http://localhost:1/v1/realtime/calls",
		OpenAIAPIKey:                  "sk-test",
		RealtimeModel:                 "gpt-realtime",
		DefaultVoice:                  "marin",
		TokenTTL:                      time.Hour,
		MaxBodyBytes:                  1 << 20,
		CORSAllowedOrigins:            map[string]struct{}{},
		SpectatorWriteTimeout:         5 * time.Second,
		SpectatorPingInterval:         20 * time.Second,
		SpectatorQueueSize:            8,
		SpectatorsPerSession:          4,
		ReadHeaderTimeout:             time.Second,
		ReadTimeout:                   time.Second,
		ShutdownGracePeriod:           time.Second,
		UpstreamConnectTimeout:        time.Second,
		UpstreamResponseHeaderTimeout: time.Second,
	}
}
