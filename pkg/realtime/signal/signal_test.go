package signal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExchange(t *testing.T) {
	var gotBody string
	var gotContentType string
	var gotSession string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s", r.Method)
		}
		if r.URL.Path != "/api/v1/realtime/session" {
			t.Errorf("path=%s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		gotSession = r.Header.Get("X-Session-Id")

		_ = json.NewEncoder(w).Encode(Response{
			SDPAnswer: "v=0 answer",
			SessionConfig: SessionConfig{
				Instructions: "Run the interview.",
				Voice:        "marin",
			},
		})
	}))
	defer server.Close()

	c, err := NewClient(server.URL, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := c.Exchange(context.Background(), "sess-42", "v=0 offer")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if resp.SDPAnswer != "v=0 answer" {
		t.Fatalf("answer=%q", resp.SDPAnswer)
	}
	if resp.SessionConfig.Instructions != "Run the interview." {
		t.Fatalf("config=%+v", resp.SessionConfig)
	}
	if gotBody != "v=0 offer" {
		t.Fatalf("body=%q", gotBody)
	}
	if gotContentType != "application/sdp" {
		t.Fatalf("content type=%q", gotContentType)
	}
	if gotSession != "sess-42" {
		t.Fatalf("session header=%q", gotSession)
	}
}

func TestExchange_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown session", http.StatusNotFound)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Exchange(context.Background(), "sess-42", "v=0 offer"); err == nil {
		t.Fatalf("expected error on HTTP 404")
	}
}

func TestExchange_MissingAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sessionConfig":{}}`))
	}))
	defer server.Close()

	c, err := NewClient(server.URL, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Exchange(context.Background(), "sess-42", "v=0 offer"); err == nil {
		t.Fatalf("expected error when sdpAnswer is absent")
	}
}

func TestExchange_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c, err := NewClient(server.URL, WithTimeout(25*time.Millisecond), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	start := time.Now()
	_, err = c.Exchange(context.Background(), "sess-42", "v=0 offer")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestExchange_InputValidation(t *testing.T) {
	c, err := NewClient("http://localhost:1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Exchange(context.Background(), "", "v=0 offer"); err == nil {
		t.Fatalf("expected error for empty session id")
	}
	if _, err := c.Exchange(context.Background(), "sess", ""); err == nil {
		t.Fatalf("expected error for empty offer")
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient("   "); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}
