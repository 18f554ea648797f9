package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// TranscriptSink persists finalized turns. Failures are best-effort: the
// in-memory history is the source of truth for the live view.
type TranscriptSink interface {
	SaveTranscript(ctx context.Context, sessionID, transcript string, assistant bool) error
}

// HTTPSink posts finalized transcripts to the LEIA backend.
type HTTPSink struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPSink(baseURL string, httpClient *http.Client, logger *slog.Logger) (*HTTPSink, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("transcript sink: base URL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSink{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

type saveTranscriptRequest struct {
	Transcript string `json:"transcript"`
	IsLeia     bool   `json:"isLeia"`
}

func (s *HTTPSink) SaveTranscript(ctx context.Context, sessionID, transcript string, assistant bool) error {
	body, err := json.Marshal(saveTranscriptRequest{Transcript: transcript, IsLeia: assistant})
	if err != nil {
		return fmt.Errorf("transcript sink: encode: %w", err)
	}
	url := s.baseURL + "/api/v1/realtime/transcriptions/" + sessionID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transcript sink: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transcript sink: save: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("transcript sink: save failed with status %d", resp.StatusCode)
	}
	return nil
}
