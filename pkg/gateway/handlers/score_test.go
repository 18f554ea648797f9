package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leialabs/leia-realtime/pkg/gateway/scoring"
	"github.com/leialabs/leia-realtime/pkg/gateway/store"
)

type fakeScorer struct {
	result scoring.Result
	err    error
	turns  []store.Transcription
}

func (f *fakeScorer) Score(_ context.Context, turns []store.Transcription) (scoring.Result, error) {
	f.turns = turns
	return f.result, f.err
}

func TestScore(t *testing.T) {
	st := store.NewMemory()
	_, _ = st.Insert(context.Background(), "sess-1", "Explain consensus.", true)
	_, _ = st.Insert(context.Background(), "sess-1", "Raft elects a leader...", false)

	scorer := &fakeScorer{result: scoring.Result{
		Overall:        7,
		Communication:  8,
		TechnicalDepth: 6,
		Summary:        "Solid fundamentals.",
	}}
	h := ScoreHandler{Store: st, Scorer: scorer, Logger: testLogger()}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/realtime/score/sess-1", nil)
	req.SetPathValue("sessionId", "sess-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if len(scorer.turns) != 2 {
		t.Fatalf("scorer saw %d turns", len(scorer.turns))
	}
	var resp struct {
		SessionID string         `json:"sessionId"`
		Score     scoring.Result `json:"score"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Score.Overall != 7 {
		t.Fatalf("score=%+v", resp.Score)
	}
}

func TestScore_NoTranscript(t *testing.T) {
	h := ScoreHandler{Store: store.NewMemory(), Scorer: &fakeScorer{}, Logger: testLogger()}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/realtime/score/ghost", nil)
	req.SetPathValue("sessionId", "ghost")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestScore_ScorerFailure(t *testing.T) {
	st := store.NewMemory()
	_, _ = st.Insert(context.Background(), "sess-1", "hello", false)

	h := ScoreHandler{
		Store:  st,
		Scorer: &fakeScorer{err: errors.New("rate limited")},
		Logger: testLogger(),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/realtime/score/sess-1", nil)
	req.SetPathValue("sessionId", "sess-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", rr.Code)
	}
}
