package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leialabs/leia-realtime/pkg/gateway/store"
)

func newSaveRequest(t *testing.T, sessionID, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/realtime/transcriptions/"+sessionID, strings.NewReader(body))
	req.SetPathValue("sessionId", sessionID)
	return req
}

func TestSaveTranscription(t *testing.T) {
	st := store.NewMemory()
	h := SaveTranscriptionHandler{Store: st, Logger: testLogger()}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, newSaveRequest(t, "sess-1", `{"transcript":"Tell me about Raft.","isLeia":true}`))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var row store.Transcription
	if err := json.Unmarshal(rr.Body.Bytes(), &row); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if row.Transcript != "Tell me about Raft." || !row.IsLeia {
		t.Fatalf("row=%+v", row)
	}
	if row.CreatedAt.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}

	rows, err := st.ListBySession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%v", rows)
	}
}

func TestSaveTranscription_Validation(t *testing.T) {
	h := SaveTranscriptionHandler{Store: store.NewMemory(), Logger: testLogger()}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, newSaveRequest(t, "sess-1", `{"transcript":"   "}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty transcript: status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, newSaveRequest(t, "sess-1", `{not json`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, newSaveRequest(t, "", `{"transcript":"hi"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing session id: status=%d", rr.Code)
	}
}

func TestListTranscriptions_OrderPreserved(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	_, _ = st.Insert(ctx, "sess-1", "first question", true)
	_, _ = st.Insert(ctx, "sess-1", "first answer", false)
	_, _ = st.Insert(ctx, "other", "unrelated", false)

	h := ListTranscriptionsHandler{Store: st}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/realtime/transcriptions/sess-1", nil)
	req.SetPathValue("sessionId", "sess-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp struct {
		SessionID      string                `json:"sessionId"`
		Transcriptions []store.Transcription `json:"transcriptions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Transcriptions) != 2 {
		t.Fatalf("transcriptions=%v", resp.Transcriptions)
	}
	if resp.Transcriptions[0].Transcript != "first question" {
		t.Fatalf("order broken: %v", resp.Transcriptions)
	}
}

func TestListTranscriptions_EmptySessionIsEmptyList(t *testing.T) {
	h := ListTranscriptionsHandler{Store: store.NewMemory()}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/realtime/transcriptions/ghost", nil)
	req.SetPathValue("sessionId", "ghost")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"transcriptions":[]`) {
		t.Fatalf("body=%q", rr.Body.String())
	}
}
