package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/leialabs/leia-realtime/pkg/gateway/apierror"
	"github.com/leialabs/leia-realtime/pkg/gateway/spectate"
	"github.com/leialabs/leia-realtime/pkg/gateway/store"
)

type saveTranscriptionRequest struct {
	Transcript string `json:"transcript"`
	IsLeia     bool   `json:"isLeia"`
}

// SaveTranscriptionHandler appends one finalized turn to a session's
// transcript and mirrors it to attached spectators.
type SaveTranscriptionHandler struct {
	Store  store.Store
	Hub    *spectate.Hub
	Logger *slog.Logger
	// MaxBodyBytes bounds the request body; zero means 1 MiB.
	MaxBodyBytes int64
}

func (h SaveTranscriptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("sessionId"))
	if sessionID == "" {
		writeAPIError(w, r, http.StatusBadRequest, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "session id is required",
			Param:   "sessionId",
		})
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	var req saveTranscriptionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(&req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "invalid JSON body",
		})
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeAPIError(w, r, http.StatusBadRequest, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "transcript must not be empty",
			Param:   "transcript",
		})
		return
	}

	row, err := h.Store.Insert(r.Context(), sessionID, req.Transcript, req.IsLeia)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("insert transcription", "session_id", sessionID, "error", err)
		}
		writeError(w, r, err)
		return
	}

	if h.Hub != nil {
		h.Hub.Broadcast(spectate.TurnEvent{
			SessionID:  sessionID,
			Transcript: row.Transcript,
			IsLeia:     row.IsLeia,
			At:         row.CreatedAt,
		})
	}

	writeJSON(w, http.StatusCreated, row)
}

// ListTranscriptionsHandler returns a session's transcript in insertion
// order. Admin-only; the route is wrapped in AdminAuth.
type ListTranscriptionsHandler struct {
	Store store.Store
}

func (h ListTranscriptionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("sessionId"))
	if sessionID == "" {
		writeAPIError(w, r, http.StatusBadRequest, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "session id is required",
			Param:   "sessionId",
		})
		return
	}

	rows, err := h.Store.ListBySession(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":      sessionID,
		"transcriptions": rows,
	})
}
