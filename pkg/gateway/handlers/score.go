package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/leialabs/leia-realtime/pkg/gateway/apierror"
	"github.com/leialabs/leia-realtime/pkg/gateway/scoring"
	"github.com/leialabs/leia-realtime/pkg/gateway/store"
)

// ScoreHandler grades a finished session's transcript. Admin-only.
type ScoreHandler struct {
	Store  store.Store
	Scorer scoring.Scorer
	Logger *slog.Logger
}

func (h ScoreHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("sessionId"))
	if sessionID == "" {
		writeAPIError(w, r, http.StatusBadRequest, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "session id is required",
			Param:   "sessionId",
		})
		return
	}

	turns, err := h.Store.ListBySession(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(turns) == 0 {
		writeAPIError(w, r, http.StatusNotFound, &apierror.Error{
			Type:    apierror.ErrNotFound,
			Message: "session has no transcript",
		})
		return
	}

	result, err := h.Scorer.Score(r.Context(), turns)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("score session", "session_id", sessionID, "error", err)
		}
		writeAPIError(w, r, http.StatusBadGateway, &apierror.Error{
			Type:    apierror.ErrUpstream,
			Message: "scoring failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"score":     result,
	})
}
