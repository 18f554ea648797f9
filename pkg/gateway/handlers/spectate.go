package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leialabs/leia-realtime/pkg/gateway/apierror"
	"github.com/leialabs/leia-realtime/pkg/gateway/config"
	"github.com/leialabs/leia-realtime/pkg/gateway/spectate"
)

// SpectateHandler upgrades to WebSocket and streams a session's finalized
// turns to the observer until either side disconnects.
type SpectateHandler struct {
	Config config.Config
	Hub    *spectate.Hub
	Logger *slog.Logger
}

func (h SpectateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("sessionId"))
	if sessionID == "" {
		writeAPIError(w, r, http.StatusBadRequest, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "session id is required",
			Param:   "sessionId",
		})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			if len(h.Config.CORSAllowedOrigins) == 0 {
				return false
			}
			_, ok := h.Config.CORSAllowedOrigins[origin]
			return ok
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	if err := h.Hub.Attach(sessionID, conn); err != nil {
		h.Logger.Warn("spectator attach rejected", "session_id", sessionID, "error", err)
		if errors.Is(err, spectate.ErrSessionFull) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session full"),
				time.Now().Add(time.Second))
		}
		_ = conn.Close()
		return
	}
}
