// Package spectate fans live transcript turns out to observers over
// WebSocket. Interview coaches can watch a candidate's session as it
// happens without joining the audio call.
package spectate

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

var ErrSessionFull = errors.New("spectate: session has too many spectators")

type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	QueueSize    int
	PerSession   int
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.PerSession <= 0 {
		c.PerSession = 16
	}
	return c
}

// TurnEvent is the wire frame spectators receive for each finalized turn.
type TurnEvent struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"sessionId"`
	Transcript string    `json:"transcript"`
	IsLeia     bool      `json:"isLeia"`
	At         time.Time `json:"at"`
}

type spectator struct {
	conn  *websocket.Conn
	queue chan []byte
	once  sync.Once
}

func (s *spectator) close() {
	s.once.Do(func() { close(s.queue) })
}

type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]map[*spectator]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		sessions: make(map[string]map[*spectator]struct{}),
	}
}

// Attach registers a spectator connection and owns it from then on. The
// call returns once the connection closes or the hub shuts down.
func (h *Hub) Attach(sessionID string, conn *websocket.Conn) error {
	sp := &spectator{
		conn:  conn,
		queue: make(chan []byte, h.cfg.QueueSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errors.New("spectate: hub is shut down")
	}
	set := h.sessions[sessionID]
	if len(set) >= h.cfg.PerSession {
		h.mu.Unlock()
		return ErrSessionFull
	}
	if set == nil {
		set = make(map[*spectator]struct{})
		h.sessions[sessionID] = set
	}
	set[sp] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	defer func() {
		h.detach(sessionID, sp)
		h.wg.Done()
	}()

	// Drain the reader so close frames and pongs are processed. Spectators
	// never send application data.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return h.writeLoop(sp, readerDone)
}

func (h *Hub) writeLoop(sp *spectator, readerDone <-chan struct{}) error {
	pingTicker := time.NewTicker(h.cfg.PingInterval)
	defer pingTicker.Stop()
	defer sp.conn.Close()

	for {
		select {
		case <-readerDone:
			return nil
		case <-pingTicker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := sp.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case payload, ok := <-sp.queue:
			if !ok {
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				_ = sp.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
				return nil
			}
			if err := sp.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return err
			}
			if err := sp.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) detach(sessionID string, sp *spectator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.sessions[sessionID]; set != nil {
		delete(set, sp)
		if len(set) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	sp.close()
}

// Broadcast sends a finalized turn to every spectator of the session.
// Spectators whose queue is full miss the frame rather than stalling the
// caller. Sends happen under the hub lock so a queue is never closed
// mid-send; they are non-blocking so the lock is held only briefly.
func (h *Hub) Broadcast(ev TurnEvent) {
	if ev.Type == "" {
		ev.Type = "turn"
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal spectator frame", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sp := range h.sessions[ev.SessionID] {
		select {
		case sp.queue <- payload:
		default:
			h.logger.Warn("spectator queue full, dropping frame", "session_id", ev.SessionID)
		}
	}
}

// SpectatorCount reports attached spectators for a session.
func (h *Hub) SpectatorCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}

// Shutdown closes all spectator queues and waits for their write loops to
// finish or the context to expire.
func (h *Hub) Shutdown(ctx context.Context) bool {
	h.mu.Lock()
	h.closed = true
	for _, set := range h.sessions {
		for sp := range set {
			sp.close()
		}
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
