package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps transcripts in process memory. Used when no database is
// configured and in handler tests.
type Memory struct {
	mu   sync.Mutex
	rows map[string][]Transcription
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		rows: make(map[string][]Transcription),
		now:  time.Now,
	}
}

func (m *Memory) Insert(_ context.Context, sessionID, transcript string, isLeia bool) (Transcription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := Transcription{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Transcript: transcript,
		IsLeia:     isLeia,
		CreatedAt:  m.now().UTC(),
	}
	m.rows[sessionID] = append(m.rows[sessionID], row)
	return row, nil
}

func (m *Memory) ListBySession(_ context.Context, sessionID string) ([]Transcription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.rows[sessionID]
	out := make([]Transcription, len(src))
	copy(out, src)
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}
