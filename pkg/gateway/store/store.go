// Package store persists interview transcripts.
//
// The gateway works against the Store interface so handlers can be tested
// with the in-memory implementation while deployments use Postgres.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("store: not found")

// Transcription is one finalized turn of an interview session.
type Transcription struct {
	ID         uuid.UUID `json:"id"`
	SessionID  string    `json:"sessionId"`
	Transcript string    `json:"transcript"`
	// IsLeia marks turns spoken by the AI interviewer.
	IsLeia    bool      `json:"isLeia"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store interface {
	// Insert appends a turn to the session's transcript. The returned row
	// carries the generated ID and timestamp.
	Insert(ctx context.Context, sessionID, transcript string, isLeia bool) (Transcription, error)
	// ListBySession returns all turns for a session in insertion order.
	// A session with no turns yields an empty slice, not ErrNotFound.
	ListBySession(ctx context.Context, sessionID string) ([]Transcription, error)
	Ping(ctx context.Context) error
	Close()
}
