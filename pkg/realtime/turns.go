package realtime

import (
	"strings"
	"time"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one finalized contiguous utterance.
type Turn struct {
	Role        Role
	Sequence    int
	Text        string
	CompletedAt time.Time
}

type openTurn struct {
	sequence int
	buf      strings.Builder
}

// turnLedger owns the shared sequence counter, the per-role open-turn slots,
// and the finalized history. Indices are assigned in first-evidence order and
// are never reassigned or reused; history keeps finalization order, which can
// differ from index order.
type turnLedger struct {
	counter int
	open    map[Role]*openTurn
	history []Turn
}

func newTurnLedger() *turnLedger {
	return &turnLedger{open: make(map[Role]*openTurn, 2)}
}

// nextIndex unconditionally allocates a fresh sequence index. Used only when
// a completion arrives for a role with no open turn.
func (l *turnLedger) nextIndex() int {
	idx := l.counter
	l.counter++
	return idx
}

// assignIfAbsent opens a turn for role if none is open, allocating the next
// index. Idempotent: an already-open turn keeps its index.
func (l *turnLedger) assignIfAbsent(role Role) int {
	if t, ok := l.open[role]; ok {
		return t.sequence
	}
	t := &openTurn{sequence: l.nextIndex()}
	l.open[role] = t
	return t.sequence
}

func (l *turnLedger) hasOpen(role Role) bool {
	_, ok := l.open[role]
	return ok
}

// appendDelta accumulates incremental transcript text, opening a turn first
// if this delta is the role's first evidence.
func (l *turnLedger) appendDelta(role Role, delta string) int {
	seq := l.assignIfAbsent(role)
	l.open[role].buf.WriteString(delta)
	return seq
}

func (l *turnLedger) buffer(role Role) string {
	if t, ok := l.open[role]; ok {
		return t.buf.String()
	}
	return ""
}

// finalize closes the role's open turn. The completion transcript wins when
// present; otherwise the accumulated delta buffer is flushed. A completion
// with no open turn allocates a fresh index at this moment rather than
// failing. The open slot is cleared so a later utterance opens a new turn.
func (l *turnLedger) finalize(role Role, transcript string, at time.Time) Turn {
	var seq int
	var buffered string
	if t, ok := l.open[role]; ok {
		seq = t.sequence
		buffered = t.buf.String()
		delete(l.open, role)
	} else {
		seq = l.nextIndex()
	}

	text := transcript
	if text == "" {
		text = buffered
	}

	turn := Turn{Role: role, Sequence: seq, Text: text, CompletedAt: at}
	l.history = append(l.history, turn)
	return turn
}

func (l *turnLedger) historySnapshot() []Turn {
	out := make([]Turn, len(l.history))
	copy(out, l.history)
	return out
}
