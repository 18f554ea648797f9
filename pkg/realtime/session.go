// Package realtime manages one live conversation with the realtime speech
// endpoint: connection negotiation, the inbound event state machine, turn
// sequencing, and transcript persistence.
//
// A Session owns all of its mutable state behind a single dispatch path;
// consumers read snapshots and receive callbacks, never shared references.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/leialabs/leia-realtime/pkg/realtime/signal"
	"github.com/leialabs/leia-realtime/pkg/realtime/transport"
)

const persistTimeout = 10 * time.Second

// Callbacks notify the consumer of session activity. All fields are optional
// and are invoked from the session's dispatch path; they must not block for
// long.
type Callbacks struct {
	OnTranscriptDelta    func(delta string, role Role)
	OnTranscriptComplete func(text string, role Role, at time.Time, sequence int)
	OnError              func(err error)
	OnConnectionChange   func(connected bool)
}

// transportLink is the slice of the transport adapter the session drives.
type transportLink interface {
	Dial(ctx context.Context) (string, error)
	ApplyAnswer(sdp string) error
	Send(v any) error
	ToggleMute() bool
	Muted() bool
	Teardown()
}

// Options configure a Session.
type Options struct {
	// SessionID correlates the signaling exchange and persisted transcripts.
	SessionID string
	// Signal performs the offer/answer exchange. Required.
	Signal *signal.Client
	// Sink persists finalized turns. Optional; nil disables persistence.
	Sink TranscriptSink
	// Source captures local microphone audio.
	Source transport.AudioSource
	// Playback consumes remote assistant audio. Optional.
	Playback transport.AudioSink

	Logger    *slog.Logger
	Callbacks Callbacks
	Now       func() time.Time
}

// Session is the aggregate root for one realtime conversation. Exactly one
// connection is managed per Session; after Disconnect a new Connect builds a
// fresh transport.
type Session struct {
	sessionID string
	signaler  *signal.Client
	sink      TranscriptSink
	logger    *slog.Logger
	cb        Callbacks
	now       func() time.Time

	// newTransport builds the adapter for each connection attempt.
	newTransport func(cb transport.Callbacks) transportLink

	mu        sync.Mutex
	link      transportLink
	adapter   *transport.Adapter
	connected bool
	speaking  bool
	muted     bool
	pending   *signal.SessionConfig
	ledger    *turnLedger
}

func NewSession(opts Options) (*Session, error) {
	if opts.SessionID == "" {
		return nil, fmt.Errorf("realtime: session id is required")
	}
	if opts.Signal == nil {
		return nil, fmt.Errorf("realtime: signal client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		sessionID: opts.SessionID,
		signaler:  opts.Signal,
		sink:      opts.Sink,
		logger:    logger.With("session_id", opts.SessionID),
		cb:        opts.Callbacks,
		now:       now,
		ledger:    newTurnLedger(),
	}
	s.newTransport = func(cb transport.Callbacks) transportLink {
		adapter := transport.New(opts.Source, opts.Playback, logger, cb)
		s.mu.Lock()
		s.adapter = adapter
		s.mu.Unlock()
		return adapter
	}
	return s, nil
}

// Connect performs the negotiation sequence: acquire audio, open the event
// channel, exchange the offer with the signaling endpoint, apply the answer,
// and hold the returned configuration until the remote session is ready.
// Any failure tears the transport down fully before reporting.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	link := s.newTransport(transport.Callbacks{
		OnMessage: s.handleMessage,
		OnOpen: func() {
			s.logger.Debug("event channel open")
		},
		OnError: s.reportError,
	})

	offer, err := link.Dial(ctx)
	if err != nil {
		link.Teardown()
		err = fmt.Errorf("realtime: connect: %w", err)
		s.reportError(err)
		return err
	}

	resp, err := s.signaler.Exchange(ctx, s.sessionID, offer)
	if err != nil {
		link.Teardown()
		err = fmt.Errorf("realtime: connect: %w", err)
		s.reportError(err)
		return err
	}

	if err := link.ApplyAnswer(resp.SDPAnswer); err != nil {
		link.Teardown()
		err = fmt.Errorf("realtime: connect: %w", err)
		s.reportError(err)
		return err
	}

	s.mu.Lock()
	s.link = link
	s.connected = true
	cfg := resp.SessionConfig
	s.pending = &cfg
	if s.muted && !link.Muted() {
		link.ToggleMute()
	}
	s.mu.Unlock()

	s.logger.Info("realtime session connected")
	if s.cb.OnConnectionChange != nil {
		s.cb.OnConnectionChange(true)
	}
	return nil
}

// Disconnect releases all connection resources. Idempotent; safe mid-
// negotiation and after a previous Disconnect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	link := s.link
	adapter := s.adapter
	wasConnected := s.connected
	s.link = nil
	s.adapter = nil
	s.connected = false
	s.speaking = false
	s.mu.Unlock()

	if link != nil {
		link.Teardown()
	} else if adapter != nil {
		adapter.Teardown()
	}

	if wasConnected {
		s.logger.Info("realtime session disconnected")
		if s.cb.OnConnectionChange != nil {
			s.cb.OnConnectionChange(false)
		}
	}
}

// ToggleMute flips the microphone mute flag. The flag is tracked even while
// disconnected; it simply has no track to act on until a connection exists.
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	s.muted = !s.muted
	muted := s.muted
	link := s.link
	s.mu.Unlock()

	if link != nil && link.Muted() != muted {
		link.ToggleMute()
	}
	return muted
}

// SendText sends a free-form user text message over the event channel.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	link := s.link
	connected := s.connected
	s.mu.Unlock()

	if !connected || link == nil {
		err := errors.New("realtime: cannot send text: not connected")
		s.reportError(err)
		return err
	}
	if err := link.Send(newTextMessage(text)); err != nil {
		err = fmt.Errorf("realtime: send text: %w", err)
		s.reportError(err)
		return err
	}
	return nil
}

// handleMessage is the single dispatch entry point for inbound events.
func (s *Session) handleMessage(data []byte) {
	ev, err := DecodeServerEvent(data)
	if err != nil {
		s.reportError(err)
		return
	}

	switch ev := ev.(type) {
	case SessionCreatedEvent:
		s.sendPendingConfig()

	case UserTranscriptionStartEvent:
		s.mu.Lock()
		s.ledger.assignIfAbsent(RoleUser)
		s.mu.Unlock()

	case UserTranscriptionDeltaEvent:
		s.appendDelta(RoleUser, ev.Delta)

	case UserTranscriptionDoneEvent:
		s.finalizeTurn(RoleUser, ev.Transcript)

	case ResponseCreatedEvent:
		// The assistant's index is allocated when its response is created.
		// If the user's current turn has no index yet it must get one
		// first: the user always precedes the reply in sequence order.
		s.mu.Lock()
		if !s.ledger.hasOpen(RoleAssistant) {
			s.ledger.assignIfAbsent(RoleUser)
			s.ledger.assignIfAbsent(RoleAssistant)
		}
		s.mu.Unlock()

	case AssistantTranscriptDeltaEvent:
		s.appendDelta(RoleAssistant, ev.Delta)

	case AssistantTranscriptDoneEvent:
		s.finalizeTurn(RoleAssistant, ev.Transcript)

	case AssistantAudioDeltaEvent:
		s.setSpeaking(true)

	case AssistantAudioDoneEvent:
		s.setSpeaking(false)

	case ResponseDoneEvent:
		s.setSpeaking(false)

	case ServerErrorEvent:
		// Surfaced verbatim; turn and connection state stay untouched.
		s.reportError(fmt.Errorf("realtime: remote error: %s", ev.Message()))

	case UnknownEvent:
		s.logger.Debug("ignoring unknown realtime event", "type", ev.Type)
	}
}

// sendPendingConfig transmits the held session configuration exactly once.
// The pending slot is cleared only after a successful send, so a failed send
// retries on the next ready signal and a duplicate ready signal is a no-op.
func (s *Session) sendPendingConfig() {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return
	}
	update := newSessionUpdate(*s.pending)
	link := s.link
	s.mu.Unlock()

	if link == nil {
		return
	}
	if err := link.Send(update); err != nil {
		s.reportError(fmt.Errorf("realtime: send session config: %w", err))
		return
	}
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	s.logger.Info("session configuration applied")
}

func (s *Session) appendDelta(role Role, delta string) {
	if delta == "" {
		return
	}
	s.mu.Lock()
	s.ledger.appendDelta(role, delta)
	s.mu.Unlock()

	if s.cb.OnTranscriptDelta != nil {
		s.cb.OnTranscriptDelta(delta, role)
	}
}

// finalizeTurn closes the role's open turn, appends it to history, notifies
// the caller, and persists it best-effort. A completion that carries no
// transcript and has no open turn is ignored.
func (s *Session) finalizeTurn(role Role, transcript string) {
	s.mu.Lock()
	if transcript == "" && !s.ledger.hasOpen(role) {
		s.mu.Unlock()
		return
	}
	turn := s.ledger.finalize(role, transcript, s.now())
	s.mu.Unlock()

	if s.cb.OnTranscriptComplete != nil {
		s.cb.OnTranscriptComplete(turn.Text, turn.Role, turn.CompletedAt, turn.Sequence)
	}
	go s.persist(turn)
}

// persist is fire-and-forget: a failed save is reported but never rolls back
// history or blocks event processing.
func (s *Session) persist(turn Turn) {
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	err := s.sink.SaveTranscript(ctx, s.sessionID, turn.Text, turn.Role == RoleAssistant)
	if err != nil {
		s.reportError(fmt.Errorf("realtime: save transcript: %w", err))
	}
}

func (s *Session) setSpeaking(speaking bool) {
	s.mu.Lock()
	s.speaking = speaking
	s.mu.Unlock()
}

func (s *Session) reportError(err error) {
	s.logger.Warn("realtime session error", "err", err)
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

// Connected reports whether negotiation completed and the session is live.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Speaking reports whether the assistant is actively emitting audio.
func (s *Session) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// UserBuffer returns the user's accumulating transcript for the open turn.
func (s *Session) UserBuffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.buffer(RoleUser)
}

// AssistantBuffer returns the assistant's accumulating transcript.
func (s *Session) AssistantBuffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.buffer(RoleAssistant)
}

// History returns finalized turns in finalization order.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.historySnapshot()
}

// LocalTrack exposes the microphone track, nil while disconnected.
func (s *Session) LocalTrack() *webrtc.TrackLocalStaticSample {
	s.mu.Lock()
	adapter := s.adapter
	s.mu.Unlock()
	if adapter == nil {
		return nil
	}
	return adapter.LocalTrack()
}

// RemoteTrack exposes the assistant audio track for direct consumers such as
// visualizers; nil until the remote endpoint supplies one.
func (s *Session) RemoteTrack() *webrtc.TrackRemote {
	s.mu.Lock()
	adapter := s.adapter
	s.mu.Unlock()
	if adapter == nil {
		return nil
	}
	return adapter.RemoteTrack()
}
