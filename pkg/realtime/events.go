package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leialabs/leia-realtime/pkg/realtime/signal"
)

// Inbound event type names on the realtime data channel. These are the wire
// names emitted by the remote speech endpoint; anything else decodes to
// UnknownEvent and is ignored.
const (
	typeSessionCreated          = "session.created"
	typeUserTranscription       = "conversation.item.input_audio_transcription"
	typeUserTranscriptionDelta  = "conversation.item.input_audio_transcription.delta"
	typeUserTranscriptionDone   = "conversation.item.input_audio_transcription.completed"
	typeResponseCreated         = "response.created"
	typeAssistantScriptDelta    = "response.output_audio_transcript.delta"
	typeAssistantScriptDone     = "response.output_audio_transcript.done"
	typeAssistantAudioDelta     = "response.audio.delta"
	typeAssistantAudioDone      = "response.audio.done"
	typeResponseDone            = "response.done"
	typeServerError             = "error"
)

// ServerEvent is an inbound event decoded from the data channel.
type ServerEvent interface {
	serverEventType() string
}

type SessionCreatedEvent struct{}

func (SessionCreatedEvent) serverEventType() string { return typeSessionCreated }

// UserTranscriptionStartEvent is the first evidence of a user utterance,
// delivered before any delta text is available.
type UserTranscriptionStartEvent struct{}

func (UserTranscriptionStartEvent) serverEventType() string { return typeUserTranscription }

type UserTranscriptionDeltaEvent struct {
	Delta string `json:"delta"`
}

func (UserTranscriptionDeltaEvent) serverEventType() string { return typeUserTranscriptionDelta }

type UserTranscriptionDoneEvent struct {
	Transcript string `json:"transcript"`
}

func (UserTranscriptionDoneEvent) serverEventType() string { return typeUserTranscriptionDone }

type ResponseCreatedEvent struct{}

func (ResponseCreatedEvent) serverEventType() string { return typeResponseCreated }

type AssistantTranscriptDeltaEvent struct {
	Delta string `json:"delta"`
}

func (AssistantTranscriptDeltaEvent) serverEventType() string { return typeAssistantScriptDelta }

type AssistantTranscriptDoneEvent struct {
	Transcript string `json:"transcript"`
}

func (AssistantTranscriptDoneEvent) serverEventType() string { return typeAssistantScriptDone }

type AssistantAudioDeltaEvent struct{}

func (AssistantAudioDeltaEvent) serverEventType() string { return typeAssistantAudioDelta }

type AssistantAudioDoneEvent struct{}

func (AssistantAudioDoneEvent) serverEventType() string { return typeAssistantAudioDone }

type ResponseDoneEvent struct{}

func (ResponseDoneEvent) serverEventType() string { return typeResponseDone }

type ServerErrorEvent struct {
	Err struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (ServerErrorEvent) serverEventType() string { return typeServerError }

func (e ServerErrorEvent) Message() string {
	if strings.TrimSpace(e.Err.Message) == "" {
		return "unknown realtime error"
	}
	return e.Err.Message
}

// UnknownEvent preserves unrecognized event types for logging without
// treating them as protocol errors.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) serverEventType() string { return e.Type }

// DecodeServerEvent parses one inbound data channel frame. Malformed JSON is
// an error; an unrecognized type is not.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode realtime event: %w", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, fmt.Errorf("decode realtime event: missing type")
	}

	switch typ {
	case typeSessionCreated:
		return SessionCreatedEvent{}, nil
	case typeUserTranscription:
		return UserTranscriptionStartEvent{}, nil
	case typeUserTranscriptionDelta:
		var ev UserTranscriptionDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return ev, nil
	case typeUserTranscriptionDone:
		var ev UserTranscriptionDoneEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return ev, nil
	case typeResponseCreated:
		return ResponseCreatedEvent{}, nil
	case typeAssistantScriptDelta:
		var ev AssistantTranscriptDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return ev, nil
	case typeAssistantScriptDone:
		var ev AssistantTranscriptDoneEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return ev, nil
	case typeAssistantAudioDelta:
		return AssistantAudioDeltaEvent{}, nil
	case typeAssistantAudioDone:
		return AssistantAudioDoneEvent{}, nil
	case typeResponseDone:
		return ResponseDoneEvent{}, nil
	case typeServerError:
		var ev ServerErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return ev, nil
	default:
		return UnknownEvent{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// sessionUpdateEvent carries the deferred session configuration, sent exactly
// once after the remote session announces it exists.
type sessionUpdateEvent struct {
	Type    string               `json:"type"`
	Session sessionUpdatePayload `json:"session"`
}

type sessionUpdatePayload struct {
	Type         string             `json:"type"`
	Instructions string             `json:"instructions"`
	Audio        sessionUpdateAudio `json:"audio"`
}

type sessionUpdateAudio struct {
	Input  sessionUpdateAudioIn  `json:"input"`
	Output sessionUpdateAudioOut `json:"output"`
}

type sessionUpdateAudioIn struct {
	Transcription transcriptionConfig `json:"transcription"`
	TurnDetection json.RawMessage     `json:"turn_detection"`
}

type transcriptionConfig struct {
	Model    string `json:"model"`
	Language string `json:"language"`
}

type sessionUpdateAudioOut struct {
	Voice string `json:"voice"`
}

const (
	defaultInstructions = "CRITICAL: You MUST speak ONLY in English at all times. ALL your responses MUST be in English."
	defaultVoice        = "marin"
)

var defaultTurnDetection = json.RawMessage(`{"type":"server_vad","threshold":0.5,"prefix_padding_ms":300,"silence_duration_ms":500}`)

func newSessionUpdate(cfg signal.SessionConfig) sessionUpdateEvent {
	instructions := cfg.Instructions
	if strings.TrimSpace(instructions) == "" {
		instructions = defaultInstructions
	}
	voice := cfg.Voice
	if strings.TrimSpace(voice) == "" {
		voice = defaultVoice
	}
	turnDetection := cfg.TurnDetection
	if len(turnDetection) == 0 {
		turnDetection = defaultTurnDetection
	}
	return sessionUpdateEvent{
		Type: "session.update",
		Session: sessionUpdatePayload{
			Type:         "realtime",
			Instructions: instructions,
			Audio: sessionUpdateAudio{
				Input: sessionUpdateAudioIn{
					Transcription: transcriptionConfig{Model: "whisper-1", Language: "en"},
					TurnDetection: turnDetection,
				},
				Output: sessionUpdateAudioOut{Voice: voice},
			},
		},
	}
}

// conversationItemCreate is an on-demand user text message.
type conversationItemCreate struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string            `json:"type"`
	Role    string            `json:"role"`
	Content []itemContentPart `json:"content"`
}

type itemContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func newTextMessage(text string) conversationItemCreate {
	return conversationItemCreate{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "user",
			Content: []itemContentPart{
				{Type: "input_text", Text: text},
			},
		},
	}
}
