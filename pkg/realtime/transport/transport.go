// Package transport owns the peer connection to the realtime speech endpoint:
// local microphone capture, remote audio playback, and the bidirectional
// structured-event channel.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const eventChannelLabel = "oai-events"

var (
	// ErrMicrophoneAccess wraps a failure to start local audio capture.
	// Fatal to connection setup; never retried automatically.
	ErrMicrophoneAccess = errors.New("microphone access denied")

	// ErrChannelNotReady is returned by Send before the event channel
	// reports open. Callers must surface it, not buffer silently.
	ErrChannelNotReady = errors.New("event channel not ready")

	errAlreadyDialed = errors.New("transport already dialed")
)

// AudioSource supplies encoded local audio samples. Start must fail if
// capture cannot begin (for example, the device is unavailable).
type AudioSource interface {
	Start(ctx context.Context) error
	Next() (media.Sample, error)
	Close() error
}

// AudioSink consumes remote audio packets. Playback is expected to begin as
// soon as packets arrive.
type AudioSink interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// Callbacks surface transport-level activity. All callbacks are optional.
type Callbacks struct {
	OnMessage     func(data []byte)
	OnOpen        func()
	OnError       func(err error)
	OnRemoteTrack func(track *webrtc.TrackRemote)
}

type Adapter struct {
	source AudioSource
	sink   AudioSink
	logger *slog.Logger
	cb     Callbacks

	mu          sync.Mutex
	pc          *webrtc.PeerConnection
	dc          *webrtc.DataChannel
	localTrack  *webrtc.TrackLocalStaticSample
	remoteTrack *webrtc.TrackRemote
	pumpCancel  context.CancelFunc

	muted       atomic.Bool
	channelOpen atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once
}

func New(source AudioSource, sink AudioSink, logger *slog.Logger, cb Callbacks) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{source: source, sink: sink, logger: logger, cb: cb}
}

// Dial acquires local audio, opens the event channel, and produces the local
// offer SDP with ICE gathering complete. The event channel is created before
// the offer so it is carried in the offer's session description.
func (a *Adapter) Dial(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.pc != nil {
		a.mu.Unlock()
		return "", errAlreadyDialed
	}
	a.mu.Unlock()

	if a.source == nil {
		return "", fmt.Errorf("%w: no audio source configured", ErrMicrophoneAccess)
	}
	if err := a.source.Start(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMicrophoneAccess, err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		_ = a.source.Close()
		return "", fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		a.logger.Debug("ice connection state", "state", state.String())
		if state == webrtc.ICEConnectionStateFailed {
			a.reportError(fmt.Errorf("ice connection failed"))
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		a.mu.Lock()
		a.remoteTrack = track
		a.mu.Unlock()
		a.logger.Debug("remote track received", "codec", track.Codec().MimeType)
		if a.cb.OnRemoteTrack != nil {
			a.cb.OnRemoteTrack(track)
		}
		go a.playRemote(track)
	})

	localTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "leia-mic",
	)
	if err != nil {
		_ = a.source.Close()
		_ = pc.Close()
		return "", fmt.Errorf("create local track: %w", err)
	}
	if _, err := pc.AddTrack(localTrack); err != nil {
		_ = a.source.Close()
		_ = pc.Close()
		return "", fmt.Errorf("add local track: %w", err)
	}

	dc, err := pc.CreateDataChannel(eventChannelLabel, nil)
	if err != nil {
		_ = a.source.Close()
		_ = pc.Close()
		return "", fmt.Errorf("create event channel: %w", err)
	}
	dc.OnOpen(func() {
		a.channelOpen.Store(true)
		a.logger.Debug("event channel open")
		if a.cb.OnOpen != nil {
			a.cb.OnOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if a.cb.OnMessage != nil {
			a.cb.OnMessage(msg.Data)
		}
	})
	dc.OnError(func(err error) {
		a.reportError(fmt.Errorf("event channel: %w", err))
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = a.source.Close()
		_ = pc.Close()
		return "", fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = a.source.Close()
		_ = pc.Close()
		return "", fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = a.source.Close()
		_ = pc.Close()
		return "", fmt.Errorf("ice gathering: %w", ctx.Err())
	}

	pumpCtx, pumpCancel := context.WithCancel(context.Background())

	a.mu.Lock()
	a.pc = pc
	a.dc = dc
	a.localTrack = localTrack
	a.pumpCancel = pumpCancel
	a.mu.Unlock()

	go a.pumpLocal(pumpCtx, localTrack)

	return pc.LocalDescription().SDP, nil
}

// ApplyAnswer sets the remote description obtained from signaling.
func (a *Adapter) ApplyAnswer(sdp string) error {
	a.mu.Lock()
	pc := a.pc
	a.mu.Unlock()
	if pc == nil {
		return fmt.Errorf("apply answer: not dialed")
	}
	err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
	if err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// Send serializes and transmits a structured event over the event channel.
func (a *Adapter) Send(v any) error {
	if !a.channelOpen.Load() {
		return ErrChannelNotReady
	}
	a.mu.Lock()
	dc := a.dc
	a.mu.Unlock()
	if dc == nil {
		return ErrChannelNotReady
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	return nil
}

// ToggleMute flips the mute flag without renegotiating. With no local audio
// acquired the flag still flips; there is simply no track to silence.
func (a *Adapter) ToggleMute() bool {
	for {
		old := a.muted.Load()
		if a.muted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (a *Adapter) Muted() bool { return a.muted.Load() }

// LocalTrack returns the microphone track, nil before Dial.
func (a *Adapter) LocalTrack() *webrtc.TrackLocalStaticSample {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.localTrack
}

// RemoteTrack returns the assistant audio track, nil until the remote
// endpoint supplies one. Consumers such as visualizers may read it directly.
func (a *Adapter) RemoteTrack() *webrtc.TrackRemote {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remoteTrack
}

// Teardown releases everything: local capture, the event channel, the peer
// connection, and the playback sink. Safe to call repeatedly and before Dial.
func (a *Adapter) Teardown() {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.channelOpen.Store(false)

		a.mu.Lock()
		pumpCancel := a.pumpCancel
		dc := a.dc
		pc := a.pc
		a.pumpCancel = nil
		a.dc = nil
		a.pc = nil
		a.localTrack = nil
		a.remoteTrack = nil
		a.mu.Unlock()

		if pumpCancel != nil {
			pumpCancel()
		}
		if a.source != nil {
			_ = a.source.Close()
		}
		if dc != nil {
			_ = dc.Close()
		}
		if pc != nil {
			_ = pc.Close()
		}
		if a.sink != nil {
			_ = a.sink.Close()
		}
	})
}

func (a *Adapter) reportError(err error) {
	if a.closed.Load() {
		return
	}
	a.logger.Warn("transport error", "err", err)
	if a.cb.OnError != nil {
		a.cb.OnError(err)
	}
}

// pumpLocal forwards captured samples to the local track, dropping samples
// while muted so the microphone goes silent without renegotiation.
func (a *Adapter) pumpLocal(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		sample, err := a.source.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				a.reportError(fmt.Errorf("local audio capture: %w", err))
			}
			return
		}
		if a.muted.Load() {
			continue
		}
		if err := track.WriteSample(sample); err != nil {
			if ctx.Err() == nil {
				a.reportError(fmt.Errorf("write local sample: %w", err))
			}
			return
		}
	}
}

func (a *Adapter) playRemote(track *webrtc.TrackRemote) {
	if a.sink == nil {
		return
	}
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && !a.closed.Load() {
				a.reportError(fmt.Errorf("read remote audio: %w", err))
			}
			return
		}
		if err := a.sink.WriteRTP(pkt); err != nil {
			if !a.closed.Load() {
				a.reportError(fmt.Errorf("playback: %w", err))
			}
			return
		}
	}
}
