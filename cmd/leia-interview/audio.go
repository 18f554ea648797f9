package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

const audioSampleRateHz = 48000

// ffmpegMicSource captures the default microphone through ffmpeg, encoded
// as Opus in an Ogg container, and yields one page per sample.
type ffmpegMicSource struct {
	mu          sync.Mutex
	cmd         *exec.Cmd
	stdout      io.ReadCloser
	ogg         *oggreader.OggReader
	lastGranule uint64
}

func newFFmpegMicSource() (*ffmpegMicSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for microphone capture (install ffmpeg and ensure it is in PATH)")
	}
	return &ffmpegMicSource{}, nil
}

func micFFmpegArgs(goos string) ([]string, error) {
	var input []string
	switch goos {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", ":0"}
	case "linux":
		input = []string{"-f", "pulse", "-i", "default"}
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	args = append(args,
		"-ac", "1", "-ar", fmt.Sprintf("%d", audioSampleRateHz),
		"-c:a", "libopus", "-page_duration", "20000",
		"-f", "ogg", "-",
	)
	return args, nil
}

func (m *ffmpegMicSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	args, err := micFFmpegArgs(runtime.GOOS)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg mic capture: %w", err)
	}

	ogg, _, err := oggreader.NewWith(stdout)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("read ogg header from ffmpeg: %w", err)
	}

	m.cmd = cmd
	m.stdout = stdout
	m.ogg = ogg
	m.lastGranule = 0
	return nil
}

func (m *ffmpegMicSource) Next() (media.Sample, error) {
	m.mu.Lock()
	ogg := m.ogg
	m.mu.Unlock()
	if ogg == nil {
		return media.Sample{}, io.EOF
	}

	pageData, pageHeader, err := ogg.ParseNextPage()
	if err != nil {
		return media.Sample{}, err
	}

	m.mu.Lock()
	sampleCount := pageHeader.GranulePosition - m.lastGranule
	m.lastGranule = pageHeader.GranulePosition
	m.mu.Unlock()

	duration := time.Duration(sampleCount) * time.Second / audioSampleRateHz
	if duration <= 0 {
		duration = 20 * time.Millisecond
	}
	return media.Sample{Data: pageData, Duration: duration}, nil
}

func (m *ffmpegMicSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	m.cmd = nil
	m.stdout = nil
	m.ogg = nil
	return nil
}

// silentSource backs text-only sessions. It acquires nothing and produces no
// samples; Next blocks until Close so the local track stays silent.
type silentSource struct {
	done chan struct{}
	once sync.Once
}

func newSilentSource() *silentSource {
	return &silentSource{done: make(chan struct{})}
}

func (s *silentSource) Start(context.Context) error { return nil }

func (s *silentSource) Next() (media.Sample, error) {
	<-s.done
	return media.Sample{}, io.EOF
}

func (s *silentSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// ffplayOpusSink plays remote assistant audio by re-muxing the RTP stream
// into Ogg and piping it to ffplay.
type ffplayOpusSink struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *oggwriter.OggWriter
}

func newFFplayOpusSink() (*ffplayOpusSink, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}

	cmd := exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "ogg",
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}

	writer, err := oggwriter.NewWith(stdin, audioSampleRateHz, 2)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("create ogg writer: %w", err)
	}

	return &ffplayOpusSink{cmd: cmd, stdin: stdin, writer: writer}, nil
}

func (p *ffplayOpusSink) WriteRTP(pkt *rtp.Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		return errors.New("playback sink is closed")
	}
	return p.writer.WriteRTP(pkt)
}

func (p *ffplayOpusSink) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		_ = p.writer.Close()
		p.writer = nil
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.cmd = nil
	p.stdin = nil
	return nil
}
