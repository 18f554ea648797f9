package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leialabs/leia-realtime/pkg/realtime"
	"github.com/leialabs/leia-realtime/pkg/realtime/signal"
	"github.com/leialabs/leia-realtime/pkg/realtime/transport"
)

func newJoinCmd(v *viper.Viper) *cobra.Command {
	var noAudio bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Connect to the interviewer and stream the transcript",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gatewayURL := strings.TrimSpace(v.GetString("gateway"))
			if gatewayURL == "" {
				return fmt.Errorf("gateway URL is required (set --gateway or LEIA_INTERVIEW_GATEWAY)")
			}
			sessionID := strings.TrimSpace(v.GetString("session"))
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			return runJoin(cmd.Context(), joinConfig{
				gatewayURL: gatewayURL,
				sessionID:  sessionID,
				noAudio:    noAudio,
				verbose:    verbose,
			}, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVar(&noAudio, "no-audio", false, "connect without microphone or playback (text only)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log connection details to stderr")
	return cmd
}

type joinConfig struct {
	gatewayURL string
	sessionID  string
	noAudio    bool
	verbose    bool
}

func runJoin(ctx context.Context, cfg joinConfig, in io.Reader, out, errOut io.Writer) error {
	logLevel := slog.LevelWarn
	if cfg.verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: logLevel}))

	signaler, err := signal.NewClient(cfg.gatewayURL, signal.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build signal client: %w", err)
	}
	sink, err := realtime.NewHTTPSink(cfg.gatewayURL, nil, logger)
	if err != nil {
		return fmt.Errorf("build transcript sink: %w", err)
	}

	var source transport.AudioSource = newSilentSource()
	var playback transport.AudioSink
	if !cfg.noAudio {
		mic, err := newFFmpegMicSource()
		if err != nil {
			return err
		}
		source = mic

		player, err := newFFplayOpusSink()
		if err != nil {
			return err
		}
		defer player.Close()
		playback = player
	}

	errCh := make(chan error, 8)
	session, err := realtime.NewSession(realtime.Options{
		SessionID: cfg.sessionID,
		Signal:    signaler,
		Sink:      sink,
		Source:    source,
		Playback:  playback,
		Logger:    logger,
		Callbacks: realtime.Callbacks{
			OnTranscriptDelta: func(delta string, role realtime.Role) {
				if role == realtime.RoleAssistant {
					fmt.Fprint(out, delta)
				}
			},
			OnTranscriptComplete: func(text string, role realtime.Role, _ time.Time, sequence int) {
				speaker := "you"
				if role == realtime.RoleAssistant {
					speaker = "leia"
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "[%d][%s] %s\n", sequence, speaker, strings.TrimSpace(text))
			},
			OnError: func(err error) {
				select {
				case errCh <- err:
				default:
				}
			},
			OnConnectionChange: func(connected bool) {
				if connected {
					fmt.Fprintf(out, "connected, session %s\n", cfg.sessionID)
				} else {
					fmt.Fprintln(out, "disconnected")
				}
			},
		},
	})
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := session.Connect(connectCtx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer session.Disconnect()

	fmt.Fprintln(out, "commands: /mute, /say <text>, /history, /quit")
	return commandLoop(ctx, session, errCh, in, out, errOut)
}

func commandLoop(ctx context.Context, session *realtime.Session, errCh <-chan error, in io.Reader, out, errOut io.Writer) error {
	if in == nil {
		in = os.Stdin
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			fmt.Fprintf(errOut, "session error: %v\n", err)
			if !session.Connected() {
				return err
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			switch {
			case line == "/quit" || line == "/exit":
				return nil
			case line == "/mute":
				if session.ToggleMute() {
					fmt.Fprintln(out, "microphone muted")
				} else {
					fmt.Fprintln(out, "microphone live")
				}
			case line == "/history":
				for _, turn := range session.History() {
					speaker := "you"
					if turn.Role == realtime.RoleAssistant {
						speaker = "leia"
					}
					fmt.Fprintf(out, "[%d][%s] %s\n", turn.Sequence, speaker, turn.Text)
				}
			case strings.HasPrefix(line, "/say "):
				if err := session.SendText(strings.TrimSpace(strings.TrimPrefix(line, "/say "))); err != nil {
					fmt.Fprintf(errOut, "send text: %v\n", err)
				}
			default:
				fmt.Fprintln(out, "commands: /mute, /say <text>, /history, /quit")
			}
		}
	}
}
