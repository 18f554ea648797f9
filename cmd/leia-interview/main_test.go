package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestMicFFmpegArgs(t *testing.T) {
	linux, err := micFFmpegArgs("linux")
	if err != nil {
		t.Fatalf("linux args: %v", err)
	}
	joined := strings.Join(linux, " ")
	for _, want := range []string{"-f pulse", "-c:a libopus", "-f ogg", "-ar 48000"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("linux args missing %q: %s", want, joined)
		}
	}

	darwin, err := micFFmpegArgs("darwin")
	if err != nil {
		t.Fatalf("darwin args: %v", err)
	}
	if !strings.Contains(strings.Join(darwin, " "), "avfoundation") {
		t.Fatalf("darwin args=%v", darwin)
	}

	if _, err := micFFmpegArgs("windows"); err == nil {
		t.Fatalf("expected error for unsupported platform")
	}
}

func TestRootCmd_Version(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Fatalf("output=%q", out.String())
	}
}

func TestJoinCmd_RequiresGateway(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"join", "--gateway", "", "--no-audio"})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for empty gateway URL")
	}
}
