package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// writeFakeCLI drops an executable shell script into a temp dir and returns
// its path. The scripts ignore the adapter's flags.
func writeFakeCLI(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-engine")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	return path
}

func newTestAdapter(t *testing.T, script string) *Adapter {
	t.Helper()
	return New(Profile{CLIPath: writeFakeCLI(t, script), Model: "test-model"}, zap.NewNop())
}

func TestGenerateHappyPath(t *testing.T) {
	a := newTestAdapter(t, `
echo '{"type":"content","text":"Hello, "}'
echo '{"type":"content","text":"world"}'
echo '{"type":"done","stop_reason":"end_turn"}'
`)
	events, err := a.Generate(context.Background(), "hi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := TextContent(events); got != "Hello, world" {
		t.Fatalf("text = %q", got)
	}
	if StopReason(events) != "end_turn" {
		t.Fatalf("stop reason = %q", StopReason(events))
	}
	if HasError(events) {
		t.Fatalf("unexpected error in %+v", events)
	}
}

func TestGenerateTextHappyPath(t *testing.T) {
	a := newTestAdapter(t, `
echo '{"type":"content","text":"fine"}'
echo '{"type":"done"}'
`)
	text, err := a.GenerateText(context.Background(), "hi")
	if err != nil {
		t.Fatalf("generate text: %v", err)
	}
	if text != "fine" {
		t.Fatalf("text = %q", text)
	}
}

func TestStreamSurvivesUnparseableLine(t *testing.T) {
	a := newTestAdapter(t, `
echo '{"type":"content","text":"before "}'
echo 'garbage line'
echo '{"type":"content","text":"after"}'
echo '{"type":"done"}'
`)
	events, err := a.Generate(context.Background(), "hi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := TextContent(events); got != "before after" {
		t.Fatalf("noise truncated the stream, text = %q", got)
	}
	msg, ok := ErrorMessage(events)
	if !ok || !strings.HasPrefix(msg, "unparseable engine output") {
		t.Fatalf("noise not surfaced: %q %v", msg, ok)
	}
	if StopReason(events) == "" {
		t.Fatal("stream did not reach done")
	}
}

func TestStreamEndsWithoutDoneMarker(t *testing.T) {
	a := newTestAdapter(t, `
echo '{"type":"content","text":"partial"}'
`)
	events, err := a.Generate(context.Background(), "hi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := StopReason(events); got != "end_of_output" {
		t.Fatalf("stop reason = %q, expected end_of_output", got)
	}
}

func TestStreamTimeout(t *testing.T) {
	a := newTestAdapter(t, `
echo '{"type":"content","text":"working"}'
sleep 5
`)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	events, err := a.Generate(ctx, "hi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg, ok := ErrorMessage(events)
	if !ok || !strings.HasPrefix(msg, "timed out after") {
		t.Fatalf("expected timeout error, got %q %v", msg, ok)
	}
}

func TestStreamCancellation(t *testing.T) {
	a := newTestAdapter(t, `sleep 5`)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := a.Stream(ctx, "hi")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	cancel()

	var events []Event
	for ev := range stream {
		events = append(events, ev)
	}
	msg, ok := ErrorMessage(events)
	if !ok || msg != "cancelled" {
		t.Fatalf("expected cancelled, got %q %v", msg, ok)
	}
}

func TestNoOutputIsNoResponse(t *testing.T) {
	a := newTestAdapter(t, `exit 0`)
	events, err := a.Generate(context.Background(), "hi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg, ok := ErrorMessage(events)
	if !ok || msg != "No response" {
		t.Fatalf("got %q %v", msg, ok)
	}
}

func TestStderrTailOnFailure(t *testing.T) {
	a := newTestAdapter(t, `
echo 'invalid api key' >&2
exit 3
`)
	events, err := a.Generate(context.Background(), "hi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg, ok := ErrorMessage(events)
	if !ok || msg != "invalid api key" {
		t.Fatalf("got %q %v", msg, ok)
	}
}

func TestMissingBinary(t *testing.T) {
	a := New(Profile{CLIPath: filepath.Join(t.TempDir(), "does-not-exist")}, zap.NewNop())
	if _, err := a.Stream(context.Background(), "hi"); err == nil {
		t.Fatal("expected spawn failure")
	} else if !strings.Contains(err.Error(), "engine unavailable") {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateTextSurfacesEngineError(t *testing.T) {
	a := newTestAdapter(t, `
echo '{"type":"content","text":"partial answer"}'
echo '{"type":"error","message":"overloaded"}'
`)
	text, err := a.GenerateText(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("err = %v", err)
	}
	if text != "partial answer" {
		t.Fatalf("partial content lost: %q", text)
	}
}

func TestProfileArgs(t *testing.T) {
	p := Profile{
		CLIPath:      "claude",
		Model:        "m1",
		MaxTokens:    100,
		AllowedTools: []string{"read", "grep"},
		SystemPrompt: "you are DEV",
	}
	args := p.args("do the thing")
	if args[len(args)-1] != "do the thing" {
		t.Fatalf("prompt must be the final argument: %v", args)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--model m1",
		"--max-tokens 100",
		"--output-format stream-json",
		"--allowed-tools read,grep",
		"--system-prompt you are DEV",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
}

func TestWithSystemPromptDerives(t *testing.T) {
	a := newTestAdapter(t, `echo '{"type":"done"}'`)
	derived := a.WithSystemPrompt("role prompt")
	if derived.Profile().SystemPrompt != "role prompt" {
		t.Fatal("derived profile missing system prompt")
	}
	if a.Profile().SystemPrompt != "" {
		t.Fatal("original profile mutated")
	}
}
