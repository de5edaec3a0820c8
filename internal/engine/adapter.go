package engine

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Profile configures one external LLM CLI.
type Profile struct {
	CLIPath         string   `json:"cli_path"`
	Model           string   `json:"model"`
	MaxTokens       int      `json:"max_tokens"`
	TimeoutSeconds  int      `json:"timeout_seconds"`
	OutputFormat    string   `json:"output_format"`
	AllowedTools    []string `json:"allowed_tools,omitempty"`
	SystemPrompt    string   `json:"system_prompt,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"` // consultant only
}

// args builds the argv tail: flags first, the prompt as the final argument.
func (p Profile) args(prompt string) []string {
	var args []string
	if p.Model != "" {
		args = append(args, "--model", p.Model)
	}
	if p.MaxTokens > 0 {
		args = append(args, "--max-tokens", strconv.Itoa(p.MaxTokens))
	}
	format := p.OutputFormat
	if format == "" {
		format = "stream-json"
	}
	args = append(args, "--output-format", format)
	if len(p.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(p.AllowedTools, ","))
	}
	if p.SystemPrompt != "" {
		args = append(args, "--system-prompt", p.SystemPrompt)
	}
	if p.ReasoningEffort != "" {
		args = append(args, "--reasoning-effort", p.ReasoningEffort)
	}
	return append(args, prompt)
}

// StatusFn is invoked on a fixed interval while a stream is live, to keep
// humans informed without touching the event stream.
type StatusFn func(msg string)

// Adapter drives an external LLM CLI as a child process and exposes its
// output as a finite event stream. The child runs in its own process group
// so termination reaches all descendants; no child is leaked on any exit
// path.
type Adapter struct {
	profile        Profile
	logger         *zap.Logger
	onStatus       StatusFn
	statusInterval time.Duration
}

// New creates an adapter for the given engine profile.
func New(profile Profile, logger *zap.Logger) *Adapter {
	return &Adapter{
		profile:        profile,
		logger:         logger,
		statusInterval: 5 * time.Second,
	}
}

// Profile returns the adapter's engine profile.
func (a *Adapter) Profile() Profile { return a.profile }

// WithSystemPrompt returns a derived adapter whose profile carries the given
// system prompt; used to run one CLI under many agent roles.
func (a *Adapter) WithSystemPrompt(systemPrompt string) *Adapter {
	cp := *a
	cp.profile.SystemPrompt = systemPrompt
	return &cp
}

// OnStatus registers the progress callback. interval <= 0 keeps the default.
func (a *Adapter) OnStatus(fn StatusFn, interval time.Duration) {
	a.onStatus = fn
	if interval > 0 {
		a.statusInterval = interval
	}
}

// Stream spawns the CLI and returns its event stream. The stream ends with
// a DONE or ERROR event and the channel is closed once the child is reaped.
// A spawn failure (binary missing) is returned immediately.
func (a *Adapter) Stream(ctx context.Context, prompt string) (<-chan Event, error) {
	cmd := exec.Command(a.profile.CLIPath, a.profile.args(prompt)...)
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout pipe: %w", err)
	}
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("engine unavailable: %s: %w", a.profile.CLIPath, err)
	}

	events := make(chan Event, 64)
	go a.pump(ctx, cmd, stdout, stderr, events)
	return events, nil
}

// pump reads line-delimited JSON from the child until EOF, then classifies
// the exit. It owns reaping: cmd.Wait always runs, and the process group is
// killed whenever the context ends first.
func (a *Adapter) pump(ctx context.Context, cmd *exec.Cmd, stdout interface{ Read([]byte) (int, error) }, stderr *tailBuffer, events chan<- Event) {
	defer close(events)

	start := time.Now()
	pgid := cmd.Process.Pid

	watchDone := make(chan struct{})
	var watchWG sync.WaitGroup
	watchWG.Add(1)
	go func() {
		defer watchWG.Done()
		select {
		case <-ctx.Done():
			killGroup(pgid)
		case <-watchDone:
		}
	}()

	if a.onStatus != nil {
		watchWG.Add(1)
		go func() {
			defer watchWG.Done()
			ticker := time.NewTicker(a.statusInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					a.onStatus(fmt.Sprintf("engine still working (%ds elapsed)",
						int(time.Since(start).Seconds())))
				case <-watchDone:
					return
				}
			}
		}()
	}

	var sawDone, sawFatal, sawContent bool
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ev := ParseLine([]byte(line))
		switch ev.Kind {
		case KindContent:
			sawContent = true
		case KindDone:
			sawDone = true
		case KindError:
			// Engine-reported errors end the stream; parse noise does not.
			if !strings.HasPrefix(ev.Message, "unparseable engine output") {
				sawFatal = true
			}
		}
		events <- ev
		if sawDone || sawFatal {
			break
		}
	}

	// On an early break the child may still be writing; kill the group so
	// Wait cannot hang. Killing an exited group is a no-op.
	if sawDone || sawFatal || ctx.Err() != nil {
		killGroup(pgid)
	}
	waitErr := cmd.Wait()
	killGroup(pgid)
	close(watchDone)
	watchWG.Wait()

	elapsed := int(time.Since(start).Seconds())
	switch {
	case sawDone || sawFatal:
		return
	case ctx.Err() == context.DeadlineExceeded:
		events <- Event{Kind: KindError, Message: fmt.Sprintf("timed out after %ds", elapsed)}
	case ctx.Err() == context.Canceled:
		events <- Event{Kind: KindError, Message: "cancelled"}
	case waitErr != nil && stderr.String() != "":
		events <- Event{Kind: KindError, Message: stderr.String()}
	case waitErr != nil:
		events <- Event{Kind: KindError, Message: fmt.Sprintf("engine exited: %v", waitErr)}
	case !sawContent:
		events <- Event{Kind: KindError, Message: "No response"}
	default:
		events <- Event{Kind: KindDone, StopReason: "end_of_output"}
	}
}

// Generate collects the full event stream for one prompt.
func (a *Adapter) Generate(ctx context.Context, prompt string) ([]Event, error) {
	stream, err := a.Stream(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var events []Event
	for ev := range stream {
		events = append(events, ev)
	}
	return events, nil
}

// GenerateText runs one prompt and returns the concatenated content, or the
// stream's error.
func (a *Adapter) GenerateText(ctx context.Context, prompt string) (string, error) {
	events, err := a.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if msg, ok := ErrorMessage(events); ok {
		return TextContent(events), fmt.Errorf("engine error: %s", msg)
	}
	return TextContent(events), nil
}

// killGroup SIGKILLs the child's whole process group. Idempotent: an
// already-dead group is a no-op.
func killGroup(pgid int) {
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

// tailBuffer keeps the last n bytes written, for stderr tails.
type tailBuffer struct {
	mu   sync.Mutex
	buf  []byte
	size int
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{size: size}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.size {
		b.buf = b.buf[len(b.buf)-b.size:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
