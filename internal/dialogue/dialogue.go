package dialogue

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/engine"
	"github.com/nidhogg/hivemind/internal/orchestrator"
)

// Generator is the slice of the engine adapter the dialogue needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]engine.Event, error)
}

// agreedMarker is the literal the consultant emits to signal consensus.
const agreedMarker = "AGREED"

var agentIDPattern = regexp.MustCompile(`\b[A-Z]{2,3}-\d{3}\b`)

// Config bounds the consensus loop.
type Config struct {
	MaxTurns          int
	ProposalTimeout   time.Duration // primary turns
	EvaluationTimeout time.Duration // consultant turns
}

// DefaultConfig returns the standard dialogue bounds.
func DefaultConfig() Config {
	return Config{
		MaxTurns:          10,
		ProposalTimeout:   60 * time.Second,
		EvaluationTimeout: 45 * time.Second,
	}
}

// Engine runs the bounded primary/consultant dialogue that decides whether
// specialized agents run at all, and which. It satisfies the coordinator's
// Planner contract.
type Engine struct {
	primary    Generator
	consultant Generator
	agentIDs   func() []string
	cfg        Config
	logger     *zap.Logger
}

// New creates a dialogue engine. agentIDs supplies the known agent id set
// the consultant's replies are scanned against.
func New(primary, consultant Generator, agentIDs func() []string, cfg Config, logger *zap.Logger) *Engine {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.ProposalTimeout <= 0 {
		cfg.ProposalTimeout = 60 * time.Second
	}
	if cfg.EvaluationTimeout <= 0 {
		cfg.EvaluationTimeout = 45 * time.Second
	}
	return &Engine{
		primary:    primary,
		consultant: consultant,
		agentIDs:   agentIDs,
		cfg:        cfg,
		logger:     logger,
	}
}

// ShouldPlan reports whether the prompt warrants a planning dialogue.
func (e *Engine) ShouldPlan(prompt string) bool {
	return IsWorkRequest(prompt)
}

type turn struct {
	speaker string
	text    string
}

// Plan runs the consensus loop: the primary proposes, the consultant
// evaluates, the primary refines, for at most MaxTurns rounds. The loop
// always terminates; without agreement the consultant's last feedback is
// returned as the plan response and no agents are named.
func (e *Engine) Plan(ctx context.Context, prompt string, live func() []string) (*orchestrator.Plan, error) {
	var transcript []turn

	proposal, err := e.propose(ctx, prompt, "", live())
	if err != nil {
		return nil, fmt.Errorf("primary proposal: %w", err)
	}
	transcript = append(transcript, turn{"primary", proposal})

	var feedback string
	for i := 1; i <= e.cfg.MaxTurns; i++ {
		agrees, fb, agents, err := e.evaluate(ctx, prompt, proposal, transcript)
		if err != nil {
			return nil, fmt.Errorf("consultant evaluation (turn %d): %w", i, err)
		}
		feedback = fb
		transcript = append(transcript, turn{"consultant", fb})

		if agrees {
			e.logger.Info("dialogue reached consensus",
				zap.Int("turn", i),
				zap.Strings("agents", agents))
			return &orchestrator.Plan{
				Agreed:   true,
				Proposal: proposal,
				Feedback: fb,
				AgentIDs: agents,
				Turns:    i,
			}, nil
		}
		if i == e.cfg.MaxTurns {
			break
		}

		proposal, err = e.propose(ctx, prompt, fb, live())
		if err != nil {
			return nil, fmt.Errorf("primary refinement (turn %d): %w", i, err)
		}
		transcript = append(transcript, turn{"primary", proposal})
	}

	e.logger.Warn("dialogue exhausted without consensus",
		zap.Int("turns", e.cfg.MaxTurns))
	return &orchestrator.Plan{
		Agreed:   false,
		Proposal: proposal,
		Feedback: feedback,
		Turns:    e.cfg.MaxTurns,
	}, nil
}

// propose asks the primary for a plan, or a refinement when feedback is set.
func (e *Engine) propose(ctx context.Context, prompt, feedback string, live []string) (string, error) {
	var sb strings.Builder
	if feedback == "" {
		sb.WriteString("Propose an execution plan for the following task. ")
		sb.WriteString("Name the specialist agents that should handle it.\n\nTask: ")
		sb.WriteString(prompt)
	} else {
		sb.WriteString("Refine your plan for the task below, incorporating the reviewer feedback.\n\nTask: ")
		sb.WriteString(prompt)
		sb.WriteString("\n\nReviewer feedback:\n")
		sb.WriteString(feedback)
	}
	if len(live) > 0 {
		sb.WriteString("\n\nUser follow-ups since the last turn:\n")
		for _, in := range live {
			sb.WriteString("- " + in + "\n")
		}
	}

	tctx, cancel := context.WithTimeout(ctx, e.cfg.ProposalTimeout)
	defer cancel()
	return e.generateText(tctx, e.primary, sb.String())
}

// evaluate asks the consultant to judge the proposal. Agreement is the
// literal AGREED marker, case-insensitive; suggested agents are the known
// ids mentioned anywhere in the reply.
func (e *Engine) evaluate(ctx context.Context, prompt, proposal string, transcript []turn) (bool, string, []string, error) {
	var sb strings.Builder
	sb.WriteString("You are reviewing an execution plan. Reply with the word ")
	sb.WriteString(agreedMarker)
	sb.WriteString(" and the agent ids to use if the plan is sound, otherwise explain what must change.\n\nTask: ")
	sb.WriteString(prompt)
	if len(transcript) > 1 {
		sb.WriteString("\n\nDialogue so far:\n")
		for _, t := range transcript {
			sb.WriteString(fmt.Sprintf("[%s] %s\n", t.speaker, t.text))
		}
	}
	sb.WriteString("\n\nCurrent proposal:\n")
	sb.WriteString(proposal)

	tctx, cancel := context.WithTimeout(ctx, e.cfg.EvaluationTimeout)
	defer cancel()
	reply, err := e.generateText(tctx, e.consultant, sb.String())
	if err != nil {
		return false, "", nil, err
	}

	agrees := strings.Contains(strings.ToUpper(reply), agreedMarker)
	return agrees, reply, e.extractAgents(reply), nil
}

// extractAgents returns the known agent ids mentioned in the text, in
// first-mention order.
func (e *Engine) extractAgents(text string) []string {
	known := make(map[string]struct{})
	for _, id := range e.agentIDs() {
		known[id] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, m := range agentIDPattern.FindAllString(strings.ToUpper(text), -1) {
		if _, ok := known[m]; !ok {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func (e *Engine) generateText(ctx context.Context, g Generator, prompt string) (string, error) {
	events, err := g.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if msg, ok := engine.ErrorMessage(events); ok {
		return "", fmt.Errorf("engine error: %s", msg)
	}
	text := engine.TextContent(events)
	if text == "" {
		return "", fmt.Errorf("empty engine reply")
	}
	return text, nil
}
