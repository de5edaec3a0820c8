package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/engine"
	"github.com/nidhogg/hivemind/internal/pool"
)

// NewEngineExecutor builds the production ExecutorFn: every agent is the
// same CLI run under that agent's role as system prompt. The differentiation
// between agents is data, not code.
func NewEngineExecutor(runner *engine.Adapter, logger *zap.Logger) ExecutorFn {
	return func(ctx context.Context, task *Task, agent *pool.Agent) (*TaskResult, error) {
		adapter := runner.WithSystemPrompt(agent.Description)

		prompt := task.Prompt
		if task.SessionContext != "" {
			prompt = "Context from earlier in this session:\n" + task.SessionContext +
				"\n\n" + task.Prompt
		}

		events, err := adapter.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}

		res := &TaskResult{
			Output: engine.TextContent(events),
			Metadata: map[string]string{
				"agent_name":  agent.Name,
				"stop_reason": engine.StopReason(events),
			},
		}
		if msg, ok := engine.ErrorMessage(events); ok {
			res.Error = msg
			logger.Warn("agent execution returned engine error",
				zap.String("agent", agent.ID),
				zap.String("error", msg))
			return res, nil
		}
		res.Success = true
		return res, nil
	}
}
