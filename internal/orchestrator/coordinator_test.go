package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/pool"
	"github.com/nidhogg/hivemind/internal/router"
)

func newTestCoordinator(t *testing.T, exec ExecutorFn) (*Coordinator, *pool.Pool) {
	t.Helper()
	p := pool.New(zap.NewNop())
	if err := p.Initialize(pool.DefaultAgents()); err != nil {
		t.Fatalf("pool init: %v", err)
	}
	d := NewDispatcher(DefaultDispatcherConfig(), p, exec, zap.NewNop())
	rt := router.New(p, router.DefaultOptions(), zap.NewNop())
	return NewCoordinator(p, rt, d, zap.NewNop()), p
}

func echoExecutor(ctx context.Context, task *Task, agent *pool.Agent) (*TaskResult, error) {
	return &TaskResult{Success: true, Output: "answer from " + agent.ID}, nil
}

func TestProcessTaskSingleAgent(t *testing.T) {
	c, _ := newTestCoordinator(t, echoExecutor)

	task, response, err := c.ProcessTask(context.Background(),
		"Build the backend REST API with JWT auth", PriorityNormal, "", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if task.State != TaskCompleted {
		t.Fatalf("state = %s, expected completed", task.State)
	}
	if response != "answer from DEV-002" {
		t.Fatalf("single-agent response must be verbatim, got %q", response)
	}
	if len(task.TargetAgents) != 1 || task.TargetAgents[0] != "DEV-002" {
		t.Fatalf("targets = %v", task.TargetAgents)
	}
	if task.CompletedAt == nil || task.StartedAt == nil {
		t.Fatal("timestamps not stamped")
	}
}

func TestProcessTaskMultiTeamSynthesis(t *testing.T) {
	c, _ := newTestCoordinator(t, echoExecutor)

	task, response, err := c.ProcessTask(context.Background(),
		"Design the payment backend, write and pen-test it, load tests", PriorityNormal, "", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if task.State != TaskCompleted {
		t.Fatalf("state = %s", task.State)
	}
	if len(task.TargetTeams) != 3 {
		t.Fatalf("teams = %v, expected 3", task.TargetTeams)
	}
	for _, team := range []string{"[DEV]", "[SEC]", "[QA]"} {
		if !strings.Contains(response, team) {
			t.Errorf("synthesis missing section %s: %q", team, response)
		}
	}
}

func TestProcessTaskNoMatch(t *testing.T) {
	c, _ := newTestCoordinator(t, echoExecutor)

	task, _, err := c.ProcessTask(context.Background(),
		"hello there, how are you", PriorityNormal, "", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if task.State != TaskFailed {
		t.Fatalf("state = %s, expected failed", task.State)
	}
	if task.Error != "No suitable agents found for task" {
		t.Fatalf("error = %q", task.Error)
	}
}

func TestProcessTaskEmptyPrompt(t *testing.T) {
	c, _ := newTestCoordinator(t, echoExecutor)
	if _, _, err := c.ProcessTask(context.Background(), "", PriorityNormal, "", ""); err != ErrEmptyPrompt {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestProcessTaskPartialFailure(t *testing.T) {
	flaky := func(ctx context.Context, task *Task, agent *pool.Agent) (*TaskResult, error) {
		if agent.TeamID == "SEC" {
			return &TaskResult{Error: "sec engine crashed"}, nil
		}
		return &TaskResult{Success: true, Output: "ok from " + agent.ID}, nil
	}
	c, _ := newTestCoordinator(t, flaky)

	task, response, err := c.ProcessTask(context.Background(),
		"Design the payment backend, write and pen-test it, load tests", PriorityNormal, "", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if task.State != TaskFailed {
		t.Fatalf("state = %s, expected failed on partial failure", task.State)
	}
	if !strings.Contains(task.Error, "agent executions failed") {
		t.Fatalf("error = %q", task.Error)
	}
	// Successful outputs still synthesize.
	if !strings.Contains(response, "[DEV]") {
		t.Fatalf("response lost successful sections: %q", response)
	}
}

func TestCancelTask(t *testing.T) {
	started := make(chan struct{})
	slow := func(ctx context.Context, task *Task, agent *pool.Agent) (*TaskResult, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c, _ := newTestCoordinator(t, slow)

	var wg sync.WaitGroup
	wg.Add(1)
	var task *Task
	go func() {
		defer wg.Done()
		task, _, _ = c.ProcessTask(context.Background(),
			"Build the backend REST API with JWT auth", PriorityNormal, "", "")
	}()

	<-started
	// Find the running task through the public query surface.
	var id string
	for i := 0; i < 100 && id == ""; i++ {
		for _, snap := range c.TasksByState(TaskRunning) {
			id = snap.ID
		}
		time.Sleep(5 * time.Millisecond)
	}
	if id == "" {
		t.Fatal("running task never visible")
	}

	if !c.CancelTask(context.Background(), id) {
		t.Fatal("cancel rejected")
	}
	wg.Wait()

	if task.State != TaskCancelled {
		t.Fatalf("state = %s, expected cancelled", task.State)
	}
	if c.CancelTask(context.Background(), id) {
		t.Error("cancelling a terminal task must return false")
	}
}

func TestSubmitTaskAsync(t *testing.T) {
	c, _ := newTestCoordinator(t, echoExecutor)

	task, err := c.SubmitTask(context.Background(),
		"Build the backend REST API with JWT auth", PriorityHigh, "", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.ID == "" {
		t.Fatal("no task id")
	}

	deadline := time.After(2 * time.Second)
	for {
		snap, ok := c.Task(task.ID)
		if ok && snap.State.Terminal() {
			if snap.State != TaskCompleted {
				t.Fatalf("state = %s", snap.State)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("async task never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

type fakePlanner struct {
	should bool
	plan   *Plan
	err    error
}

func (f *fakePlanner) ShouldPlan(string) bool { return f.should }
func (f *fakePlanner) Plan(context.Context, string, func() []string) (*Plan, error) {
	return f.plan, f.err
}

func TestPlannerAgreedRoutesToNamedAgents(t *testing.T) {
	c, _ := newTestCoordinator(t, echoExecutor)
	c.SetPlanner(&fakePlanner{should: true, plan: &Plan{
		Agreed:   true,
		AgentIDs: []string{"DEV-001", "DEV-002"},
		Turns:    1,
	}})

	task, _, err := c.ProcessTask(context.Background(),
		"Build the backend REST API with JWT auth", PriorityNormal, "", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(task.TargetAgents) != 2 {
		t.Fatalf("targets = %v", task.TargetAgents)
	}
	if task.TargetAgents[0] != "DEV-001" || task.TargetAgents[1] != "DEV-002" {
		t.Fatalf("plan agents not honored: %v", task.TargetAgents)
	}
}

func TestPlannerNoConsensusReturnsFeedback(t *testing.T) {
	c, _ := newTestCoordinator(t, echoExecutor)
	c.SetPlanner(&fakePlanner{should: true, plan: &Plan{
		Agreed:   false,
		Feedback: "the request is too vague to route",
		Turns:    10,
	}})

	task, response, err := c.ProcessTask(context.Background(),
		"Build the backend REST API with JWT auth", PriorityNormal, "", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if task.State != TaskCompleted {
		t.Fatalf("state = %s, expected completed without agents", task.State)
	}
	if response != "the request is too vague to route" {
		t.Fatalf("response = %q", response)
	}
	if len(task.Results) != 0 {
		t.Fatalf("no agents may run without consensus, got %d results", len(task.Results))
	}
}

func TestPlannerFailureFallsBackToRouter(t *testing.T) {
	c, _ := newTestCoordinator(t, echoExecutor)
	c.SetPlanner(&fakePlanner{should: true, err: fmt.Errorf("engine offline")})

	task, _, err := c.ProcessTask(context.Background(),
		"Build the backend REST API with JWT auth", PriorityNormal, "", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if task.State != TaskCompleted {
		t.Fatalf("state = %s", task.State)
	}
	if len(task.TargetAgents) != 1 || task.TargetAgents[0] != "DEV-002" {
		t.Fatalf("router fallback targets = %v", task.TargetAgents)
	}
}

func TestTaskQueries(t *testing.T) {
	c, _ := newTestCoordinator(t, echoExecutor)

	_, _, _ = c.ProcessTask(context.Background(),
		"Build the backend REST API with JWT auth", PriorityNormal, "sess-1", "")
	_, _, _ = c.ProcessTask(context.Background(),
		"Build the backend REST API with JWT auth", PriorityNormal, "sess-2", "")

	if got := len(c.Tasks()); got != 2 {
		t.Fatalf("tasks = %d", got)
	}
	if got := len(c.TasksBySession("sess-1")); got != 1 {
		t.Fatalf("session filter = %d", got)
	}
	if got := len(c.TasksByState(TaskCompleted)); got != 2 {
		t.Fatalf("state filter = %d", got)
	}
	if _, ok := c.Task("nope"); ok {
		t.Fatal("unknown id must not resolve")
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*TaskEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev *TaskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestPublisherSeesTerminalEvent(t *testing.T) {
	c, _ := newTestCoordinator(t, echoExecutor)
	rec := &recordingPublisher{}
	c.SetPublisher(rec)

	task, _, _ := c.ProcessTask(context.Background(),
		"Build the backend REST API with JWT auth", PriorityNormal, "", "")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var terminal *TaskEvent
	for _, ev := range rec.events {
		if ev.Terminal {
			terminal = ev
		}
	}
	if terminal == nil {
		t.Fatal("no terminal event published")
	}
	if terminal.TaskID != task.ID || terminal.State != TaskCompleted {
		t.Fatalf("terminal event = %+v", terminal)
	}
}
