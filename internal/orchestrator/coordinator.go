package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/pool"
	"github.com/nidhogg/hivemind/internal/router"
)

// Planner decides whether a prompt needs a primary/consultant dialogue
// before routing, and runs that dialogue. The live function returns user
// follow-ups queued since the previous turn.
type Planner interface {
	ShouldPlan(prompt string) bool
	Plan(ctx context.Context, prompt string, live func() []string) (*Plan, error)
}

// Plan is the outcome of a planning dialogue.
type Plan struct {
	Agreed   bool
	Proposal string
	Feedback string
	AgentIDs []string
	Turns    int
}

// ErrEmptyPrompt rejects submissions with nothing to do.
var ErrEmptyPrompt = fmt.Errorf("prompt is empty")

const errNoAgents = "No suitable agents found for task"

// Coordinator owns the task table and drives the pipeline from prompt to
// synthesized response. Insertions and state transitions go through one
// lock; reads return snapshots.
type Coordinator struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
	live  map[string][]string // taskID -> pending user follow-ups

	pool       *pool.Pool
	router     *router.Router
	dispatcher *Dispatcher
	planner    Planner
	repo       Repository
	cache      ContextCache
	memory     Memory
	pub        Publisher
	logger     *zap.Logger
}

// NewCoordinator wires the pipeline core. Optional collaborators are
// attached with the Set methods before the first submission.
func NewCoordinator(p *pool.Pool, rt *router.Router, d *Dispatcher, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		tasks:      make(map[string]*Task),
		live:       make(map[string][]string),
		pool:       p,
		router:     rt,
		dispatcher: d,
		logger:     logger,
	}
}

func (c *Coordinator) SetPlanner(pl Planner)        { c.planner = pl }
func (c *Coordinator) SetRepository(r Repository)   { c.repo = r }
func (c *Coordinator) SetCache(cc ContextCache)     { c.cache = cc }
func (c *Coordinator) SetMemory(m Memory)           { c.memory = m }
func (c *Coordinator) SetPublisher(pub Publisher)   { c.pub = pub }

// ProcessTask runs the full pipeline for one prompt and returns the task
// snapshot plus the synthesized response. Partial agent failures are kept on
// the task, not raised.
func (c *Coordinator) ProcessTask(ctx context.Context, prompt string, priority Priority, sessionID, userID string) (*Task, string, error) {
	if prompt == "" {
		return nil, "", ErrEmptyPrompt
	}
	t := c.createTask(ctx, prompt, priority, sessionID, userID)
	response := c.process(ctx, t)
	snap, _ := c.Task(t.ID)
	return snap, response, nil
}

// SubmitTask registers the task and runs the pipeline in the background, so
// callers can poll or subscribe instead of blocking. The returned snapshot is
// immediately queryable by id.
func (c *Coordinator) SubmitTask(ctx context.Context, prompt string, priority Priority, sessionID, userID string) (*Task, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	t := c.createTask(ctx, prompt, priority, sessionID, userID)
	go c.process(context.Background(), t)
	snap, _ := c.Task(t.ID)
	return snap, nil
}

// process drives one created task through analysis, planning, dispatch and
// synthesis, and returns the user-facing response.
func (c *Coordinator) process(ctx context.Context, t *Task) string {
	// Analyze: same extraction the router uses.
	keywords := router.ExtractKeywords(t.Prompt)
	c.update(t.ID, func(t *Task) { t.Keywords = keywords })

	routes, planned := c.planRoutes(ctx, t, t.Prompt, keywords)
	if planned != nil {
		// Dialogue ended without executing agents: the consultant's last
		// feedback is the user-facing response.
		c.finish(ctx, t.ID, TaskCompleted, planned.Feedback, "")
		return planned.Feedback
	}
	if len(routes) == 0 {
		c.finish(ctx, t.ID, TaskFailed, "", errNoAgents)
		return ""
	}

	teams, agents := routeTargets(routes)
	c.update(t.ID, func(t *Task) {
		t.TargetTeams = teams
		t.TargetAgents = agents
	})

	c.transition(ctx, t.ID, TaskRunning, "dispatching to agents")
	c.checkpoint(ctx, t.ID, teams, agents)
	c.primeContext(ctx, t)

	results := c.fanOut(ctx, t, routes)

	// A cancellation observed during the join wins over the computed state.
	if snap, _ := c.Task(t.ID); snap != nil && snap.State == TaskCancelled {
		return ""
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	response := Synthesize(results)

	if failed > 0 {
		c.finish(ctx, t.ID, TaskFailed, response,
			fmt.Sprintf("%d of %d agent executions failed", failed, len(results)))
	} else {
		c.finish(ctx, t.ID, TaskCompleted, response, "")
	}

	c.remember(ctx, t.SessionID, t.Prompt, response)
	return response
}

// planRoutes chooses the agent set: the dialogue plan when the planner
// engages and agrees, the router otherwise. A non-nil second return means
// the dialogue finished without agreement and no agents run.
func (c *Coordinator) planRoutes(ctx context.Context, t *Task, prompt string, keywords []string) ([]router.Route, *Plan) {
	if c.planner != nil && c.planner.ShouldPlan(prompt) {
		plan, err := c.planner.Plan(ctx, prompt, func() []string { return c.consumeLiveInputs(t.ID) })
		switch {
		case err != nil:
			c.logger.Warn("planning dialogue failed, falling back to router",
				zap.String("task", t.ID), zap.Error(err))
		case !plan.Agreed:
			c.logger.Info("dialogue ended without consensus",
				zap.String("task", t.ID), zap.Int("turns", plan.Turns))
			return nil, plan
		case len(plan.AgentIDs) > 0:
			if routes := c.routesFromAgents(plan.AgentIDs); len(routes) > 0 {
				return routes, nil
			}
		}
	}
	return c.router.Route(keywords), nil
}

func (c *Coordinator) routesFromAgents(ids []string) []router.Route {
	var routes []router.Route
	for _, id := range ids {
		a := c.pool.Agent(id)
		if a == nil {
			c.logger.Warn("plan names unknown agent", zap.String("agent", id))
			continue
		}
		routes = append(routes, router.Route{Team: c.pool.Team(a.TeamID), Agent: a})
	}
	return routes
}

// fanOut executes every route in parallel and gathers results in arrival
// order. The join is strong: all executions finish before it returns.
func (c *Coordinator) fanOut(ctx context.Context, t *Task, routes []router.Route) []*TaskResult {
	ch := make(chan *TaskResult, len(routes))
	var wg sync.WaitGroup
	for _, rt := range routes {
		wg.Add(1)
		go func(rt router.Route) {
			defer wg.Done()
			ch <- c.dispatcher.Execute(ctx, t, rt.Agent)
		}(rt)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	results := make([]*TaskResult, 0, len(routes))
	for res := range ch {
		results = append(results, res)
		c.update(t.ID, func(t *Task) { t.Results = append(t.Results, res) })
	}
	return results
}

// CancelTask marks a non-terminal task cancelled and signals its running
// executions. Returns false when the task is unknown or already terminal.
func (c *Coordinator) CancelTask(ctx context.Context, id string) bool {
	c.mu.Lock()
	t, ok := c.tasks[id]
	if !ok || t.State.Terminal() {
		c.mu.Unlock()
		return false
	}
	t.State = TaskCancelled
	now := time.Now()
	t.CompletedAt = &now
	c.mu.Unlock()

	c.dispatcher.CancelTask(id)
	c.persistStatus(ctx, id, TaskCancelled, "")
	c.publish(ctx, &TaskEvent{TaskID: id, State: TaskCancelled, Terminal: true})
	c.logger.Info("task cancelled", zap.String("task", id))
	return true
}

// AddLiveInput queues a user follow-up for a task's planning dialogue.
func (c *Coordinator) AddLiveInput(taskID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live[taskID] = append(c.live[taskID], text)
}

func (c *Coordinator) consumeLiveInputs(taskID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	inputs := c.live[taskID]
	delete(c.live, taskID)
	return inputs
}

// Task returns a snapshot of the task, or false when unknown.
func (c *Coordinator) Task(id string) (*Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	if !ok {
		return nil, false
	}
	return snapshot(t), true
}

// Tasks returns snapshots of all tasks in submission order.
func (c *Coordinator) Tasks() []*Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Task, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, snapshot(c.tasks[id]))
	}
	return out
}

// TasksByState filters the task table by state.
func (c *Coordinator) TasksByState(state TaskState) []*Task {
	var out []*Task
	for _, t := range c.Tasks() {
		if t.State == state {
			out = append(out, t)
		}
	}
	return out
}

// TasksBySession filters the task table by session id.
func (c *Coordinator) TasksBySession(sessionID string) []*Task {
	var out []*Task
	for _, t := range c.Tasks() {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out
}

func (c *Coordinator) createTask(ctx context.Context, prompt string, priority Priority, sessionID, userID string) *Task {
	t := &Task{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		Priority:  priority,
		State:     TaskPending,
		CreatedAt: time.Now(),
		SessionID: sessionID,
		UserID:    userID,
	}
	c.mu.Lock()
	c.tasks[t.ID] = t
	c.order = append(c.order, t.ID)
	c.mu.Unlock()

	if c.repo != nil {
		if err := c.repo.CreateTask(ctx, t.ID, sessionID, prompt, string(TaskPending)); err != nil {
			c.logger.Warn("task persist failed", zap.String("task", t.ID), zap.Error(err))
		}
	}
	c.logger.Info("task created",
		zap.String("task", t.ID),
		zap.String("priority", priority.String()),
		zap.String("session", sessionID))
	return t
}

// update applies fn to the live task under the table lock.
func (c *Coordinator) update(id string, fn func(*Task)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tasks[id]; ok {
		fn(t)
	}
}

// transition moves a task to a non-terminal state; terminal states are
// never left.
func (c *Coordinator) transition(ctx context.Context, id string, state TaskState, msg string) {
	c.mu.Lock()
	t, ok := c.tasks[id]
	if !ok || t.State.Terminal() {
		c.mu.Unlock()
		return
	}
	t.State = state
	if state == TaskRunning && t.StartedAt == nil {
		now := time.Now()
		t.StartedAt = &now
	}
	c.mu.Unlock()

	c.persistStatus(ctx, id, state, "")
	c.publish(ctx, &TaskEvent{TaskID: id, State: state, Message: msg})
}

// finish moves a task to a terminal state exactly once.
func (c *Coordinator) finish(ctx context.Context, id string, state TaskState, response, errMsg string) {
	c.mu.Lock()
	t, ok := c.tasks[id]
	if !ok || t.State.Terminal() {
		c.mu.Unlock()
		return
	}
	t.State = state
	t.Synthesized = response
	t.Error = errMsg
	now := time.Now()
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	t.CompletedAt = &now
	c.mu.Unlock()

	c.persistStatus(ctx, id, state, response)
	c.publish(ctx, &TaskEvent{
		TaskID: id, State: state, Response: response, Error: errMsg, Terminal: true,
	})
	c.logger.Info("task finished",
		zap.String("task", id),
		zap.String("state", string(state)),
		zap.String("error", errMsg))
}

func (c *Coordinator) persistStatus(ctx context.Context, id string, state TaskState, result string) {
	if c.repo == nil {
		return
	}
	if err := c.repo.UpdateTaskStatus(ctx, id, string(state), result); err != nil {
		c.logger.Warn("task status persist failed", zap.String("task", id), zap.Error(err))
	}
}

func (c *Coordinator) checkpoint(ctx context.Context, id string, teams, agents []string) {
	if c.repo == nil {
		return
	}
	state, err := json.Marshal(map[string][]string{"teams": teams, "agents": agents})
	if err != nil {
		return
	}
	if err := c.repo.CreateCheckpoint(ctx, id, state); err != nil {
		c.logger.Warn("checkpoint failed", zap.String("task", id), zap.Error(err))
	}
}

// primeContext attaches cached session context and recalled snippets to the
// task so the executor can prepend them. Best-effort on every path.
func (c *Coordinator) primeContext(ctx context.Context, t *Task) {
	if t.SessionID == "" {
		return
	}
	var parts []string
	if c.cache != nil {
		if prior, ok := c.cache.SessionContext(ctx, t.SessionID); ok && prior != "" {
			parts = append(parts, prior)
		}
	}
	if c.memory != nil {
		snippets, err := c.memory.Recall(ctx, t.SessionID, t.Prompt, 3)
		if err != nil {
			c.logger.Debug("recall failed", zap.Error(err))
		} else {
			parts = append(parts, snippets...)
		}
	}
	if len(parts) == 0 {
		return
	}
	joined := ""
	for i, p := range parts {
		if i > 0 {
			joined += "\n"
		}
		joined += p
	}
	c.update(t.ID, func(t *Task) { t.SessionContext = joined })
}

func (c *Coordinator) remember(ctx context.Context, sessionID, prompt, response string) {
	if sessionID == "" {
		return
	}
	if c.cache != nil {
		text := "User: " + prompt + "\nAssistant: " + response
		if err := c.cache.StoreSessionContext(ctx, sessionID, text); err != nil {
			c.logger.Debug("session context cache failed", zap.Error(err))
		}
	}
	if c.memory != nil {
		if err := c.memory.Remember(ctx, sessionID, "user", prompt); err != nil {
			c.logger.Debug("memory write failed", zap.Error(err))
		}
		if response != "" {
			if err := c.memory.Remember(ctx, sessionID, "assistant", response); err != nil {
				c.logger.Debug("memory write failed", zap.Error(err))
			}
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, ev *TaskEvent) {
	if c.pub != nil {
		c.pub.Publish(ctx, ev)
	}
}

func routeTargets(routes []router.Route) (teams, agents []string) {
	seen := make(map[string]struct{})
	for _, r := range routes {
		if _, ok := seen[r.Team.ID]; !ok {
			seen[r.Team.ID] = struct{}{}
			teams = append(teams, r.Team.ID)
		}
		agents = append(agents, r.Agent.ID)
	}
	return teams, agents
}

// snapshot copies a task for lock-free readers. Result pointers are shared;
// results are append-only and never mutated after arrival.
func snapshot(t *Task) *Task {
	cp := *t
	cp.Keywords = append([]string(nil), t.Keywords...)
	cp.TargetTeams = append([]string(nil), t.TargetTeams...)
	cp.TargetAgents = append([]string(nil), t.TargetAgents...)
	cp.Results = append([]*TaskResult(nil), t.Results...)
	return &cp
}
