package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/pool"
)

// ExecutorFn runs one task on one agent. The function must honor ctx: on
// cancellation or deadline it returns promptly with an error.
type ExecutorFn func(ctx context.Context, task *Task, agent *pool.Agent) (*TaskResult, error)

// DispatcherConfig bounds concurrent executions at three granularities.
type DispatcherConfig struct {
	MaxGlobalConcurrent int
	MaxPerTeam          int
	MaxPerAgent         int
	Workers             int
	DefaultTimeout      time.Duration
}

// DefaultDispatcherConfig returns the standard limits.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxGlobalConcurrent: 32,
		MaxPerTeam:          4,
		MaxPerAgent:         1,
		Workers:             4,
		DefaultTimeout:      300 * time.Second,
	}
}

// LayerStatus reports one semaphore layer.
type LayerStatus struct {
	Max       int `json:"max"`
	InUse     int `json:"in_use"`
	Available int `json:"available"`
}

// ConcurrencyStatus is a point-in-time view of dispatcher capacity.
type ConcurrencyStatus struct {
	Global     LayerStatus            `json:"global"`
	Teams      map[string]LayerStatus `json:"teams"`
	Agents     map[string]LayerStatus `json:"agents"`
	QueueDepth int                    `json:"queue_depth"`
	TasksTotal map[string]int         `json:"tasks_total"`
}

// Dispatcher controls how many tasks run concurrently and executes a task
// under a deadline. Semaphores nest strictly: global, then team, then agent,
// acquired outside-in and released inside-out on every exit path.
type Dispatcher struct {
	cfg      DispatcherConfig
	pool     *pool.Pool
	executor ExecutorFn
	repo     Repository // optional execution audit trail
	logger   *zap.Logger

	global *semaphore

	mu        sync.Mutex
	teamSems  map[string]*semaphore
	agentSems map[string]*semaphore
	cancels   map[string]map[int]context.CancelFunc
	cancelSeq int
	totals    map[string]int

	queue *taskQueue
	wg    sync.WaitGroup
}

// NewDispatcher creates a dispatcher around the injected executor.
func NewDispatcher(cfg DispatcherConfig, p *pool.Pool, executor ExecutorFn, logger *zap.Logger) *Dispatcher {
	if cfg.MaxGlobalConcurrent <= 0 {
		cfg.MaxGlobalConcurrent = 32
	}
	if cfg.MaxPerTeam <= 0 {
		cfg.MaxPerTeam = 4
	}
	if cfg.MaxPerAgent <= 0 {
		cfg.MaxPerAgent = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 300 * time.Second
	}
	return &Dispatcher{
		cfg:       cfg,
		pool:      p,
		executor:  executor,
		logger:    logger,
		global:    newSemaphore(cfg.MaxGlobalConcurrent),
		teamSems:  make(map[string]*semaphore),
		agentSems: make(map[string]*semaphore),
		cancels:   make(map[string]map[int]context.CancelFunc),
		totals:    make(map[string]int),
		queue:     newTaskQueue(),
	}
}

// SetRepository attaches the persistence collaborator used for the agent
// execution audit trail. Optional; failures are logged, never surfaced.
func (d *Dispatcher) SetRepository(repo Repository) { d.repo = repo }

// Start launches the worker loops that drain the queue. Workers stop when
// ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info("dispatcher started", zap.Int("workers", d.cfg.Workers))
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		qt, err := d.queue.pop(ctx)
		if err != nil {
			return
		}
		now := time.Now()
		qt.StartedAt = &now
		qt.Status = QueueRunning

		res := d.Execute(ctx, qt.Task, qt.Agent)

		done := time.Now()
		qt.CompletedAt = &done
		qt.Status = queueOutcome(res)
		if qt.Done != nil {
			qt.Done <- res
		}
		d.logger.Debug("worker finished execution",
			zap.Int("worker", id),
			zap.String("task", qt.Task.ID),
			zap.String("agent", qt.Agent.ID),
			zap.String("status", string(qt.Status)))
	}
}

func queueOutcome(res *TaskResult) QueueStatus {
	switch {
	case res.Success:
		return QueueCompleted
	case res.Error == errCancelled:
		return QueueCancelled
	case isTimeoutError(res.Error):
		return QueueTimeout
	default:
		return QueueFailed
	}
}

// Submit enqueues one (task, agent) execution. The returned QueuedTask's
// Done channel receives the result once a worker picks it up.
func (d *Dispatcher) Submit(task *Task, agent *pool.Agent) *QueuedTask {
	qt := &QueuedTask{
		Task:     task,
		Agent:    agent,
		Priority: task.Priority,
		QueuedAt: time.Now(),
		Status:   QueueQueued,
		Done:     make(chan *TaskResult, 1),
	}
	d.queue.push(qt)
	return qt
}

const errCancelled = "cancelled"

// Execute runs the executor for (task, agent) under the default timeout.
func (d *Dispatcher) Execute(ctx context.Context, task *Task, agent *pool.Agent) *TaskResult {
	return d.ExecuteWithTimeout(ctx, task, agent, d.cfg.DefaultTimeout)
}

// ExecuteWithTimeout acquires the global, team and agent semaphores, runs
// the executor under the deadline, and classifies the outcome. Semaphores
// and agent state are restored on every path, including panic.
func (d *Dispatcher) ExecuteWithTimeout(ctx context.Context, task *Task, agent *pool.Agent, timeout time.Duration) *TaskResult {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	unregister := d.trackCancel(task.ID, cancel)
	defer unregister()

	fail := func(msg, label string) *TaskResult {
		d.count(label)
		return &TaskResult{TaskID: task.ID, AgentID: agent.ID, TeamID: agent.TeamID, Error: msg}
	}

	if err := d.global.acquire(execCtx); err != nil {
		return fail(fmt.Sprintf("global admission aborted: %v", err), errCancelled)
	}
	defer d.global.release()

	teamSem := d.teamSem(agent.TeamID)
	if err := teamSem.acquire(execCtx); err != nil {
		return fail(fmt.Sprintf("team admission aborted: %v", err), errCancelled)
	}
	defer teamSem.release()

	agentSem := d.agentSem(agent.ID)
	if err := agentSem.acquire(execCtx); err != nil {
		return fail(fmt.Sprintf("agent admission aborted: %v", err), errCancelled)
	}
	defer agentSem.release()

	// Agent runtime state is only written while its semaphore is held.
	_ = d.pool.SetAgentState(agent.ID, pool.StatePending, task.ID)
	_ = d.pool.SetAgentState(agent.ID, pool.StateRunning, task.ID)

	execID := uuid.New().String()
	d.auditStart(ctx, execID, agent.ID, task.ID)

	started := time.Now()
	res, err := d.runExecutor(execCtx, task, agent)
	elapsed := time.Since(started)

	if res == nil {
		res = &TaskResult{TaskID: task.ID, AgentID: agent.ID, TeamID: agent.TeamID}
	}
	res.TaskID = task.ID
	res.AgentID = agent.ID
	res.TeamID = agent.TeamID
	res.ExecutionTime = elapsed

	switch {
	case err == nil && res.Success:
		_ = d.pool.SetAgentState(agent.ID, pool.StateSuccess, "")
		d.pool.RecordResult(agent.ID, true)
		d.count("completed")
	case execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		res.Success = false
		res.Error = fmt.Sprintf("execution timed out after %ds", int(timeout.Seconds()))
		_ = d.pool.SetAgentState(agent.ID, pool.StateError, "")
		d.pool.RecordResult(agent.ID, false)
		d.count("timeout")
	case execCtx.Err() == context.Canceled || ctx.Err() != nil:
		res.Success = false
		res.Error = errCancelled
		_ = d.pool.SetAgentState(agent.ID, pool.StateError, "")
		d.pool.RecordResult(agent.ID, false)
		d.count(errCancelled)
	default:
		res.Success = false
		if res.Error == "" && err != nil {
			res.Error = err.Error()
		}
		_ = d.pool.SetAgentState(agent.ID, pool.StateError, "")
		d.pool.RecordResult(agent.ID, false)
		d.count("failed")
	}

	d.auditFinish(ctx, execID, res)

	d.logger.Info("execution finished",
		zap.String("task", task.ID),
		zap.String("agent", agent.ID),
		zap.String("team", agent.TeamID),
		zap.Bool("success", res.Success),
		zap.Duration("elapsed", elapsed))
	return res
}

// runExecutor shields the dispatcher from executor panics.
func (d *Dispatcher) runExecutor(ctx context.Context, task *Task, agent *pool.Agent) (res *TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("executor panic: %v", r)
			d.logger.Error("executor panicked",
				zap.String("task", task.ID),
				zap.String("agent", agent.ID),
				zap.Any("panic", r))
		}
	}()
	return d.executor(ctx, task, agent)
}

// CancelTask signals every in-flight execution of the task. Returns false
// when nothing was running under that id.
func (d *Dispatcher) CancelTask(taskID string) bool {
	d.mu.Lock()
	set := d.cancels[taskID]
	fns := make([]context.CancelFunc, 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns) > 0
}

// Status reports capacity for every layer plus queue depth and outcome
// totals. Aggregates are computed here at read time; there is no separate
// "all" bucket that could double-count.
func (d *Dispatcher) Status() ConcurrencyStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := ConcurrencyStatus{
		Global: LayerStatus{
			Max:       d.global.capacity(),
			InUse:     d.global.inUse(),
			Available: d.global.capacity() - d.global.inUse(),
		},
		Teams:      make(map[string]LayerStatus, len(d.teamSems)),
		Agents:     make(map[string]LayerStatus, len(d.agentSems)),
		QueueDepth: d.queue.depth(),
		TasksTotal: make(map[string]int, len(d.totals)),
	}
	for id, s := range d.teamSems {
		st.Teams[id] = LayerStatus{Max: s.capacity(), InUse: s.inUse(), Available: s.capacity() - s.inUse()}
	}
	for id, s := range d.agentSems {
		st.Agents[id] = LayerStatus{Max: s.capacity(), InUse: s.inUse(), Available: s.capacity() - s.inUse()}
	}
	for k, v := range d.totals {
		st.TasksTotal[k] = v
	}
	return st
}

// teamSem returns the team's semaphore, creating it on first use.
func (d *Dispatcher) teamSem(teamID string) *semaphore {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.teamSems[teamID]
	if !ok {
		s = newSemaphore(d.cfg.MaxPerTeam)
		d.teamSems[teamID] = s
	}
	return s
}

func (d *Dispatcher) agentSem(agentID string) *semaphore {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.agentSems[agentID]
	if !ok {
		s = newSemaphore(d.cfg.MaxPerAgent)
		d.agentSems[agentID] = s
	}
	return s
}

func (d *Dispatcher) trackCancel(taskID string, fn context.CancelFunc) func() {
	d.mu.Lock()
	d.cancelSeq++
	seq := d.cancelSeq
	set, ok := d.cancels[taskID]
	if !ok {
		set = make(map[int]context.CancelFunc)
		d.cancels[taskID] = set
	}
	set[seq] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		if set, ok := d.cancels[taskID]; ok {
			delete(set, seq)
			if len(set) == 0 {
				delete(d.cancels, taskID)
			}
		}
		d.mu.Unlock()
	}
}

func (d *Dispatcher) count(label string) {
	d.mu.Lock()
	d.totals[label]++
	d.mu.Unlock()
}

func (d *Dispatcher) auditStart(ctx context.Context, execID, agentID, taskID string) {
	if d.repo == nil {
		return
	}
	if err := d.repo.CreateAgentExecution(ctx, execID, agentID, taskID, "running"); err != nil {
		d.logger.Warn("agent execution audit failed", zap.Error(err))
	}
}

func (d *Dispatcher) auditFinish(ctx context.Context, execID string, res *TaskResult) {
	if d.repo == nil {
		return
	}
	status := "completed"
	output := res.Output
	if !res.Success {
		status = "failed"
		output = res.Error
	}
	if err := d.repo.CompleteAgentExecution(ctx, execID, status, output); err != nil {
		d.logger.Warn("agent execution audit failed", zap.Error(err))
	}
}

func isTimeoutError(msg string) bool {
	return len(msg) >= len("execution timed out") && msg[:len("execution timed out")] == "execution timed out"
}
