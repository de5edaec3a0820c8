package orchestrator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/pool"
)

func newTestPoolForDispatch(t *testing.T) *pool.Pool {
	t.Helper()
	p := pool.New(zap.NewNop())
	if err := p.Initialize(pool.DefaultAgents()); err != nil {
		t.Fatalf("pool init: %v", err)
	}
	return p
}

func instantExecutor(out string) ExecutorFn {
	return func(ctx context.Context, task *Task, agent *pool.Agent) (*TaskResult, error) {
		return &TaskResult{Success: true, Output: out}, nil
	}
}

func TestExecuteSuccess(t *testing.T) {
	p := newTestPoolForDispatch(t)
	d := NewDispatcher(DefaultDispatcherConfig(), p, instantExecutor("done"), zap.NewNop())

	task := &Task{ID: "t1", Prompt: "x"}
	res := d.Execute(context.Background(), task, p.Agent("DEV-002"))

	if !res.Success || res.Output != "done" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.TaskID != "t1" || res.AgentID != "DEV-002" || res.TeamID != "DEV" {
		t.Fatalf("result not stamped: %+v", res)
	}
	if st := p.Agent("DEV-002").State; st != pool.StateSuccess {
		t.Errorf("agent state = %s, expected success", st)
	}
}

func TestExecuteTimeout(t *testing.T) {
	p := newTestPoolForDispatch(t)
	slow := func(ctx context.Context, task *Task, agent *pool.Agent) (*TaskResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d := NewDispatcher(DefaultDispatcherConfig(), p, slow, zap.NewNop())

	res := d.ExecuteWithTimeout(context.Background(), &Task{ID: "t1"}, p.Agent("QA-001"), 30*time.Millisecond)

	if res.Success {
		t.Fatal("timed-out execution reported success")
	}
	if !strings.HasPrefix(res.Error, "execution timed out") {
		t.Fatalf("error = %q, expected timeout message", res.Error)
	}
	if st := p.Agent("QA-001").State; st != pool.StateError {
		t.Errorf("agent state = %s, expected error", st)
	}
	if d.Status().TasksTotal["timeout"] != 1 {
		t.Errorf("timeout not counted: %v", d.Status().TasksTotal)
	}
}

func TestExecuteCancellation(t *testing.T) {
	p := newTestPoolForDispatch(t)
	started := make(chan struct{})
	slow := func(ctx context.Context, task *Task, agent *pool.Agent) (*TaskResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d := NewDispatcher(DefaultDispatcherConfig(), p, slow, zap.NewNop())

	resCh := make(chan *TaskResult, 1)
	go func() {
		resCh <- d.Execute(context.Background(), &Task{ID: "t1"}, p.Agent("SEC-001"))
	}()

	<-started
	if !d.CancelTask("t1") {
		t.Fatal("CancelTask found nothing to cancel")
	}

	select {
	case res := <-resCh:
		if res.Success || res.Error != "cancelled" {
			t.Fatalf("unexpected result after cancel: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("execution did not return after cancel")
	}

	if d.CancelTask("t1") {
		t.Error("second cancel should find nothing")
	}
}

func TestAtMostOnePerAgent(t *testing.T) {
	p := newTestPoolForDispatch(t)

	var current, peak int32
	tracking := func(ctx context.Context, task *Task, agent *pool.Agent) (*TaskResult, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return &TaskResult{Success: true}, nil
	}
	d := NewDispatcher(DefaultDispatcherConfig(), p, tracking, zap.NewNop())

	agent := p.Agent("INF-001")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Execute(context.Background(), &Task{ID: "t1"}, agent)
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&peak) != 1 {
		t.Fatalf("agent concurrency peak = %d, expected 1", peak)
	}
}

func TestTeamConcurrencyCap(t *testing.T) {
	p := newTestPoolForDispatch(t)

	cfg := DefaultDispatcherConfig()
	cfg.MaxPerTeam = 2

	var current, peak int32
	tracking := func(ctx context.Context, task *Task, agent *pool.Agent) (*TaskResult, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return &TaskResult{Success: true}, nil
	}
	d := NewDispatcher(cfg, p, tracking, zap.NewNop())

	var wg sync.WaitGroup
	for _, id := range []string{"DEV-001", "DEV-002", "DEV-003", "DEV-004"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			d.Execute(context.Background(), &Task{ID: "t-" + id}, p.Agent(id))
		}(id)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("team concurrency peak = %d, cap is 2", got)
	}
}

func TestExecutorPanicIsContained(t *testing.T) {
	p := newTestPoolForDispatch(t)
	boom := func(ctx context.Context, task *Task, agent *pool.Agent) (*TaskResult, error) {
		panic("executor exploded")
	}
	d := NewDispatcher(DefaultDispatcherConfig(), p, boom, zap.NewNop())

	res := d.Execute(context.Background(), &Task{ID: "t1"}, p.Agent("QA-002"))
	if res.Success {
		t.Fatal("panicking executor reported success")
	}
	if !strings.Contains(res.Error, "panic") {
		t.Fatalf("error = %q, expected panic note", res.Error)
	}

	// The semaphore must have been released: a follow-up run succeeds.
	d2 := d.ExecuteWithTimeout(context.Background(), &Task{ID: "t2"}, p.Agent("QA-002"), time.Second)
	_ = d2
}

func TestStatusAggregates(t *testing.T) {
	p := newTestPoolForDispatch(t)
	d := NewDispatcher(DefaultDispatcherConfig(), p, instantExecutor("ok"), zap.NewNop())

	d.Execute(context.Background(), &Task{ID: "t1"}, p.Agent("DEV-001"))
	d.Execute(context.Background(), &Task{ID: "t2"}, p.Agent("QA-001"))

	st := d.Status()
	if st.Global.Max != DefaultDispatcherConfig().MaxGlobalConcurrent {
		t.Errorf("global max = %d", st.Global.Max)
	}
	if st.Global.InUse != 0 {
		t.Errorf("global in-use = %d after idle, expected 0", st.Global.InUse)
	}
	if st.TasksTotal["completed"] != 2 {
		t.Errorf("completed total = %d, expected 2", st.TasksTotal["completed"])
	}
	if _, ok := st.Teams["DEV"]; !ok {
		t.Error("DEV team layer missing from status")
	}
	if _, ok := st.Agents["DEV-001"]; !ok {
		t.Error("DEV-001 agent layer missing from status")
	}
}

func TestWorkerQueueDrain(t *testing.T) {
	p := newTestPoolForDispatch(t)
	cfg := DefaultDispatcherConfig()
	cfg.Workers = 2
	d := NewDispatcher(cfg, p, instantExecutor("ok"), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	qt := d.Submit(&Task{ID: "t1", Priority: PriorityHigh}, p.Agent("DEV-001"))

	select {
	case res := <-qt.Done:
		if !res.Success {
			t.Fatalf("queued execution failed: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued task never executed")
	}
	if qt.Status != QueueCompleted {
		t.Errorf("queue status = %s, expected completed", qt.Status)
	}

	cancel()
	d.Wait()
}
