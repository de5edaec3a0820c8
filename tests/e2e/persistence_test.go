package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/hivemind/internal/cache"
	"github.com/nidhogg/hivemind/internal/orchestrator"
)

func TestSessionLifecycle(t *testing.T) {
	skipIfNoContainers(t)
	ctx := context.Background()

	id := uuid.New().String()
	sess, err := testStore.CreateSession(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Status != "active" {
		t.Fatalf("status = %s", sess.Status)
	}

	got, err := testStore.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("user = %s", got.UserID)
	}

	active, err := testStore.ListActiveSessions(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	found := false
	for _, s := range active {
		if s.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatal("session missing from active list")
	}

	if err := testStore.EndSession(ctx, id); err != nil {
		t.Fatalf("end session: %v", err)
	}
	got, err = testStore.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get ended session: %v", err)
	}
	if got.Status != "ended" || got.EndedAt == nil {
		t.Fatalf("ended session = %+v", got)
	}

	// Ending twice is a no-op.
	if err := testStore.EndSession(ctx, id); err != nil {
		t.Fatalf("second end errored: %v", err)
	}
}

func TestSessionMessages(t *testing.T) {
	skipIfNoContainers(t)
	ctx := context.Background()

	id := uuid.New().String()
	if _, err := testStore.CreateSession(ctx, id, ""); err != nil {
		t.Fatalf("create session: %v", err)
	}

	for _, m := range []struct{ role, content string }{
		{"user", "build the api"},
		{"assistant", "done, here it is"},
		{"user", "now add auth"},
	} {
		if err := testStore.AppendMessage(ctx, id, m.role, m.content); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := testStore.GetMessages(ctx, id, 10)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("messages = %d", len(msgs))
	}
	// Oldest first.
	if msgs[0].Role != "user" || msgs[0].Content != "build the api" {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if msgs[2].Content != "now add auth" {
		t.Fatalf("last message = %+v", msgs[2])
	}
}

func TestTaskPersistence(t *testing.T) {
	skipIfNoContainers(t)
	ctx := context.Background()

	sessID := uuid.New().String()
	if _, err := testStore.CreateSession(ctx, sessID, ""); err != nil {
		t.Fatalf("create session: %v", err)
	}

	taskID := uuid.New().String()
	if err := testStore.CreateTask(ctx, taskID, sessID, "build the api", "pending"); err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := testStore.UpdateTaskStatus(ctx, taskID, "running", ""); err != nil {
		t.Fatalf("update running: %v", err)
	}
	rec, err := testStore.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if rec.Status != "running" || rec.FinishedAt != nil {
		t.Fatalf("running record = %+v", rec)
	}

	if err := testStore.UpdateTaskStatus(ctx, taskID, "completed", "the answer"); err != nil {
		t.Fatalf("update completed: %v", err)
	}
	rec, err = testStore.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if rec.Status != "completed" || rec.Result != "the answer" || rec.FinishedAt == nil {
		t.Fatalf("completed record = %+v", rec)
	}

	// An empty result on a later update keeps the stored one.
	if err := testStore.UpdateTaskStatus(ctx, taskID, "completed", ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	rec, _ = testStore.GetTask(ctx, taskID)
	if rec.Result != "the answer" {
		t.Fatalf("result overwritten: %q", rec.Result)
	}

	tasks, err := testStore.ListTasksBySession(ctx, sessID, 10)
	if err != nil {
		t.Fatalf("list by session: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != taskID {
		t.Fatalf("session tasks = %+v", tasks)
	}

	// A task without a session persists too.
	orphanID := uuid.New().String()
	if err := testStore.CreateTask(ctx, orphanID, "", "standalone", "pending"); err != nil {
		t.Fatalf("create sessionless task: %v", err)
	}
}

func TestAgentExecutions(t *testing.T) {
	skipIfNoContainers(t)
	ctx := context.Background()

	taskID := uuid.New().String()
	if err := testStore.CreateTask(ctx, taskID, "", "do the thing", "running"); err != nil {
		t.Fatalf("create task: %v", err)
	}

	execID := uuid.New().String()
	if err := testStore.CreateAgentExecution(ctx, execID, "DEV-002", taskID, "running"); err != nil {
		t.Fatalf("create execution: %v", err)
	}
	if err := testStore.CompleteAgentExecution(ctx, execID, "success", "agent output"); err != nil {
		t.Fatalf("complete execution: %v", err)
	}

	execs, err := testStore.ListExecutionsByTask(ctx, taskID)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("executions = %d", len(execs))
	}
	if execs[0].AgentID != "DEV-002" || execs[0].Status != "success" || execs[0].Output != "agent output" {
		t.Fatalf("execution = %+v", execs[0])
	}

	tasks, err := testStore.ListTasksByAgent(ctx, "DEV-002", 10)
	if err != nil {
		t.Fatalf("list by agent: %v", err)
	}
	found := false
	for _, rec := range tasks {
		if rec.ID == taskID {
			found = true
		}
	}
	if !found {
		t.Fatal("task not listed under its agent")
	}
}

func TestCheckpoints(t *testing.T) {
	skipIfNoContainers(t)
	ctx := context.Background()

	taskID := uuid.New().String()
	if err := testStore.CreateTask(ctx, taskID, "", "checkpointed", "running"); err != nil {
		t.Fatalf("create task: %v", err)
	}

	first, _ := json.Marshal(map[string][]string{"teams": {"DEV"}})
	second, _ := json.Marshal(map[string][]string{"teams": {"DEV", "QA"}})
	if err := testStore.CreateCheckpoint(ctx, taskID, first); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := testStore.CreateCheckpoint(ctx, taskID, second); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	state, err := testStore.GetLatestCheckpoint(ctx, taskID)
	if err != nil {
		t.Fatalf("latest checkpoint: %v", err)
	}
	var decoded map[string][]string
	if err := json.Unmarshal(state, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded["teams"]) != 2 {
		t.Fatalf("latest checkpoint = %s", state)
	}
}

func TestSessionContextCache(t *testing.T) {
	skipIfNoContainers(t)
	ctx := context.Background()

	sessID := uuid.New().String()
	if _, ok := testCache.SessionContext(ctx, sessID); ok {
		t.Fatal("miss reported as hit")
	}

	if err := testCache.StoreSessionContext(ctx, sessID, "User: hi\nAssistant: hello"); err != nil {
		t.Fatalf("store: %v", err)
	}
	text, ok := testCache.SessionContext(ctx, sessID)
	if !ok || text != "User: hi\nAssistant: hello" {
		t.Fatalf("got %q %v", text, ok)
	}
}

func TestEventBusRoundtrip(t *testing.T) {
	skipIfNoContainers(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bus := cache.NewBus(testCache, testLogger)
	events := bus.Subscribe(ctx)

	// The subscriber reads from the stream tail; give it a moment to attach
	// before publishing.
	time.Sleep(200 * time.Millisecond)

	sent := &orchestrator.TaskEvent{
		TaskID:   uuid.New().String(),
		State:    orchestrator.TaskCompleted,
		Response: "bus payload",
		Terminal: true,
	}
	bus.Publish(ctx, sent)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("subscription closed before delivery")
			}
			if ev.TaskID != sent.TaskID {
				continue // events from other tests on the shared stream
			}
			if ev.State != orchestrator.TaskCompleted || ev.Response != "bus payload" || !ev.Terminal {
				t.Fatalf("event = %+v", ev)
			}
			return
		case <-ctx.Done():
			t.Fatal("event never arrived")
		}
	}
}
