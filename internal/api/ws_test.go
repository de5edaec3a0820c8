package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/orchestrator"
)

func dialHub(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg wsFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func decodeData(t *testing.T, msg wsFrame, v any) {
	t.Helper()
	if err := json.Unmarshal(msg.Data, v); err != nil {
		t.Fatalf("decode %s data: %v", msg.Type, err)
	}
}

func subscribeFrame(t *testing.T, taskID string) wsFrame {
	t.Helper()
	data, err := json.Marshal(wsTaskRef{TaskID: taskID})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return wsFrame{Type: "subscribe", Data: data}
}

func TestHubPingPong(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()
	defer hub.Close()

	conn := dialHub(t, ts)
	defer conn.Close()

	if err := conn.WriteJSON(wsFrame{Type: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readFrame(t, conn); msg.Type != "pong" {
		t.Fatalf("got %q", msg.Type)
	}
}

func TestHubBroadcastsToUnfilteredClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()
	defer hub.Close()

	conn := dialHub(t, ts)
	defer conn.Close()

	// Ping round-trip guarantees the client is registered before publishing.
	conn.WriteJSON(wsFrame{Type: "ping"})
	readFrame(t, conn)

	hub.Publish(context.Background(), &orchestrator.TaskEvent{
		TaskID: "t1", State: orchestrator.TaskRunning, Message: "dispatching",
	})
	msg := readFrame(t, conn)
	if msg.Type != "task_update" {
		t.Fatalf("got %q", msg.Type)
	}
	var upd wsTaskUpdate
	decodeData(t, msg, &upd)
	if upd.TaskID != "t1" || upd.State != orchestrator.TaskRunning || upd.Message != "dispatching" {
		t.Fatalf("got %+v", upd)
	}

	hub.Publish(context.Background(), &orchestrator.TaskEvent{
		TaskID: "t1", State: orchestrator.TaskCompleted, Response: "done", Terminal: true,
	})
	msg = readFrame(t, conn)
	if msg.Type != "task_result" {
		t.Fatalf("terminal event typed %q", msg.Type)
	}
	var res wsTaskResult
	decodeData(t, msg, &res)
	if res.TaskID != "t1" || res.State != orchestrator.TaskCompleted || res.Response != "done" {
		t.Fatalf("got %+v", res)
	}
}

func TestHubSubscriptionFilter(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()
	defer hub.Close()

	conn := dialHub(t, ts)
	defer conn.Close()

	conn.WriteJSON(subscribeFrame(t, "wanted"))
	conn.WriteJSON(wsFrame{Type: "ping"})
	readFrame(t, conn)

	hub.Publish(context.Background(), &orchestrator.TaskEvent{
		TaskID: "other", State: orchestrator.TaskCompleted, Terminal: true,
	})
	hub.Publish(context.Background(), &orchestrator.TaskEvent{
		TaskID: "wanted", State: orchestrator.TaskCompleted, Terminal: true,
	})

	msg := readFrame(t, conn)
	var res wsTaskResult
	decodeData(t, msg, &res)
	if res.TaskID != "wanted" {
		t.Fatalf("filter let %q through", res.TaskID)
	}
}

func TestHubSubscribeWithoutTaskID(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()
	defer hub.Close()

	conn := dialHub(t, ts)
	defer conn.Close()

	// A subscribe with no data object must be answered, not silently
	// ignored: the client would otherwise keep receiving every task.
	conn.WriteJSON(wsFrame{Type: "subscribe"})
	msg := readFrame(t, conn)
	if msg.Type != "error" {
		t.Fatalf("got %q", msg.Type)
	}
	var we wsError
	decodeData(t, msg, &we)
	if we.Code != "invalid_subscribe" || we.Message == "" {
		t.Fatalf("got %+v", we)
	}
}

func TestHubRejectsUnknownFrame(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()
	defer hub.Close()

	conn := dialHub(t, ts)
	defer conn.Close()

	conn.WriteJSON(wsFrame{Type: "whatever"})
	msg := readFrame(t, conn)
	if msg.Type != "error" {
		t.Fatalf("got %q", msg.Type)
	}
	var we wsError
	decodeData(t, msg, &we)
	if we.Code != "unknown_type" {
		t.Fatalf("got code %q", we.Code)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	msg = readFrame(t, conn)
	if msg.Type != "error" {
		t.Fatalf("got %q", msg.Type)
	}
	decodeData(t, msg, &we)
	if we.Code != "invalid_frame" {
		t.Fatalf("got code %q", we.Code)
	}
}
