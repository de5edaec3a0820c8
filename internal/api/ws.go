package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/orchestrator"
)

// wsFrame is the envelope exchanged with websocket clients, both directions:
// a type tag plus a type-specific data object.
type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsTaskRef is the data object of subscribe and unsubscribe frames.
type wsTaskRef struct {
	TaskID string `json:"task_id"`
}

// wsTaskUpdate is the data object of task_update frames.
type wsTaskUpdate struct {
	TaskID  string                 `json:"task_id"`
	State   orchestrator.TaskState `json:"state"`
	Message string                 `json:"message,omitempty"`
}

// wsTaskResult is the data object of task_result frames.
type wsTaskResult struct {
	TaskID   string                 `json:"task_id"`
	State    orchestrator.TaskState `json:"state"`
	Response string                 `json:"response,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// wsError is the data object of outbound error frames.
type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Hub relays task events to websocket subscribers. It plugs into the
// coordinator as a Publisher. A client that cannot keep up is dropped rather
// than allowed to stall the pipeline.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*wsClient]struct{}
	logger   *zap.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	tasks  map[string]struct{} // empty set means all tasks
	closed bool
}

// NewHub creates an empty websocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
	}
}

// ServeWS upgrades the connection and runs the client loops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		conn:  conn,
		send:  make(chan []byte, 32),
		tasks: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *wsClient) {
	defer h.drop(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(errorFrame("invalid_frame", "frame is not valid JSON"))
			continue
		}
		switch msg.Type {
		case "subscribe":
			ref, err := parseTaskRef(msg.Data)
			if err != nil {
				c.enqueue(errorFrame("invalid_subscribe", "subscribe requires data.task_id"))
				continue
			}
			c.mu.Lock()
			c.tasks[ref.TaskID] = struct{}{}
			c.mu.Unlock()
		case "unsubscribe":
			ref, err := parseTaskRef(msg.Data)
			if err != nil {
				c.enqueue(errorFrame("invalid_unsubscribe", "unsubscribe requires data.task_id"))
				continue
			}
			c.mu.Lock()
			delete(c.tasks, ref.TaskID)
			c.mu.Unlock()
		case "ping":
			c.enqueue(mustMarshal(wsFrame{Type: "pong"}))
		default:
			c.enqueue(errorFrame("unknown_type", "unknown message type"))
		}
	}
}

func parseTaskRef(data json.RawMessage) (wsTaskRef, error) {
	var ref wsTaskRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, err
	}
	if ref.TaskID == "" {
		return ref, fmt.Errorf("missing task_id")
	}
	return ref, nil
}

func errorFrame(code, message string) []byte {
	return frame("error", wsError{Code: code, Message: message})
}

// frame marshals a typed data object into the outbound envelope.
func frame(kind string, data any) []byte {
	payload, _ := json.Marshal(data)
	return mustMarshal(wsFrame{Type: kind, Data: payload})
}

func (h *Hub) writeLoop(c *wsClient) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(c)
			return
		}
	}
	_ = c.conn.Close()
}

// Publish relays a task event to every interested client. Terminal events go
// out as task_result, progress as task_update.
func (h *Hub) Publish(_ context.Context, ev *orchestrator.TaskEvent) {
	var data []byte
	if ev.Terminal {
		data = frame("task_result", wsTaskResult{
			TaskID:   ev.TaskID,
			State:    ev.State,
			Response: ev.Response,
			Error:    ev.Error,
		})
	} else {
		data = frame("task_update", wsTaskUpdate{
			TaskID:  ev.TaskID,
			State:   ev.State,
			Message: ev.Message,
		})
	}

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if !c.wants(ev.TaskID) {
			continue
		}
		if !c.enqueue(data) {
			h.drop(c)
		}
	}
}

// wants reports whether the client subscribed to this task. No explicit
// subscriptions means everything.
func (c *wsClient) wants(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tasks) == 0 {
		return true
	}
	_, ok := c.tasks[taskID]
	return ok
}

// enqueue offers data to the client without blocking. False means the client
// is saturated or gone.
func (c *wsClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !present {
		return
	}

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	h.logger.Debug("websocket client dropped")
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.drop(c)
	}
}

func mustMarshal(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
