package engine

import (
	"encoding/json"
	"strings"
)

// Kind tags one streamed engine event.
type Kind string

const (
	KindContent    Kind = "content"
	KindToolUse    Kind = "tool_use"
	KindToolResult Kind = "tool_result"
	KindMetadata   Kind = "metadata"
	KindError      Kind = "error"
	KindDone       Kind = "done"
)

// Event is the unit streamed out of the engine adapter.
type Event struct {
	Kind Kind `json:"kind"`

	Text  string `json:"text,omitempty"`
	Index int    `json:"index,omitempty"`

	ToolID    string          `json:"tool_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	Partial   bool            `json:"partial,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Result    string `json:"result,omitempty"`

	StopReason string `json:"stop_reason,omitempty"`
	Message    string `json:"message,omitempty"`

	Raw map[string]any `json:"raw,omitempty"`
}

// rawLine mirrors the superset of fields the CLIs emit per line.
type rawLine struct {
	Type       string          `json:"type"`
	Text       string          `json:"text"`
	Index      int             `json:"index"`
	StopReason string          `json:"stop_reason"`
	Message    string          `json:"message"`
	Error      string          `json:"error"`
	ToolUseID  string          `json:"tool_use_id"`
	Result     string          `json:"result"`
	Reasoning  string          `json:"reasoning"`
	Summary    string          `json:"summary"`
	Delta      *rawBlock       `json:"delta"`
	Block      *rawBlock       `json:"content_block"`
	Input      json.RawMessage `json:"input"`
}

type rawBlock struct {
	Type        string          `json:"type"`
	Text        string          `json:"text"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Input       json.RawMessage `json:"input"`
	PartialJSON string          `json:"partial_json"`
}

// ParseLine maps one line of engine output to an Event. An unparseable line
// yields an ERROR event carrying the raw text; the caller keeps reading.
func ParseLine(line []byte) Event {
	var rl rawLine
	if err := json.Unmarshal(line, &rl); err != nil {
		return Event{Kind: KindError, Message: "unparseable engine output: " + string(line)}
	}

	switch rl.Type {
	case "content":
		return Event{Kind: KindContent, Text: rl.Text, Index: rl.Index}

	case "content_block_delta":
		if rl.Delta != nil {
			switch rl.Delta.Type {
			case "text_delta", "text":
				return Event{Kind: KindContent, Text: rl.Delta.Text, Index: rl.Index}
			case "input_json_delta", "partial_json":
				return Event{
					Kind:      KindToolUse,
					Index:     rl.Index,
					Partial:   true,
					ToolInput: json.RawMessage(rl.Delta.PartialJSON),
				}
			}
		}
		return metadataEvent(line)

	case "content_block_start":
		if rl.Block != nil && rl.Block.Type == "tool_use" {
			return Event{
				Kind:      KindToolUse,
				Index:     rl.Index,
				ToolID:    rl.Block.ID,
				ToolName:  rl.Block.Name,
				ToolInput: rl.Block.Input,
			}
		}
		return metadataEvent(line)

	case "tool_result":
		return Event{Kind: KindToolResult, ToolUseID: rl.ToolUseID, Result: rl.Result}

	case "error":
		msg := rl.Message
		if msg == "" {
			msg = rl.Error
		}
		return Event{Kind: KindError, Message: msg}

	case "done", "message_stop":
		return Event{Kind: KindDone, StopReason: rl.StopReason}

	case "reasoning":
		return Event{Kind: KindMetadata, Raw: map[string]any{
			"reasoning": rl.Reasoning,
			"summary":   rl.Summary,
		}}

	default:
		return metadataEvent(line)
	}
}

func metadataEvent(line []byte) Event {
	raw := map[string]any{}
	_ = json.Unmarshal(line, &raw)
	return Event{Kind: KindMetadata, Raw: raw}
}

// TextContent concatenates all content text in stream order.
func TextContent(events []Event) string {
	var sb strings.Builder
	for _, ev := range events {
		if ev.Kind == KindContent {
			sb.WriteString(ev.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the non-partial tool invocations in stream order.
func ToolUses(events []Event) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == KindToolUse && !ev.Partial {
			out = append(out, ev)
		}
	}
	return out
}

// HasError reports whether the stream carries any ERROR event.
func HasError(events []Event) bool {
	_, ok := ErrorMessage(events)
	return ok
}

// ErrorMessage returns the first ERROR event's message.
func ErrorMessage(events []Event) (string, bool) {
	for _, ev := range events {
		if ev.Kind == KindError {
			return ev.Message, true
		}
	}
	return "", false
}

// StopReason returns the DONE event's stop reason, if the stream finished.
func StopReason(events []Event) string {
	for _, ev := range events {
		if ev.Kind == KindDone {
			return ev.StopReason
		}
	}
	return ""
}
