// Package events defines the push notifications emitted by the simulation
// and the ordered outbox that delivers them after a tick commits.
package events

import (
	"encoding/json"
	"fmt"
)

// Kind defines the category of a push notification.
type Kind string

const (
	KindTaskUpdate      Kind = "task_update"
	KindTaskComplete    Kind = "task_complete"
	KindTraceUpdate     Kind = "trace_update"
	KindTraceComplete   Kind = "trace_complete"
	KindTraceStarted    Kind = "trace_started"
	KindGameOver        Kind = "game_over"
	KindMessageReceived Kind = "message_received"
	KindBalanceChanged  Kind = "balance_changed"
	KindGameTime        Kind = "game_time"
)

// Notification is a single push sent to the session's push channel.
// On the wire it is a flat JSON object: "type" plus the payload fields.
type Notification struct {
	Kind Kind
	Data any
}

// MarshalJSON flattens Data next to the "type" field.
func (n Notification) MarshalJSON() ([]byte, error) {
	body := map[string]any{}
	if n.Data != nil {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", n.Kind, err)
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("payload of %s is not an object: %w", n.Kind, err)
		}
	}
	body["type"] = n.Kind
	return json.Marshal(body)
}

// TaskProgress describes one running task.
type TaskProgress struct {
	ID             int64   `json:"id"`
	Tool           string  `json:"tool"`
	Version        int     `json:"version"`
	Target         string  `json:"target"`
	Progress       float64 `json:"progress"`
	TicksRemaining float64 `json:"ticks_remaining"`
	Revealed       string  `json:"revealed,omitempty"`
	*TraceReading
}

// TraceReading is what a Trace_Tracker reports alongside its task.
type TraceReading struct {
	Progress float64 `json:"trace_progress"`
	Active   bool    `json:"trace_active"`
}

type TaskUpdate struct {
	Tasks []TaskProgress `json:"tasks"`
}

type TaskComplete struct {
	Task TaskProgress `json:"task"`
}

type TraceUpdate struct {
	Progress    float64  `json:"progress"`
	Active      bool     `json:"active"`
	TracedNodes []string `json:"traced_nodes"`
}

type TraceComplete struct {
	Reason string `json:"reason,omitempty"`
}

type TraceStarted struct {
	TargetIP     string `json:"target_ip"`
	ComputerName string `json:"computer_name"`
}

type GameOver struct {
	Reason string `json:"reason"`
}

type MessageReceived struct {
	Subject string `json:"subject"`
}

// BalanceChanged carries the new balance; Fine is set when a fine caused it.
type BalanceChanged struct {
	Balance int64  `json:"balance"`
	Fine    *int64 `json:"fine,omitempty"`
}

type GameTime struct {
	Ticks int64 `json:"ticks"`
	Speed int   `json:"speed"`
}
