package domain

import (
	"encoding/json"
	"time"
)

// MessageID is a unique identifier for a hub message.
type MessageID string

// String returns the string representation of the MessageID.
func (id MessageID) String() string {
	return string(id)
}

// MessageType tags what a hub message carries.
type MessageType string

const (
	MessageTypeProgress MessageType = "progress"
	MessageTypeResult   MessageType = "result"
	MessageTypeLog      MessageType = "log"
)

// Severity is the level attached to a message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// Message is pushed to progress subscribers (SSE and websocket) and kept in
// the hub ring buffer.
type Message struct {
	ID        MessageID       `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Severity  Severity        `json:"severity"`
	JobID     JobID           `json:"job_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Context   string          `json:"context,omitempty"` // requesting context, e.g. popup or a tab id
	Text      string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ProgressUpdate is the payload of a progress message.
type ProgressUpdate struct {
	JobID    JobID          `json:"job_id"`
	Progress int            `json:"progress"`
	Status   JobStatus      `json:"status"`
	Stage    string         `json:"stage"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// MessageFilter narrows a query over recent messages.
type MessageFilter struct {
	Type      *MessageType
	JobID     JobID
	RequestID string
	Context   string
	Since     *time.Time
}

// Matches reports whether m passes the filter.
func (f MessageFilter) Matches(m Message) bool {
	if f.Type != nil && m.Type != *f.Type {
		return false
	}
	if f.JobID != "" && m.JobID != f.JobID {
		return false
	}
	if f.RequestID != "" && m.RequestID != f.RequestID {
		return false
	}
	if f.Context != "" && m.Context != f.Context {
		return false
	}
	if f.Since != nil && m.Timestamp.Before(*f.Since) {
		return false
	}
	return true
}

// Publisher is implemented by components that fan messages out to subscribers.
type Publisher interface {
	Publish(msg Message)
}

// MarshalPayload converts v to a raw JSON payload, dropping values that fail
// to encode.
func MarshalPayload(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
