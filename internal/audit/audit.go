package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Event is the audit record emitted by the broker. It never carries token or
// credential material.
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	UserUID     string            `json:"user_uid,omitempty"`
	UserCrName  string            `json:"user_cr_name,omitempty"`
	WorkspaceID string            `json:"workspace_id,omitempty"`
	TokenID     string            `json:"token_id,omitempty"`
	IP          string            `json:"ip,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// LogSink writes audit events as structured log lines at verbosity 0.
type LogSink struct {
	Logger logr.Logger
}

func (s LogSink) Emit(_ context.Context, event Event) {
	kv := []interface{}{
		"event", event.EventType,
		"success", event.Success,
	}
	if event.UserUID != "" {
		kv = append(kv, "userUid", event.UserUID)
	}
	if event.WorkspaceID != "" {
		kv = append(kv, "workspace", event.WorkspaceID)
	}
	if event.Error != "" {
		kv = append(kv, "error", event.Error)
	}
	for k, v := range event.Metadata {
		kv = append(kv, k, v)
	}
	s.Logger.Info("audit", kv...)
}
