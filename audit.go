package deskauth

import (
	"io"

	"github.com/go-logr/logr"

	"github.com/MrEthical07/deskauth/internal/audit"
)

// AuditEvent is one audit record. It never carries tokens or kubeconfigs.
type AuditEvent = audit.Event

// AuditSink receives audit events from the broker's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events in a channel, mostly for tests.
type ChannelSink = audit.ChannelSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink writes one JSON event per line to w.
func NewJSONWriterSink(w io.Writer) AuditSink { return audit.NewJSONWriterSink(w) }

// NewLogSink writes events through logger.
func NewLogSink(logger logr.Logger) AuditSink { return audit.LogSink{Logger: logger} }
