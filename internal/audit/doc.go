// Package audit implements async event dispatching for broker operations.
//
// # Components
//
//   - [Sink] — interface for event consumers (channel, JSON writer, logr, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event] — structured audit record with timestamp, type, user, workspace, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the broker does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import deskauth or any sibling internal package.
//   - Record tokens or kubeconfig content.
package audit
