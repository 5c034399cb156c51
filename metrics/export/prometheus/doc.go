// Package prometheus adapts broker metrics to a client_golang Collector.
//
// [NewCollector] reads [deskauth.Broker.MetricsSnapshot] on every scrape and
// emits const metrics. Counter names are deskauth_*_total; the single
// histogram is deskauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the global default registry. Callers pick a registry.
//   - Mutate broker state.
package prometheus
