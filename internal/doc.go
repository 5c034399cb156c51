// Package internal groups implementation packages that are private to deskauth.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - flows — pure-function orchestrators for authenticate and workspace switch
//   - rate — Redis-backed fixed-window switch limiter
//
// # What this package must NOT do
//
//   - Export types that appear in the public deskauth API.
//   - Be imported by any package outside the deskauth module.
package internal
