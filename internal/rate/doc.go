// Package rate provides Redis-backed fixed-window counters.
//
// # Window semantics
//
// SET NX EX + INCR in one MULTI, so every counter carries the window TTL.
// Keys are <prefix>:sw:<userUid>.
//
// # What this package must NOT do
//
//   - Decide what happens to a limited request. Callers map ErrRateLimited.
//   - Be imported outside the deskauth module.
package rate
