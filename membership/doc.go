// Package membership records which workspaces an identity belongs to.
//
// The broker consults [Store] before minting tokens for another workspace.
// [RedisStore] keeps one hash per identity, keyed by workspace UID, with a
// JSON record per workspace.
//
// # What this package must NOT do
//
//   - Import deskauth or token (no upward imports).
//   - Decide authorization beyond "is this membership active".
package membership
