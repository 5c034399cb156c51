// Package deskauth is the session and credential broker of a multi-app
// desktop running on Kubernetes.
//
// A [Broker] verifies the access token carried by an inbound request, loads
// the identity's kubeconfig and scopes it to the token's workspace namespace.
// It also mints the token kinds the desktop hands out: access tokens for
// first-party routes, app tokens for embedded applications and short-lived
// billing tokens for server-to-server calls. Workspace switches go through a
// mandatory membership check before any token is minted.
//
// Tokens are stateless. There is no revocation list; short lifetimes are the
// only bound on a leaked token.
//
// # Architecture boundaries
//
// deskauth is the public surface. Token encoding lives in token, credential
// handling in kubeconfig, membership records in membership and the step-by-step
// orchestration in internal/flows. The cross-frame protocol between the
// desktop and its embedded apps lives in frame and does not depend on this
// package.
//
// # What this package must NOT do
//
//   - Log or persist tokens and kubeconfigs.
//   - Return a partial token pair.
//   - Tell callers which authentication step failed.
package deskauth
