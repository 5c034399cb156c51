// Package middleware exposes HTTP adapters on top of deskauth.Broker.
//
// # Guards
//
//   - [Guard] — authenticates the access token and puts the namespace-scoped
//     [deskauth.Session] into the request context.
//   - [RequireAppToken] — verifies an app token for an embedded app's backend.
//   - [RequestContext] — tags each request with an id and client IP.
//
// Every response written here uses the uniform [Envelope].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Broker calls. It does NOT
// implement authentication logic itself.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly.
//   - Tell the caller which authentication step failed.
package middleware
