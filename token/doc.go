// Package token issues and verifies the signed, short-lived session tokens
// exchanged between the desktop shell, embedded applications and backend
// services.
//
// Three kinds exist. Access tokens go to the browser, app tokens go to
// embedded applications, billing tokens never leave the server. Each kind is
// signed with its own secret so that a token of one kind never verifies as
// another.
//
// Tokens are stateless: there is no revocation list, expiry is the only way a
// token stops being valid.
//
// PeekUnverified returns an [Unverified] value, not [Claims]. It may only be
// used to locate a second proof (for example a per-resource secret) which is
// then checked with [Codec.VerifyResource].
package token
