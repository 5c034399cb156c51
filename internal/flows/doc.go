// Package flows contains pure-function orchestrators for the broker's request
// paths.
//
// RunAuthenticate and RunSwitch accept a typed dependency struct and return a
// result carrying either the outcome or a classified failure kind. The broker
// maps failure kinds onto its public errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the token codec, the credential fetcher,
// the membership store and the switch limiter. They do NOT own any of these
// resources; ownership stays with the Broker.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import deskauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency funcs.
package flows
