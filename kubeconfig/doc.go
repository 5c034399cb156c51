// Package kubeconfig loads per-identity cluster credentials and retargets
// them to a workspace namespace.
//
// A Credential is opaque outside this package. Retarget is pure: it parses
// the kubeconfig, points the current context at another namespace and
// re-serialises it without touching the input.
package kubeconfig
