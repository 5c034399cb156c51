// Package server mounts the broker's HTTP routes on a gorilla/mux router.
//
// Routes:
//
//	GET  /api/auth/session            session prefetch for the desktop master
//	POST /api/auth/namespace/switch   mint a token pair for another workspace
//	ANY  /api/billing/{path}          billing calls under a fresh billing token
//	GET  /metrics                     Prometheus exposition, when configured
//	GET  /healthz                     membership backend reachability
//
// All routes except /metrics and /healthz require an access token.
package server
