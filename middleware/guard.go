package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/token"
)

type sessionContextKey struct{}
type appClaimsContextKey struct{}

// Authenticator is implemented by *deskauth.Broker.
type Authenticator interface {
	Authenticate(ctx context.Context, header http.Header) (*deskauth.Session, error)
}

// AppTokenVerifier is implemented by *deskauth.Broker.
type AppTokenVerifier interface {
	VerifyAppToken(raw string) (*token.Payload, error)
}

// SessionFromContext returns the session stored by Guard.
func SessionFromContext(ctx context.Context) (*deskauth.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*deskauth.Session)
	return s, ok && s != nil
}

// AppClaimsFromContext returns the payload stored by RequireAppToken.
func AppClaimsFromContext(ctx context.Context) (*token.Payload, bool) {
	p, ok := ctx.Value(appClaimsContextKey{}).(*token.Payload)
	return p, ok && p != nil
}

// Guard authenticates every request. Failures get a generic 401 envelope,
// or 500 when the broker is misconfigured.
func Guard(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				WriteError(w, deskauth.ErrBrokerNotReady)
				return
			}

			sess, err := auth.Authenticate(r.Context(), r.Header)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAppToken guards an embedded app's backend route with its app token.
func RequireAppToken(v AppTokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				WriteError(w, deskauth.ErrBrokerNotReady)
				return
			}
			payload, err := v.VerifyAppToken(r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), appClaimsContextKey{}, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestContext attaches a request id (taken from X-Request-Id or freshly
// generated) and the client IP to the request context.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		ctx := deskauth.WithRequestID(r.Context(), id)
		ctx = deskauth.WithClientIP(ctx, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
