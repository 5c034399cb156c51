package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/token"
)

type stubAuth struct {
	sess *deskauth.Session
	err  error
}

func (s stubAuth) Authenticate(context.Context, http.Header) (*deskauth.Session, error) {
	return s.sess, s.err
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

func TestGuardPassesSession(t *testing.T) {
	sess := &deskauth.Session{Claims: token.Claims{UserUID: "uid-1", WorkspaceID: "ns-wsa"}}
	var seen *deskauth.Session
	h := Guard(stubAuth{sess: sess})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen != sess {
		t.Fatal("session not propagated")
	}
}

func TestGuardHidesFailureCause(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantMsg    string
	}{
		{fmt.Errorf("%w: %w", deskauth.ErrUnauthorized, token.ErrExpired), http.StatusUnauthorized, "unauthorized"},
		{fmt.Errorf("%w: %w", deskauth.ErrUnauthorized, deskauth.ErrCredentialUnavailable), http.StatusUnauthorized, "unauthorized"},
		{fmt.Errorf("%w: %w", deskauth.ErrConfig, token.ErrConfig), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		called := false
		h := Guard(stubAuth{err: tt.err})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if called {
			t.Fatal("handler must not run on failure")
		}
		env := decodeEnvelope(t, rec)
		if rec.Code != tt.wantStatus || env.Code != tt.wantStatus || env.Message != tt.wantMsg {
			t.Fatalf("got status=%d env=%+v", rec.Code, env)
		}
		if env.Error != nil || env.Data != nil {
			t.Fatalf("failure envelope must not carry details: %+v", env)
		}
	}
}

func TestGuardNilAuthenticator(t *testing.T) {
	rec := httptest.NewRecorder()
	Guard(nil)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

type stubAppVerifier struct{ err error }

func (s stubAppVerifier) VerifyAppToken(raw string) (*token.Payload, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &token.Payload{Claims: token.Claims{UserUID: raw}}, nil
}

func TestRequireAppToken(t *testing.T) {
	var got string
	h := RequireAppToken(stubAppVerifier{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := AppClaimsFromContext(r.Context())
		got = p.Claims.UserUID
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "app-token")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "app-token" {
		t.Fatalf("unexpected claims %q", got)
	}

	rec := httptest.NewRecorder()
	RequireAppToken(stubAppVerifier{err: deskauth.ErrUnauthorized})(http.NotFoundHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequestContext(t *testing.T) {
	var id string
	h := RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = deskauth.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if id != "req-42" || rec.Header().Get("X-Request-Id") != "req-42" {
		t.Fatalf("request id not propagated: %q", id)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if id == "" || id == "req-42" {
		t.Fatalf("expected generated id, got %q", id)
	}
}
