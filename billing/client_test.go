package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/deskauth/token"
)

type staticTokens struct {
	raw  string
	err  error
	seen token.Claims
}

func (s *staticTokens) BillingToken(claims token.Claims) (string, error) {
	s.seen = claims
	return s.raw, s.err
}

func TestDoSendsBillingToken(t *testing.T) {
	var gotAuth, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"code":200,"message":"ok","data":{"balance":42}}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{raw: "billing-jwt"}
	c := New(srv.URL+"/", tokens, 0)

	var out struct {
		Balance int `json:"balance"`
	}
	err := c.Do(context.Background(), token.Claims{UserUID: "uid-1"}, http.MethodPost, "account/v1alpha1/account", json.RawMessage(`{"x":1}`), &out)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotAuth != "Bearer billing-jwt" {
		t.Fatalf("unexpected authorization %q", gotAuth)
	}
	if gotPath != "/account/v1alpha1/account" || gotBody != `{"x":1}` {
		t.Fatalf("unexpected request path=%q body=%q", gotPath, gotBody)
	}
	if out.Balance != 42 {
		t.Fatalf("unexpected balance %d", out.Balance)
	}
	if tokens.seen.UserUID != "uid-1" {
		t.Fatalf("token minted for wrong claims %+v", tokens.seen)
	}
}

func TestDoReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"code":402,"message":"insufficient balance"}`))
	}))
	defer srv.Close()

	err := New(srv.URL, &staticTokens{raw: "t"}, 0).Do(context.Background(), token.Claims{}, http.MethodGet, "/costs", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusPaymentRequired || apiErr.Message != "insufficient balance" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestDoTokenFailureSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	mintErr := errors.New("no billing secret")
	err := New(srv.URL, &staticTokens{err: mintErr}, 0).Do(context.Background(), token.Claims{}, http.MethodGet, "/x", nil, nil)
	if !errors.Is(err, mintErr) {
		t.Fatalf("expected mint error, got %v", err)
	}
	if called {
		t.Fatal("request must not be sent without a token")
	}
}

func TestDoRejectsTraversalAndUnconfigured(t *testing.T) {
	c := New("http://billing.local", &staticTokens{raw: "t"}, 0)
	if err := c.Do(context.Background(), token.Claims{}, http.MethodGet, "/../admin", nil, nil); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
	var zero *Client
	if err := zero.Do(context.Background(), token.Claims{}, http.MethodGet, "/x", nil, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDoForwardsQuery(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"code":200,"message":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, &staticTokens{raw: "t"}, 0)
	if err := c.Do(context.Background(), token.Claims{}, http.MethodGet, "account/v1alpha1/costs?startTime=2024-01-01&page=2", nil, nil); err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotPath != "/account/v1alpha1/costs" || gotQuery != "startTime=2024-01-01&page=2" {
		t.Fatalf("unexpected request path=%q query=%q", gotPath, gotQuery)
	}

	if err := c.Do(context.Background(), token.Claims{}, http.MethodGet, "costs?page=%zz", nil, nil); err == nil {
		t.Fatal("expected malformed query to be rejected")
	}
}
