package flows

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/deskauth/kubeconfig"
	"github.com/MrEthical07/deskauth/token"
)

type authCalls struct {
	verify, fetch, retarget int
}

func authDeps(calls *authCalls, verifyErr, fetchErr, retargetErr error) AuthenticateDeps {
	return AuthenticateDeps{
		VerifyAccess: func(raw string) (*token.Payload, error) {
			calls.verify++
			if verifyErr != nil {
				return nil, verifyErr
			}
			return &token.Payload{Claims: token.Claims{UserUID: "uid", UserCrName: "u1cr", WorkspaceID: "ns-wsa"}}, nil
		},
		FetchCredential: func(ctx context.Context, name string) (kubeconfig.Credential, error) {
			calls.fetch++
			if fetchErr != nil {
				return kubeconfig.Credential{}, fetchErr
			}
			return kubeconfig.New([]byte("raw")), nil
		},
		Retarget: func(c kubeconfig.Credential, ns string) (kubeconfig.Credential, error) {
			calls.retarget++
			if retargetErr != nil {
				return kubeconfig.Credential{}, retargetErr
			}
			return kubeconfig.New([]byte(ns)), nil
		},
	}
}

func TestRunAuthenticateStopsAtFirstFailure(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		verifyErr   error
		fetchErr    error
		retargetErr error
		want        AuthFailureKind
		wantCalls   authCalls
	}{
		{name: "missing header", header: "", want: AuthFailureMissingToken},
		{name: "bad escape", header: "abc%zz", want: AuthFailureMalformed},
		{name: "expired", header: "tok", verifyErr: token.ErrExpired, want: AuthFailureExpired, wantCalls: authCalls{verify: 1}},
		{name: "bad signature", header: "tok", verifyErr: token.ErrInvalidSignature, want: AuthFailureInvalidSignature, wantCalls: authCalls{verify: 1}},
		{name: "malformed", header: "tok", verifyErr: token.ErrMalformed, want: AuthFailureMalformed, wantCalls: authCalls{verify: 1}},
		{name: "config", header: "tok", verifyErr: token.ErrConfig, want: AuthFailureConfig, wantCalls: authCalls{verify: 1}},
		{name: "no credential", header: "tok", fetchErr: kubeconfig.ErrIdentityNotFound, want: AuthFailureCredentialUnavailable, wantCalls: authCalls{verify: 1, fetch: 1}},
		{name: "retarget", header: "tok", retargetErr: kubeconfig.ErrInvalidCredential, want: AuthFailureRetarget, wantCalls: authCalls{verify: 1, fetch: 1, retarget: 1}},
		{name: "ok", header: "tok", want: AuthFailureNone, wantCalls: authCalls{verify: 1, fetch: 1, retarget: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls authCalls
			res := RunAuthenticate(context.Background(), tt.header, authDeps(&calls, tt.verifyErr, tt.fetchErr, tt.retargetErr))
			if res.Failure != tt.want {
				t.Fatalf("failure = %s, want %s (err=%v)", res.Failure, tt.want, res.Err)
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls = %+v, want %+v", calls, tt.wantCalls)
			}
			if tt.want != AuthFailureNone && (res.Payload != nil || !res.Credential.Empty()) {
				t.Fatal("failed result must not carry payload or credential")
			}
		})
	}
}

func TestRunAuthenticateRetargetsToTokenWorkspace(t *testing.T) {
	var calls authCalls
	res := RunAuthenticate(context.Background(), "tok", authDeps(&calls, nil, nil, nil))
	if res.Failure != AuthFailureNone {
		t.Fatalf("unexpected failure %s: %v", res.Failure, res.Err)
	}
	if string(res.Credential.Bytes()) != "ns-wsa" {
		t.Fatalf("credential not retargeted to token workspace: %q", res.Credential.Bytes())
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  ", ""},
		{"a.b.c", "a.b.c"},
		{"Bearer%20a.b.c", "a.b.c"},
		{"bearer a.b.c", "a.b.c"},
		{"a%2Eb.c", "a.b.c"},
	}
	for _, tt := range tests {
		got, err := ExtractToken(tt.in)
		if err != nil {
			t.Fatalf("extract %q: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("extract %q = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ExtractToken("%"); !errors.Is(err, token.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
