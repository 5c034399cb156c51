package flows

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MrEthical07/deskauth/kubeconfig"
	"github.com/MrEthical07/deskauth/token"
)

// AuthFailureKind classifies authenticate failures for root-level mapping.
type AuthFailureKind int

const (
	AuthFailureNone AuthFailureKind = iota
	AuthFailureMissingToken
	AuthFailureMalformed
	AuthFailureInvalidSignature
	AuthFailureExpired
	AuthFailureConfig
	AuthFailureCredentialUnavailable
	AuthFailureRetarget
)

func (k AuthFailureKind) String() string {
	switch k {
	case AuthFailureNone:
		return "none"
	case AuthFailureMissingToken:
		return "missing_token"
	case AuthFailureMalformed:
		return "malformed"
	case AuthFailureInvalidSignature:
		return "invalid_signature"
	case AuthFailureExpired:
		return "expired"
	case AuthFailureConfig:
		return "config"
	case AuthFailureCredentialUnavailable:
		return "credential_unavailable"
	case AuthFailureRetarget:
		return "retarget"
	default:
		return "unknown"
	}
}

// AuthenticateDeps captures the three collaborators of the authenticate flow.
type AuthenticateDeps struct {
	VerifyAccess    func(string) (*token.Payload, error)
	FetchCredential func(context.Context, string) (kubeconfig.Credential, error)
	Retarget        func(kubeconfig.Credential, string) (kubeconfig.Credential, error)
}

// AuthenticateResult carries either the verified payload and namespace-scoped
// credential or a classified failure.
type AuthenticateResult struct {
	Failure    AuthFailureKind
	Err        error
	Payload    *token.Payload
	Credential kubeconfig.Credential
}

// ExtractToken URL-decodes an Authorization header value. A "Bearer " prefix
// is tolerated.
func ExtractToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil
	}
	decoded, err := url.PathUnescape(header)
	if err != nil {
		return "", fmt.Errorf("%w: %v", token.ErrMalformed, err)
	}
	decoded = strings.TrimSpace(decoded)
	if len(decoded) > 7 && strings.EqualFold(decoded[:7], "bearer ") {
		decoded = strings.TrimSpace(decoded[7:])
	}
	return decoded, nil
}

// RunAuthenticate executes header extraction, access-token verification,
// credential lookup and retargeting, strictly in that order. No step runs
// after a failing one.
func RunAuthenticate(ctx context.Context, header string, deps AuthenticateDeps) AuthenticateResult {
	raw, err := ExtractToken(header)
	if err != nil {
		return AuthenticateResult{Failure: AuthFailureMalformed, Err: err}
	}
	if raw == "" {
		return AuthenticateResult{Failure: AuthFailureMissingToken}
	}

	payload, err := deps.VerifyAccess(raw)
	if err != nil {
		return AuthenticateResult{Failure: classifyTokenError(err), Err: err}
	}

	cred, err := deps.FetchCredential(ctx, payload.Claims.UserCrName)
	if err != nil {
		return AuthenticateResult{Failure: AuthFailureCredentialUnavailable, Err: err}
	}

	scoped, err := deps.Retarget(cred, payload.Claims.WorkspaceID)
	if err != nil {
		return AuthenticateResult{Failure: AuthFailureRetarget, Err: err}
	}

	return AuthenticateResult{
		Payload:    payload,
		Credential: scoped,
	}
}

func classifyTokenError(err error) AuthFailureKind {
	switch {
	case errors.Is(err, token.ErrConfig):
		return AuthFailureConfig
	case errors.Is(err, token.ErrExpired):
		return AuthFailureExpired
	case errors.Is(err, token.ErrInvalidSignature):
		return AuthFailureInvalidSignature
	default:
		return AuthFailureMalformed
	}
}
