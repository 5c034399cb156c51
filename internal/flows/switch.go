package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/deskauth/internal/rate"
	"github.com/MrEthical07/deskauth/membership"
	"github.com/MrEthical07/deskauth/token"
)

// SwitchFailureKind classifies workspace-switch failures.
type SwitchFailureKind int

const (
	SwitchFailureNone SwitchFailureKind = iota
	SwitchFailureInvalidRequest
	SwitchFailureMembershipUnavailable
	SwitchFailureNotAMember
	SwitchFailureConfig
	SwitchFailureIssue
	SwitchFailureRateLimited
)

func (k SwitchFailureKind) String() string {
	switch k {
	case SwitchFailureNone:
		return "none"
	case SwitchFailureInvalidRequest:
		return "invalid_request"
	case SwitchFailureMembershipUnavailable:
		return "membership_unavailable"
	case SwitchFailureNotAMember:
		return "not_a_member"
	case SwitchFailureConfig:
		return "config"
	case SwitchFailureIssue:
		return "issue"
	case SwitchFailureRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// SwitchDeps captures workspace-switch dependencies. Allow is optional.
type SwitchDeps struct {
	Allow            func(context.Context, string) error
	ActiveWorkspaces func(context.Context, string) ([]membership.Workspace, error)
	Issue            func(token.Claims, token.Kind) (string, error)
}

// SwitchResult holds both minted tokens, or neither.
type SwitchResult struct {
	Failure     SwitchFailureKind
	Err         error
	Claims      token.Claims
	Workspace   membership.Workspace
	AccessToken string
	AppToken    string
}

// RunSwitch checks membership of the target workspace and, only if it is an
// active membership, mints an access and an app token for the rescoped claims.
func RunSwitch(ctx context.Context, claims token.Claims, targetWorkspaceUID string, deps SwitchDeps) SwitchResult {
	targetWorkspaceUID = strings.TrimSpace(targetWorkspaceUID)
	if targetWorkspaceUID == "" || claims.UserCrUID == "" {
		return SwitchResult{Failure: SwitchFailureInvalidRequest}
	}

	if deps.Allow != nil {
		if err := deps.Allow(ctx, claims.UserUID); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return SwitchResult{Failure: SwitchFailureRateLimited, Err: err}
			}
			return SwitchResult{Failure: SwitchFailureMembershipUnavailable, Err: err}
		}
	}

	active, err := deps.ActiveWorkspaces(ctx, claims.UserCrUID)
	if err != nil {
		return SwitchResult{Failure: SwitchFailureMembershipUnavailable, Err: err}
	}
	ws, ok := membership.Find(active, targetWorkspaceUID)
	if !ok {
		return SwitchResult{Failure: SwitchFailureNotAMember}
	}

	next := claims.WithWorkspace(ws.ID, ws.UID)

	access, err := deps.Issue(next, token.KindAccess)
	if err != nil {
		return SwitchResult{Failure: issueFailure(err), Err: err}
	}
	app, err := deps.Issue(next, token.KindApp)
	if err != nil {
		return SwitchResult{Failure: issueFailure(err), Err: err}
	}

	return SwitchResult{
		Claims:      next,
		Workspace:   ws,
		AccessToken: access,
		AppToken:    app,
	}
}

func issueFailure(err error) SwitchFailureKind {
	if errors.Is(err, token.ErrConfig) {
		return SwitchFailureConfig
	}
	return SwitchFailureIssue
}
