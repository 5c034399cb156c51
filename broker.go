package deskauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/MrEthical07/deskauth/internal/audit"
	"github.com/MrEthical07/deskauth/internal/flows"
	"github.com/MrEthical07/deskauth/kubeconfig"
	"github.com/MrEthical07/deskauth/membership"
	"github.com/MrEthical07/deskauth/resourceauth"
	"github.com/MrEthical07/deskauth/token"
)

// Broker turns inbound request headers into verified, namespace-scoped
// sessions and mints the tokens the desktop hands to embedded apps.
//
// A Broker is built once by [Builder.Build] and is safe for concurrent use.
// It holds no per-request state.
type Broker struct {
	config    Config
	codec     TokenCodec
	tokens    *token.Codec
	fetcher   kubeconfig.Fetcher
	members   membership.Store
	resources *resourceauth.Verifier
	audit     *audit.Dispatcher
	metrics   *Metrics
	log       logr.Logger
	now       func() time.Time

	authDeps   flows.AuthenticateDeps
	switchDeps flows.SwitchDeps
}

// Close flushes and stops the audit dispatcher.
func (b *Broker) Close() {
	if b == nil {
		return
	}
	if b.audit != nil {
		b.audit.Close()
	}
}

// AuditDropped reports audit events dropped under backpressure.
func (b *Broker) AuditDropped() uint64 {
	if b == nil || b.audit == nil {
		return 0
	}
	return b.audit.Dropped()
}

// MetricsSnapshot returns current counters and histograms.
func (b *Broker) MetricsSnapshot() MetricsSnapshot {
	if b == nil || b.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return b.metrics.Snapshot()
}

// TokenTTL reports the configured lifetime of kind.
func (b *Broker) TokenTTL(kind token.Kind) time.Duration {
	if b == nil || b.tokens == nil {
		return 0
	}
	return b.tokens.TTL(kind)
}

func (b *Broker) metricInc(id MetricID) {
	if b == nil || b.metrics == nil {
		return
	}
	b.metrics.Inc(id)
}

// Authenticate extracts the URL-encoded access token from the Authorization
// header, verifies it, loads the identity's kubeconfig and retargets it to
// the token's workspace. Steps run in that order and none runs after a
// failure.
//
// Every failure wraps ErrUnauthorized and the internal cause, except a
// missing signing secret which wraps ErrConfig.
func (b *Broker) Authenticate(ctx context.Context, header http.Header) (*Session, error) {
	if b == nil || b.authDeps.VerifyAccess == nil {
		return nil, ErrBrokerNotReady
	}
	if b.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { b.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}

	res := flows.RunAuthenticate(ctx, header.Get("Authorization"), b.authDeps)
	if res.Failure != flows.AuthFailureNone {
		err := mapAuthFailure(res)
		b.metricInc(MetricAuthenticateFailure)
		b.metricInc(authFailureMetric(res.Failure))
		b.log.V(1).Info("authenticate rejected",
			"reason", res.Failure.String(),
			"requestId", RequestIDFromContext(ctx),
		)
		b.emitAudit(ctx, auditEventAuthenticateFailure, false, token.Claims{}, "", err, func() map[string]string {
			return map[string]string{"reason": res.Failure.String()}
		})
		return nil, err
	}

	b.metricInc(MetricAuthenticateSuccess)
	return &Session{
		Claims:     res.Payload.Claims,
		TokenID:    res.Payload.ID,
		ExpiresAt:  res.Payload.ExpiresAt,
		Credential: res.Credential,
	}, nil
}

func mapAuthFailure(res flows.AuthenticateResult) error {
	switch res.Failure {
	case flows.AuthFailureMissingToken:
		return fmt.Errorf("%w: %w", ErrUnauthorized, ErrMissingToken)
	case flows.AuthFailureConfig:
		return fmt.Errorf("%w: %w", ErrConfig, res.Err)
	case flows.AuthFailureCredentialUnavailable, flows.AuthFailureRetarget:
		return fmt.Errorf("%w: %w: %w", ErrUnauthorized, ErrCredentialUnavailable, res.Err)
	default:
		if res.Err == nil {
			return ErrUnauthorized
		}
		return fmt.Errorf("%w: %w", ErrUnauthorized, res.Err)
	}
}

func authFailureMetric(kind flows.AuthFailureKind) MetricID {
	switch kind {
	case flows.AuthFailureMissingToken:
		return MetricMissingToken
	case flows.AuthFailureExpired:
		return MetricTokenExpired
	case flows.AuthFailureInvalidSignature:
		return MetricTokenInvalidSignature
	case flows.AuthFailureConfig:
		return MetricConfigError
	case flows.AuthFailureCredentialUnavailable:
		return MetricCredentialUnavailable
	case flows.AuthFailureRetarget:
		return MetricRetargetFailure
	default:
		return MetricTokenMalformed
	}
}

// SwitchWorkspace mints a new access/app token pair scoped to
// targetWorkspaceUID. The caller must hold an active membership in the target;
// otherwise ErrNotAMember is returned and no token is minted. The pair is
// returned whole or not at all.
//
// Concurrent switches for the same identity are independent; whichever pair
// the client keeps wins.
func (b *Broker) SwitchWorkspace(ctx context.Context, claims token.Claims, targetWorkspaceUID string) (*TokenPair, error) {
	if b == nil || b.switchDeps.Issue == nil {
		return nil, ErrBrokerNotReady
	}

	res := flows.RunSwitch(ctx, claims, targetWorkspaceUID, b.switchDeps)
	if res.Failure != flows.SwitchFailureNone {
		err := mapSwitchFailure(res)
		switch res.Failure {
		case flows.SwitchFailureNotAMember:
			b.metricInc(MetricSwitchDenied)
		case flows.SwitchFailureRateLimited:
			b.metricInc(MetricSwitchRateLimited)
		default:
			b.metricInc(MetricSwitchFailure)
		}
		if res.Failure == flows.SwitchFailureConfig {
			b.metricInc(MetricConfigError)
		}
		b.log.V(1).Info("workspace switch rejected",
			"reason", res.Failure.String(),
			"userUid", claims.UserUID,
			"target", targetWorkspaceUID,
		)
		b.emitAudit(ctx, auditEventSwitchFailure, false, claims, "", err, func() map[string]string {
			return map[string]string{
				"reason":        res.Failure.String(),
				"target_ws_uid": targetWorkspaceUID,
			}
		})
		return nil, err
	}

	b.metricInc(MetricSwitchSuccess)
	b.metricInc(MetricTokensIssued)
	b.emitAudit(ctx, auditEventSwitchSuccess, true, res.Claims, "", nil, func() map[string]string {
		return map[string]string{
			"from_workspace": claims.WorkspaceID,
			"role":           res.Workspace.Role,
		}
	})
	return &TokenPair{AccessToken: res.AccessToken, AppToken: res.AppToken}, nil
}

func mapSwitchFailure(res flows.SwitchResult) error {
	switch res.Failure {
	case flows.SwitchFailureInvalidRequest:
		return ErrInvalidRequest
	case flows.SwitchFailureNotAMember:
		return ErrNotAMember
	case flows.SwitchFailureRateLimited:
		return fmt.Errorf("%w: %w", ErrRateLimited, res.Err)
	case flows.SwitchFailureMembershipUnavailable:
		return fmt.Errorf("%w: %w", ErrMembershipUnavailable, res.Err)
	case flows.SwitchFailureConfig:
		return fmt.Errorf("%w: %w", ErrConfig, res.Err)
	default:
		return fmt.Errorf("issue tokens: %w", res.Err)
	}
}

// IssueTokens mints the access/app pair for claims as they are, e.g. right
// after the platform's sign-in.
func (b *Broker) IssueTokens(ctx context.Context, claims token.Claims) (*TokenPair, error) {
	if b == nil || b.codec == nil {
		return nil, ErrBrokerNotReady
	}
	if claims.UserUID == "" || claims.WorkspaceID == "" {
		return nil, ErrInvalidRequest
	}

	access, err := b.codec.Issue(claims, token.KindAccess)
	if err != nil {
		return nil, b.issueError(err)
	}
	app, err := b.codec.Issue(claims, token.KindApp)
	if err != nil {
		return nil, b.issueError(err)
	}

	b.metricInc(MetricTokensIssued)
	b.emitAudit(ctx, auditEventTokensIssued, true, claims, "", nil, nil)
	return &TokenPair{AccessToken: access, AppToken: app}, nil
}

// BillingToken mints a short-lived server-to-server token carrying only the
// user identifiers of claims.
func (b *Broker) BillingToken(claims token.Claims) (string, error) {
	if b == nil || b.codec == nil {
		return "", ErrBrokerNotReady
	}
	if claims.UserUID == "" {
		return "", ErrInvalidRequest
	}
	raw, err := b.codec.Issue(claims, token.KindBilling)
	if err != nil {
		return "", b.issueError(err)
	}
	b.metricInc(MetricBillingTokenIssued)
	return raw, nil
}

func (b *Broker) issueError(err error) error {
	if errors.Is(err, token.ErrConfig) {
		b.metricInc(MetricConfigError)
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return fmt.Errorf("issue token: %w", err)
}

// VerifyAppToken verifies a token presented to an embedded app's backend.
func (b *Broker) VerifyAppToken(raw string) (*token.Payload, error) {
	if b == nil || b.codec == nil {
		return nil, ErrBrokerNotReady
	}
	raw, err := flows.ExtractToken(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, ErrMissingToken)
	}
	payload, err := b.codec.Verify(raw, token.KindApp)
	if err != nil {
		if errors.Is(err, token.ErrConfig) {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return payload, nil
}

// VerifyResourceToken verifies a token signed with a cluster resource's own
// secret. The token is peeked only to locate that secret.
func (b *Broker) VerifyResourceToken(ctx context.Context, raw string) (*token.Payload, error) {
	if b == nil {
		return nil, ErrBrokerNotReady
	}
	if b.resources == nil {
		return nil, fmt.Errorf("%w: no kubernetes client for resource secrets", ErrConfig)
	}

	raw = strings.TrimSpace(raw)
	payload, err := b.resources.Verify(ctx, raw)
	if err != nil {
		b.metricInc(MetricResourceVerifyFailure)
		switch {
		case errors.Is(err, token.ErrConfig):
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		case errors.Is(err, resourceauth.ErrSecretUnavailable):
			return nil, fmt.Errorf("%w: %w", ErrResourceSecretUnavailable, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
	}
	b.metricInc(MetricResourceVerifySuccess)
	return payload, nil
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Ping checks the membership backend when it supports health checks.
func (b *Broker) Ping(ctx context.Context) error {
	if b == nil {
		return ErrBrokerNotReady
	}
	p, ok := b.members.(pinger)
	if !ok {
		return nil
	}
	_, err := p.Ping(ctx)
	return err
}
