package deskauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/deskauth/token"
)

const (
	auditEventAuthenticateFailure = "authenticate_failure"
	auditEventSwitchSuccess       = "workspace_switch_success"
	auditEventSwitchFailure       = "workspace_switch_failure"
	auditEventTokensIssued        = "tokens_issued"
)

// AuditErrorCode is the coarse error class recorded in audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized          AuditErrorCode = "unauthorized"
	auditErrMissingToken          AuditErrorCode = "missing_token"
	auditErrExpired               AuditErrorCode = "expired"
	auditErrInvalidToken          AuditErrorCode = "invalid_token"
	auditErrCredentialUnavailable AuditErrorCode = "credential_unavailable"
	auditErrNotAMember            AuditErrorCode = "not_a_member"
	auditErrInvalidRequest        AuditErrorCode = "invalid_request"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrConfig                AuditErrorCode = "config"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (b *Broker) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	claims token.Claims,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if b == nil || b.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["request_id"] = id
	}

	event := AuditEvent{
		Timestamp:   b.now().UTC(),
		EventType:   eventType,
		UserUID:     claims.UserUID,
		UserCrName:  claims.UserCrName,
		WorkspaceID: claims.WorkspaceID,
		TokenID:     tokenID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	b.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	// Most specific first: an expired token also wraps ErrUnauthorized.
	switch {
	case errors.Is(err, ErrConfig):
		return auditErrConfig
	case errors.Is(err, ErrMissingToken):
		return auditErrMissingToken
	case errors.Is(err, token.ErrExpired):
		return auditErrExpired
	case errors.Is(err, token.ErrMalformed),
		errors.Is(err, token.ErrInvalidSignature):
		return auditErrInvalidToken
	case errors.Is(err, ErrCredentialUnavailable):
		return auditErrCredentialUnavailable
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrNotAMember):
		return auditErrNotAMember
	case errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrMembershipUnavailable),
		errors.Is(err, ErrResourceSecretUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
