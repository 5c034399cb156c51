package deskauth

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthorized wraps every authentication failure. The wrapped cause is
	// kept for logs and metrics and is never shown to the caller.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingToken is returned when the Authorization header is absent or empty.
	ErrMissingToken = errors.New("missing token")
	// ErrCredentialUnavailable is returned when the identity's kubeconfig cannot be loaded.
	ErrCredentialUnavailable = errors.New("credential unavailable")
	// ErrNotAMember is returned when a switch targets a workspace without an active membership.
	ErrNotAMember = errors.New("not a member of workspace")
	// ErrConfig marks a deployment defect such as a missing signing secret.
	ErrConfig = errors.New("server configuration error")
	// ErrInvalidRequest is returned for structurally invalid input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMembershipUnavailable is returned when the membership backend fails.
	ErrMembershipUnavailable = errors.New("membership backend unavailable")
	// ErrResourceSecretUnavailable is returned when a resource token's secret cannot be read.
	ErrResourceSecretUnavailable = errors.New("resource secret unavailable")
	// ErrRateLimited is returned when a user switches workspaces too often.
	ErrRateLimited = errors.New("rate limited")
	// ErrBrokerNotReady is returned by methods called on a nil or unbuilt Broker.
	ErrBrokerNotReady = errors.New("broker not ready")
)

// HTTPStatus maps a broker error to the HTTP status used in responses.
// Configuration errors win over every other classification.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrConfig), errors.Is(err, ErrBrokerNotReady):
		return http.StatusInternalServerError
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotAMember):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrMembershipUnavailable), errors.Is(err, ErrResourceSecretUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the generic text shown to callers for err. Internal
// distinctions between token failures are never exposed.
func PublicMessage(err error) string {
	switch HTTPStatus(err) {
	case http.StatusOK:
		return "ok"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusTooManyRequests:
		return "too many requests"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	default:
		return "internal server error"
	}
}
