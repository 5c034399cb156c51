// Package resourceauth verifies tokens signed with a secret that belongs to a
// single cluster resource rather than to the broker.
//
// The token is peeked first to learn where its secret lives. The peeked values
// only locate the Secret object; authorization happens after full
// verification against that secret.
package resourceauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/MrEthical07/deskauth/token"
)

var (
	// ErrSecretNotFound is returned when the resource has no signing secret.
	ErrSecretNotFound = errors.New("resource secret not found")
	// ErrSecretUnavailable is returned when the secret lookup itself fails.
	ErrSecretUnavailable = errors.New("resource secret lookup failed")
)

// ResourceVerifier checks a token against a resource's own secret.
type ResourceVerifier interface {
	VerifyResource(raw string, secret []byte, resource string) (*token.Payload, error)
}

// Verifier resolves per-resource secrets from Kubernetes Secrets named after
// the resource in the token's namespace.
type Verifier struct {
	client    kubernetes.Interface
	codec     ResourceVerifier
	secretKey string
	timeout   time.Duration
}

// NewVerifier returns a Verifier reading secretKey from each resource Secret.
func NewVerifier(client kubernetes.Interface, codec ResourceVerifier, secretKey string, timeout time.Duration) *Verifier {
	return &Verifier{
		client:    client,
		codec:     codec,
		secretKey: secretKey,
		timeout:   timeout,
	}
}

// Verify peeks raw to locate the resource secret, then fully verifies raw
// against it.
func (v *Verifier) Verify(ctx context.Context, raw string) (*token.Payload, error) {
	if v == nil || v.client == nil || v.codec == nil {
		return nil, token.ErrConfig
	}

	locator, err := token.PeekUnverified(raw)
	if err != nil {
		return nil, err
	}
	namespace, resource := locator.Namespace(), locator.Subject()
	if namespace == "" || resource == "" {
		return nil, fmt.Errorf("%w: token does not name a resource", token.ErrMalformed)
	}

	secret, err := v.secret(ctx, namespace, resource)
	if err != nil {
		return nil, err
	}

	payload, err := v.codec.VerifyResource(raw, secret, resource)
	if err != nil {
		return nil, err
	}
	if payload.Claims.WorkspaceID != namespace {
		return nil, fmt.Errorf("%w: namespace mismatch", token.ErrInvalidSignature)
	}
	return payload, nil
}

func (v *Verifier) secret(ctx context.Context, namespace, name string) ([]byte, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	obj, err := v.client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrSecretNotFound, namespace, name)
		}
		return nil, fmt.Errorf("%w: %v", ErrSecretUnavailable, err)
	}
	value := obj.Data[v.secretKey]
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: %s/%s has no %s", ErrSecretNotFound, namespace, name, v.secretKey)
	}
	return value, nil
}
