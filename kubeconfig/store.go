package kubeconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
)

// UserResource is the cluster-scoped custom resource that owns a user's
// generated kubeconfig in status.kubeConfig.
var UserResource = schema.GroupVersionResource{
	Group:    "user.sealos.io",
	Version:  "v1",
	Resource: "users",
}

// Fetcher resolves an identity to its cluster credential.
//
// Implementations must be safe to retry and must never return a partial
// credential alongside an error.
type Fetcher interface {
	Fetch(ctx context.Context, userCrName string) (Credential, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, userCrName string) (Credential, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, userCrName string) (Credential, error) {
	return f(ctx, userCrName)
}

// UserStore reads credentials from user custom resources.
type UserStore struct {
	client  dynamic.Interface
	gvr     schema.GroupVersionResource
	timeout time.Duration
}

// NewUserStore returns a UserStore that bounds each lookup by timeout.
// A non-positive timeout disables the bound.
func NewUserStore(client dynamic.Interface, timeout time.Duration) *UserStore {
	return &UserStore{
		client:  client,
		gvr:     UserResource,
		timeout: timeout,
	}
}

// Fetch implements Fetcher.
func (s *UserStore) Fetch(ctx context.Context, userCrName string) (Credential, error) {
	if s == nil || s.client == nil {
		return Credential{}, errors.New("user store not configured")
	}
	if userCrName == "" {
		return Credential{}, ErrIdentityNotFound
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	obj, err := s.client.Resource(s.gvr).Get(ctx, userCrName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return Credential{}, fmt.Errorf("%w: %s", ErrIdentityNotFound, userCrName)
		}
		return Credential{}, fmt.Errorf("get user %s: %w", userCrName, err)
	}

	raw, found, err := unstructured.NestedString(obj.Object, "status", "kubeConfig")
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !found || raw == "" {
		return Credential{}, fmt.Errorf("%w: %s", ErrIdentityNotFound, userCrName)
	}

	return New([]byte(raw)), nil
}
