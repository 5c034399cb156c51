package kubeconfig

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
)

func userObject(name, kubeconfig string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "user.sealos.io/v1",
		"kind":       "User",
		"metadata":   map[string]interface{}{"name": name},
	}}
	if kubeconfig != "" {
		obj.Object["status"] = map[string]interface{}{"kubeConfig": kubeconfig}
	}
	return obj
}

func newFakeStore(objs ...runtime.Object) *UserStore {
	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{UserResource: "UserList"},
		objs...,
	)
	return NewUserStore(client, time.Second)
}

func TestUserStoreFetch(t *testing.T) {
	store := newFakeStore(userObject("u1cr", sampleKubeconfig), userObject("pending", ""))

	cred, err := store.Fetch(context.Background(), "u1cr")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if ns, _ := cred.Namespace(); ns != "ns-wsa" {
		t.Fatalf("unexpected namespace %q", ns)
	}

	if _, err := store.Fetch(context.Background(), "missing"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound for missing user, got %v", err)
	}
	if _, err := store.Fetch(context.Background(), "pending"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound for user without kubeconfig, got %v", err)
	}
	if _, err := store.Fetch(context.Background(), ""); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound for empty name, got %v", err)
	}
}

func TestRetryingEventuallySucceeds(t *testing.T) {
	var calls int32
	inner := FetcherFunc(func(ctx context.Context, name string) (Credential, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return Credential{}, ErrIdentityNotFound
		}
		return New([]byte(sampleKubeconfig)), nil
	})

	cred, err := Retrying{Inner: inner, Attempts: 5, Delay: time.Millisecond}.Fetch(context.Background(), "u1cr")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if cred.Empty() {
		t.Fatal("expected credential")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestRetryingGivesUp(t *testing.T) {
	var calls int32
	inner := FetcherFunc(func(ctx context.Context, name string) (Credential, error) {
		atomic.AddInt32(&calls, 1)
		return Credential{}, ErrIdentityNotFound
	})

	cred, err := Retrying{Inner: inner, Attempts: 3, Delay: time.Millisecond}.Fetch(context.Background(), "u1cr")
	if !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
	if !cred.Empty() {
		t.Fatal("partial credential returned")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestRetryingDoesNotRetryOtherErrors(t *testing.T) {
	var calls int32
	boom := errors.New("apiserver down")
	inner := FetcherFunc(func(ctx context.Context, name string) (Credential, error) {
		atomic.AddInt32(&calls, 1)
		return Credential{}, boom
	})

	if _, err := (Retrying{Inner: inner, Attempts: 4, Delay: time.Millisecond}).Fetch(context.Background(), "u1cr"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestRetryingStopsWaitingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	inner := FetcherFunc(func(ctx context.Context, name string) (Credential, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return Credential{}, ErrIdentityNotFound
	})

	start := time.Now()
	_, err := Retrying{Inner: inner, Attempts: 5, Delay: 10 * time.Second}.Fetch(ctx, "u1cr")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("fetch kept waiting after cancel: %v", elapsed)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}
