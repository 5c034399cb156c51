package kubeconfig

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Retrying retries lookups that fail with ErrIdentityNotFound. It exists for
// call sites that run right after an asynchronous provisioning step, where
// the credential is expected to appear shortly.
//
// The delay between attempts is fixed. A cancelled context ends the wait.
type Retrying struct {
	Inner    Fetcher
	Attempts int
	Delay    time.Duration
}

// Fetch implements Fetcher.
func (r Retrying) Fetch(ctx context.Context, userCrName string) (Credential, error) {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := wait.Backoff{
		Steps:    attempts,
		Duration: r.Delay,
		Factor:   1.0,
	}

	var (
		cred    Credential
		lastErr error
	)
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		c, err := r.Inner.Fetch(ctx, userCrName)
		switch {
		case err == nil:
			cred = c
			return true, nil
		case errors.Is(err, ErrIdentityNotFound):
			lastErr = err
			return false, nil
		default:
			return false, err
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Credential{}, ctxErr
		}
		if wait.Interrupted(err) && lastErr != nil {
			return Credential{}, lastErr
		}
		return Credential{}, err
	}
	return cred, nil
}
