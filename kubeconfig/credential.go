package kubeconfig

import (
	"errors"
	"fmt"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

var (
	// ErrIdentityNotFound is returned when an identity has no backing credential yet.
	ErrIdentityNotFound = errors.New("identity has no credential")
	// ErrInvalidCredential is returned when a credential cannot be parsed.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Credential is an opaque serialized kubeconfig. The zero value is empty.
//
// Its content is never printed: String and GoString return a redacted marker
// so that a Credential passed to a logger does not leak keys or tokens.
type Credential struct {
	raw []byte
}

// New wraps raw kubeconfig bytes. The slice is copied.
func New(raw []byte) Credential {
	return Credential{raw: clone(raw)}
}

// Empty reports whether the credential carries no data.
func (c Credential) Empty() bool { return len(c.raw) == 0 }

// Bytes returns a copy of the serialized kubeconfig.
func (c Credential) Bytes() []byte { return clone(c.raw) }

func (c Credential) String() string { return "kubeconfig(redacted)" }

func (c Credential) GoString() string { return c.String() }

// Namespace returns the namespace of the current context.
func (c Credential) Namespace() (string, error) {
	cfg, err := c.load()
	if err != nil {
		return "", err
	}
	kctx, err := currentContext(cfg)
	if err != nil {
		return "", err
	}
	return kctx.Namespace, nil
}

// RESTConfig builds a client configuration for a single outbound call.
func (c Credential) RESTConfig() (*rest.Config, error) {
	if c.Empty() {
		return nil, ErrInvalidCredential
	}
	cfg, err := clientcmd.RESTConfigFromKubeConfig(c.raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return cfg, nil
}

// Retarget returns a copy of cred whose current context points at namespace.
// It performs no I/O and no authorization: the caller must already have
// established that the identity may use namespace.
func Retarget(cred Credential, namespace string) (Credential, error) {
	if namespace == "" {
		return Credential{}, errors.New("namespace is required")
	}
	cfg, err := cred.load()
	if err != nil {
		return Credential{}, err
	}
	kctx, err := currentContext(cfg)
	if err != nil {
		return Credential{}, err
	}
	kctx.Namespace = namespace

	out, err := clientcmd.Write(*cfg)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return Credential{raw: out}, nil
}

func (c Credential) load() (*clientcmdapi.Config, error) {
	if c.Empty() {
		return nil, ErrInvalidCredential
	}
	cfg, err := clientcmd.Load(c.raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return cfg, nil
}

func currentContext(cfg *clientcmdapi.Config) (*clientcmdapi.Context, error) {
	if kctx, ok := cfg.Contexts[cfg.CurrentContext]; ok && kctx != nil {
		return kctx, nil
	}
	// Generated user kubeconfigs sometimes omit current-context but carry
	// exactly one context.
	if len(cfg.Contexts) == 1 {
		for name, kctx := range cfg.Contexts {
			if kctx != nil {
				cfg.CurrentContext = name
				return kctx, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no current context", ErrInvalidCredential)
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
