package deskauth

import (
	"bytes"
	"errors"
	"time"

	"github.com/MrEthical07/deskauth/token"
)

// Config holds every broker setting. Use [DefaultConfig] as the starting
// point and [Config.Validate] before building.
type Config struct {
	Token      TokenConfig
	Credential CredentialConfig
	Membership MembershipConfig
	Resource   ResourceConfig
	RateLimit  RateLimitConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds one secret and lifetime per token kind.
//
// A missing secret is allowed: operations that need it fail with ErrConfig
// (HTTP 500) instead of refusing to start.
type TokenConfig struct {
	AccessSecret  []byte
	AppSecret     []byte
	BillingSecret []byte

	AccessTTL  time.Duration
	AppTTL     time.Duration
	BillingTTL time.Duration

	Issuer string
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// CredentialConfig bounds kubeconfig lookups.
type CredentialConfig struct {
	LookupTimeout time.Duration
	// RetryAttempts > 1 retries lookups that find no credential yet.
	RetryAttempts int
	RetryDelay    time.Duration
}

// MembershipConfig configures the Redis membership store.
type MembershipConfig struct {
	RedisPrefix   string
	LookupTimeout time.Duration
}

// ResourceConfig configures per-resource token verification.
type ResourceConfig struct {
	// SecretKey is the data key holding the signing secret inside the
	// resource's Secret object.
	SecretKey     string
	LookupTimeout time.Duration
}

// RateLimitConfig throttles workspace switches per user. It only applies
// when the broker is built with a Redis client. MaxSwitches 0 disables it.
type RateLimitConfig struct {
	MaxSwitches  int
	SwitchWindow time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults without secrets.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  12 * time.Hour,
			AppTTL:     12 * time.Hour,
			BillingTTL: 5 * time.Minute,
			Issuer:     "deskauth",
		},
		Credential: CredentialConfig{
			LookupTimeout: 5 * time.Second,
			RetryAttempts: 1,
			RetryDelay:    500 * time.Millisecond,
		},
		Membership: MembershipConfig{
			RedisPrefix:   "deskauth",
			LookupTimeout: 2 * time.Second,
		},
		Resource: ResourceConfig{
			SecretKey:     "SEALOS_DEVBOX_JWT_SECRET",
			LookupTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxSwitches:  30,
			SwitchWindow: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = cloneBytes(cfg.Token.AccessSecret)
	out.Token.AppSecret = cloneBytes(cfg.Token.AppSecret)
	out.Token.BillingSecret = cloneBytes(cfg.Token.BillingSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

const minSecretLength = 16

// Validate checks lifetimes, secret strength and timeouts.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 || c.Token.AppTTL <= 0 || c.Token.BillingTTL <= 0 {
		return errors.New("Token TTLs must be > 0")
	}
	if c.Token.BillingTTL > c.Token.AccessTTL {
		return errors.New("Token BillingTTL must not exceed AccessTTL")
	}
	secrets := [][]byte{c.Token.AccessSecret, c.Token.AppSecret, c.Token.BillingSecret}
	for i, s := range secrets {
		if len(s) > 0 && len(s) < minSecretLength {
			return errors.New("Token secrets must be at least 16 bytes")
		}
		for j := i + 1; j < len(secrets); j++ {
			if len(s) > 0 && bytes.Equal(s, secrets[j]) {
				return errors.New("Token secrets must differ per kind")
			}
		}
	}

	// Credential
	if c.Credential.LookupTimeout < 0 {
		return errors.New("Credential LookupTimeout must be >= 0")
	}
	if c.Credential.RetryAttempts < 0 {
		return errors.New("Credential RetryAttempts must be >= 0")
	}
	if c.Credential.RetryAttempts > 10 {
		return errors.New("Credential RetryAttempts must be <= 10")
	}
	if c.Credential.RetryAttempts > 1 && c.Credential.RetryDelay <= 0 {
		return errors.New("Credential RetryDelay must be > 0 when retrying")
	}

	// Membership
	if c.Membership.RedisPrefix == "" {
		return errors.New("Membership RedisPrefix must be set")
	}
	if c.Membership.LookupTimeout < 0 {
		return errors.New("Membership LookupTimeout must be >= 0")
	}

	// Resource
	if c.Resource.SecretKey == "" {
		return errors.New("Resource SecretKey must be set")
	}

	// RateLimit
	if c.RateLimit.MaxSwitches < 0 {
		return errors.New("RateLimit MaxSwitches must be >= 0")
	}
	if c.RateLimit.MaxSwitches > 0 && c.RateLimit.SwitchWindow <= 0 {
		return errors.New("RateLimit SwitchWindow must be > 0 when MaxSwitches is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func (c TokenConfig) codecConfig(now func() time.Time) token.Config {
	return token.Config{
		AccessSecret:  cloneBytes(c.AccessSecret),
		AppSecret:     cloneBytes(c.AppSecret),
		BillingSecret: cloneBytes(c.BillingSecret),
		AccessTTL:     c.AccessTTL,
		AppTTL:        c.AppTTL,
		BillingTTL:    c.BillingTTL,
		Issuer:        c.Issuer,
		Now:           now,
	}
}
