package deskauth

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/MrEthical07/deskauth/internal/audit"
	"github.com/MrEthical07/deskauth/internal/flows"
	"github.com/MrEthical07/deskauth/internal/rate"
	"github.com/MrEthical07/deskauth/kubeconfig"
	"github.com/MrEthical07/deskauth/membership"
	"github.com/MrEthical07/deskauth/resourceauth"
	"github.com/MrEthical07/deskauth/token"
)

// Builder assembles a [Broker]. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config

	redis   redis.UniversalClient
	members membership.Store

	fetcher kubeconfig.Fetcher
	dynamic dynamic.Interface
	kube    kubernetes.Interface

	codec     TokenCodec
	auditSink AuditSink
	logger    logr.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: logr.Discard(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs membership lookups with a [membership.RedisStore].
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMembershipStore overrides WithRedis.
func (b *Builder) WithMembershipStore(store membership.Store) *Builder {
	b.members = store
	return b
}

// WithDynamicClient reads credentials from user custom resources.
func (b *Builder) WithDynamicClient(client dynamic.Interface) *Builder {
	b.dynamic = client
	return b
}

// WithCredentialFetcher overrides WithDynamicClient.
func (b *Builder) WithCredentialFetcher(f kubeconfig.Fetcher) *Builder {
	b.fetcher = f
	return b
}

// WithKubernetesClient enables resource-token verification against Secrets.
func (b *Builder) WithKubernetesClient(client kubernetes.Interface) *Builder {
	b.kube = client
	return b
}

// WithTokenCodec replaces the codec used for Issue and Verify. Resource
// tokens always use the built-in codec.
func (b *Builder) WithTokenCodec(codec TokenCodec) *Builder {
	b.codec = codec
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger logr.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock sets the time source for token issue and expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the broker.
func (b *Builder) Build() (*Broker, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- TOKENS --------
	tokens, err := token.NewCodec(cfg.Token.codecConfig(now))
	if err != nil {
		return nil, err
	}
	var codec TokenCodec = tokens
	if b.codec != nil {
		codec = b.codec
	}

	// -------- MEMBERSHIP --------
	members := b.members
	if members == nil {
		if b.redis == nil {
			return nil, errors.New("membership store or redis client required")
		}
		members = membership.NewRedisStore(b.redis, cfg.Membership.RedisPrefix, cfg.Membership.LookupTimeout)
	}

	// -------- CREDENTIALS --------
	fetcher := b.fetcher
	if fetcher == nil {
		if b.dynamic == nil {
			return nil, errors.New("credential fetcher or dynamic client required")
		}
		fetcher = kubeconfig.NewUserStore(b.dynamic, cfg.Credential.LookupTimeout)
	}
	if cfg.Credential.RetryAttempts > 1 {
		fetcher = kubeconfig.Retrying{
			Inner:    fetcher,
			Attempts: cfg.Credential.RetryAttempts,
			Delay:    cfg.Credential.RetryDelay,
		}
	}

	broker := &Broker{
		config:  cfg,
		codec:   codec,
		tokens:  tokens,
		fetcher: fetcher,
		members: members,
		metrics: NewMetrics(cfg.Metrics),
		log:     b.logger.WithName("deskauth"),
		now:     now,
	}
	if b.kube != nil {
		broker.resources = resourceauth.NewVerifier(b.kube, tokens, cfg.Resource.SecretKey, cfg.Resource.LookupTimeout)
	}
	broker.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	broker.authDeps = flows.AuthenticateDeps{
		VerifyAccess: func(raw string) (*token.Payload, error) {
			return codec.Verify(raw, token.KindAccess)
		},
		FetchCredential: fetcher.Fetch,
		Retarget:        kubeconfig.Retarget,
	}
	var limiter *rate.Limiter
	if b.redis != nil && cfg.RateLimit.MaxSwitches > 0 {
		limiter = rate.New(b.redis, rate.Config{
			Prefix:      cfg.Membership.RedisPrefix,
			MaxSwitches: cfg.RateLimit.MaxSwitches,
			Window:      cfg.RateLimit.SwitchWindow,
		})
	}

	broker.switchDeps = flows.SwitchDeps{
		ActiveWorkspaces: func(ctx context.Context, userCrUID string) ([]membership.Workspace, error) {
			return members.ActiveWorkspaces(ctx, userCrUID)
		},
		Issue: codec.Issue,
	}
	if limiter != nil {
		broker.switchDeps.Allow = limiter.AllowSwitch
	}

	b.built = true

	return broker, nil
}
