package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/billing"
	promexport "github.com/MrEthical07/deskauth/metrics/export/prometheus"
	"github.com/MrEthical07/deskauth/server"
)

// Signing secrets come from the environment only.
const (
	envAccessSecret  = "DESKAUTH_ACCESS_SECRET"
	envAppSecret     = "DESKAUTH_APP_SECRET"
	envBillingSecret = "DESKAUTH_BILLING_SECRET"
	envRedisPassword = "REDIS_PASSWORD"
)

type RawOptions struct {
	BindAddress string
	Kubeconfig  string

	RedisAddrs  []string
	RedisPrefix string

	BillingURL     string
	BillingTimeout time.Duration

	AccessTTL  time.Duration
	AppTTL     time.Duration
	BillingTTL time.Duration

	CredentialRetries    int
	CredentialRetryDelay time.Duration

	MaxSwitches  int
	SwitchWindow time.Duration

	ResourceSecretKey string

	OTLPEndpoint string
	OTLPInterval time.Duration

	Audit     bool
	LogFormat string
	Verbosity int
}

func DefaultOptions() *RawOptions {
	cfg := deskauth.DefaultConfig()
	return &RawOptions{
		BindAddress:          ":8080",
		RedisAddrs:           []string{"localhost:6379"},
		RedisPrefix:          cfg.Membership.RedisPrefix,
		BillingTimeout:       billing.DefaultTimeout,
		AccessTTL:            cfg.Token.AccessTTL,
		AppTTL:               cfg.Token.AppTTL,
		BillingTTL:           cfg.Token.BillingTTL,
		CredentialRetries:    cfg.Credential.RetryAttempts,
		CredentialRetryDelay: cfg.Credential.RetryDelay,
		MaxSwitches:          cfg.RateLimit.MaxSwitches,
		SwitchWindow:         cfg.RateLimit.SwitchWindow,
		ResourceSecretKey:    cfg.Resource.SecretKey,
		OTLPInterval:         30 * time.Second,
		LogFormat:            "json",
	}
}

func (o *RawOptions) BindFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.BindAddress, "bind-address", o.BindAddress, "Address the HTTP server listens on.")
	f.StringVar(&o.Kubeconfig, "kubeconfig", "", "Path to a kubeconfig. In-cluster config is tried first.")
	f.StringSliceVar(&o.RedisAddrs, "redis-addr", o.RedisAddrs, "Redis address(es) holding workspace memberships.")
	f.StringVar(&o.RedisPrefix, "redis-prefix", o.RedisPrefix, "Key prefix for membership records.")
	f.StringVar(&o.BillingURL, "billing-url", "", "Base URL of the billing service. Empty disables /api/billing.")
	f.DurationVar(&o.BillingTimeout, "billing-timeout", o.BillingTimeout, "Timeout of a single billing call.")
	f.DurationVar(&o.AccessTTL, "access-ttl", o.AccessTTL, "Lifetime of access tokens.")
	f.DurationVar(&o.AppTTL, "app-ttl", o.AppTTL, "Lifetime of app tokens.")
	f.DurationVar(&o.BillingTTL, "billing-ttl", o.BillingTTL, "Lifetime of billing tokens.")
	f.IntVar(&o.CredentialRetries, "credential-retries", o.CredentialRetries, "Attempts to load a freshly provisioned user's kubeconfig.")
	f.DurationVar(&o.CredentialRetryDelay, "credential-retry-delay", o.CredentialRetryDelay, "Fixed delay between credential attempts.")
	f.IntVar(&o.MaxSwitches, "max-switches", o.MaxSwitches, "Workspace switches allowed per user per window. 0 disables the limit.")
	f.DurationVar(&o.SwitchWindow, "switch-window", o.SwitchWindow, "Window of the workspace switch limit.")
	f.StringVar(&o.ResourceSecretKey, "resource-secret-key", o.ResourceSecretKey, "Secret data key holding a resource's signing secret.")
	f.StringVar(&o.OTLPEndpoint, "otlp-endpoint", "", "OTLP/HTTP metrics URL, e.g. http://collector:4318/v1/metrics. Empty disables the push.")
	f.DurationVar(&o.OTLPInterval, "otlp-interval", o.OTLPInterval, "Interval between OTLP metric pushes.")
	f.BoolVar(&o.Audit, "audit", o.Audit, "Write audit events to the log.")
	f.StringVar(&o.LogFormat, "log-format", o.LogFormat, "Log output: json or console.")
	f.IntVarP(&o.Verbosity, "verbosity", "v", o.Verbosity, "Log verbosity.")
}

type validatedOptions struct {
	*RawOptions
	config deskauth.Config
}

type ValidatedOptions struct {
	*validatedOptions
}

func (o *RawOptions) Validate() (*ValidatedOptions, error) {
	if o.BindAddress == "" {
		return nil, errors.New("bind-address is required")
	}
	if len(o.RedisAddrs) == 0 {
		return nil, errors.New("redis-addr is required")
	}
	if o.LogFormat != "json" && o.LogFormat != "console" {
		return nil, fmt.Errorf("unknown log-format %q", o.LogFormat)
	}
	if o.OTLPEndpoint != "" {
		u, err := url.Parse(o.OTLPEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("otlp-endpoint must be an http(s) URL, got %q", o.OTLPEndpoint)
		}
		if o.OTLPInterval <= 0 {
			return nil, errors.New("otlp-interval must be > 0")
		}
	}

	cfg := deskauth.DefaultConfig()
	cfg.Token.AccessSecret = secretFromEnv(envAccessSecret)
	cfg.Token.AppSecret = secretFromEnv(envAppSecret)
	cfg.Token.BillingSecret = secretFromEnv(envBillingSecret)
	cfg.Token.AccessTTL = o.AccessTTL
	cfg.Token.AppTTL = o.AppTTL
	cfg.Token.BillingTTL = o.BillingTTL
	cfg.Credential.RetryAttempts = o.CredentialRetries
	cfg.Credential.RetryDelay = o.CredentialRetryDelay
	cfg.Membership.RedisPrefix = o.RedisPrefix
	cfg.RateLimit.MaxSwitches = o.MaxSwitches
	cfg.RateLimit.SwitchWindow = o.SwitchWindow
	cfg.Resource.SecretKey = o.ResourceSecretKey
	cfg.Audit.Enabled = o.Audit

	if len(cfg.Token.AccessSecret) == 0 {
		return nil, fmt.Errorf("%s is required", envAccessSecret)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &ValidatedOptions{validatedOptions: &validatedOptions{RawOptions: o, config: cfg}}, nil
}

func secretFromEnv(name string) []byte {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	return []byte(v)
}

type completedOptions struct {
	log    logr.Logger
	redis  redis.UniversalClient
	broker *deskauth.Broker
	server *server.Server
	otel   *otelMetrics
}

type Options struct {
	*completedOptions
}

func (o *ValidatedOptions) Complete(ctx context.Context) (*Options, error) {
	log := o.newLogger()

	restConfig, err := o.buildKubeConfig(log)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	kube, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    o.RedisAddrs,
		Password: os.Getenv(envRedisPassword),
	})

	b := deskauth.New().
		WithConfig(o.config).
		WithRedis(rdb).
		WithDynamicClient(dyn).
		WithKubernetesClient(kube).
		WithLogger(log)
	if o.Audit {
		b = b.WithAuditSink(deskauth.NewLogSink(log.WithName("audit")))
	}
	broker, err := b.Build()
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to build broker: %w", err)
	}

	metrics, err := promexport.Handler(broker)
	if err != nil {
		broker.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	srvOpts := server.Options{
		Addr:    o.BindAddress,
		Metrics: metrics,
		Logger:  log,
	}
	if o.BillingURL != "" {
		srvOpts.Billing = billing.New(o.BillingURL, broker, o.BillingTimeout)
	}
	srv, err := server.New(broker, srvOpts)
	if err != nil {
		broker.Close()
		_ = rdb.Close()
		return nil, err
	}

	var om *otelMetrics
	if o.OTLPEndpoint != "" {
		om, err = startOTelMetrics(ctx, o.OTLPEndpoint, o.OTLPInterval, broker)
		if err != nil {
			broker.Close()
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to start otlp metrics: %w", err)
		}
		log.V(1).Info("pushing metrics over otlp", "endpoint", o.OTLPEndpoint, "interval", o.OTLPInterval)
	}

	return &Options{completedOptions: &completedOptions{
		log:    log,
		redis:  rdb,
		broker: broker,
		server: srv,
		otel:   om,
	}}, nil
}

func (o *ValidatedOptions) newLogger() logr.Logger {
	var zl zerolog.Logger
	if o.LogFormat == "console" {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zl = zerolog.New(os.Stderr)
	}
	zl = zl.With().Timestamp().Logger()
	zerologr.SetMaxV(o.Verbosity)
	return zerologr.New(&zl)
}

// buildKubeConfig tries in-cluster config first and falls back to the
// default loading rules.
func (o *ValidatedOptions) buildKubeConfig(log logr.Logger) (*rest.Config, error) {
	config, err := rest.InClusterConfig()
	if err == nil {
		log.V(2).Info("using in-cluster kubeconfig")
		return config, nil
	}

	log.V(2).Info("not running in-cluster, using out-of-cluster kubeconfig")
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if o.Kubeconfig != "" {
		loadingRules.ExplicitPath = o.Kubeconfig
	}
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
	return kubeConfig.ClientConfig()
}

func (o *Options) Run(ctx context.Context) error {
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.otel.Shutdown(shutdownCtx); err != nil {
			o.log.Error(err, "otlp metrics shutdown failed")
		}
		o.broker.Close()
		_ = o.redis.Close()
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := o.broker.Ping(ctx); err != nil {
			o.log.Error(err, "membership backend not reachable at startup")
		}
		return nil
	})
	g.Go(func() error {
		if err := o.server.Run(ctx); err != nil {
			o.log.Error(err, "server stopped with error")
			return err
		}
		o.log.Info("server stopped")
		return nil
	})
	return g.Wait()
}
