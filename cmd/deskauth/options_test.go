package main

import (
	"strings"
	"testing"
	"time"
)

func setSecrets(t *testing.T) {
	t.Setenv(envAccessSecret, "access-secret-access-secret-0001")
	t.Setenv(envAppSecret, "app-secret-app-secret-app-secr02")
	t.Setenv(envBillingSecret, "billing-secret-billing-secret-03")
}

func TestValidateReadsSecretsFromEnv(t *testing.T) {
	setSecrets(t)
	opts := DefaultOptions()
	opts.AccessTTL = time.Hour

	v, err := opts.Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if string(v.config.Token.AppSecret) != "app-secret-app-secret-app-secr02" {
		t.Fatal("app secret not taken from env")
	}
	if v.config.Token.AccessTTL != time.Hour {
		t.Fatalf("access ttl = %v", v.config.Token.AccessTTL)
	}
}

func TestValidateRequiresAccessSecret(t *testing.T) {
	t.Setenv(envAccessSecret, "")
	if _, err := DefaultOptions().Validate(); err == nil || !strings.Contains(err.Error(), envAccessSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	setSecrets(t)

	opts := DefaultOptions()
	opts.LogFormat = "xml"
	if _, err := opts.Validate(); err == nil {
		t.Fatal("expected unknown log format to fail")
	}

	opts = DefaultOptions()
	opts.CredentialRetries = 50
	if _, err := opts.Validate(); err == nil {
		t.Fatal("expected excessive retries to fail")
	}

	opts = DefaultOptions()
	opts.MaxSwitches = -1
	if _, err := opts.Validate(); err == nil {
		t.Fatal("expected negative switch limit to fail")
	}

	opts = DefaultOptions()
	opts.OTLPEndpoint = "collector:4318"
	if _, err := opts.Validate(); err == nil {
		t.Fatal("expected schemeless otlp endpoint to fail")
	}

	t.Setenv(envAppSecret, "access-secret-access-secret-0001")
	if _, err := DefaultOptions().Validate(); err == nil {
		t.Fatal("expected shared secrets to fail")
	}
}

func TestCommandFlags(t *testing.T) {
	cmd := newCommand()
	for _, name := range []string{"bind-address", "kubeconfig", "redis-addr", "billing-url", "access-ttl", "credential-retries", "max-switches", "switch-window", "otlp-endpoint", "audit"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing flag --%s", name)
		}
	}
}
