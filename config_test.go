package deskauth

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/deskauth/token"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero access ttl", func(c *Config) { c.Token.AccessTTL = 0 }},
		{"billing outlives access", func(c *Config) { c.Token.BillingTTL = 2 * c.Token.AccessTTL }},
		{"short secret", func(c *Config) { c.Token.AccessSecret = []byte("short") }},
		{"shared secret", func(c *Config) { c.Token.AppSecret = c.Token.AccessSecret }},
		{"negative timeout", func(c *Config) { c.Credential.LookupTimeout = -time.Second }},
		{"retry without delay", func(c *Config) { c.Credential.RetryAttempts = 3; c.Credential.RetryDelay = 0 }},
		{"too many retries", func(c *Config) { c.Credential.RetryAttempts = 50 }},
		{"empty prefix", func(c *Config) { c.Membership.RedisPrefix = "" }},
		{"empty secret key", func(c *Config) { c.Resource.SecretKey = "" }},
		{"audit without buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
		{"negative switch limit", func(c *Config) { c.RateLimit.MaxSwitches = -1 }},
		{"switch limit without window", func(c *Config) { c.RateLimit.SwitchWindow = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWithConfigCopiesSecrets(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.Token.AccessSecret[0] = 'X'
	if b.config.Token.AccessSecret[0] == 'X' {
		t.Fatal("builder must not alias caller secrets")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.Join(ErrUnauthorized, token.ErrExpired), http.StatusUnauthorized},
		{ErrNotAMember, http.StatusForbidden},
		{ErrInvalidRequest, http.StatusBadRequest},
		{ErrMembershipUnavailable, http.StatusServiceUnavailable},
		{ErrRateLimited, http.StatusTooManyRequests},
		{errors.Join(ErrUnauthorized, ErrConfig), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
	if PublicMessage(errors.Join(ErrUnauthorized, token.ErrExpired)) != "unauthorized" {
		t.Fatal("token failure detail leaked into public message")
	}
}
