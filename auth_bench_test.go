package deskauth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/deskauth/membership"
	"github.com/MrEthical07/deskauth/token"
)

func BenchmarkAuthenticate(b *testing.B) {
	broker, cleanup := newBenchmarkBroker(b)
	defer cleanup()

	raw, err := broker.codec.Issue(baseClaims(), token.KindAccess)
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}
	header := authHeader(raw)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := broker.Authenticate(context.Background(), header); err != nil {
			b.Fatalf("authenticate failed: %v", err)
		}
	}
}

func BenchmarkVerifyAppToken(b *testing.B) {
	broker, cleanup := newBenchmarkBroker(b)
	defer cleanup()

	raw, err := broker.codec.Issue(baseClaims(), token.KindApp)
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := broker.VerifyAppToken(raw); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkSwitchWorkspace(b *testing.B) {
	broker, cleanup := newBenchmarkBroker(b)
	defer cleanup()

	claims := baseClaims()
	targets := [2]string{"wsB", "wsA"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := broker.SwitchWorkspace(context.Background(), claims, targets[i%2])
		if err != nil {
			b.Fatalf("switch failed: %v", err)
		}
		if pair.AccessToken == "" {
			b.Fatal("empty access token")
		}
	}
}

func newBenchmarkBroker(tb testing.TB) (*Broker, func()) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Metrics.Enabled = false
	cfg.Audit.Enabled = false
	cfg.RateLimit.MaxSwitches = 0
	cfg.Token.AccessTTL = 10 * time.Minute
	cfg.Token.AppTTL = 10 * time.Minute

	store := membership.NewRedisStore(rdb, cfg.Membership.RedisPrefix, time.Second)
	for _, ws := range []membership.Workspace{
		{UID: "wsA", ID: "wsA", Role: "owner", Status: membership.StatusActive},
		{UID: "wsB", ID: "wsB", Role: "developer", Status: membership.StatusActive},
	} {
		if err := store.Put(context.Background(), "u1", ws); err != nil {
			tb.Fatalf("seed membership failed: %v", err)
		}
	}

	broker, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialFetcher(&countingFetcher{}).
		Build()
	if err != nil {
		tb.Fatalf("Build failed: %v", err)
	}

	return broker, func() {
		broker.Close()
		_ = rdb.Close()
		mr.Close()
	}
}
