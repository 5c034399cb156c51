package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/kubeconfig"
	"github.com/MrEthical07/deskauth/membership"
	"github.com/MrEthical07/deskauth/token"
)

const userKubeconfig = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://apiserver.cluster.local:6443
  name: sealos
contexts:
- context:
    cluster: sealos
    namespace: ns-home
    user: loadtest
  name: loadtest@sealos
current-context: loadtest@sealos
users:
- name: loadtest
  user:
    token: loadtest-bearer
`

type userState struct {
	claims token.Claims
	header http.Header
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (authenticate + switch)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "membership key prefix")
		maxSwitches = flag.Int("max-switches", 0, "per-user switch limit per minute; 0 disables")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := deskauth.DefaultConfig()
	cfg.Token.AccessSecret = []byte("loadtest-access-secret-000000001")
	cfg.Token.AppSecret = []byte("loadtest-app-secret-000000000002")
	cfg.Token.BillingSecret = []byte("loadtest-billing-secret-00000003")
	cfg.Membership.RedisPrefix = *prefix
	cfg.RateLimit.MaxSwitches = *maxSwitches
	cfg.RateLimit.SwitchWindow = time.Minute

	cred := kubeconfig.New([]byte(userKubeconfig))
	broker, err := deskauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialFetcher(kubeconfig.FetcherFunc(func(context.Context, string) (kubeconfig.Credential, error) {
			return cred, nil
		})).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build broker: %v\n", err)
		os.Exit(1)
	}
	defer broker.Close()

	members := membership.NewRedisStore(client, *prefix, 0)
	states := make([]userState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := 0; i < *users; i++ {
		st, err := seedUser(ctx, broker, members, i)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = st
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		_, err := broker.Authenticate(ctx, states[r.Intn(len(states))].header)
		return err
	})
	switchStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		st := states[r.Intn(len(states))]
		target := "wsB-" + st.claims.UserCrUID
		if r.Intn(2) == 0 {
			target = "wsA-" + st.claims.UserCrUID
		}
		_, err := broker.SwitchWorkspace(ctx, st.claims, target)
		return err
	})

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("switch", switchStats)
}

func seedUser(ctx context.Context, broker *deskauth.Broker, members *membership.RedisStore, i int) (userState, error) {
	crUID := fmt.Sprintf("cr-%d", i)
	for _, ws := range []membership.Workspace{
		{UID: "wsA-" + crUID, ID: "ns-a-" + crUID, Role: "owner", Status: membership.StatusActive},
		{UID: "wsB-" + crUID, ID: "ns-b-" + crUID, Role: "developer", Status: membership.StatusActive},
	} {
		if err := members.Put(ctx, crUID, ws); err != nil {
			return userState{}, err
		}
	}

	claims := token.Claims{
		UserID:       fmt.Sprintf("user-%d", i),
		UserUID:      fmt.Sprintf("uid-%d", i),
		UserCrName:   fmt.Sprintf("user%d", i),
		UserCrUID:    crUID,
		WorkspaceID:  "ns-a-" + crUID,
		WorkspaceUID: "wsA-" + crUID,
	}
	pair, err := broker.IssueTokens(ctx, claims)
	if err != nil {
		return userState{}, err
	}
	header := http.Header{}
	header.Set("Authorization", url.QueryEscape(pair.AccessToken))
	return userState{claims: claims, header: header}, nil
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
