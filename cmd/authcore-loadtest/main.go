// Command authcore-loadtest measures login, authenticate and refresh
// throughput of an engine backed by Redis (or miniredis when no address is
// given) and in-memory accounts.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
)

const loadPassword = "LoadTest123"

type account struct {
	username string
	ip       string

	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		accounts    = flag.Int("accounts", 2000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per authenticate / refresh phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = "loadtest-secret-0123456789abcdef0123"
	cfg.Password.BcryptCost = 4
	cfg.Audit.Enabled = false
	cfg.Reaper.Enabled = false
	// A zero Max disables the per-IP limit.
	cfg.RateLimits.Login.Max = 0
	cfg.RateLimits.Refresh.Max = 0

	store := authcore.NewMemoryAccountStore()
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccounts(store).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	hash, err := password.NewBcrypt(cfg.Password.BcryptCost).Hash(loadPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash: %v\n", err)
		os.Exit(1)
	}

	states := make([]*account, *accounts)
	fmt.Printf("seeding %d accounts...\n", *accounts)
	now := time.Now()
	for i := range states {
		a := &account{
			username: fmt.Sprintf("load%06d", i),
			ip:       fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xFF, (i>>8)&0xFF, i&0xFF),
		}
		err := store.Create(ctx, &authcore.Account{
			ID:            fmt.Sprintf("acct-%d", i),
			Username:      a.username,
			Email:         a.username + "@load.test",
			PasswordHash:  hash,
			Role:          authcore.RoleUser,
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = a
	}

	loginStats := runLoginPhase(ctx, engine, states, *concurrency)
	authStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) (time.Duration, error) {
		a := states[r.Intn(len(states))]
		a.mu.Lock()
		token := a.access
		a.mu.Unlock()
		t0 := time.Now()
		_, err := engine.Authenticate(clientCtx(ctx, a), token)
		return time.Since(t0), err
	})
	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) (time.Duration, error) {
		a := states[r.Intn(len(states))]
		// Rotation is single-use: a token must not be presented twice.
		a.mu.Lock()
		defer a.mu.Unlock()
		t0 := time.Now()
		res, err := engine.Refresh(clientCtx(ctx, a), a.refresh)
		d := time.Since(t0)
		if err == nil {
			a.access, a.refresh = res.AccessToken, res.RefreshToken
		}
		return d, err
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: sessions_created=%d reuse_detected=%d fail_open=%d fail_closed=%d\n",
		snap.Counters[authcore.MetricSessionCreated],
		snap.Counters[authcore.MetricRefreshReuseDetected],
		snap.Counters[authcore.MetricStoreFailOpen],
		snap.Counters[authcore.MetricStoreFailClosed],
	)
}

func clientCtx(ctx context.Context, a *account) context.Context {
	return authcore.WithUserAgent(authcore.WithClientIP(ctx, a.ip), "authcore-loadtest")
}

func runLoginPhase(ctx context.Context, engine *authcore.Engine, states []*account, concurrency int) phaseStats {
	var cursor int64
	return runPhase(len(states), concurrency, 104729, func(*rand.Rand) (time.Duration, error) {
		a := states[int(atomic.AddInt64(&cursor, 1))-1]
		t0 := time.Now()
		res, err := engine.Login(clientCtx(ctx, a), a.username, loadPassword)
		d := time.Since(t0)
		if err != nil {
			return d, err
		}
		a.mu.Lock()
		a.access, a.refresh = res.AccessToken, res.RefreshToken
		a.mu.Unlock()
		return d, nil
	})
}

// runPhase calls op ops times across concurrency workers.
func runPhase(ops, concurrency int, seed int64, op func(*rand.Rand) (time.Duration, error)) phaseStats {
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
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				d, err := op(r)
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
