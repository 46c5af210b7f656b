package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/balancebuddy/authflow"
	"github.com/balancebuddy/authflow/internal/userstore/memory"
	"github.com/redis/go-redis/v9"
)

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// codeBook keeps the last code mailed to each identity.
type codeBook struct {
	codes sync.Map
}

func (b *codeBook) Send(_ context.Context, msg authflow.Message) error {
	if code := codePattern.FindString(msg.TextBody); code != "" {
		b.codes.Store(msg.To, code)
	}
	return nil
}

func (b *codeBook) code(identity string) string {
	v, ok := b.codes.Load(identity)
	if !ok {
		return ""
	}
	return v.(string)
}

func main() {
	var (
		identities  = flag.Int("identities", 20000, "number of identities to issue codes for")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *identities <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "identities and concurrency must be > 0")
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
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := authflow.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("loadtest-secret-0123456789abcdef")
	cfg.Audit.Enabled = false

	book := &codeBook{}
	engine, err := authflow.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(memory.NewStore()).
		WithNotifier(book).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	names := make([]string, *identities)
	for i := range names {
		names[i] = fmt.Sprintf("load-%d@example.com", i)
	}

	issueStats := runPhase(names, *concurrency, func(identity string) error {
		return engine.RequestEmailOTP(ctx, identity)
	})
	verifyStats := runPhase(names, *concurrency, func(identity string) error {
		res, err := engine.VerifyEmailOTP(ctx, identity, book.code(identity))
		if err != nil {
			return err
		}
		return res.Err()
	})

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("verify", verifyStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("email otp: issued=%d valid=%d mismatch=%d rate_limited=%d\n",
		snap.Counters[authflow.MetricEmailOTPIssued],
		snap.Counters[authflow.MetricEmailOTPValid],
		snap.Counters[authflow.MetricEmailOTPMismatch],
		snap.Counters[authflow.MetricOTPRateLimited],
	)
}

// runPhase calls op once per identity across concurrency workers.
func runPhase(identities []string, concurrency int, op func(identity string) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(identities))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(identities) {
					return
				}
				t0 := time.Now()
				err := op(identities[i])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
