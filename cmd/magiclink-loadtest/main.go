package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/magiclink"
	"github.com/MrEthical07/magiclink/memhost"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		links       = flag.Int("links", 50000, "links issued, then consumed and replayed")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "mlu-load", "used-token marker prefix")
		racers      = flag.Int("racers", 4, "concurrent consume attempts per link")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *links <= 0 || *racers <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, links, and racers must be > 0")
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

	dir := memhost.NewDirectory()
	dir.PutClient(magiclink.Client{
		ClientID:     "loadtest",
		RootURL:      "https://app.example.com",
		RedirectURIs: []string{"https://app.example.com/*"},
	})
	emails := make([]string, *users)
	fmt.Printf("seeding %d users...\n", *users)
	for i := range emails {
		emails[i] = fmt.Sprintf("user-%d@example.com", i)
		dir.PutUser(magiclink.User{Username: emails[i], Email: emails[i], Enabled: true})
	}

	outbox := &linkSink{}
	cfg := magiclink.DefaultConfig()
	cfg.Realm.Name = "loadtest"
	cfg.Token.PrivateKey = []byte("loadtest-signing-key-0123456789abcdef")
	cfg.Issue.BaseURL = "https://id.example.com"
	cfg.Consume.MarkerPrefix = *prefix
	cfg.Metrics.Enabled = true

	engine, err := magiclink.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserDirectory(dir).
		WithClientRegistry(dir).
		WithSessionFactory(memhost.NewSessionFactory()).
		WithNotifier(outbox).
		WithNextStepResolver(memhost.RedirectResolver{}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	issueStats := runPhase(*links, *concurrency, func(i int) bool {
		_, err := engine.Issue(ctx, magiclink.IssueRequest{
			Email:       emails[i%len(emails)],
			ClientID:    "loadtest",
			RedirectURI: "https://app.example.com/done",
		})
		return err == nil
	})

	tokens := outbox.tokens()
	fmt.Printf("issued %d links\n", len(tokens))

	// Attempts on the same link are adjacent so they overlap in time. Losing
	// attempts are expected and not counted as failures here.
	wins := make([]atomic.Int32, len(tokens))
	consumeStats := runPhase(len(tokens)**racers, *concurrency, func(i int) bool {
		idx := i / *racers
		res, err := engine.Consume(ctx, tokens[idx])
		if err == nil && res.Succeeded() {
			wins[idx].Add(1)
			return true
		}
		return res.Reason == magiclink.FailureAlreadyUsed
	})
	var violations int
	for i := range wins {
		if wins[i].Load() != 1 {
			violations++
		}
	}

	// Every replay must be rejected; a success counts as a failure.
	replayStats := runPhase(len(tokens), *concurrency, func(i int) bool {
		res, err := engine.Consume(ctx, tokens[i])
		return err != nil && res.Reason == magiclink.FailureAlreadyUsed
	})

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("consume", consumeStats)
	printStats("replay", replayStats)
	fmt.Printf("links without exactly one winner: %d\n", violations)

	snap := engine.MetricsSnapshot()
	fmt.Printf("consume_success=%d consume_replay=%d\n",
		snap.Counters[magiclink.MetricConsumeSuccess], snap.Counters[magiclink.MetricConsumeReplay])
	if violations > 0 {
		os.Exit(1)
	}
}

// linkSink collects the raw tokens of delivered links.
type linkSink struct {
	mu  sync.Mutex
	raw []string
}

func (s *linkSink) Send(_ context.Context, msg magiclink.Message) error {
	u, err := url.Parse(msg.Link)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.raw = append(s.raw, u.Query().Get("key"))
	s.mu.Unlock()
	return nil
}

func (s *linkSink) tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.raw...)
}

func runPhase(ops, concurrency int, op func(i int) bool) phaseStats {
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
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := op(i)
				d := time.Since(t0)
				if !ok {
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
