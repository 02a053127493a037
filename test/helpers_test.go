//go:build integration
// +build integration

package test

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/magiclink"
	"github.com/MrEthical07/magiclink/memhost"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend the compatibility suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the set of Redis backends to test.
// miniredis is always available.
// Real Redis standalone is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				// Flush the test DB to avoid state leaking between runs.
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	// Cluster mode: when REDIS_CLUSTER_ADDRS is set (comma-separated).
	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

type integrationHost struct {
	engine *magiclink.Engine
	dir    *memhost.Directory
	outbox *memhost.Outbox
	alice  magiclink.User
}

func newIntegrationHost(t *testing.T, rdb redis.UniversalClient) *integrationHost {
	t.Helper()

	dir := memhost.NewDirectory()
	alice := dir.PutUser(magiclink.User{Username: "alice", Email: "alice@example.com", Enabled: true})
	dir.PutClient(magiclink.Client{
		ClientID:     "portal",
		RootURL:      "https://portal.example.com",
		RedirectURIs: []string{"https://portal.example.com/*"},
	})
	outbox := memhost.NewOutbox()

	cfg := magiclink.DefaultConfig()
	cfg.Realm.Name = "acme"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Issue.BaseURL = "https://id.example.com"
	cfg.Consume.MarkerPrefix = "mlu-it"

	engine, err := magiclink.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(dir).
		WithClientRegistry(dir).
		WithSessionFactory(memhost.NewSessionFactory()).
		WithNotifier(outbox).
		WithNextStepResolver(memhost.RedirectResolver{}).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &integrationHost{engine: engine, dir: dir, outbox: outbox, alice: alice}
}

func (h *integrationHost) issue(t *testing.T) string {
	t.Helper()
	_, err := h.engine.Issue(context.Background(), magiclink.IssueRequest{
		Email:       "alice@example.com",
		ClientID:    "portal",
		RedirectURI: "https://portal.example.com/app",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	msg, ok := h.outbox.Latest("alice@example.com")
	if !ok {
		t.Fatal("no message sent")
	}
	u, err := url.Parse(msg.Link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("key")
}
