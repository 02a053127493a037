package magiclink_test

import (
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/magiclink"
	"github.com/MrEthical07/magiclink/memhost"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

const (
	testRealm    = "acme"
	testClientID = "portal"
	testCallback = "https://portal.example.com/callback"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine   *magiclink.Engine
	dir      *memhost.Directory
	sessions *memhost.SessionFactory
	outbox   *memhost.Outbox
	audit    *magiclink.ChannelSink
	mr       *miniredis.Miniredis
	clock    *testClock

	alice magiclink.User
	bob   magiclink.User
}

func testConfig() magiclink.Config {
	cfg := magiclink.DefaultConfig()
	cfg.Realm.Name = testRealm
	cfg.Realm.DisplayName = "Acme"
	cfg.Token.PrivateKey = append([]byte(nil), testSecret...)
	cfg.Issue.BaseURL = "https://id.example.com"
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 1024
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newHarness(t testing.TB, mutate func(*magiclink.Config), opts ...func(*magiclink.Builder)) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	h := &harness{
		dir:      memhost.NewDirectory(),
		sessions: memhost.NewSessionFactory(),
		outbox:   memhost.NewOutbox(),
		audit:    magiclink.NewChannelSink(1024),
		mr:       mr,
		clock:    newTestClock(),
	}
	h.alice = h.dir.PutUser(magiclink.User{Username: "alice", Email: "alice@example.com", FirstName: "Alice", Enabled: true})
	h.bob = h.dir.PutUser(magiclink.User{Username: "bob", Email: "bob@example.com", Enabled: false})
	h.dir.PutClient(magiclink.Client{
		ClientID:     testClientID,
		Name:         "Portal",
		RootURL:      "https://portal.example.com",
		BaseURL:      "/home",
		RedirectURIs: []string{testCallback, "https://portal.example.com/home"},
	})
	h.dir.PutGroup(magiclink.Group{Name: "magic-link-domains", AllowedDomains: []string{"example.org"}})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	b := magiclink.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(h.dir).
		WithClientRegistry(h.dir).
		WithGroupDirectory(h.dir).
		WithSessionFactory(h.sessions).
		WithNotifier(h.outbox).
		WithNextStepResolver(memhost.RedirectResolver{}).
		WithAuditSink(h.audit).
		WithClock(h.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *harness) issueRequest(email string) magiclink.IssueRequest {
	return magiclink.IssueRequest{
		Email:       email,
		ClientID:    testClientID,
		RedirectURI: testCallback,
		ClientNotes: map[string]string{"scope": "openid", "state": "xyz"},
	}
}

// issueToken issues a link for email and returns the raw token it carries.
func (h *harness) issueToken(t testing.TB, email string) string {
	t.Helper()
	return h.issueTokenWith(t, h.issueRequest(email))
}

func (h *harness) issueTokenWith(t testing.TB, req magiclink.IssueRequest) string {
	t.Helper()
	before := len(h.outbox.Messages())
	resp, err := h.engine.Issue(t.Context(), req)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if resp.Page != magiclink.PageEmailSent {
		t.Fatalf("expected %q page, got %+v", magiclink.PageEmailSent, resp)
	}
	msgs := h.outbox.Messages()
	if len(msgs) != before+1 {
		t.Fatalf("expected one new message, got %d", len(msgs)-before)
	}
	return tokenFromLink(t, msgs[len(msgs)-1].Link)
}

// drainAudit closes the engine and returns every delivered audit event.
func (h *harness) drainAudit() []magiclink.AuditEvent {
	h.engine.Close()
	var out []magiclink.AuditEvent
	for {
		select {
		case ev := <-h.audit.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func tokenFromLink(t testing.TB, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	raw := u.Query().Get("key")
	if raw == "" {
		t.Fatalf("link %q carries no key", link)
	}
	return raw
}
