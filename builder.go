package magiclink

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/magiclink/internal/flows"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by magiclink APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserDirectory
	clients   ClientRegistry
	groups    GroupDirectory
	sessions  SessionFactory
	markers   UsedTokenStore
	redirects RedirectValidator
	notifier  Notifier
	nextStep  NextStepResolver
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	actions map[string]ActionHandler

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs single-use markers with Redis when no explicit
// [UsedTokenStore] is set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUsedTokenStore sets the single-use marker store. It takes precedence
// over WithRedis.
func (b *Builder) WithUsedTokenStore(store UsedTokenStore) *Builder {
	b.markers = store
	return b
}

// WithUserDirectory describes the withuserdirectory operation and its observable behavior.
//
// WithUserDirectory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserDirectory(users UserDirectory) *Builder {
	b.users = users
	return b
}

// WithClientRegistry sets the client registry.
func (b *Builder) WithClientRegistry(clients ClientRegistry) *Builder {
	b.clients = clients
	return b
}

// WithGroupDirectory sets the group directory consulted by the domain policy.
// It is required when Issue.AllowedDomainsGroup is set.
func (b *Builder) WithGroupDirectory(groups GroupDirectory) *Builder {
	b.groups = groups
	return b
}

// WithSessionFactory sets the factory of fresh authentication sessions.
func (b *Builder) WithSessionFactory(sessions SessionFactory) *Builder {
	b.sessions = sessions
	return b
}

// WithRedirectValidator replaces [PatternRedirectValidator].
func (b *Builder) WithRedirectValidator(v RedirectValidator) *Builder {
	b.redirects = v
	return b
}

// WithNotifier sets the link delivery channel.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithNextStepResolver sets the resolver of the post-login location.
func (b *Builder) WithNextStepResolver(r NextStepResolver) *Builder {
	b.nextStep = r
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Nil means slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the clock used for issuance and expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithActionHandler registers handler for action tokens of type typ.
// The magic-link type is registered by Build and cannot be replaced.
func (b *Builder) WithActionHandler(typ string, handler ActionHandler) *Builder {
	if b.actions == nil {
		b.actions = make(map[string]ActionHandler)
	}
	b.actions[typ] = handler
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms enables the issue and consume latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and collaborators and returns an
// immutable Engine. Every failure wraps [ErrConfiguration].
//
// Build may return an error when input validation, dependency calls, or security checks fail.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	switch {
	case b.users == nil:
		return nil, fmt.Errorf("%w: user directory required", ErrConfiguration)
	case b.clients == nil:
		return nil, fmt.Errorf("%w: client registry required", ErrConfiguration)
	case b.sessions == nil:
		return nil, fmt.Errorf("%w: session factory required", ErrConfiguration)
	case b.notifier == nil:
		return nil, fmt.Errorf("%w: notifier required", ErrConfiguration)
	case b.nextStep == nil:
		return nil, fmt.Errorf("%w: next step resolver required", ErrConfiguration)
	case b.markers == nil && b.redis == nil:
		return nil, fmt.Errorf("%w: used token store or redis client required", ErrConfiguration)
	case cfg.Issue.AllowedDomainsGroup != "" && b.groups == nil:
		return nil, fmt.Errorf("%w: AllowedDomainsGroup requires a group directory", ErrConfiguration)
	}

	engine := &Engine{
		config:    cfg,
		users:     b.users,
		clients:   b.clients,
		groups:    b.groups,
		sessions:  b.sessions,
		markers:   b.markers,
		redirects: b.redirects,
		notifier:  b.notifier,
		nextStep:  b.nextStep,
		logger:    b.logger,
		now:       b.now,
	}
	if engine.markers == nil {
		engine.markers = NewRedisUsedTokenStore(b.redis, cfg.Consume.MarkerPrefix)
	}
	engine.markerStore = markerStoreKind(engine.markers)
	if engine.redirects == nil {
		engine.redirects = PatternRedirectValidator{}
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	if engine.now == nil {
		engine.now = time.Now
	}

	codec, err := newCodec(cfg.Token, engine.now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if !codec.CanSign() {
		return nil, fmt.Errorf("%w: token signing key required", ErrConfiguration)
	}
	engine.codec = codec

	engine.actions = map[string]ActionHandler{
		MagicLinkTokenType: magicLinkAction{engine: engine},
	}
	for typ, handler := range b.actions {
		typ = strings.TrimSpace(typ)
		switch {
		case typ == "" || handler == nil:
			return nil, fmt.Errorf("%w: action handler requires a type and a handler", ErrConfiguration)
		case typ == MagicLinkTokenType:
			return nil, fmt.Errorf("%w: action type %q is reserved", ErrConfiguration, typ)
		}
		engine.actions[typ] = handler
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flows = flows.New(flows.Deps{
		Issue:   engine.issueFlowDeps(),
		Consume: engine.consumeFlowDeps(),
	})

	b.built = true

	return engine, nil
}

func markerStoreKind(store UsedTokenStore) string {
	switch store.(type) {
	case *RedisUsedTokenStore:
		return "redis"
	case *MemoryUsedTokenStore:
		return "memory"
	default:
		return "custom"
	}
}
