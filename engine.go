package magiclink

import (
	"context"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/magiclink/internal/audit"
	"github.com/MrEthical07/magiclink/internal/flows"
	"github.com/MrEthical07/magiclink/token"
)

// Engine defines a public type used by magiclink APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config Config
	codec  *token.Codec
	flows  flows.Service

	users     UserDirectory
	clients   ClientRegistry
	groups    GroupDirectory
	sessions  SessionFactory
	markers   UsedTokenStore
	redirects RedirectValidator
	notifier  Notifier
	nextStep  NextStepResolver

	actions     map[string]ActionHandler
	markerStore string

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Close flushes and stops the audit dispatcher.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the counters and histograms.
// With metrics disabled the maps are empty.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Realm returns the configured realm name.
func (e *Engine) Realm() string {
	if e == nil {
		return ""
	}
	return e.config.Realm.Name
}

// BaseURL returns the configured public base of the consumption endpoint,
// or "" when links take their base from the request.
func (e *Engine) BaseURL() string {
	if e == nil {
		return ""
	}
	return e.config.Issue.BaseURL
}

// AutoProvisionAllowed reports whether email's domain is listed in the
// configured allowed-domains group. Lookup failures yield false with the
// cause in err; callers must not treat a failed lookup as permission.
func (e *Engine) AutoProvisionAllowed(ctx context.Context, email string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	policy := flows.DomainPolicy{AllowedDomainsGroup: e.config.Issue.AllowedDomainsGroup}
	return flows.IsAutoProvisionAllowed(ctx, policy, e.groupDomainsLookup(), email)
}

func (e *Engine) groupDomainsLookup() flows.GroupDomainsLookup {
	if e.groups == nil {
		return nil
	}
	return func(ctx context.Context, name string) ([]string, error) {
		group, err := e.groups.GetGroupByName(ctx, name)
		if err != nil {
			return nil, err
		}
		return group.AllowedDomains, nil
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(id MetricID, start time.Time) {
	if e == nil || e.metrics == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func toFlowUser(u User) flows.MagicLinkUser {
	return flows.MagicLinkUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		EmailVerified: u.EmailVerified,
		Enabled:       u.Enabled,
	}
}

func fromFlowUser(u flows.MagicLinkUser) User {
	return User{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		EmailVerified: u.EmailVerified,
		Enabled:       u.Enabled,
	}
}

func toFlowClient(c Client) flows.MagicLinkClient {
	return flows.MagicLinkClient{
		ClientID:     c.ClientID,
		Name:         c.Name,
		RootURL:      c.RootURL,
		BaseURL:      c.BaseURL,
		RedirectURIs: append([]string(nil), c.RedirectURIs...),
	}
}

func fromFlowClient(c flows.MagicLinkClient) Client {
	return Client{
		ClientID:     c.ClientID,
		Name:         c.Name,
		RootURL:      c.RootURL,
		BaseURL:      c.BaseURL,
		RedirectURIs: append([]string(nil), c.RedirectURIs...),
	}
}
