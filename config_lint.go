package magiclink

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/magiclink/token"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	// LintInfo marks a choice worth knowing about.
	LintInfo LintSeverity = iota
	// LintWarn marks a setting that weakens a security property.
	LintWarn
	// LintHigh marks a setting that should not reach production.
	LintHigh
)

// String returns the upper-case severity label.
func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// LintWarning is one finding of [Config.Lint].
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of findings of [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above minimum.
func (r LintResult) BySeverity(minimum LintSeverity) []LintWarning {
	var out []LintWarning
	for _, w := range r {
		if w.Severity >= minimum {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns an error listing every warning at or above minimum, or nil.
func (r LintResult) AsError(minimum LintSeverity) error {
	hits := r.BySeverity(minimum)
	if len(hits) == 0 {
		return nil
	}
	codes := make([]string, 0, len(hits))
	for _, w := range hits {
		codes = append(codes, w.Code)
	}
	return fmt.Errorf("config lint: %d finding(s) at or above %s: %s", len(hits), minimum, strings.Join(codes, ", "))
}

// Lint reports configuration choices that are valid but risky. It never
// fails; use [LintResult.AsError] to enforce a threshold at startup.
func (c *Config) Lint() LintResult {
	var out LintResult
	add := func(code string, sev LintSeverity, msg string) {
		out = append(out, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	switch {
	case c.Issue.ValidityWindow > 24*time.Hour:
		add("validity_window_very_long", LintHigh, "magic links stay valid for more than a day")
	case c.Issue.ValidityWindow > time.Hour:
		add("validity_window_long", LintWarn, "magic links stay valid for more than an hour")
	}

	if c.Token.ClockSkew > time.Minute {
		add("clock_skew_large", LintWarn, "clock skew tolerance above one minute extends every link")
	}

	if token.SigningMethod(c.Token.SigningMethod) == token.MethodHS256 {
		add("signing_hs256", LintInfo, "hs256 shares the signing secret with every verifier")
	}

	if c.Issue.CreateUser {
		add("open_registration", LintWarn, "any address that requests a link gets an account")
	}

	if c.Issue.AllowedDomainsGroup != "" && !c.Issue.RestrictExistingUsersToAllowedDomains {
		add("existing_users_unrestricted", LintInfo, "existing users outside the allowed domains still receive links")
	}

	if c.Issue.BaseURL != "" {
		if u, err := url.Parse(c.Issue.BaseURL); err == nil && u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
			add("base_url_insecure", LintHigh, "links are sent over plain http")
		}
	}

	if !c.Consume.MarkEmailVerified {
		add("email_verification_skipped", LintInfo, "a consumed link does not mark the address verified")
	}

	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "issue and consume events are not audited")
	} else if c.Audit.DropIfFull {
		add("audit_drop_if_full", LintInfo, "audit events are dropped under backpressure")
	}

	return out
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
