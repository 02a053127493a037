package magiclink

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/magiclink/token"
)

// Config defines a public type used by magiclink APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Realm   RealmConfig
	Token   TokenConfig
	Issue   IssueConfig
	Consume ConsumeConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
REALM CONFIG
====================================
*/

// RealmConfig names the realm the engine serves. Name is used as the token
// issuer and in the consumption URL path.
type RealmConfig struct {
	Name        string
	DisplayName string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by magiclink APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	SigningMethod string // "hs256" (default), "ed25519" optional
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string

	// VerifyKeys are accepted for verification only, keyed by kid. Use them
	// to keep links signed with a rotated key valid until they expire.
	VerifyKeys map[string][]byte

	ClockSkew time.Duration
}

/*
====================================
ISSUE CONFIG
====================================
*/

// IssueConfig controls link issuance.
type IssueConfig struct {
	ValidityWindow time.Duration

	// CreateUser provisions unknown users on first request.
	CreateUser bool

	// AllowedDomainsGroup names the group whose allowed-domains attribute
	// permits provisioning when CreateUser is false. Empty disables it.
	AllowedDomainsGroup string

	// RestrictExistingUsersToAllowedDomains suppresses issuance for existing
	// users outside the allowed domains when AllowedDomainsGroup is set.
	RestrictExistingUsersToAllowedDomains bool

	// BaseURL is the public base of the consumption endpoint, used when a
	// request does not carry its own.
	BaseURL string
}

/*
====================================
CONSUME CONFIG
====================================
*/

// ConsumeConfig controls link consumption.
type ConsumeConfig struct {
	MarkerPrefix      string
	MarkEmailVerified bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by magiclink APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by magiclink APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod: string(token.MethodHS256),
			ClockSkew:     0,
		},
		Issue: IssueConfig{
			ValidityWindow:                        15 * time.Minute,
			CreateUser:                            false,
			RestrictExistingUsersToAllowedDomains: true,
		},
		Consume: ConsumeConfig{
			MarkerPrefix:      "mlu",
			MarkEmailVerified: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the baseline configuration. Realm.Name and signing
// keys must still be supplied before Validate passes.
func DefaultConfig() Config {
	return defaultConfig()
}

// HighSecurityConfig returns a preset with asymmetric signing, a short
// validity window and audit enabled. Keys and realm are left to the caller.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.Token.SigningMethod = string(token.MethodEd25519)
	cfg.Issue.ValidityWindow = 10 * time.Minute
	cfg.Issue.CreateUser = false
	cfg.Issue.RestrictExistingUsersToAllowedDomains = true
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if cfg.Token.VerifyKeys != nil {
		out.Token.VerifyKeys = make(map[string][]byte, len(cfg.Token.VerifyKeys))
		for kid, key := range cfg.Token.VerifyKeys {
			out.Token.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Realm
	if strings.TrimSpace(c.Realm.Name) == "" {
		return errors.New("Realm Name must be set")
	}
	if strings.ContainsAny(c.Realm.Name, "/?#") {
		return errors.New("Realm Name must not contain '/', '?' or '#'")
	}

	// Token
	switch token.SigningMethod(c.Token.SigningMethod) {
	case token.MethodHS256:
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
		if len(c.Token.PrivateKey) < token.MinSecretLength {
			return errors.New("hs256 PrivateKey must be >= 32 bytes")
		}
	case token.MethodEd25519:
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported Token signing method")
	}
	if c.Token.ClockSkew < 0 {
		return errors.New("Token ClockSkew must be >= 0")
	}
	if c.Token.ClockSkew > token.MaxClockSkew {
		return errors.New("Token ClockSkew must be <= 5m")
	}
	for kid := range c.Token.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return errors.New("Token VerifyKeys must not contain an empty key id")
		}
	}

	// Issue
	if c.Issue.ValidityWindow < time.Minute {
		return errors.New("Issue ValidityWindow must be >= 1m")
	}
	if c.Issue.ValidityWindow%time.Second != 0 {
		return errors.New("Issue ValidityWindow must be a whole number of seconds")
	}
	if c.Issue.BaseURL != "" {
		u, err := url.Parse(c.Issue.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.New("Issue BaseURL must be an absolute http(s) URL")
		}
	}

	// Consume
	if strings.TrimSpace(c.Consume.MarkerPrefix) == "" {
		return errors.New("Consume MarkerPrefix must be set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
