package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/MrEthical07/magiclink"
	"github.com/MrEthical07/magiclink/notify"
	"github.com/MrEthical07/magiclink/pgstore"
)

type serverConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	TrustProxy      bool          `env:"TRUST_PROXY" envDefault:"false"`
	DeriveBaseURL   bool          `env:"DERIVE_BASE_URL" envDefault:"false"`

	RealmName        string `env:"REALM_NAME,required"`
	RealmDisplayName string `env:"REALM_DISPLAY_NAME"`
	RealmFile        string `env:"REALM_FILE"`

	SigningMethod string        `env:"SIGNING_METHOD" envDefault:"hs256"`
	SigningKey    string        `env:"SIGNING_KEY,required,unset"`
	KeyID         string        `env:"SIGNING_KEY_ID"`
	ClockSkew     time.Duration `env:"CLOCK_SKEW" envDefault:"0s"`

	ValidityWindow      time.Duration `env:"VALIDITY_WINDOW" envDefault:"15m"`
	BaseURL             string        `env:"BASE_URL"`
	CreateUser          bool          `env:"CREATE_USER" envDefault:"false"`
	AllowedDomainsGroup string        `env:"ALLOWED_DOMAINS_GROUP"`
	RestrictExisting    bool          `env:"RESTRICT_EXISTING_USERS" envDefault:"true"`
	MarkEmailVerified   bool          `env:"MARK_EMAIL_VERIFIED" envDefault:"true"`
	MarkerPrefix        string        `env:"MARKER_PREFIX" envDefault:"mlu"`

	// Store is "memory" or "postgres". Markers go to Redis when RedisAddrs
	// is set, otherwise to the store.
	Store      string   `env:"STORE" envDefault:"memory"`
	RedisAddrs []string `env:"REDIS_ADDRS" envSeparator:","`

	// Notifier is "log", "smtp" or "postmark".
	Notifier string `env:"NOTIFIER" envDefault:"log"`

	AuditEnabled   bool   `env:"AUDIT_ENABLED" envDefault:"true"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	LatencyMetrics bool   `env:"LATENCY_METRICS" envDefault:"true"`
	LintFailLevel  string `env:"LINT_FAIL_LEVEL" envDefault:"high"`
}

// loadConfig reads an optional .env file and then the environment.
func loadConfig(dotenv string) (serverConfig, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil {
			return serverConfig{}, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}
	var cfg serverConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "MAGICLINK_"}); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func (c serverConfig) engineConfig() (magiclink.Config, error) {
	cfg := magiclink.DefaultConfig()
	cfg.Realm.Name = c.RealmName
	cfg.Realm.DisplayName = c.RealmDisplayName

	cfg.Token.SigningMethod = strings.ToLower(c.SigningMethod)
	cfg.Token.KeyID = c.KeyID
	cfg.Token.ClockSkew = c.ClockSkew
	switch cfg.Token.SigningMethod {
	case "ed25519":
		key, err := base64.StdEncoding.DecodeString(c.SigningKey)
		if err != nil {
			return magiclink.Config{}, errors.New("ed25519 SIGNING_KEY must be base64")
		}
		cfg.Token.PrivateKey = key
	default:
		cfg.Token.PrivateKey = []byte(c.SigningKey)
	}

	cfg.Issue.ValidityWindow = c.ValidityWindow
	cfg.Issue.BaseURL = c.BaseURL
	cfg.Issue.CreateUser = c.CreateUser
	cfg.Issue.AllowedDomainsGroup = c.AllowedDomainsGroup
	cfg.Issue.RestrictExistingUsersToAllowedDomains = c.RestrictExisting

	cfg.Consume.MarkerPrefix = c.MarkerPrefix
	cfg.Consume.MarkEmailVerified = c.MarkEmailVerified

	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.LatencyMetrics

	if err := cfg.Validate(); err != nil {
		return magiclink.Config{}, err
	}
	return cfg, nil
}

func (c serverConfig) lintThreshold() (magiclink.LintSeverity, bool) {
	switch strings.ToLower(c.LintFailLevel) {
	case "info":
		return magiclink.LintInfo, true
	case "warn":
		return magiclink.LintWarn, true
	case "high":
		return magiclink.LintHigh, true
	default:
		return 0, false
	}
}

func (c serverConfig) slogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parsePostgresConfig() (pgstore.Config, error) {
	var cfg pgstore.Config
	err := env.ParseWithOptions(&cfg, env.Options{Prefix: "MAGICLINK_"})
	return cfg, err
}

func parseSMTPConfig() (notify.SMTPConfig, error) {
	var cfg notify.SMTPConfig
	err := env.ParseWithOptions(&cfg, env.Options{Prefix: "MAGICLINK_SMTP_"})
	return cfg, err
}

func parsePostmarkConfig() (notify.PostmarkConfig, error) {
	var cfg notify.PostmarkConfig
	err := env.ParseWithOptions(&cfg, env.Options{Prefix: "MAGICLINK_POSTMARK_"})
	return cfg, err
}
