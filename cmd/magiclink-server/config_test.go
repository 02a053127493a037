package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/magiclink"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MAGICLINK_REALM_NAME", "acme")
	t.Setenv("MAGICLINK_SIGNING_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("MAGICLINK_BASE_URL", "https://id.example.com")
	t.Setenv("MAGICLINK_VALIDITY_WINDOW", "10m")
	t.Setenv("MAGICLINK_REDIS_ADDRS", "a:6379,b:6379")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, []string{"a:6379", "b:6379"}, cfg.RedisAddrs)
	assert.Equal(t, "log", cfg.Notifier)

	engineCfg, err := cfg.engineConfig()
	require.NoError(t, err)
	assert.Equal(t, "acme", engineCfg.Realm.Name)
	assert.Equal(t, 10*time.Minute, engineCfg.Issue.ValidityWindow)
	assert.True(t, engineCfg.Audit.Enabled)

	lvl, ok := cfg.lintThreshold()
	assert.True(t, ok)
	assert.Equal(t, magiclink.LintHigh, lvl)
}

func TestLoadConfigFromDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"MAGICLINK_REALM_NAME=dotenv\nMAGICLINK_SIGNING_KEY=0123456789abcdef0123456789abcdef\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("MAGICLINK_REALM_NAME")
		os.Unsetenv("MAGICLINK_SIGNING_KEY")
	})

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "dotenv", cfg.RealmName)
}

func TestLoadConfigRequiresRealm(t *testing.T) {
	t.Setenv("MAGICLINK_REALM_NAME", "")
	t.Setenv("MAGICLINK_SIGNING_KEY", "0123456789abcdef0123456789abcdef")
	os.Unsetenv("MAGICLINK_REALM_NAME")

	_, err := loadConfig("")
	assert.Error(t, err)
}

func TestEngineConfigRejectsShortKey(t *testing.T) {
	cfg := serverConfig{
		RealmName:      "acme",
		SigningMethod:  "hs256",
		SigningKey:     "short",
		ValidityWindow: 15 * time.Minute,
		MarkerPrefix:   "mlu",
	}
	_, err := cfg.engineConfig()
	assert.Error(t, err)
}

func TestEngineConfigEd25519NeedsBase64(t *testing.T) {
	cfg := serverConfig{
		RealmName:      "acme",
		SigningMethod:  "ed25519",
		SigningKey:     "%%%",
		ValidityWindow: 15 * time.Minute,
		MarkerPrefix:   "mlu",
	}
	_, err := cfg.engineConfig()
	assert.Error(t, err)
}

func TestNewNotifierSelection(t *testing.T) {
	n, err := newNotifier(serverConfig{Notifier: "log"}, newLogger(serverConfig{}))
	require.NoError(t, err)
	assert.NotNil(t, n)

	_, err = newNotifier(serverConfig{Notifier: "pigeon"}, newLogger(serverConfig{}))
	assert.Error(t, err)
}
