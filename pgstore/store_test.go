package pgstore_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MrEthical07/magiclink"
	"github.com/MrEthical07/magiclink/pgstore"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := pgstore.New(nil, "acme")
	assert.Error(t, err)
}

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("magiclink"),
		postgres.WithUsername("magiclink"),
		postgres.WithPassword("magiclink"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgstore.Connect(ctx, pgstore.Config{
		ConnectionString: dsn,
		MaxConns:         8,
		RetryAttempts:    5,
		RetryInterval:    500 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pgstore.Migrate(ctx, pool))
	require.NoError(t, pgstore.Migrate(ctx, pool), "schema must be idempotent")
	return pool
}

func TestStoreWithPostgres(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	store, err := pgstore.New(pool, "acme")
	require.NoError(t, err)
	other, err := pgstore.New(pool, "other")
	require.NoError(t, err)

	t.Run("users", func(t *testing.T) {
		require.NoError(t, store.PutUser(ctx, magiclink.User{
			ID: "u-alice", Username: "alice", Email: "alice@example.com", FirstName: "Alice", Enabled: true,
		}))

		u, err := store.FindUserByUsernameOrEmail(ctx, "ALICE@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u-alice", u.ID)

		u, err = store.FindUserByUsernameOrEmail(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice", u.FirstName)

		_, err = other.FindUserByUsernameOrEmail(ctx, "alice")
		assert.ErrorIs(t, err, magiclink.ErrUserNotFound, "realms are isolated")

		_, err = store.GetUserByID(ctx, "missing")
		assert.ErrorIs(t, err, magiclink.ErrUserNotFound)

		require.NoError(t, store.SetEmailVerified(ctx, "u-alice", true))
		require.NoError(t, store.SetEnabled(ctx, "u-alice", false))
		u, err = store.GetUserByID(ctx, "u-alice")
		require.NoError(t, err)
		assert.True(t, u.EmailVerified)
		assert.False(t, u.Enabled)

		assert.ErrorIs(t, store.SetEmailVerified(ctx, "missing", true), magiclink.ErrUserNotFound)
	})

	t.Run("create user", func(t *testing.T) {
		u, err := store.CreateUser(ctx, "  New@Example.org ")
		require.NoError(t, err)
		assert.Equal(t, "new@example.org", u.Email)
		assert.Equal(t, "new@example.org", u.Username)
		assert.True(t, u.Enabled)
		assert.NotEmpty(t, u.ID)

		_, err = store.CreateUser(ctx, "new@example.org")
		assert.ErrorIs(t, err, pgstore.ErrUserExists)
	})

	t.Run("clients and groups", func(t *testing.T) {
		require.NoError(t, store.PutClient(ctx, magiclink.Client{
			ClientID:     "portal",
			RootURL:      "https://portal.example.com",
			RedirectURIs: []string{"https://portal.example.com/*"},
		}))
		c, err := store.GetClientByClientID(ctx, "portal")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://portal.example.com/*"}, c.RedirectURIs)

		_, err = store.GetClientByClientID(ctx, "nope")
		assert.ErrorIs(t, err, magiclink.ErrClientNotFound)

		require.NoError(t, store.PutGroup(ctx, magiclink.Group{Name: "magic-link-domains", AllowedDomains: []string{"example.org"}}))
		g, err := store.GetGroupByName(ctx, "magic-link-domains")
		require.NoError(t, err)
		assert.Equal(t, []string{"example.org"}, g.AllowedDomains)

		_, err = other.GetGroupByName(ctx, "magic-link-domains")
		assert.ErrorIs(t, err, magiclink.ErrGroupNotFound)
	})

	t.Run("markers", func(t *testing.T) {
		exp := time.Now().Add(time.Minute)
		first, err := store.MarkUsed(ctx, "tok-1", "nonce-1", exp)
		require.NoError(t, err)
		assert.True(t, first)

		first, err = store.MarkUsed(ctx, "tok-1", "nonce-1", exp)
		require.NoError(t, err)
		assert.False(t, first)

		_, err = store.MarkUsed(ctx, "", "nonce", exp)
		assert.Error(t, err)

		_, err = store.MarkUsed(ctx, "tok-old", "nonce", time.Now().Add(-time.Minute))
		require.NoError(t, err)
		n, err := store.PurgeExpiredMarkers(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("concurrent markers have one winner", func(t *testing.T) {
		var wins atomic.Int32
		var wg sync.WaitGroup
		exp := time.Now().Add(time.Minute)
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				first, err := store.MarkUsed(ctx, "tok-race", "nonce", exp)
				if err == nil && first {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("closed pool surfaces errors", func(t *testing.T) {
		closed, err := pgxpool.New(ctx, pool.Config().ConnString())
		require.NoError(t, err)
		closed.Close()

		s, err := pgstore.New(closed, "acme")
		require.NoError(t, err)
		_, err = s.GetUserByID(ctx, "u-alice")
		require.Error(t, err)
		assert.False(t, errors.Is(err, magiclink.ErrUserNotFound))
	})
}
