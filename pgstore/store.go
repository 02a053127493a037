package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/magiclink"
)

const uniqueViolation = "23505"

// ErrUserExists is returned by CreateUser when the username or email is taken.
var ErrUserExists = errors.New("pgstore: user already exists")

// Store is a realm-scoped PostgreSQL host.
type Store struct {
	pool  *pgxpool.Pool
	realm string
	now   func() time.Time
	newID func() string
}

// New returns a store for realm backed by pool.
func New(pool *pgxpool.Pool, realm string) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pgstore: pool is nil")
	}
	if strings.TrimSpace(realm) == "" {
		return nil, errors.New("pgstore: realm is required")
	}
	return &Store{pool: pool, realm: realm, now: time.Now, newID: uuid.NewString}, nil
}

const userColumns = `id, username, email, first_name, last_name, email_verified, enabled`

func scanUser(row pgx.Row) (magiclink.User, error) {
	var u magiclink.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.EmailVerified, &u.Enabled)
	return u, err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (magiclink.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM magiclink_users WHERE realm = $1 AND id = $2`, s.realm, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return magiclink.User{}, fmt.Errorf("%w: id %q", magiclink.ErrUserNotFound, userID)
	}
	if err != nil {
		return magiclink.User{}, fmt.Errorf("pgstore: get user: %w", err)
	}
	return u, nil
}

// FindUserByUsernameOrEmail matches case-insensitively, preferring a
// username match.
func (s *Store) FindUserByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (magiclink.User, error) {
	needle := strings.TrimSpace(usernameOrEmail)
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM magiclink_users
		 WHERE realm = $1 AND (lower(username) = lower($2) OR lower(email) = lower($2))
		 ORDER BY (lower(username) = lower($2)) DESC
		 LIMIT 1`, s.realm, needle))
	if errors.Is(err, pgx.ErrNoRows) {
		return magiclink.User{}, magiclink.ErrUserNotFound
	}
	if err != nil {
		return magiclink.User{}, fmt.Errorf("pgstore: find user: %w", err)
	}
	return u, nil
}

// CreateUser provisions an enabled user whose username is the email address.
func (s *Store) CreateUser(ctx context.Context, email string) (magiclink.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return magiclink.User{}, errors.New("pgstore: email required")
	}
	u := magiclink.User{ID: s.newID(), Username: email, Email: email, Enabled: true}
	if err := s.PutUser(ctx, u); err != nil {
		return magiclink.User{}, err
	}
	return u, nil
}

func (s *Store) SetEmailVerified(ctx context.Context, userID string, verified bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE magiclink_users SET email_verified = $3 WHERE realm = $1 AND id = $2`, s.realm, userID, verified)
	if err != nil {
		return fmt.Errorf("pgstore: set email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %q", magiclink.ErrUserNotFound, userID)
	}
	return nil
}

// SetEnabled toggles a user.
func (s *Store) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE magiclink_users SET enabled = $3 WHERE realm = $1 AND id = $2`, s.realm, userID, enabled)
	if err != nil {
		return fmt.Errorf("pgstore: set enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %q", magiclink.ErrUserNotFound, userID)
	}
	return nil
}

// PutUser inserts u, or updates the row with the same id. A clash on
// username or email with another user returns [ErrUserExists].
func (s *Store) PutUser(ctx context.Context, u magiclink.User) error {
	if u.ID == "" {
		return errors.New("pgstore: user id required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO magiclink_users (id, realm, username, email, first_name, last_name, email_verified, enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   username = EXCLUDED.username,
		   email = EXCLUDED.email,
		   first_name = EXCLUDED.first_name,
		   last_name = EXCLUDED.last_name,
		   email_verified = EXCLUDED.email_verified,
		   enabled = EXCLUDED.enabled`,
		u.ID, s.realm, u.Username, u.Email, u.FirstName, u.LastName, u.EmailVerified, u.Enabled)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %q", ErrUserExists, u.Email)
	}
	if err != nil {
		return fmt.Errorf("pgstore: put user: %w", err)
	}
	return nil
}

func (s *Store) GetClientByClientID(ctx context.Context, clientID string) (magiclink.Client, error) {
	c := magiclink.Client{ClientID: clientID}
	err := s.pool.QueryRow(ctx,
		`SELECT name, root_url, base_url, redirect_uris FROM magiclink_clients WHERE realm = $1 AND client_id = $2`,
		s.realm, clientID).Scan(&c.Name, &c.RootURL, &c.BaseURL, &c.RedirectURIs)
	if errors.Is(err, pgx.ErrNoRows) {
		return magiclink.Client{}, fmt.Errorf("%w: %q", magiclink.ErrClientNotFound, clientID)
	}
	if err != nil {
		return magiclink.Client{}, fmt.Errorf("pgstore: get client: %w", err)
	}
	return c, nil
}

// PutClient inserts or replaces c.
func (s *Store) PutClient(ctx context.Context, c magiclink.Client) error {
	uris := c.RedirectURIs
	if uris == nil {
		uris = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO magiclink_clients (realm, client_id, name, root_url, base_url, redirect_uris)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (realm, client_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   root_url = EXCLUDED.root_url,
		   base_url = EXCLUDED.base_url,
		   redirect_uris = EXCLUDED.redirect_uris`,
		s.realm, c.ClientID, c.Name, c.RootURL, c.BaseURL, uris)
	if err != nil {
		return fmt.Errorf("pgstore: put client: %w", err)
	}
	return nil
}

func (s *Store) GetGroupByName(ctx context.Context, name string) (magiclink.Group, error) {
	g := magiclink.Group{Name: name}
	err := s.pool.QueryRow(ctx,
		`SELECT allowed_domains FROM magiclink_groups WHERE realm = $1 AND name = $2`,
		s.realm, name).Scan(&g.AllowedDomains)
	if errors.Is(err, pgx.ErrNoRows) {
		return magiclink.Group{}, fmt.Errorf("%w: %q", magiclink.ErrGroupNotFound, name)
	}
	if err != nil {
		return magiclink.Group{}, fmt.Errorf("pgstore: get group: %w", err)
	}
	return g, nil
}

// PutGroup inserts or replaces g.
func (s *Store) PutGroup(ctx context.Context, g magiclink.Group) error {
	domains := g.AllowedDomains
	if domains == nil {
		domains = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO magiclink_groups (realm, name, allowed_domains) VALUES ($1, $2, $3)
		 ON CONFLICT (realm, name) DO UPDATE SET allowed_domains = EXCLUDED.allowed_domains`,
		s.realm, g.Name, domains)
	if err != nil {
		return fmt.Errorf("pgstore: put group: %w", err)
	}
	return nil
}

// MarkUsed records the single-use marker for tokenID. Exactly one caller per
// tokenID observes first == true.
func (s *Store) MarkUsed(ctx context.Context, tokenID, nonce string, expiresAt time.Time) (bool, error) {
	if tokenID == "" || nonce == "" {
		return false, errors.New("pgstore: token id and nonce are required")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO magiclink_used_tokens (token_id, nonce, used_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token_id) DO NOTHING`,
		tokenID, nonce, s.now().UTC(), expiresAt.UTC())
	if err != nil {
		return false, fmt.Errorf("pgstore: mark used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeExpiredMarkers deletes markers whose token can no longer verify and
// returns how many were removed.
func (s *Store) PurgeExpiredMarkers(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM magiclink_used_tokens WHERE expires_at < $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("pgstore: purge markers: %w", err)
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
