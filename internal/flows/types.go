package flows

import (
	"context"
	"time"
)

// MagicLinkUser is the flow view of a directory user.
type MagicLinkUser struct {
	ID            string
	Username      string
	Email         string
	FirstName     string
	LastName      string
	EmailVerified bool
	Enabled       bool
}

// MagicLinkClient is the flow view of a registered client.
type MagicLinkClient struct {
	ClientID     string
	Name         string
	RootURL      string
	BaseURL      string
	RedirectURIs []string
}

// MagicLinkClaims is the decoded, verified content of a magic-link token.
type MagicLinkClaims struct {
	TokenID     string
	UserID      string
	ClientID    string
	Nonce       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RedirectURI string
	RememberMe  bool
	ClientNotes map[string]string
}

// SessionHandle is the subset of an authentication session the consume flow
// writes to.
type SessionHandle interface {
	ID() string
	SetClientNote(name, value string)
	SetAuthNote(name, value string)
	SetUserSessionNote(name, value string)
	SetRedirectURI(uri string)
	SetAuthenticatedUser(user MagicLinkUser)
}

type emitAuditFunc func(ctx context.Context, eventType string, success bool, userID, clientID, sessionID string, err error, metadata func() map[string]string)
