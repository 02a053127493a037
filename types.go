package magiclink

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/magiclink/internal/audit"
	"github.com/MrEthical07/magiclink/internal/flows"
)

// User is the directory record the engine reads and provisions.
type User struct {
	ID            string
	Username      string
	Email         string
	FirstName     string
	LastName      string
	EmailVerified bool
	Enabled       bool
}

// Client is a registered relying party.
type Client struct {
	ClientID     string
	Name         string
	RootURL      string
	BaseURL      string
	RedirectURIs []string
}

// Group carries the allowed-domains attribute consulted by the domain policy.
type Group struct {
	Name           string
	AllowedDomains []string
}

// Message is what a [Notifier] delivers. Link is a bearer credential and must
// not be logged.
type Message struct {
	User             User
	Link             string
	ExpiryMinutes    int
	RealmName        string
	RealmDisplayName string
}

// UserDirectory is the host user store.
//
// GetUserByID and FindUserByUsernameOrEmail must return an error wrapping
// [ErrUserNotFound] for unknown users; any other error is treated as the
// directory being unavailable.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (User, error)
	FindUserByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (User, error)
	CreateUser(ctx context.Context, email string) (User, error)
	SetEmailVerified(ctx context.Context, userID string, verified bool) error
}

// ClientRegistry resolves client ids. Unknown clients wrap [ErrClientNotFound].
type ClientRegistry interface {
	GetClientByClientID(ctx context.Context, clientID string) (Client, error)
}

// GroupDirectory resolves groups by name. Unknown groups wrap [ErrGroupNotFound].
type GroupDirectory interface {
	GetGroupByName(ctx context.Context, name string) (Group, error)
}

// AuthSession is the host authentication session the consumer populates.
type AuthSession interface {
	ID() string

	SetClientNote(name, value string)
	ClientNote(name string) string
	SetAuthNote(name, value string)
	AuthNote(name string) string
	SetUserSessionNote(name, value string)
	UserSessionNote(name string) string

	SetRedirectURI(uri string)
	RedirectURI() string
	SetAuthenticatedUser(user User)
	AuthenticatedUser() (User, bool)
}

// SessionFactory creates a fresh authentication session for client.
type SessionFactory interface {
	NewAuthSession(ctx context.Context, client Client) (AuthSession, error)
}

// UsedTokenStore records single-use markers. MarkUsed must be an atomic
// check-and-set: exactly one caller per tokenID observes first == true.
type UsedTokenStore interface {
	MarkUsed(ctx context.Context, tokenID, nonce string, expiresAt time.Time) (first bool, err error)
}

// RedirectValidator checks a redirect candidate against client's registered
// redirect URIs and returns the canonical target.
type RedirectValidator interface {
	Verify(ctx context.Context, candidate string, client Client) (string, bool)
}

// Notifier delivers a magic link. Send is synchronous and never retried by
// the engine.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NextStepResolver decides where the browser goes after a completed
// consumption (required actions, consent, or the client redirect).
type NextStepResolver interface {
	NextStep(ctx context.Context, session AuthSession, user User) (location string, err error)
}

/*
====================================
RESPONSES
====================================
*/

// Page identifies the terminal page a host should render.
type Page string

const (
	// PageEmailForm re-renders the email form with an error message.
	PageEmailForm Page = "login-username"
	// PageEmailSent renders the check-your-email page.
	PageEmailSent Page = "magic-link-sent"
	// PageError renders the generic error page.
	PageError Page = "error"
	// PageRedirect redirects the browser to Response.Location.
	PageRedirect Page = "redirect"
)

// User-facing message keys.
const (
	MessageMissingEmail       = "missingUsernameMessage"
	MessageCheckEmail         = "magicLinkSentMessage"
	MessageEmailSendFailed    = "emailSendErrorMessage"
	MessageInvalidLink        = "invalidRequestMessage"
	MessageServiceUnavailable = "internalServerError"
)

// Response is the host-facing outcome of Issue and Consume.
type Response struct {
	Page     Page
	Status   int
	Message  string
	Location string
}

// IssueRequest is the input of [Engine.Issue]. ClientNotes, RedirectURI and
// ClientID are captured from the requesting session and travel in the token.
type IssueRequest struct {
	Email       string
	ClientID    string
	RedirectURI string
	ClientNotes map[string]string
	RememberMe  bool
	// BaseURL is used only when Config.Issue.BaseURL is empty.
	BaseURL string
}

// ConsumeState is a state of the consumption state machine.
type ConsumeState = flows.ConsumeState

// FailureReason names the audit category of a failed consumption.
type FailureReason = flows.FailureReason

const (
	StateReceived             = flows.StateReceived
	StateDecoded              = flows.StateDecoded
	StateVerified             = flows.StateVerified
	StateSessionReconstructed = flows.StateSessionReconstructed
	StateRedirectValidated    = flows.StateRedirectValidated
	StateCompleted            = flows.StateCompleted
	StateFailed               = flows.StateFailed
)

const (
	FailureMalformedToken     = flows.FailureMalformedToken
	FailureSignatureInvalid   = flows.FailureSignatureInvalid
	FailureWrongTokenType     = flows.FailureWrongTokenType
	FailureExpired            = flows.FailureExpired
	FailureAlreadyUsed        = flows.FailureAlreadyUsed
	FailureStoreUnavailable   = flows.FailureStoreUnavailable
	FailureClientNotFound     = flows.FailureClientNotFound
	FailureSessionUnavailable = flows.FailureSessionUnavailable
	FailureHostUnavailable    = flows.FailureHostUnavailable
	FailureUserNotFound       = flows.FailureUserNotFound
	FailureUserDisabled       = flows.FailureUserDisabled
	FailureInvalidRedirect    = flows.FailureInvalidRedirect
	FailureNextStep           = flows.FailureNextStep
)

// AuthenticationContext is the login state rebuilt from token claims.
type AuthenticationContext struct {
	TokenID     string
	Client      Client
	User        User
	Session     AuthSession
	RedirectURI string
	ClientNotes map[string]string
	RememberMe  bool
}

// ConsumeResult is the terminal record of [Engine.Consume]. Context is set
// only when State is StateCompleted.
type ConsumeResult struct {
	State       ConsumeState
	FailedAt    ConsumeState
	Reason      FailureReason
	Response    Response
	Fingerprint string
	Context     *AuthenticationContext
}

// Succeeded reports whether the consumption completed.
func (r ConsumeResult) Succeeded() bool {
	return r.State == StateCompleted
}

/*
====================================
AUDIT
====================================
*/

// AuditEvent is the canonical audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives dispatched audit events.
type AuditSink = internalaudit.Sink

// NoOpSink discards every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs events through a [slog.Logger].
type SlogSink = internalaudit.SlogSink

// NewChannelSink returns a sink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink returns a sink logging through logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
