package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/magiclink/token"
)

// ConsumeState is a state of the consumption state machine.
type ConsumeState string

const (
	StateReceived             ConsumeState = "received"
	StateDecoded              ConsumeState = "decoded"
	StateVerified             ConsumeState = "verified"
	StateSessionReconstructed ConsumeState = "session_reconstructed"
	StateRedirectValidated    ConsumeState = "redirect_validated"
	StateCompleted            ConsumeState = "completed"
	StateFailed               ConsumeState = "failed"
)

// FailureReason is the audit category of a failed consumption.
type FailureReason string

const (
	FailureNone               FailureReason = ""
	FailureMalformedToken     FailureReason = "malformed_token"
	FailureSignatureInvalid   FailureReason = "signature_invalid"
	FailureWrongTokenType     FailureReason = "wrong_token_type"
	FailureExpired            FailureReason = "expired"
	FailureAlreadyUsed        FailureReason = "already_used"
	FailureStoreUnavailable   FailureReason = "store_unavailable"
	FailureClientNotFound     FailureReason = "client_not_found"
	FailureSessionUnavailable FailureReason = "session_unavailable"
	FailureHostUnavailable    FailureReason = "host_unavailable"
	FailureUserNotFound       FailureReason = "user_not_found"
	FailureUserDisabled       FailureReason = "user_disabled"
	FailureInvalidRedirect    FailureReason = "invalid_redirect"
	FailureNextStep           FailureReason = "next_step_failed"
)

// Session note names written on completion.
const (
	ClientNoteRedirectURI                = "redirect_uri"
	AuthNoteRedirectAfterRequiredActions = "redirect_after_required_actions"
	AuthNoteRememberMe                   = "remember_me"
	UserSessionNoteLoginMethod           = "login_method"
	LoginMethodMagicLink                 = "magic-link"
)

// ConsumeResult is the terminal record of one consumption.
type ConsumeResult struct {
	State       ConsumeState
	FailedAt    ConsumeState
	Reason      FailureReason
	Err         error
	Fingerprint string

	Claims      MagicLinkClaims
	Client      MagicLinkClient
	User        MagicLinkUser
	Session     SessionHandle
	RedirectURI string
	Location    string
}

// Succeeded reports whether the machine reached Completed.
func (r ConsumeResult) Succeeded() bool {
	return r.State == StateCompleted
}

type ConsumeMetrics struct {
	ConsumeSuccess     int
	ConsumeFailure     int
	ConsumeReplay      int
	ConsumeExpired     int
	ConsumeTampered    int
	ConsumeBadRedirect int
}

type ConsumeEvents struct {
	Consume string
	Replay  string
}

type ConsumeErrors struct {
	EngineNotReady   error
	MalformedToken   error
	SignatureInvalid error
	WrongTokenType   error
	Expired          error
	AlreadyUsed      error
	StoreUnavailable error
	ClientNotFound   error
	UserNotFound     error
	UserDisabled     error
	InvalidRedirect  error
	HostUnavailable  error
}

// ConsumeDeps captures every collaborator of RunConsume.
type ConsumeDeps struct {
	Realm  string
	Logger *slog.Logger

	DecodeToken  func(raw string) (MagicLinkClaims, error)
	Fingerprint  func(string) string
	MarkerExpiry func(exp time.Time) time.Time
	MarkUsed     func(ctx context.Context, tokenID, nonce string, expiresAt time.Time) (bool, error)

	GetClient        func(ctx context.Context, clientID string) (MagicLinkClient, error)
	NewSession       func(ctx context.Context, client MagicLinkClient) (SessionHandle, error)
	GetUserByID      func(ctx context.Context, userID string) (MagicLinkUser, error)
	DefaultRedirect  func(client MagicLinkClient) string
	VerifyRedirect   func(ctx context.Context, candidate string, client MagicLinkClient) (string, bool)
	SetEmailVerified func(ctx context.Context, user MagicLinkUser) error
	NextStep         func(ctx context.Context, session SessionHandle, user MagicLinkUser) (string, error)

	MetricInc func(int)
	EmitAudit emitAuditFunc

	Metrics ConsumeMetrics
	Events  ConsumeEvents
	Errors  ConsumeErrors
}

// RunConsume decodes raw and drives it through the consumption state machine.
func RunConsume(ctx context.Context, raw string, deps ConsumeDeps) ConsumeResult {
	normalizeConsumeDeps(&deps)

	fp := deps.Fingerprint(raw)
	if deps.DecodeToken == nil {
		return failConsume(ctx, deps, ConsumeResult{Fingerprint: fp}, StateDecoded, FailureMalformedToken, deps.Errors.EngineNotReady)
	}

	claims, err := deps.DecodeToken(raw)
	if err != nil {
		reason, mapped := classifyDecodeError(err, deps.Errors)
		return failConsume(ctx, deps, ConsumeResult{Fingerprint: fp}, StateDecoded, reason, mapped)
	}
	return RunConsumeClaims(ctx, claims, fp, deps)
}

// RejectDecode records a decode-stage failure for raw without re-decoding it.
// It is used by dispatchers that verify the envelope generically.
func RejectDecode(ctx context.Context, fingerprint string, err error, deps ConsumeDeps) ConsumeResult {
	normalizeConsumeDeps(&deps)
	reason, mapped := classifyDecodeError(err, deps.Errors)
	return failConsume(ctx, deps, ConsumeResult{Fingerprint: fingerprint}, StateDecoded, reason, mapped)
}

// RunConsumeClaims continues the state machine from Decoded with claims that
// were already verified by the codec.
func RunConsumeClaims(ctx context.Context, claims MagicLinkClaims, fingerprint string, deps ConsumeDeps) ConsumeResult {
	normalizeConsumeDeps(&deps)

	res := ConsumeResult{State: StateDecoded, Fingerprint: fingerprint, Claims: claims}
	if deps.MarkUsed == nil || deps.GetClient == nil || deps.NewSession == nil ||
		deps.GetUserByID == nil || deps.VerifyRedirect == nil || deps.NextStep == nil {
		return failConsume(ctx, deps, res, StateVerified, FailureStoreUnavailable, deps.Errors.EngineNotReady)
	}

	// Decoded -> Verified
	first, err := deps.MarkUsed(ctx, claims.TokenID, claims.Nonce, deps.MarkerExpiry(claims.ExpiresAt))
	if err != nil {
		return failConsume(ctx, deps, res, StateVerified, FailureStoreUnavailable, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err))
	}
	if !first {
		return failConsume(ctx, deps, res, StateVerified, FailureAlreadyUsed, deps.Errors.AlreadyUsed)
	}
	res.State = StateVerified

	// Verified -> SessionReconstructed
	client, err := deps.GetClient(ctx, claims.ClientID)
	if err != nil {
		if !errors.Is(err, deps.Errors.ClientNotFound) {
			return failConsume(ctx, deps, res, StateSessionReconstructed, FailureHostUnavailable, joinCause(deps.Errors.HostUnavailable, err))
		}
		return failConsume(ctx, deps, res, StateSessionReconstructed, FailureClientNotFound, joinCause(deps.Errors.ClientNotFound, err))
	}
	res.Client = client

	session, err := deps.NewSession(ctx, client)
	if err != nil || session == nil {
		return failConsume(ctx, deps, res, StateSessionReconstructed, FailureSessionUnavailable, joinCause(deps.Errors.HostUnavailable, err))
	}
	res.Session = session
	for name, value := range claims.ClientNotes {
		session.SetClientNote(name, value)
	}

	user, err := deps.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, deps.Errors.UserNotFound) {
			return failConsume(ctx, deps, res, StateSessionReconstructed, FailureHostUnavailable, joinCause(deps.Errors.HostUnavailable, err))
		}
		return failConsume(ctx, deps, res, StateSessionReconstructed, FailureUserNotFound, joinCause(deps.Errors.UserNotFound, err))
	}
	if !user.Enabled {
		return failConsume(ctx, deps, res, StateSessionReconstructed, FailureUserDisabled, deps.Errors.UserDisabled)
	}
	res.User = user
	res.State = StateSessionReconstructed

	// SessionReconstructed -> RedirectValidated
	candidate := claims.RedirectURI
	if candidate == "" && deps.DefaultRedirect != nil {
		candidate = deps.DefaultRedirect(client)
	}
	redirect, ok := deps.VerifyRedirect(ctx, candidate, client)
	if !ok || redirect == "" {
		deps.MetricInc(deps.Metrics.ConsumeBadRedirect)
		return failConsume(ctx, deps, res, StateRedirectValidated, FailureInvalidRedirect, deps.Errors.InvalidRedirect)
	}
	res.RedirectURI = redirect
	res.State = StateRedirectValidated

	// RedirectValidated -> Completed
	session.SetAuthenticatedUser(user)
	session.SetAuthNote(AuthNoteRedirectAfterRequiredActions, "true")
	session.SetRedirectURI(redirect)
	session.SetClientNote(ClientNoteRedirectURI, candidate)
	if claims.RememberMe {
		session.SetAuthNote(AuthNoteRememberMe, "true")
	}
	if deps.SetEmailVerified != nil {
		if err := deps.SetEmailVerified(ctx, user); err != nil {
			return failConsume(ctx, deps, res, StateCompleted, FailureNextStep, joinCause(deps.Errors.HostUnavailable, err))
		}
	}
	session.SetUserSessionNote(UserSessionNoteLoginMethod, LoginMethodMagicLink)

	location, err := deps.NextStep(ctx, session, user)
	if err != nil || location == "" {
		return failConsume(ctx, deps, res, StateCompleted, FailureNextStep, joinCause(deps.Errors.HostUnavailable, err))
	}
	res.Location = location
	res.State = StateCompleted

	deps.MetricInc(deps.Metrics.ConsumeSuccess)
	deps.EmitAudit(ctx, deps.Events.Consume, true, user.ID, client.ClientID, session.ID(), nil, func() map[string]string {
		return map[string]string{
			"token_id":     claims.TokenID,
			"fingerprint":  fingerprint,
			"login_method": LoginMethodMagicLink,
		}
	})
	deps.Logger.InfoContext(ctx, "magic link consumed",
		"realm", deps.Realm, "user_id", user.ID, "client_id", client.ClientID, "fingerprint", fingerprint)
	return res
}

func failConsume(ctx context.Context, deps ConsumeDeps, res ConsumeResult, at ConsumeState, reason FailureReason, err error) ConsumeResult {
	res.FailedAt = at
	res.State = StateFailed
	res.Reason = reason
	res.Err = err
	res.Location = ""

	deps.MetricInc(deps.Metrics.ConsumeFailure)
	switch reason {
	case FailureAlreadyUsed:
		deps.MetricInc(deps.Metrics.ConsumeReplay)
	case FailureExpired:
		deps.MetricInc(deps.Metrics.ConsumeExpired)
	case FailureSignatureInvalid, FailureMalformedToken:
		deps.MetricInc(deps.Metrics.ConsumeTampered)
	}

	event := deps.Events.Consume
	if reason == FailureAlreadyUsed && deps.Events.Replay != "" {
		event = deps.Events.Replay
	}
	sessionID := ""
	if res.Session != nil {
		sessionID = res.Session.ID()
	}
	deps.EmitAudit(ctx, event, false, res.Claims.UserID, res.Claims.ClientID, sessionID, err, func() map[string]string {
		return map[string]string{
			"reason":      string(reason),
			"failed_at":   string(at),
			"fingerprint": res.Fingerprint,
		}
	})

	level := slog.LevelWarn
	switch reason {
	case FailureStoreUnavailable, FailureSessionUnavailable, FailureHostUnavailable, FailureNextStep:
		level = slog.LevelError
	}
	deps.Logger.Log(ctx, level, "magic link rejected",
		"realm", deps.Realm, "reason", string(reason), "failed_at", string(at), "fingerprint", res.Fingerprint)
	return res
}

func classifyDecodeError(err error, errs ConsumeErrors) (FailureReason, error) {
	switch {
	case errors.Is(err, token.ErrSignatureInvalid):
		return FailureSignatureInvalid, errs.SignatureInvalid
	case errors.Is(err, token.ErrWrongType):
		return FailureWrongTokenType, errs.WrongTokenType
	case errors.Is(err, token.ErrExpired):
		return FailureExpired, errs.Expired
	default:
		return FailureMalformedToken, errs.MalformedToken
	}
}

func joinCause(sentinel, cause error) error {
	if cause == nil || errors.Is(cause, sentinel) {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}

func normalizeConsumeDeps(deps *ConsumeDeps) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Fingerprint == nil {
		deps.Fingerprint = token.Fingerprint
	}
	if deps.MarkerExpiry == nil {
		deps.MarkerExpiry = func(exp time.Time) time.Time { return exp }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	fallback := func(target *error, text string) {
		if *target == nil {
			*target = errors.New(text)
		}
	}
	fallback(&deps.Errors.EngineNotReady, "engine not ready")
	fallback(&deps.Errors.MalformedToken, "malformed token")
	fallback(&deps.Errors.SignatureInvalid, "signature invalid")
	fallback(&deps.Errors.WrongTokenType, "wrong token type")
	fallback(&deps.Errors.Expired, "token expired")
	fallback(&deps.Errors.AlreadyUsed, "token already used")
	fallback(&deps.Errors.StoreUnavailable, "marker store unavailable")
	fallback(&deps.Errors.ClientNotFound, "client not found")
	fallback(&deps.Errors.UserNotFound, "user not found")
	fallback(&deps.Errors.UserDisabled, "user disabled")
	fallback(&deps.Errors.InvalidRedirect, "invalid redirect")
	fallback(&deps.Errors.HostUnavailable, "host collaborator unavailable")
}
