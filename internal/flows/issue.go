package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IssueRequest is the normalized input of an issuance.
type IssueRequest struct {
	Email       string
	ClientID    string
	RedirectURI string
	ClientNotes map[string]string
	RememberMe  bool
	BaseURL     string
}

// IssueOutcome classifies how an issuance ended.
type IssueOutcome int

const (
	IssueOutcomeSent IssueOutcome = iota
	IssueOutcomeSuppressed
	IssueOutcomeMissingEmail
	IssueOutcomeDeliveryFailed
	IssueOutcomeUnavailable
)

// IssueResult carries the classified outcome. Suppressed and Sent must be
// indistinguishable to the requester; the root package maps both to the same
// response.
type IssueResult struct {
	Outcome      IssueOutcome
	UserID       string
	TokenID      string
	Fingerprint  string
	Provisioned  bool
	SuppressedBy string
}

type IssueMetrics struct {
	IssueRequest        int
	IssueSent           int
	IssueSuppressed     int
	IssueDeliveryFailed int
	UserProvisioned     int
}

type IssueEvents struct {
	Issue    string
	Register string
}

type IssueErrors struct {
	EngineNotReady   error
	UserNotFound     error
	EmailDelivery    error
	Configuration    error
	DirectoryFailure error
}

// IssueDeps captures every collaborator of RunIssue.
type IssueDeps struct {
	Realm                 string
	ValidityWindow        time.Duration
	CreateUnknownUsers    bool
	RestrictExistingUsers bool
	Policy                DomainPolicy
	DefaultBaseURL        string

	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger

	FindUser      func(ctx context.Context, usernameOrEmail string) (MagicLinkUser, error)
	ProvisionUser func(ctx context.Context, email string) (MagicLinkUser, error)
	GroupDomains  GroupDomainsLookup
	SignToken     func(MagicLinkClaims) (string, error)
	Fingerprint   func(string) string
	SendLink      func(ctx context.Context, user MagicLinkUser, link string, expiryMinutes int) error

	MetricInc func(int)
	EmitAudit emitAuditFunc

	Metrics IssueMetrics
	Events  IssueEvents
	Errors  IssueErrors
}

// Audit reasons recorded for suppressed or failed issuance.
const (
	ReasonUsernameMissing  = "username_missing"
	ReasonUserNotFound     = "user_not_found"
	ReasonUserDisabled     = "user_disabled"
	ReasonDomainNotAllowed = "domain_not_allowed"
	ReasonEmailSendFailed  = "email_send_failed"
)

// RunIssue drives one magic-link issuance for req.
func RunIssue(ctx context.Context, req IssueRequest, deps IssueDeps) (IssueResult, error) {
	normalizeIssueDeps(&deps)

	if deps.FindUser == nil || deps.SignToken == nil || deps.SendLink == nil {
		return IssueResult{Outcome: IssueOutcomeUnavailable}, deps.Errors.EngineNotReady
	}
	deps.MetricInc(deps.Metrics.IssueRequest)

	email := NormalizeEmail(req.Email)
	if email == "" {
		deps.EmitAudit(ctx, deps.Events.Issue, false, "", req.ClientID, "", nil, func() map[string]string {
			return map[string]string{"reason": ReasonUsernameMissing}
		})
		return IssueResult{Outcome: IssueOutcomeMissingEmail}, nil
	}

	result := IssueResult{}
	user, err := deps.FindUser(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, deps.Errors.UserNotFound):
		allowed := deps.CreateUnknownUsers
		if !allowed {
			ok, policyErr := IsAutoProvisionAllowed(ctx, deps.Policy, deps.GroupDomains, email)
			if policyErr != nil {
				deps.Logger.WarnContext(ctx, "allowed-domains lookup failed", "realm", deps.Realm, "error", policyErr)
			}
			allowed = ok
		}
		if !allowed {
			return suppressIssue(ctx, deps, req, "", ReasonUserNotFound), nil
		}
		if deps.ProvisionUser == nil {
			return IssueResult{Outcome: IssueOutcomeUnavailable}, deps.Errors.EngineNotReady
		}
		created, createErr := deps.ProvisionUser(ctx, email)
		if createErr != nil {
			deps.EmitAudit(ctx, deps.Events.Register, false, "", req.ClientID, "", createErr, nil)
			return IssueResult{Outcome: IssueOutcomeUnavailable}, fmt.Errorf("%w: create user: %v", deps.Errors.DirectoryFailure, createErr)
		}
		user = created
		result.Provisioned = true
		deps.MetricInc(deps.Metrics.UserProvisioned)
		deps.EmitAudit(ctx, deps.Events.Register, true, user.ID, req.ClientID, "", nil, func() map[string]string {
			method := "magic_link"
			if !deps.CreateUnknownUsers {
				method = "magic_link_domain_auto"
			}
			return map[string]string{"registration_method": method}
		})
	default:
		return IssueResult{Outcome: IssueOutcomeUnavailable}, fmt.Errorf("%w: find user: %v", deps.Errors.DirectoryFailure, err)
	}

	if !user.Enabled {
		return suppressIssue(ctx, deps, req, user.ID, ReasonUserDisabled), nil
	}
	if !result.Provisioned && deps.RestrictExistingUsers && deps.Policy.Enabled() {
		ok, policyErr := IsAutoProvisionAllowed(ctx, deps.Policy, deps.GroupDomains, email)
		if policyErr != nil {
			deps.Logger.WarnContext(ctx, "allowed-domains lookup failed", "realm", deps.Realm, "error", policyErr)
		}
		if !ok {
			return suppressIssue(ctx, deps, req, user.ID, ReasonDomainNotAllowed), nil
		}
	}

	now := deps.Now()
	claims := MagicLinkClaims{
		TokenID:     deps.NewID(),
		UserID:      user.ID,
		ClientID:    req.ClientID,
		Nonce:       deps.NewID(),
		IssuedAt:    now,
		ExpiresAt:   now.Add(deps.ValidityWindow),
		RedirectURI: req.RedirectURI,
		RememberMe:  req.RememberMe,
		ClientNotes: copyNotes(req.ClientNotes),
	}
	raw, err := deps.SignToken(claims)
	if err != nil {
		return IssueResult{Outcome: IssueOutcomeUnavailable}, fmt.Errorf("%w: sign token: %v", deps.Errors.Configuration, err)
	}

	result.UserID = user.ID
	result.TokenID = claims.TokenID
	result.Fingerprint = deps.Fingerprint(raw)

	// A configured base always wins; the request base is only a fallback.
	base := strings.TrimSpace(deps.DefaultBaseURL)
	if base == "" {
		base = strings.TrimSpace(req.BaseURL)
	}
	link := BuildActionTokenLink(base, deps.Realm, raw, req.ClientID)
	expiryMinutes := int(deps.ValidityWindow / time.Minute)

	if err := deps.SendLink(ctx, user, link, expiryMinutes); err != nil {
		deps.MetricInc(deps.Metrics.IssueDeliveryFailed)
		deps.EmitAudit(ctx, deps.Events.Issue, false, user.ID, req.ClientID, "", deps.Errors.EmailDelivery, func() map[string]string {
			return map[string]string{
				"reason":      ReasonEmailSendFailed,
				"fingerprint": result.Fingerprint,
			}
		})
		deps.Logger.ErrorContext(ctx, "magic link delivery failed",
			"realm", deps.Realm, "user_id", user.ID, "fingerprint", result.Fingerprint, "error", err)
		result.Outcome = IssueOutcomeDeliveryFailed
		return result, fmt.Errorf("%w: %v", deps.Errors.EmailDelivery, err)
	}

	deps.MetricInc(deps.Metrics.IssueSent)
	deps.EmitAudit(ctx, deps.Events.Issue, true, user.ID, req.ClientID, "", nil, func() map[string]string {
		return map[string]string{
			"token_id":    claims.TokenID,
			"fingerprint": result.Fingerprint,
		}
	})
	deps.Logger.InfoContext(ctx, "magic link sent",
		"realm", deps.Realm, "user_id", user.ID, "client_id", req.ClientID, "fingerprint", result.Fingerprint)
	result.Outcome = IssueOutcomeSent
	return result, nil
}

func suppressIssue(ctx context.Context, deps IssueDeps, req IssueRequest, userID, reason string) IssueResult {
	deps.MetricInc(deps.Metrics.IssueSuppressed)
	deps.EmitAudit(ctx, deps.Events.Issue, false, userID, req.ClientID, "", nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	deps.Logger.DebugContext(ctx, "magic link suppressed", "realm", deps.Realm, "reason", reason)
	return IssueResult{Outcome: IssueOutcomeSuppressed, UserID: userID, SuppressedBy: reason}
}

// NormalizeEmail trims and lowercases a submitted address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// BuildActionTokenLink returns the consumption URL for raw.
func BuildActionTokenLink(baseURL, realm, raw, clientID string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString("/realms/")
	b.WriteString(url.PathEscape(realm))
	b.WriteString("/login-actions/action-token?key=")
	b.WriteString(url.QueryEscape(raw))
	if clientID != "" {
		b.WriteString("&client_id=")
		b.WriteString(url.QueryEscape(clientID))
	}
	return b.String()
}

func copyNotes(notes map[string]string) map[string]string {
	if len(notes) == 0 {
		return nil
	}
	out := make(map[string]string, len(notes))
	for k, v := range notes {
		out[k] = v
	}
	return out
}

func normalizeIssueDeps(deps *IssueDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Fingerprint == nil {
		deps.Fingerprint = func(string) string { return "" }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	if deps.Errors.EngineNotReady == nil {
		deps.Errors.EngineNotReady = errors.New("engine not ready")
	}
	if deps.Errors.UserNotFound == nil {
		deps.Errors.UserNotFound = errors.New("user not found")
	}
	if deps.Errors.EmailDelivery == nil {
		deps.Errors.EmailDelivery = errors.New("email delivery failed")
	}
	if deps.Errors.Configuration == nil {
		deps.Errors.Configuration = errors.New("configuration error")
	}
	if deps.Errors.DirectoryFailure == nil {
		deps.Errors.DirectoryFailure = errors.New("directory unavailable")
	}
}
