package magiclink

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/magiclink/internal/flows"
	"github.com/MrEthical07/magiclink/token"
)

// Issue handles an email submission. It answers every outcome that does not
// involve a delivery attempt failure with the same check-your-email response,
// so the response never reveals whether the address belongs to an enabled
// user.
//
// A notifier failure yields PageEmailForm/500 and an error wrapping
// [ErrEmailDeliveryFailed]. Directory failures yield an error wrapping
// [ErrHostUnavailable].
func (e *Engine) Issue(ctx context.Context, req IssueRequest) (Response, error) {
	if e == nil || !e.flows.Initialized() {
		return unavailableResponse(), ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeLatency(MetricIssueLatency, start)

	res, err := e.flows.Issue(ctx, flows.IssueRequest{
		Email:       req.Email,
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		ClientNotes: req.ClientNotes,
		RememberMe:  req.RememberMe,
		BaseURL:     req.BaseURL,
	})
	return issueResponse(res.Outcome), err
}

func issueResponse(outcome flows.IssueOutcome) Response {
	switch outcome {
	case flows.IssueOutcomeSent, flows.IssueOutcomeSuppressed:
		return Response{Page: PageEmailSent, Status: http.StatusOK, Message: MessageCheckEmail}
	case flows.IssueOutcomeMissingEmail:
		return Response{Page: PageEmailForm, Status: http.StatusBadRequest, Message: MessageMissingEmail}
	case flows.IssueOutcomeDeliveryFailed:
		return Response{Page: PageEmailForm, Status: http.StatusInternalServerError, Message: MessageEmailSendFailed}
	default:
		return unavailableResponse()
	}
}

func unavailableResponse() Response {
	return Response{Page: PageEmailForm, Status: http.StatusInternalServerError, Message: MessageServiceUnavailable}
}

func (e *Engine) issueFlowDeps() flows.IssueDeps {
	cfg := e.config
	displayName := cfg.Realm.DisplayName
	if displayName == "" {
		displayName = cfg.Realm.Name
	}

	return flows.IssueDeps{
		Realm:                 cfg.Realm.Name,
		ValidityWindow:        cfg.Issue.ValidityWindow,
		CreateUnknownUsers:    cfg.Issue.CreateUser,
		RestrictExistingUsers: cfg.Issue.RestrictExistingUsersToAllowedDomains,
		Policy:                flows.DomainPolicy{AllowedDomainsGroup: cfg.Issue.AllowedDomainsGroup},
		DefaultBaseURL:        cfg.Issue.BaseURL,
		Now:                   e.now,
		Logger:                e.logger,
		FindUser: func(ctx context.Context, usernameOrEmail string) (flows.MagicLinkUser, error) {
			user, err := e.users.FindUserByUsernameOrEmail(ctx, usernameOrEmail)
			if err != nil {
				return flows.MagicLinkUser{}, err
			}
			return toFlowUser(user), nil
		},
		ProvisionUser: func(ctx context.Context, email string) (flows.MagicLinkUser, error) {
			user, err := e.users.CreateUser(ctx, email)
			if err != nil {
				return flows.MagicLinkUser{}, err
			}
			return toFlowUser(user), nil
		},
		GroupDomains: e.groupDomainsLookup(),
		SignToken:    e.signMagicLink,
		Fingerprint:  token.Fingerprint,
		SendLink: func(ctx context.Context, user flows.MagicLinkUser, link string, expiryMinutes int) error {
			return e.notifier.Send(ctx, Message{
				User:             fromFlowUser(user),
				Link:             link,
				ExpiryMinutes:    expiryMinutes,
				RealmName:        cfg.Realm.Name,
				RealmDisplayName: displayName,
			})
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: flows.IssueMetrics{
			IssueRequest:        int(MetricIssueRequest),
			IssueSent:           int(MetricIssueSent),
			IssueSuppressed:     int(MetricIssueSuppressed),
			IssueDeliveryFailed: int(MetricIssueDeliveryFailed),
			UserProvisioned:     int(MetricUserProvisioned),
		},
		Events: flows.IssueEvents{
			Issue:    auditEventMagicLinkIssue,
			Register: auditEventUserRegister,
		},
		Errors: flows.IssueErrors{
			EngineNotReady:   ErrEngineNotReady,
			UserNotFound:     ErrUserNotFound,
			EmailDelivery:    ErrEmailDeliveryFailed,
			Configuration:    ErrConfiguration,
			DirectoryFailure: ErrHostUnavailable,
		},
	}
}
