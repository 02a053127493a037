package magiclink

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/magiclink/internal/flows"
	"github.com/MrEthical07/magiclink/token"
)

// Consume verifies raw as a magic-link token and drives it through the
// consumption state machine. Every failure yields the same generic
// PageError/400 response; the error and ConsumeResult.Reason carry the cause.
//
// A token is consumed at most once, including under concurrent calls.
func (e *Engine) Consume(ctx context.Context, raw string) (ConsumeResult, error) {
	if e == nil || !e.flows.Initialized() {
		return engineNotReadyResult(), ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeLatency(MetricConsumeLatency, start)

	return e.consumeResult(e.flows.Consume(ctx, raw))
}

func (e *Engine) consumeResult(res flows.ConsumeResult) (ConsumeResult, error) {
	out := ConsumeResult{
		State:       res.State,
		FailedAt:    res.FailedAt,
		Reason:      res.Reason,
		Fingerprint: res.Fingerprint,
	}
	if !res.Succeeded() {
		out.Response = invalidLinkResponse()
		return out, res.Err
	}

	var session AuthSession
	if h, ok := res.Session.(sessionHandle); ok {
		session = h.AuthSession
	}
	out.Response = Response{Page: PageRedirect, Status: http.StatusFound, Location: res.Location}
	out.Context = &AuthenticationContext{
		TokenID:     res.Claims.TokenID,
		Client:      fromFlowClient(res.Client),
		User:        fromFlowUser(res.User),
		Session:     session,
		RedirectURI: res.RedirectURI,
		ClientNotes: res.Claims.ClientNotes,
		RememberMe:  res.Claims.RememberMe,
	}
	return out, nil
}

func invalidLinkResponse() Response {
	return Response{Page: PageError, Status: http.StatusBadRequest, Message: MessageInvalidLink}
}

func engineNotReadyResult() ConsumeResult {
	return ConsumeResult{
		State:    StateFailed,
		FailedAt: StateReceived,
		Response: invalidLinkResponse(),
	}
}

// sessionHandle adapts a host AuthSession to the flow session view.
type sessionHandle struct {
	AuthSession
}

func (h sessionHandle) SetAuthenticatedUser(user flows.MagicLinkUser) {
	h.AuthSession.SetAuthenticatedUser(fromFlowUser(user))
}

func (e *Engine) consumeFlowDeps() flows.ConsumeDeps {
	cfg := e.config

	deps := flows.ConsumeDeps{
		Realm:       cfg.Realm.Name,
		Logger:      e.logger,
		DecodeToken: e.decodeMagicLink,
		Fingerprint: token.Fingerprint,
		MarkerExpiry: func(exp time.Time) time.Time {
			return exp.Add(cfg.Token.ClockSkew)
		},
		MarkUsed: e.markers.MarkUsed,
		GetClient: func(ctx context.Context, clientID string) (flows.MagicLinkClient, error) {
			client, err := e.clients.GetClientByClientID(ctx, clientID)
			if err != nil {
				return flows.MagicLinkClient{}, err
			}
			return toFlowClient(client), nil
		},
		NewSession: func(ctx context.Context, client flows.MagicLinkClient) (flows.SessionHandle, error) {
			session, err := e.sessions.NewAuthSession(ctx, fromFlowClient(client))
			if err != nil || session == nil {
				return nil, err
			}
			return sessionHandle{AuthSession: session}, nil
		},
		GetUserByID: func(ctx context.Context, userID string) (flows.MagicLinkUser, error) {
			user, err := e.users.GetUserByID(ctx, userID)
			if err != nil {
				return flows.MagicLinkUser{}, err
			}
			return toFlowUser(user), nil
		},
		DefaultRedirect: func(client flows.MagicLinkClient) string {
			return DefaultRedirect(fromFlowClient(client))
		},
		VerifyRedirect: func(ctx context.Context, candidate string, client flows.MagicLinkClient) (string, bool) {
			return e.redirects.Verify(ctx, candidate, fromFlowClient(client))
		},
		NextStep: func(ctx context.Context, session flows.SessionHandle, user flows.MagicLinkUser) (string, error) {
			h, _ := session.(sessionHandle)
			return e.nextStep.NextStep(ctx, h.AuthSession, fromFlowUser(user))
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: flows.ConsumeMetrics{
			ConsumeSuccess:     int(MetricConsumeSuccess),
			ConsumeFailure:     int(MetricConsumeFailure),
			ConsumeReplay:      int(MetricConsumeReplay),
			ConsumeExpired:     int(MetricConsumeExpired),
			ConsumeTampered:    int(MetricConsumeTampered),
			ConsumeBadRedirect: int(MetricConsumeInvalidRedirect),
		},
		Events: flows.ConsumeEvents{
			Consume: auditEventMagicLinkConsume,
			Replay:  auditEventMagicLinkReplay,
		},
		Errors: flows.ConsumeErrors{
			EngineNotReady:   ErrEngineNotReady,
			MalformedToken:   ErrMalformedToken,
			SignatureInvalid: ErrSignatureInvalid,
			WrongTokenType:   ErrWrongTokenType,
			Expired:          ErrExpired,
			AlreadyUsed:      ErrAlreadyUsed,
			StoreUnavailable: ErrStoreUnavailable,
			ClientNotFound:   ErrClientNotFound,
			UserNotFound:     ErrUserNotFound,
			UserDisabled:     ErrUserDisabled,
			InvalidRedirect:  ErrInvalidRedirect,
			HostUnavailable:  ErrHostUnavailable,
		},
	}
	if cfg.Consume.MarkEmailVerified {
		deps.SetEmailVerified = func(ctx context.Context, user flows.MagicLinkUser) error {
			return e.users.SetEmailVerified(ctx, user.ID, true)
		}
	}
	return deps
}
