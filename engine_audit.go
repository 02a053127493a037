package magiclink

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/magiclink/internal/audit"
)

const (
	auditEventMagicLinkIssue   = "magic_link_issue"
	auditEventMagicLinkConsume = "magic_link_consume"
	auditEventMagicLinkReplay  = "magic_link_replay"
	auditEventUserRegister     = "user_register"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrInvalidToken     AuditErrorCode = "invalid_token"
	auditErrExpired          AuditErrorCode = "expired"
	auditErrReplay           AuditErrorCode = "replay"
	auditErrClientNotFound   AuditErrorCode = "client_not_found"
	auditErrUserNotFound     AuditErrorCode = "user_not_found"
	auditErrUserDisabled     AuditErrorCode = "user_disabled"
	auditErrInvalidRedirect  AuditErrorCode = "invalid_redirect"
	auditErrDeliveryFailed   AuditErrorCode = "delivery_failed"
	auditErrStoreUnavailable AuditErrorCode = "store_unavailable"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *internalaudit.Dispatcher {
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	clientID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Realm:     e.config.Realm.Name,
		ClientID:  clientID,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrMalformedToken),
		errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrWrongTokenType):
		return auditErrInvalidToken
	case errors.Is(err, ErrExpired):
		return auditErrExpired
	case errors.Is(err, ErrAlreadyUsed):
		return auditErrReplay
	case errors.Is(err, ErrClientNotFound):
		return auditErrClientNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrUserDisabled):
		return auditErrUserDisabled
	case errors.Is(err, ErrInvalidRedirect):
		return auditErrInvalidRedirect
	case errors.Is(err, ErrEmailDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, ErrHostUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
