package magiclink

import "errors"

var (
	// ErrMalformedToken is returned when a presented token is not a well-formed envelope.
	ErrMalformedToken = errors.New("malformed action token")
	// ErrSignatureInvalid is returned when no configured key verifies the token signature.
	ErrSignatureInvalid = errors.New("action token signature invalid")
	// ErrWrongTokenType is returned when the token type does not match the expected action.
	ErrWrongTokenType = errors.New("wrong action token type")
	// ErrExpired is an exported constant or variable used by the authentication engine.
	ErrExpired = errors.New("action token expired")
	// ErrAlreadyUsed is returned when a token's single-use marker already exists.
	ErrAlreadyUsed = errors.New("action token already used")
	// ErrClientNotFound is an exported constant or variable used by the authentication engine.
	ErrClientNotFound = errors.New("client not found")
	// ErrUserNotFound is returned by UserDirectory implementations for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserDisabled is an exported constant or variable used by the authentication engine.
	ErrUserDisabled = errors.New("user disabled")
	// ErrInvalidRedirect is returned when the redirect target fails validation at click time.
	ErrInvalidRedirect = errors.New("invalid redirect uri")
	// ErrEmailDeliveryFailed wraps notifier failures during issuance.
	ErrEmailDeliveryFailed = errors.New("email delivery failed")
	// ErrConfiguration is an exported constant or variable used by the authentication engine.
	ErrConfiguration = errors.New("magic link configuration error")
	// ErrGroupNotFound is returned by GroupDirectory implementations for unknown groups.
	ErrGroupNotFound = errors.New("group not found")
	// ErrStoreUnavailable is returned when the single-use marker store cannot answer.
	ErrStoreUnavailable = errors.New("used token store unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrHostUnavailable wraps failures of host collaborators other than the marker store.
	ErrHostUnavailable = errors.New("host collaborator unavailable")
)
