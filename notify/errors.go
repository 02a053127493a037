package notify

import "errors"

var (
	// ErrInvalidConfig is returned by constructors for unusable settings.
	ErrInvalidConfig = errors.New("notify: invalid config")
	// ErrSendFailed wraps every provider delivery failure.
	ErrSendFailed = errors.New("notify: send failed")
	// ErrNoRecipient is returned when the message user has no email address.
	ErrNoRecipient = errors.New("notify: recipient has no email address")
)
