package notify

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/magiclink"
)

// LogNotifier records deliveries in the log instead of sending them. It is
// meant for development and logs the token fingerprint, not the link.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg magiclink.Message) error {
	if msg.User.Email == "" {
		return ErrNoRecipient
	}
	n.logger.InfoContext(ctx, "magic link delivery",
		"realm", msg.RealmName,
		"user_id", msg.User.ID,
		"to", msg.User.Email,
		"expiry_minutes", msg.ExpiryMinutes,
		"fingerprint", LinkFingerprint(msg.Link),
	)
	return nil
}
