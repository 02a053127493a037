package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/magiclink"
	"github.com/mrz1836/postmark"
)

// PostmarkConfig configures [PostmarkNotifier].
type PostmarkConfig struct {
	ServerToken  string `env:"SERVER_TOKEN"`
	AccountToken string `env:"ACCOUNT_TOKEN"`
	From         string `env:"FROM"`
	Tag          string `env:"TAG" envDefault:"magic-link"`
}

// PostmarkNotifier sends magic links through the Postmark API.
type PostmarkNotifier struct {
	cfg       PostmarkConfig
	client    *postmark.Client
	templates *Templates
	logger    *slog.Logger
}

// NewPostmarkNotifier validates cfg. Nil templates means [DefaultTemplates].
func NewPostmarkNotifier(cfg PostmarkConfig, templates *Templates, logger *slog.Logger) (*PostmarkNotifier, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: Postmark server token is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: Postmark from address is required", ErrInvalidConfig)
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostmarkNotifier{
		cfg:       cfg,
		client:    postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		templates: templates,
		logger:    logger,
	}, nil
}

// Send renders msg and submits it. Link tracking is disabled so the bearer
// link is not rewritten through a redirector.
func (n *PostmarkNotifier) Send(ctx context.Context, msg magiclink.Message) error {
	rendered, err := n.templates.Render(msg)
	if err != nil {
		return err
	}

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:       n.cfg.From,
		To:         rendered.To,
		Subject:    rendered.Subject,
		Tag:        n.cfg.Tag,
		TextBody:   rendered.Text,
		HTMLBody:   rendered.HTML,
		TrackLinks: "None",
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	n.logger.InfoContext(ctx, "magic link submitted to postmark",
		"realm", msg.RealmName, "user_id", msg.User.ID, "message_id", resp.MessageID, "fingerprint", LinkFingerprint(msg.Link))
	return nil
}
