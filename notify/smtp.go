package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/magiclink"
	"github.com/wneessen/go-mail"
)

// SMTPConfig configures [SMTPNotifier].
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
	// TLS is "mandatory" (default), "opportunistic" or "none".
	TLS     string        `env:"TLS" envDefault:"mandatory"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

// SMTPNotifier sends magic links through an SMTP relay.
type SMTPNotifier struct {
	cfg       SMTPConfig
	client    *mail.Client
	templates *Templates
	logger    *slog.Logger
}

// NewSMTPNotifier validates cfg and prepares a client. No connection is made
// until the first Send. Nil templates means [DefaultTemplates].
func NewSMTPNotifier(cfg SMTPConfig, templates *Templates, logger *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: SMTP host is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: SMTP from address is required", ErrInvalidConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	switch cfg.TLS {
	case "", "mandatory":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		return nil, fmt.Errorf("%w: unknown SMTP TLS policy %q", ErrInvalidConfig, cfg.TLS)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPNotifier{cfg: cfg, client: client, templates: templates, logger: logger}, nil
}

// Send renders msg and delivers it in a single SMTP session.
func (n *SMTPNotifier) Send(ctx context.Context, msg magiclink.Message) error {
	m, err := n.buildMsg(msg)
	if err != nil {
		return err
	}
	if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	n.logger.InfoContext(ctx, "magic link mailed",
		"realm", msg.RealmName, "user_id", msg.User.ID, "host", n.cfg.Host, "fingerprint", LinkFingerprint(msg.Link))
	return nil
}

func (n *SMTPNotifier) buildMsg(msg magiclink.Message) (*mail.Msg, error) {
	rendered, err := n.templates.Render(msg)
	if err != nil {
		return nil, err
	}

	m := mail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("%w: from address: %v", ErrInvalidConfig, err)
	}
	if err := m.To(rendered.To); err != nil {
		return nil, fmt.Errorf("%w: recipient: %v", ErrNoRecipient, err)
	}
	m.Subject(rendered.Subject)
	m.SetBodyString(mail.TypeTextPlain, rendered.Text)
	if rendered.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, rendered.HTML)
	}
	return m, nil
}
