package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/t77yq/duewatch/internal/config"
	"github.com/t77yq/duewatch/internal/model"
)

// Channel delivers newly raised alerts to people
type Channel interface {
	Name() string
	Send(ctx context.Context, alerts []model.AlertRecord) error
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel sends alert digests over SMTP
type EmailChannel struct {
	logger   *zap.Logger
	config   config.EmailConfig
	sendMail sendMailFunc
}

// NewEmailChannel creates a new email channel
func NewEmailChannel(logger *zap.Logger, cfg config.EmailConfig) *EmailChannel {
	return &EmailChannel{
		logger:   logger.Named("email"),
		config:   cfg,
		sendMail: smtp.SendMail,
	}
}

// Name implements Channel
func (c *EmailChannel) Name() string {
	return "email"
}

// Send implements Channel. One message carries every alert.
func (c *EmailChannel) Send(ctx context.Context, alerts []model.AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}
	if len(c.config.Recipients) == 0 {
		return fmt.Errorf("no email recipients configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if c.config.Username != "" {
		auth = smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.Host)
	}

	msg := buildMessage(c.config.From, c.config.Recipients, alerts)
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	c.logger.Info("Sending alert digest",
		zap.Int("alerts", len(alerts)),
		zap.Int("recipients", len(c.config.Recipients)))

	if err := c.sendMail(addr, auth, c.config.From, c.config.Recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func buildMessage(from string, to []string, alerts []model.AlertRecord) []byte {
	var body strings.Builder
	for _, a := range alerts {
		fmt.Fprintf(&body, "[%s] %s\r\n%s\r\n\r\n", a.Severity, a.Title, a.Detail)
	}

	subject := fmt.Sprintf("%d alertas de vencimiento", len(alerts))
	if len(alerts) == 1 {
		subject = alerts[0].Title
	}

	return []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s",
		from,
		strings.Join(to, ", "),
		subject,
		body.String()))
}
