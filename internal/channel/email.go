package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-daemon/internal/domain"
	"github.com/wneessen/go-mail"
)

const defaultSMTPTimeout = 15 * time.Second

// SMTPConfig addresses the mail relay used for the email channel.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// mailSender is the subset of *mail.Client used by EmailSender.
type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

var _ Channel = (*EmailSender)(nil)

// EmailSender delivers plain-text emails over SMTP.
type EmailSender struct {
	sender  mailSender
	from    string
	message Message
}

func NewEmailSender(cfg SMTPConfig, message Message) (*EmailSender, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(defaultSMTPTimeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return newEmailSender(client, cfg.From, message)
}

func newEmailSender(sender mailSender, from string, message Message) (*EmailSender, error) {
	if sender == nil {
		return nil, fmt.Errorf("mail sender is required")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, fmt.Errorf("sender address is required")
	}

	return &EmailSender{
		sender:  sender,
		from:    from,
		message: message,
	}, nil
}

func (e *EmailSender) Name() domain.Channel { return domain.ChannelEmail }

func (e *EmailSender) Deliver(ctx context.Context, client domain.Client) error {
	if e == nil || e.sender == nil {
		return fmt.Errorf("email sender is not initialized")
	}

	msg, err := e.buildMessage(client)
	if err != nil {
		return err
	}

	if err := e.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return &DeliveryError{
			Channel:   domain.ChannelEmail,
			Message:   "smtp send failed",
			Transient: isTransientSMTPError(err),
			Cause:     err,
		}
	}

	return nil
}

func (e *EmailSender) buildMessage(client domain.Client) (*mail.Msg, error) {
	address := strings.TrimSpace(client.Email)
	if address == "" {
		return nil, permanentError(domain.ChannelEmail, "client has no email address")
	}

	msg := mail.NewMsg()
	if err := msg.From(e.from); err != nil {
		return nil, &DeliveryError{Channel: domain.ChannelEmail, Message: "invalid sender address", Cause: err}
	}
	if err := msg.To(address); err != nil {
		return nil, &DeliveryError{Channel: domain.ChannelEmail, Message: "invalid recipient address", Cause: err}
	}
	msg.Subject(e.message.Subject)
	msg.SetBodyString(mail.TypeTextPlain, e.message.Body)

	return msg, nil
}

func isTransientSMTPError(err error) bool {
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		return sendErr.IsTemp()
	}
	// Dial and connection failures are worth another cycle.
	return !errors.Is(err, context.Canceled)
}
