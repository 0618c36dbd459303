package channel

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
)

// EmailSender is the outbound mail transport; *Mailer satisfies it.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string, rich bool) error
}

type Email struct {
	mail EmailSender
	log  *zap.Logger
}

func NewEmail(mail EmailSender, log *zap.Logger) *Email {
	return &Email{mail: mail, log: log.With(zap.String("channel", "email"))}
}

func (e *Email) Channel() notification.Channel { return notification.ChannelEmail }

func (e *Email) Send(ctx context.Context, n *notification.Notification) Outcome {
	if n.Destination == "" {
		return FailPermanent("no email address on record")
	}

	if err := e.mail.Send(ctx, n.Destination, n.Subject, n.Body, n.Rich); err != nil {
		if errors.Is(err, ErrInvalidRecipient) {
			return FailPermanent("recipient rejected: " + err.Error())
		}
		e.log.Warn("email send failed", zap.String("notification_id", n.ID), zap.Error(err))
		return Fail("smtp: " + err.Error())
	}
	return OK("accepted by mail transport")
}
