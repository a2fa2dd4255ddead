package service

import (
	"context"
	"time"

	"github.com/Skotchmaster/therapy_shop/pkg/events"
)

type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

type MailRequest struct {
	To        string    `json:"to"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"ts"`
}

// MailNotifier hands mail to the delivery worker over the mail topic. It
// refuses to send until a relay has been configured.
type MailNotifier struct {
	Config    *ConfigService
	Publisher events.Publisher
}

func (n *MailNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	if n.Publisher == nil || !n.Config.MailConfigured(ctx) {
		return ErrNotifierUnavailable
	}

	cfg, err := n.Config.Get(ctx)
	if err != nil {
		return err
	}

	return n.Publisher.PublishEvent(ctx, events.TopicMail, recipient, MailRequest{
		To:        recipient,
		From:      cfg.MailFrom,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().UTC(),
	})
}
