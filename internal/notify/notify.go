// Package notify delivers outbound messages off the request path.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Message is a single outbound notification.
type Message struct {
	Subject string
	Body    string
}

// Sink delivers one message. Implementations must honour ctx cancellation.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// PointOfInterestDeleted builds the message sent after a point of interest is removed.
func PointOfInterestDeleted(name string, id int) Message {
	return Message{
		Subject: "Point of interest deleted.",
		Body:    fmt.Sprintf("Point of interest %s with id %d was deleted.", name, id),
	}
}

// MailSink writes mails to the log instead of an SMTP relay.
type MailSink struct {
	to     string
	from   string
	logger *zap.Logger
}

var _ Sink = (*MailSink)(nil)

func NewMailSink(to, from string, logger *zap.Logger) *MailSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailSink{
		to:     strings.TrimSpace(to),
		from:   strings.TrimSpace(from),
		logger: logger,
	}
}

func (m *MailSink) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.Info("mail_sent",
		zap.String("mail_from", m.from),
		zap.String("mail_to", m.to),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
