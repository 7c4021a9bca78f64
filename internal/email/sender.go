package email

import (
	"context"

	"github.com/MustafaBasol/crm-sub006/internal/logger"
)

// Sender delivers outbound mail. Real transports (SMTP, SES, ...) live
// outside this core; only this contract is consumed. A send failure is
// logged by callers but never aborts the flow that triggered it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message represents an email message to be sent
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// LogSender writes messages to the log instead of delivering them.
// Used in development and as the default when no transport is wired.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a new LogSender
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.WithComponent("email")}
}

// Send logs the message
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("email send (log transport)")
	return nil
}
