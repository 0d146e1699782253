package email

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// NoopSender logs messages instead of delivering them. Used when no provider key is set.
type NoopSender struct{}

func NewNoopSender() *NoopSender { return &NoopSender{} }

// Send logs the message.
// PRE: none
// POST: returns a synthetic message id; nothing is delivered
func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	zap.S().Infow("noop_email_send", "to", req.To, "subject", req.Subject)
	return SendResult{
		MessageID: fmt.Sprintf("noop-%d", time.Now().UnixNano()),
		SentAt:    time.Now(),
	}, nil
}
