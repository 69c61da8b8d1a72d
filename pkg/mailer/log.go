package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogSender is the no-op sender used in environments without mail configured.
// It logs the message instead of delivering it.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, to, subject, htmlBody string) error {
	s.log.Info("mail not configured, dropping message",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(htmlBody)),
	)
	return nil
}
