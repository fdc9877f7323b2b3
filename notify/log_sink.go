package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink records events through zap instead of delivering them. Tokens
// are left out of the log line.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.String("account_id", event.AccountID),
		zap.Time("occurred_at", event.OccurredAt),
		zap.Bool("has_token", event.Token != ""),
	}
	if event.LockedUntil != nil {
		fields = append(fields, zap.Time("locked_until", *event.LockedUntil))
	}
	s.logger.Info("notification", fields...)
	return nil
}
