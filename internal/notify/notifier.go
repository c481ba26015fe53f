// Package notify carries operator alerts out of the extraction core.
// Delivery (email, chat, paging) is an external concern; the core only
// raises alerts through this interface.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier receives operator alerts: configuration gaps, reconnect
// exhaustion, key-pool exhaustion.
type Notifier interface {
	Alert(ctx context.Context, subject string, fields map[string]any)
}

// LogNotifier writes alerts to the structured log. It is the default sink
// when no external alerting transport is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Alert(_ context.Context, subject string, fields map[string]any) {
	zapFields := make([]zap.Field, 0, len(fields)+1)
	zapFields = append(zapFields, zap.String("subject", subject))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	n.logger.Error("operator alert", zapFields...)
}
