package infra

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// ZapNotifier writes user-facing notifications to the log.
type ZapNotifier struct {
	logger *zap.Logger
}

// NewZapNotifier creates a notifier that logs at info level.
func NewZapNotifier(logger *zap.Logger) *ZapNotifier {
	return &ZapNotifier{logger: logger.Named("notify")}
}

// Notify logs the notification.
func (n *ZapNotifier) Notify(_ context.Context, title, message string) {
	n.logger.Info(title, zap.String("message", message))
}

var _ domain.Notifier = (*ZapNotifier)(nil)
