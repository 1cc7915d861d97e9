package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/observability"
	"github.com/rl1809/ticket-marketplace/internal/port"
)

type channel struct {
	name     string
	notifier port.Notifier
}

// MultiNotifier delivers to every channel, counting failures per channel,
// and joins their errors.
type MultiNotifier struct {
	channels []channel
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewMultiNotifier(logger *zap.Logger, metrics *observability.Metrics) *MultiNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiNotifier{logger: logger, metrics: metrics}
}

func (m *MultiNotifier) Add(name string, n port.Notifier) *MultiNotifier {
	m.channels = append(m.channels, channel{name: name, notifier: n})
	return m
}

func (m *MultiNotifier) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, c := range m.channels {
		if err := c.notifier.Notify(ctx, n); err != nil {
			m.metrics.NotificationFailure(c.name)
			m.logger.Warn("notification channel failed",
				zap.String("channel", c.name),
				zap.String("kind", string(n.Kind)),
				zap.String("ticket_id", n.Ticket.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}
