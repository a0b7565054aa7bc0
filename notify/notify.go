// rocketshoes-cartservice/notify/notify.go

// Package notify delivers user-facing cart notifications.
package notify

import (
	"context"

	"github.com/norun9/rocketshoes-cartservice/cart"
	"github.com/sirupsen/logrus"
)

// LogSink writes notifications to a logger.
type LogSink struct {
	log logrus.FieldLogger
}

// NewLogSink returns a sink logging through log.
func NewLogSink(log logrus.FieldLogger) *LogSink {
	return &LogSink{log: log}
}

// Notify logs n at error or warning level according to n.Level.
func (s *LogSink) Notify(ctx context.Context, n cart.Notification) {
	entry := s.log.WithFields(logrus.Fields{
		"topic":      n.Topic,
		"product_id": n.ProductID,
	})
	switch n.Level {
	case cart.LevelError:
		entry.Error(n.Message)
	default:
		entry.Warn(n.Message)
	}
}

// Fanout delivers every notification to each sink in order.
type Fanout []cart.NotificationSink

// Notify passes n to every sink in f.
func (f Fanout) Notify(ctx context.Context, n cart.Notification) {
	for _, sink := range f {
		sink.Notify(ctx, n)
	}
}
