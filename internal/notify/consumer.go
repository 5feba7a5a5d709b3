package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"magazine/internal/metrics"
	"magazine/internal/queue"
)

// Consumer drains mail messages from the queue and hands them to a Mailer.
// Each message gets one delivery attempt.
type Consumer struct {
	q      queue.Queue
	mailer Mailer
}

func NewConsumer(q queue.Queue, mailer Mailer) *Consumer {
	return &Consumer{q: q, mailer: mailer}
}

// Run blocks until ctx is cancelled or the queue closes.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		if msg.Type != MessageType {
			continue
		}
		c.handle(ctx, msg)
	}
	return ctx.Err()
}

func (c *Consumer) handle(ctx context.Context, msg queue.Message) {
	var m Mail
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		slog.Error("undecodable mail message", "error", err)
		metrics.MailDeliveries.WithLabelValues("unknown", "invalid").Inc()
		return
	}
	if err := c.mailer.Send(ctx, m); err != nil {
		slog.Error("mail delivery failed", "template", m.Template, "to", m.To, "error", err)
		metrics.MailDeliveries.WithLabelValues(m.Template, "failed").Inc()
		return
	}
	metrics.MailDeliveries.WithLabelValues(m.Template, "sent").Inc()
}
