package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher sends verification requests to RabbitMQ.  Each publish opens its
// own connection; verification mail is rare enough that pooling is not
// worth the reconnect bookkeeping.
type Publisher struct {
	URL   string
	Queue string
	Log   *zap.Logger
}

// NewPublisher returns a Publisher on the verification queue.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{URL: url, Queue: VerificationQueue, Log: log}
}

// NotifyVerification publishes ev as a persistent JSON message.
func (p *Publisher) NotifyVerification(ctx context.Context, ev VerificationRequested) error {
	msg, err := publishing(ev)
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.Log.Warn("rabbitmq dial failed", zap.Error(err))
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch, p.Queue); err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.Queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		msg,
	); err != nil {
		p.Log.Warn("rabbitmq publish failed", zap.Error(err), zap.Uint64("tenant_id", ev.TenantID))
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func publishing(ev VerificationRequested) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	ts := ev.RequestedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ts.UTC(),
		Body:         body,
	}, nil
}

// declare is idempotent; the queue is durable so pending mail survives a
// broker restart.
func declare(ch *amqp.Channel, queue string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return q, fmt.Errorf("queue declare: %w", err)
	}
	return q, nil
}
