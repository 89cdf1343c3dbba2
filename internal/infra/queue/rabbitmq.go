package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/infra/metrics"
)

// RabbitEventPublisher публикует события в topic-exchange RabbitMQ; routing key равен типу события.
type RabbitEventPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

var _ domain.EventPublisher = (*RabbitEventPublisher)(nil)

// NewRabbitEventPublisher подключается к брокеру и объявляет exchange.
func NewRabbitEventPublisher(amqpURL, exchange string) (*RabbitEventPublisher, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if exchange == "" {
		return nil, errors.New("exchange name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	p := &RabbitEventPublisher{conn: conn, exchange: exchange}
	if err := p.openChannel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *RabbitEventPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.ch = ch
	return nil
}

// Publish отправляет событие. Закрытый брокером канал переоткрывается один раз.
func (p *RabbitEventPublisher) Publish(ctx context.Context, event domain.BroadcastEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Type:         string(event.Type),
		Body:         payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		if err := p.openChannel(); err != nil {
			return err
		}
	}
	start := time.Now()
	err = p.ch.PublishWithContext(ctx, p.exchange, string(event.Type), false, false, msg)
	metrics.ObserveNetworkRequest("rabbitmq", "publish", p.exchange, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *RabbitEventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil && !p.ch.IsClosed() {
		errs = append(errs, p.ch.Close())
	}
	errs = append(errs, p.conn.Close())
	return errors.Join(errs...)
}
