package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/metrics"
)

// RabbitQueue реализует очередь уведомлений через AMQP.
// Очередь ограничена x-max-length; потребитель работает в режиме auto-ack,
// то есть каждое событие доставляется не более одного раза.
type RabbitQueue struct {
	conn  *amqp.Connection
	queue string

	pubMu sync.Mutex
	pub   *amqp.Channel

	subMu      sync.Mutex
	deliveries <-chan amqp.Delivery
	sub        io.Closer
	subscribe  func() (<-chan amqp.Delivery, io.Closer, error)
}

// NewRabbitQueue подключается к брокеру и объявляет очередь.
func NewRabbitQueue(amqpURL, queue string, size int) (*RabbitQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	args := amqp.Table{}
	if size > 0 {
		args["x-max-length"] = int32(size)
	}
	if _, err := pub.QueueDeclare(queue, true, false, false, false, args); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	q := &RabbitQueue{conn: conn, queue: queue, pub: pub}
	q.subscribe = q.consume
	return q, nil
}

func (q *RabbitQueue) consume() (<-chan amqp.Delivery, io.Closer, error) {
	sub, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	deliveries, err := sub.Consume(q.queue, "", true, false, false, false, nil)
	if err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, sub, nil
}

// consumer возвращает текущую подписку, открывая её при необходимости.
// Ошибка подписки не запоминается: следующий вызов пробует снова.
func (q *RabbitQueue) consumer() (<-chan amqp.Delivery, error) {
	q.subMu.Lock()
	defer q.subMu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, sub, err := q.subscribe()
	if err != nil {
		return nil, err
	}
	q.deliveries, q.sub = deliveries, sub
	return deliveries, nil
}

// dropConsumer сбрасывает закрытую подписку, чтобы следующий Receive открыл новую.
func (q *RabbitQueue) dropConsumer(closed <-chan amqp.Delivery) {
	q.subMu.Lock()
	defer q.subMu.Unlock()
	if q.deliveries != closed {
		return
	}
	if q.sub != nil {
		_ = q.sub.Close()
	}
	q.deliveries, q.sub = nil, nil
}

// Publish публикует событие в очередь.
func (q *RabbitQueue) Publish(ctx context.Context, event domain.NewAdsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	start := time.Now()
	err = q.pub.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.ID,
		Timestamp:   event.CreatedAt,
		Body:        payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие из очереди.
func (q *RabbitQueue) Receive(ctx context.Context) (domain.NewAdsEvent, error) {
	deliveries, err := q.consumer()
	if err != nil {
		return domain.NewAdsEvent{}, err
	}
	select {
	case <-ctx.Done():
		return domain.NewAdsEvent{}, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			q.dropConsumer(deliveries)
			return domain.NewAdsEvent{}, errors.New("rabbitmq: delivery channel closed")
		}
		var event domain.NewAdsEvent
		if err := json.Unmarshal(d.Body, &event); err != nil {
			return domain.NewAdsEvent{}, fmt.Errorf("decode event: %w", err)
		}
		return event, nil
	}
}

// Close закрывает соединение с брокером.
func (q *RabbitQueue) Close() error {
	return q.conn.Close()
}
