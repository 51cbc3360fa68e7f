package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

// ErrQueueClosed очередь остановлена и больше не принимает уведомления
var ErrQueueClosed = errors.New("webhook queue is closed")

// NotificationProcessor обрабатывает уведомление, уже подтвержденное площадке
type NotificationProcessor interface {
	Process(ctx context.Context, n *models.Notification) error
}

// WebhookQueue фоновая очередь уведомлений. Успешная постановка в очередь и есть подтверждение.
type WebhookQueue interface {
	Enqueue(ctx context.Context, n *models.Notification) error
}

// InProcessQueue буферизованный канал и пул воркеров внутри процесса API
type InProcessQueue struct {
	ch      chan *models.Notification
	workers int
	logger  interfaces.LoggerPort

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewInProcessQueue(workers, buffer int, logger interfaces.LoggerPort) *InProcessQueue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 100
	}
	return &InProcessQueue{
		ch:      make(chan *models.Notification, buffer),
		workers: workers,
		logger:  logger.WithField("component", "webhook_queue"),
	}
}

// Start запускает воркеры; они работают до Stop или отмены ctx
func (q *InProcessQueue) Start(ctx context.Context, processor NotificationProcessor) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case n, ok := <-q.ch:
					if !ok {
						return
					}
					// ошибка уже записана в журнал уведомлений
					_ = processor.Process(ctx, n)
				}
			}
		}()
	}
}

func (q *InProcessQueue) Enqueue(_ context.Context, n *models.Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop закрывает очередь и ждет, пока воркеры обработают оставшееся
func (q *InProcessQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
}

// KafkaWebhookQueue передает уведомления через топик Kafka процессу-воркеру
type KafkaWebhookQueue struct {
	messaging interfaces.MessagingPort
	topic     string
	logger    interfaces.LoggerPort
}

func NewKafkaWebhookQueue(messaging interfaces.MessagingPort, topic string, logger interfaces.LoggerPort) *KafkaWebhookQueue {
	return &KafkaWebhookQueue{
		messaging: messaging,
		topic:     topic,
		logger:    logger.WithField("component", "webhook_queue"),
	}
}

func (q *KafkaWebhookQueue) Enqueue(ctx context.Context, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	key := string(n.Source)
	if tp, ok := q.messaging.(typedPublisher); ok {
		err = tp.PublishEvent(ctx, q.topic, key, models.EventWebhookReceived, data)
	} else {
		err = q.messaging.PublishWithKey(ctx, q.topic, key, data)
	}
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Consume подписывает processor на топик уведомлений.
// Сообщение подтверждается и при ошибке обработки.
func (q *KafkaWebhookQueue) Consume(ctx context.Context, processor NotificationProcessor) (func() error, error) {
	return q.messaging.Subscribe(ctx, q.topic, func(ctx context.Context, msg *interfaces.Message) error {
		var n models.Notification
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			q.logger.ErrorWithContext(ctx, "некорректное уведомление в очереди",
				interfaces.LogField{Key: "message_id", Value: msg.ID},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			return nil
		}
		_ = processor.Process(ctx, &n)
		return nil
	})
}
