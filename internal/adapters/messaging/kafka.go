package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
)

// Options параметры клиента Kafka
type Options struct {
	Brokers         []string
	ClientID        string
	GroupID         string
	AutoOffsetReset string
	// DeliveryTimeout сколько Publish ждет подтверждения брокера
	DeliveryTimeout time.Duration
}

// KafkaMessaging реализация MessagingPort с использованием Kafka
type KafkaMessaging struct {
	producer       *kafka.Producer
	consumers      map[string]func() error
	consumersMutex sync.Mutex
	opts           Options
	logger         interfaces.LoggerPort
	wg             sync.WaitGroup
}

// NewKafkaMessaging создает новый экземпляр KafkaMessaging
func NewKafkaMessaging(opts Options, logger interfaces.LoggerPort) (*KafkaMessaging, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("не указаны брокеры Kafka")
	}
	if opts.ClientID == "" {
		opts.ClientID = "catalog-sync"
	}
	if opts.AutoOffsetReset == "" {
		opts.AutoOffsetReset = "earliest"
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(opts.Brokers, ","),
		"client.id":          opts.ClientID + "-producer",
		"acks":               "all",
		"enable.idempotence": true,
		"retries":            5,
		"retry.backoff.ms":   500,
		"compression.type":   "snappy",
		"linger.ms":          10,
		"message.timeout.ms": int(opts.DeliveryTimeout.Milliseconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka producer: %w", err)
	}

	k := &KafkaMessaging{
		producer:  producer,
		consumers: make(map[string]func() error),
		opts:      opts,
		logger:    logger.WithField("component", "kafka"),
	}

	// события продюсера без канала доставки (ошибки клиента) только логируются
	go func() {
		for ev := range producer.Events() {
			if kerr, ok := ev.(kafka.Error); ok {
				k.logger.Error("ошибка Kafka producer", interfaces.LogField{Key: "error", Value: kerr.Error()})
			}
		}
	}()

	return k, nil
}

// messageToKafkaMessage преобразует данные в kafka.Message
func messageToKafkaMessage(topic string, message []byte, key string, headers map[string]string) *kafka.Message {
	kafkaHeaders := make([]kafka.Header, 0, len(headers)+2)
	for k, v := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: k, Value: []byte(v)})
	}
	kafkaHeaders = append(kafkaHeaders,
		kafka.Header{Key: HeaderMessageID, Value: []byte(uuid.NewString())},
		kafka.Header{Key: HeaderTimestamp, Value: []byte(strconv.FormatInt(time.Now().UnixNano(), 10))},
	)

	var keyBytes []byte
	if key != "" {
		keyBytes = []byte(key)
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          message,
		Key:            keyBytes,
		Headers:        kafkaHeaders,
	}
}

// kafkaMessageToMessage преобразует kafka.Message в Message
func kafkaMessageToMessage(msg *kafka.Message) *interfaces.Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, header := range msg.Headers {
		headers[header.Key] = string(header.Value)
	}

	publishedAt := msg.Timestamp
	if ts, err := strconv.ParseInt(headers[HeaderTimestamp], 10, 64); err == nil {
		publishedAt = time.Unix(0, ts)
	}

	topic := ""
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}

	return &interfaces.Message{
		ID:          headers[HeaderMessageID],
		Topic:       topic,
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		PublishedAt: publishedAt,
	}
}

// Publish публикует сообщение и ждет подтверждения брокера
func (k *KafkaMessaging) Publish(ctx context.Context, topic string, message []byte) error {
	return k.produce(ctx, messageToKafkaMessage(topic, message, "", nil))
}

// PublishWithKey публикует сообщение с ключом партиционирования
func (k *KafkaMessaging) PublishWithKey(ctx context.Context, topic string, key string, message []byte) error {
	return k.produce(ctx, messageToKafkaMessage(topic, message, key, nil))
}

// PublishEvent публикует доменное событие с заголовком event_type
func (k *KafkaMessaging) PublishEvent(ctx context.Context, topic, key string, event KafkaEvent, message []byte) error {
	return k.produce(ctx, messageToKafkaMessage(topic, message, key, map[string]string{HeaderEventType: event}))
}

func (k *KafkaMessaging) produce(ctx context.Context, msg *kafka.Message) error {
	delivery := make(chan kafka.Event, 1)
	if err := k.producer.Produce(msg, delivery); err != nil {
		return fmt.Errorf("ошибка отправки сообщения в Kafka: %w", err)
	}

	select {
	case ev := <-delivery:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("неожиданное событие доставки Kafka: %v", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("сообщение не доставлено в Kafka: %w", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe подписывается на тему в группе потребителей из настроек
func (k *KafkaMessaging) Subscribe(ctx context.Context, topic string, handler interfaces.MessageHandler) (func() error, error) {
	return k.SubscribeWithConfig(ctx, topic, handler, interfaces.ConsumerConfig{
		GroupID:         k.opts.GroupID,
		AutoCommit:      false,
		AutoOffsetReset: k.opts.AutoOffsetReset,
		PollTimeout:     100 * time.Millisecond,
	})
}

// SubscribeWithConfig подписывается на тему с явными настройками.
// При AutoCommit=false смещение фиксируется только после успешной обработки.
func (k *KafkaMessaging) SubscribeWithConfig(ctx context.Context, topic string, handler interfaces.MessageHandler, config interfaces.ConsumerConfig) (func() error, error) {
	if config.GroupID == "" {
		return nil, errors.New("не указана группа потребителей Kafka")
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 100 * time.Millisecond
	}

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":     strings.Join(k.opts.Brokers, ","),
		"client.id":             k.opts.ClientID + "-consumer",
		"group.id":              config.GroupID,
		"auto.offset.reset":     config.AutoOffsetReset,
		"enable.auto.commit":    config.AutoCommit,
		"session.timeout.ms":    30000,
		"max.poll.interval.ms":  300000,
		"heartbeat.interval.ms": 3000,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka consumer: %w", err)
	}

	if err := consumer.Subscribe(topic, nil); err != nil {
		consumer.Close()
		return nil, fmt.Errorf("ошибка подписки на топик %s: %w", topic, err)
	}

	id := uuid.NewString()
	consumeCtx, cancel := context.WithCancel(ctx)

	done := make(chan struct{})
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer close(done)
		k.consumeMessages(consumeCtx, consumer, handler, config)
	}()

	var once sync.Once
	unsubscribe := func() error {
		var closeErr error
		once.Do(func() {
			cancel()
			<-done

			k.consumersMutex.Lock()
			delete(k.consumers, id)
			k.consumersMutex.Unlock()

			closeErr = consumer.Close()
		})
		return closeErr
	}

	k.consumersMutex.Lock()
	k.consumers[id] = unsubscribe
	k.consumersMutex.Unlock()

	return unsubscribe, nil
}

// consumeMessages читает сообщения до отмены контекста
func (k *KafkaMessaging) consumeMessages(ctx context.Context, consumer *kafka.Consumer, handler interfaces.MessageHandler, config interfaces.ConsumerConfig) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := consumer.Poll(int(config.PollTimeout.Milliseconds()))
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			msg := kafkaMessageToMessage(e)
			if err := handler(ctx, msg); err != nil {
				// смещение не фиксируется, сообщение будет прочитано повторно после ребаланса
				k.logger.Error("ошибка обработки сообщения",
					interfaces.LogField{Key: "topic", Value: msg.Topic},
					interfaces.LogField{Key: "message_id", Value: msg.ID},
					interfaces.LogField{Key: "error", Value: err.Error()},
				)
				continue
			}
			if !config.AutoCommit {
				if _, err := consumer.CommitMessage(e); err != nil {
					k.logger.Warn("ошибка фиксации смещения", interfaces.LogField{Key: "error", Value: err.Error()})
				}
			}

		case kafka.Error:
			k.logger.Error("ошибка Kafka consumer",
				interfaces.LogField{Key: "code", Value: e.Code().String()},
				interfaces.LogField{Key: "error", Value: e.Error()},
			)
			if e.IsFatal() {
				return
			}
		}
	}
}

// EnsureTopic создает тему, если ее еще нет
func (k *KafkaMessaging) EnsureTopic(ctx context.Context, topic string, partitions, replicationFactor int) error {
	adminClient, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("ошибка создания Kafka admin client: %w", err)
	}
	defer adminClient.Close()

	result, err := adminClient.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	}}, kafka.SetAdminOperationTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("ошибка создания топика %s: %w", topic, err)
	}

	for _, r := range result {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("ошибка создания топика %s: %s", r.Topic, r.Error.String())
		}
	}
	return nil
}

// Close останавливает потребителей и дожидается отправки сообщений
func (k *KafkaMessaging) Close() error {
	k.consumersMutex.Lock()
	unsubscribers := make([]func() error, 0, len(k.consumers))
	for _, unsubscribe := range k.consumers {
		unsubscribers = append(unsubscribers, unsubscribe)
	}
	k.consumersMutex.Unlock()

	for _, unsubscribe := range unsubscribers {
		if err := unsubscribe(); err != nil {
			k.logger.Warn("ошибка закрытия Kafka consumer", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}
	k.wg.Wait()

	k.producer.Flush(15 * 1000)
	k.producer.Close()
	return nil
}
