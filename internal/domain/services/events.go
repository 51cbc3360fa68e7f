package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

// typedPublisher брокер, умеющий передавать тип события заголовком
type typedPublisher interface {
	PublishEvent(ctx context.Context, topic, key, event string, message []byte) error
}

// EventPublisher публикует доменные события товаров. Без брокера ничего не делает.
type EventPublisher struct {
	messaging interfaces.MessagingPort
	topic     string
	logger    interfaces.LoggerPort
	now       func() time.Time
}

func NewEventPublisher(messaging interfaces.MessagingPort, topic string, logger interfaces.LoggerPort) *EventPublisher {
	return &EventPublisher{
		messaging: messaging,
		topic:     topic,
		logger:    logger.WithField("component", "events"),
		now:       time.Now,
	}
}

// ProductChanged публикует события по изменившимся полям. Ошибки только логируются.
func (p *EventPublisher) ProductChanged(ctx context.Context, product *models.Product, d Delta) {
	if p == nil || p.messaging == nil || p.topic == "" {
		return
	}
	if d.Stock {
		p.publish(ctx, models.EventProductStockChanged, product)
	}
	if d.PriceChanged() {
		p.publish(ctx, models.EventProductPriceChanged, product)
	}
}

func (p *EventPublisher) publish(ctx context.Context, eventType models.EventType, product *models.Product) {
	event := models.ProductEvent{
		Type:       eventType,
		ProductID:  product.ID,
		SKU:        product.SKU,
		GroupID:    product.GroupID,
		Stock:      product.Stock,
		Price:      product.Price,
		SalePrice:  product.SalePrice,
		OccurredAt: p.now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorWithContext(ctx, "ошибка сериализации события", interfaces.LogField{Key: "error", Value: err.Error()})
		return
	}

	if tp, ok := p.messaging.(typedPublisher); ok {
		err = tp.PublishEvent(ctx, p.topic, product.SKU, eventType, data)
	} else {
		err = p.messaging.PublishWithKey(ctx, p.topic, product.SKU, data)
	}
	if err != nil {
		p.logger.WarnWithContext(ctx, "не удалось опубликовать событие",
			interfaces.LogField{Key: "event", Value: eventType},
			interfaces.LogField{Key: "sku", Value: product.SKU},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}
