package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType тип доменного события
type EventType = string

const (
	EventProductStockChanged EventType = "product_stock_changed"
	EventProductPriceChanged EventType = "product_price_changed"
	EventWebhookReceived     EventType = "webhook_received"
)

// ProductEvent событие об изменении товара, публикуемое после локальной записи
type ProductEvent struct {
	Type       EventType        `json:"type"`
	ProductID  int64            `json:"productId"`
	SKU        string           `json:"sku"`
	GroupID    string           `json:"groupId,omitempty"`
	Stock      int              `json:"stock"`
	Price      decimal.Decimal  `json:"price"`
	SalePrice  *decimal.Decimal `json:"salePrice,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}
