package models

import (
	"encoding/json"
	"time"
)

// Notification входящее уведомление площадки, поставленное в очередь обработки
type Notification struct {
	ID         string          `json:"id"`
	Source     Marketplace     `json:"source"`
	Topic      string          `json:"topic"`
	Resource   string          `json:"resource"`
	UserID     string          `json:"userId,omitempty"`
	DeliveryID string          `json:"deliveryId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Состояния записи журнала уведомлений
const (
	WebhookReceived  = "received"
	WebhookRejected  = "rejected"
	WebhookProcessed = "processed"
	WebhookIgnored   = "ignored"
	WebhookFailed    = "failed"
)

// WebhookLog диагностическая запись об обработке уведомления
type WebhookLog struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	Source     Marketplace `json:"source"`
	Topic      string      `json:"topic"`
	ResourceID string      `json:"resourceId"`
	Status     string      `json:"status"`
	Processed  bool        `json:"processed"`
	Error      string      `json:"error,omitempty"`
}
