package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// maxWebhookBody ограничение размера тела уведомления
const maxWebhookBody = 1 << 20

// WebhookIntake прием уведомлений и журнал их обработки
type WebhookIntake interface {
	Accept(ctx context.Context, n *models.Notification) error
	Logs(ctx context.Context, limit int) ([]models.WebhookLog, error)
}

// WebhookHandler принимает уведомления площадок без авторизации оператора.
// Ответ 200 отправляется только после постановки в очередь.
type WebhookHandler struct {
	intake WebhookIntake
	logger interfaces.LoggerPort
}

func NewWebhookHandler(intake WebhookIntake, logger interfaces.LoggerPort) *WebhookHandler {
	return &WebhookHandler{intake: intake, logger: logger}
}

// Routes маршруты /webhooks
func (h *WebhookHandler) Routes(r chi.Router) {
	r.Post("/mercadolibre", h.MercadoLibre)
	r.Get("/woocommerce", h.WooCommerceVerify)
	r.Head("/woocommerce", h.WooCommerceVerify)
	r.Post("/woocommerce", h.WooCommerce)
	r.Get("/logs", h.Logs)
	r.Get("/test", h.Test)
}

type mercadoLibreNotification struct {
	Resource string      `json:"resource"`
	UserID   json.Number `json:"user_id"`
	Topic    string      `json:"topic"`
}

// MercadoLibre принимает уведомление {resource, user_id, topic}
func (h *WebhookHandler) MercadoLibre(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "Не удалось прочитать тело")
		return
	}

	var payload mercadoLibreNotification
	if err := json.Unmarshal(body, &payload); err != nil || payload.Topic == "" {
		respondError(w, r, http.StatusBadRequest, "bad_request", "Неверный формат уведомления")
		return
	}

	h.accept(w, r, &models.Notification{
		Source:   models.MarketplaceMercadoLibre,
		Topic:    payload.Topic,
		Resource: payload.Resource,
		UserID:   payload.UserID.String(),
		Payload:  body,
	})
}

// WooCommerceVerify отвечает на проверку адреса при регистрации webhook
func (h *WebhookHandler) WooCommerceVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	render.JSON(w, r, map[string]string{"status": "ok", "message": "WooCommerce webhook endpoint ready"})
}

type wooCommerceResource struct {
	ID json.Number `json:"id"`
}

// WooCommerce принимает уведомление; тема приходит в заголовке X-WC-Webhook-Topic
func (h *WebhookHandler) WooCommerce(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "Не удалось прочитать тело")
		return
	}

	topic := r.Header.Get("X-WC-Webhook-Topic")
	if topic == "" {
		topic = "unknown"
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) || topic == "ping" {
		render.JSON(w, r, map[string]string{"status": "ok", "message": "Ping received"})
		return
	}

	var resource wooCommerceResource
	if err := json.Unmarshal(trimmed, &resource); err != nil {
		// WooCommerce при проверке присылает form-encoded webhook_id
		h.logger.DebugWithContext(r.Context(), "тело уведомления WooCommerce не JSON",
			interfaces.LogField{Key: "topic", Value: topic},
		)
		render.JSON(w, r, map[string]string{"status": "ok", "message": "Ping received"})
		return
	}

	h.accept(w, r, &models.Notification{
		Source:     models.MarketplaceWooCommerce,
		Topic:      topic,
		Resource:   resource.ID.String(),
		DeliveryID: r.Header.Get("X-WC-Webhook-Delivery-ID"),
		Payload:    trimmed,
	})
}

func (h *WebhookHandler) accept(w http.ResponseWriter, r *http.Request, n *models.Notification) {
	if err := h.intake.Accept(r.Context(), n); err != nil {
		// 503 заставит площадку повторить доставку
		respondError(w, r, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	render.JSON(w, r, map[string]interface{}{"received": true, "id": n.ID})
}

// Logs последние записи журнала, новые первыми
func (h *WebhookHandler) Logs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.intake.Logs(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка чтения журнала уведомлений", err)
		return
	}
	if logs == nil {
		logs = []models.WebhookLog{}
	}
	render.JSON(w, r, logs)
}

func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":  "ok",
		"message": "Webhook endpoint is active",
		"endpoints": map[string]string{
			"mercadolibre": "/webhooks/mercadolibre",
			"woocommerce":  "/webhooks/woocommerce",
		},
	})
}
