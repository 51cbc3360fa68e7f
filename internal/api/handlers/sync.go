package handlers

import (
	"context"
	"net/http"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
)

// SyncScheduler управление периодическим опросом площадок
type SyncScheduler interface {
	Status() models.SchedulerStatus
	History(limit int) []models.SyncResult
	RunFullSync(ctx context.Context) []models.SyncResult
	TriggerSync(ctx context.Context, m models.Marketplace) (*models.SyncResult, error)
	SetInterval(minutes int) error
}

// TokenManager состояние и принудительное обновление токенов
type TokenManager interface {
	TokenStatus(ctx context.Context, m models.Marketplace) (*models.TokenStatus, error)
	ForceRefresh(ctx context.Context, m models.Marketplace) models.RefreshOutcome
}

// SyncHandler маршруты /api/v1/sync и /api/v1/tokens
type SyncHandler struct {
	scheduler SyncScheduler
	tokens    TokenManager
	logger    interfaces.LoggerPort
}

func NewSyncHandler(scheduler SyncScheduler, tokens TokenManager, logger interfaces.LoggerPort) *SyncHandler {
	return &SyncHandler{scheduler: scheduler, tokens: tokens, logger: logger}
}

func (h *SyncHandler) SyncRoutes(r chi.Router) {
	r.Get("/status", h.Status)
	r.Get("/history", h.History)
	r.Post("/run", h.RunAll)
	r.Post("/run/{marketplace}", h.RunOne)
	r.Put("/interval", h.SetInterval)
}

func (h *SyncHandler) TokenRoutes(r chi.Router) {
	r.Get("/{marketplace}", h.TokenStatus)
	r.Post("/{marketplace}/refresh", h.RefreshToken)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, h.scheduler.Status())
}

func (h *SyncHandler) History(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, h.scheduler.History(queryInt(r, "limit", 10)))
}

// RunAll выполняет полный проход синхронно; пустой список значит, что проход уже идет
func (h *SyncHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	results := h.scheduler.RunFullSync(r.Context())
	respond(w, r, http.StatusOK, results)
}

func (h *SyncHandler) RunOne(w http.ResponseWriter, r *http.Request) {
	m, ok := marketplaceParam(w, r)
	if !ok {
		return
	}

	result, err := h.scheduler.TriggerSync(r.Context(), m)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка запуска синхронизации", err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

type intervalRequest struct {
	Minutes int `json:"minutes"`
}

func (h *SyncHandler) SetInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.scheduler.SetInterval(req.Minutes); err != nil {
		respondServiceError(w, r, h.logger, "Ошибка изменения интервала", err)
		return
	}

	h.logger.InfoWithContext(r.Context(), "Интервал синхронизации изменен",
		interfaces.LogField{Key: "minutes", Value: req.Minutes},
	)
	respond(w, r, http.StatusOK, h.scheduler.Status())
}

func (h *SyncHandler) TokenStatus(w http.ResponseWriter, r *http.Request) {
	m, ok := marketplaceParam(w, r)
	if !ok {
		return
	}

	status, err := h.tokens.TokenStatus(r.Context(), m)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка получения состояния токена", err)
		return
	}
	respond(w, r, http.StatusOK, status)
}

// RefreshToken отвечает 200 и при неудаче: итог лежит в поле success
func (h *SyncHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	m, ok := marketplaceParam(w, r)
	if !ok {
		return
	}
	respond(w, r, http.StatusOK, h.tokens.ForceRefresh(r.Context(), m))
}
