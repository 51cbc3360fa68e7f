package handlers

import (
	"context"
	"net/http"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
)

// ConnectionService управление подключениями площадок
type ConnectionService interface {
	ListConnections(ctx context.Context) ([]models.ConnectionView, error)
	GetConnection(ctx context.Context, m models.Marketplace) (*models.ConnectionView, error)
	SaveConnection(ctx context.Context, m models.Marketplace, input services.ConnectionInput) (*services.ConnectionTestResult, error)
	TestConnection(ctx context.Context, m models.Marketplace) (*services.ConnectionTestResult, error)
	DeleteConnection(ctx context.Context, m models.Marketplace) error
}

type ConnectionHandler struct {
	connections ConnectionService
	logger      interfaces.LoggerPort
}

func NewConnectionHandler(connections ConnectionService, logger interfaces.LoggerPort) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, logger: logger}
}

// Routes маршруты /api/v1/connections
func (h *ConnectionHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Route("/{marketplace}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Save)
		r.Delete("/", h.Delete)
		r.Post("/test", h.Test)
	})
}

func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.connections.ListConnections(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка получения подключений", err)
		return
	}
	respond(w, r, http.StatusOK, views)
}

func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := marketplaceParam(w, r)
	if !ok {
		return
	}

	view, err := h.connections.GetConnection(r.Context(), m)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка получения подключения", err)
		return
	}
	respond(w, r, http.StatusOK, view)
}

// Save сохраняет учетные данные и сразу проверяет их
func (h *ConnectionHandler) Save(w http.ResponseWriter, r *http.Request) {
	m, ok := marketplaceParam(w, r)
	if !ok {
		return
	}

	var input services.ConnectionInput
	if !decodeJSON(w, r, &input) {
		return
	}

	result, err := h.connections.SaveConnection(r.Context(), m, input)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка сохранения подключения", err)
		return
	}

	h.logger.InfoWithContext(r.Context(), "Подключение сохранено",
		interfaces.LogField{Key: "marketplace", Value: m},
		interfaces.LogField{Key: "connected", Value: result.Connected},
	)
	respond(w, r, http.StatusOK, result)
}

func (h *ConnectionHandler) Test(w http.ResponseWriter, r *http.Request) {
	m, ok := marketplaceParam(w, r)
	if !ok {
		return
	}

	result, err := h.connections.TestConnection(r.Context(), m)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка проверки подключения", err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, ok := marketplaceParam(w, r)
	if !ok {
		return
	}

	if err := h.connections.DeleteConnection(r.Context(), m); err != nil {
		respondServiceError(w, r, h.logger, "Ошибка удаления подключения", err)
		return
	}
	respond(w, r, http.StatusOK, map[string]models.Marketplace{"marketplace": m})
}
