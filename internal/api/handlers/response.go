package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/marketplace"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// errorResponse представляет структуру ответа с ошибкой
type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// response представляет структуру успешного ответа
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, response{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: code, Code: status, Message: message})
}

// respondServiceError переводит ошибку сервиса в HTTP-ответ
func respondServiceError(w http.ResponseWriter, r *http.Request, logger interfaces.LoggerPort, msg string, err error) {
	var mpErr *marketplace.Error

	switch {
	case errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrGroupNotFound),
		errors.Is(err, services.ErrConnectionNotFound):
		respondError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, models.ErrDuplicateSKU),
		errors.Is(err, services.ErrSyncInProgress):
		respondError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, services.ErrNotConnected),
		errors.Is(err, services.ErrInvalidInterval),
		errors.Is(err, services.ErrStockRequired),
		errors.Is(err, services.ErrInvalidProduct),
		errors.Is(err, services.ErrUnsupportedMarketplace),
		errors.Is(err, services.ErrRefreshNotSupported),
		errors.Is(err, services.ErrMissingCredentials):
		respondError(w, r, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, services.ErrQueueFull),
		errors.Is(err, services.ErrQueueClosed):
		respondError(w, r, http.StatusServiceUnavailable, "unavailable", err.Error())
	case errors.As(err, &mpErr):
		logger.WarnWithContext(r.Context(), msg,
			interfaces.LogField{Key: "marketplace", Value: mpErr.Marketplace},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		respondError(w, r, http.StatusBadGateway, "marketplace_error", err.Error())
	default:
		logger.ErrorWithContext(r.Context(), msg,
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		respondError(w, r, http.StatusInternalServerError, "internal_error", msg)
	}
}

// decodeJSON читает тело запроса; false означает, что ответ уже отправлен
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", "Неверный формат запроса")
		return false
	}
	return true
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, http.StatusBadRequest, "bad_request", "Некорректный ID товара")
		return 0, false
	}
	return id, true
}

func marketplaceParam(w http.ResponseWriter, r *http.Request) (models.Marketplace, bool) {
	m, err := models.ParseMarketplace(chi.URLParam(r, "marketplace"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return "", false
	}
	return m, true
}

// queryInt читает целый параметр запроса, def при отсутствии или ошибке
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}
