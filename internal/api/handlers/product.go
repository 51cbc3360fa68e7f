package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/utils"
	"github.com/go-chi/chi/v5"
)

// ProductService операции каталога, доступные через API
type ProductService interface {
	ListProducts(ctx context.Context, offset, limit int) ([]*models.Product, int, error)
	Groups(ctx context.Context) (models.GroupsOverview, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch services.ProductPatch) (*services.UpdateResult, error)
	SetGroupStock(ctx context.Context, groupID string, stock int) (*services.GroupStockResult, error)
	DeleteProduct(ctx context.Context, id int64) error
	SyncToMarketplace(ctx context.Context, id int64, m models.Marketplace) (*models.Product, error)
	SetStatus(ctx context.Context, id int64, status models.ProductStatus) (*services.UpdateResult, error)
	Import(ctx context.Context, m models.Marketplace) (*models.ImportResult, error)
}

// ProductHandler обработчик запросов для продуктов
type ProductHandler struct {
	productService ProductService
	logger         interfaces.LoggerPort
}

// NewProductHandler создает новый обработчик продуктов
func NewProductHandler(productService ProductService, logger interfaces.LoggerPort) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// Routes маршруты /api/v1/products
func (h *ProductHandler) Routes(r chi.Router) {
	r.Get("/", h.ListProducts)
	r.Post("/", h.CreateProduct)
	r.Get("/groups", h.Groups)
	r.Post("/groups/{groupId}/stock", h.SetGroupStock)
	r.Post("/import/{marketplace}", h.Import)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetProduct)
		r.Put("/", h.UpdateProduct)
		r.Delete("/", h.DeleteProduct)
		r.Post("/sync/{marketplace}", h.SyncProductToMarketplace)
		r.Post("/status", h.SetStatus)
	})
}

// ListProducts обрабатывает запрос на получение списка продуктов
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page := utils.NewPagination(queryInt(r, "page", 1), queryInt(r, "page_size", utils.DefaultPageSize))

	products, total, err := h.productService.ListProducts(r.Context(), page.Offset(), page.Limit())
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка получения списка продуктов", err)
		return
	}
	page.SetTotal(total)

	respond(w, r, http.StatusOK, utils.NewPagedResult(products, page))
}

// Groups обрабатывает запрос сводки по группам
func (h *ProductHandler) Groups(w http.ResponseWriter, r *http.Request) {
	overview, err := h.productService.Groups(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка получения групп", err)
		return
	}
	respond(w, r, http.StatusOK, overview)
}

// GetProduct обрабатывает запрос на получение продукта по ID
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}

	product, err := h.productService.GetProduct(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка получения продукта", err)
		return
	}
	respond(w, r, http.StatusOK, product)
}

// CreateProduct обрабатывает запрос на создание продукта
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var product models.Product
	if !decodeJSON(w, r, &product) {
		return
	}

	created, err := h.productService.CreateProduct(r.Context(), &product)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка создания продукта", err)
		return
	}

	h.logger.InfoWithContext(r.Context(), "Продукт создан",
		interfaces.LogField{Key: "product_id", Value: created.ID},
		interfaces.LogField{Key: "sku", Value: created.SKU},
	)
	respond(w, r, http.StatusCreated, created)
}

// UpdateProduct частично обновляет продукт и рассылает изменения
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var patch services.ProductPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	result, err := h.productService.UpdateProduct(r.Context(), id, patch)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка обновления продукта", err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

// DeleteProduct обрабатывает запрос на удаление продукта
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}

	if err := h.productService.DeleteProduct(r.Context(), id); err != nil {
		respondServiceError(w, r, h.logger, "Ошибка удаления продукта", err)
		return
	}
	respond(w, r, http.StatusOK, map[string]int64{"id": id})
}

type groupStockRequest struct {
	Stock *int `json:"stock"`
}

// SetGroupStock устанавливает общий остаток группы
func (h *ProductHandler) SetGroupStock(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSpace(chi.URLParam(r, "groupId"))

	var req groupStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Stock == nil || *req.Stock < 0 {
		respondError(w, r, http.StatusBadRequest, "bad_request", services.ErrStockRequired.Error())
		return
	}

	result, err := h.productService.SetGroupStock(r.Context(), groupID, *req.Stock)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка установки остатка группы", err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

// Import запускает ручной импорт каталога площадки
func (h *ProductHandler) Import(w http.ResponseWriter, r *http.Request) {
	m, ok := marketplaceParam(w, r)
	if !ok {
		return
	}

	result, err := h.productService.Import(r.Context(), m)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка импорта", err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

// SyncProductToMarketplace публикует или обновляет продукт на площадке
func (h *ProductHandler) SyncProductToMarketplace(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	m, ok := marketplaceParam(w, r)
	if !ok {
		return
	}

	product, err := h.productService.SyncToMarketplace(r.Context(), id, m)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка синхронизации продукта", err)
		return
	}
	respond(w, r, http.StatusOK, product)
}

type statusRequest struct {
	Status models.ProductStatus `json:"status"`
}

// SetStatus приостанавливает или активирует продукт
func (h *ProductHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status != models.ProductStatusActive && req.Status != models.ProductStatusPaused {
		respondError(w, r, http.StatusBadRequest, "bad_request", "status must be active or paused")
		return
	}

	result, err := h.productService.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		respondServiceError(w, r, h.logger, "Ошибка изменения статуса", err)
		return
	}
	respond(w, r, http.StatusOK, result)
}
