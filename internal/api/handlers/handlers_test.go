package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/marketplace"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProducts struct {
	ProductService // не реализованные методы паникуют

	products   map[int64]*models.Product
	created    []*models.Product
	groupStock map[string]int
	createErr  error
	syncErr    error
}

func (s *stubProducts) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, services.ErrProductNotFound
}

func (s *stubProducts) ListProducts(_ context.Context, offset, limit int) ([]*models.Product, int, error) {
	var out []*models.Product
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (s *stubProducts) CreateProduct(_ context.Context, p *models.Product) (*models.Product, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	p.ID = int64(len(s.created) + 1)
	s.created = append(s.created, p)
	return p, nil
}

func (s *stubProducts) SetGroupStock(_ context.Context, groupID string, stock int) (*services.GroupStockResult, error) {
	if groupID == "missing" {
		return nil, services.ErrGroupNotFound
	}
	if s.groupStock == nil {
		s.groupStock = map[string]int{}
	}
	s.groupStock[groupID] = stock
	return &services.GroupStockResult{GroupID: groupID, Stock: stock}, nil
}

func (s *stubProducts) SyncToMarketplace(_ context.Context, id int64, m models.Marketplace) (*models.Product, error) {
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	return s.products[id], nil
}

func (s *stubProducts) Import(_ context.Context, m models.Marketplace) (*models.ImportResult, error) {
	return nil, services.ErrNotConnected
}

func productRouter(svc ProductService) http.Handler {
	r := chi.NewRouter()
	r.Route("/products", NewProductHandler(svc, logger.NewNop()).Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestProductHandler_StatusMapping(t *testing.T) {
	svc := &stubProducts{products: map[int64]*models.Product{
		1: {ID: 1, SKU: "A", Price: decimal.NewFromInt(10)},
	}}
	h := productRouter(svc)

	rec := do(t, h, http.MethodGet, "/products/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sku":"A"`)

	rec = do(t, h, http.MethodGet, "/products/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error)

	rec = do(t, h, http.MethodGet, "/products/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/products/import/mercadolibre", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/products/import/ebay", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductHandler_Create(t *testing.T) {
	svc := &stubProducts{}
	h := productRouter(svc)

	rec := do(t, h, http.MethodPost, "/products", `{"sku":"NEW-1","title":"Lamp","price":19.9,"stock":3}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.created, 1)
	assert.Equal(t, "NEW-1", svc.created[0].SKU)
	assert.True(t, decimal.RequireFromString("19.9").Equal(svc.created[0].Price))

	svc.createErr = models.ErrDuplicateSKU
	rec = do(t, h, http.MethodPost, "/products", `{"sku":"NEW-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/products", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductHandler_GroupStock(t *testing.T) {
	svc := &stubProducts{}
	h := productRouter(svc)

	rec := do(t, h, http.MethodPost, "/products/groups/G1/stock", `{"stock":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, svc.groupStock["G1"])

	rec = do(t, h, http.MethodPost, "/products/groups/G1/stock", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/products/groups/G1/stock", `{"stock":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/products/groups/missing/stock", `{"stock":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductHandler_SyncMarketplaceError(t *testing.T) {
	svc := &stubProducts{
		products: map[int64]*models.Product{1: {ID: 1, SKU: "A"}},
		syncErr: &marketplace.Error{
			Marketplace: models.MarketplaceAmazon,
			Op:          "create product",
			StatusCode:  400,
			Kind:        marketplace.KindValidation,
			Message:     "invalid attributes",
		},
	}

	rec := do(t, productRouter(svc), http.MethodPost, "/products/1/sync/amazon", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "invalid attributes")
}

type stubIntake struct {
	accepted []*models.Notification
	err      error
	logs     []models.WebhookLog
}

func (s *stubIntake) Accept(_ context.Context, n *models.Notification) error {
	if s.err != nil {
		return s.err
	}
	n.ID = "n-1"
	s.accepted = append(s.accepted, n)
	return nil
}

func (s *stubIntake) Logs(_ context.Context, limit int) ([]models.WebhookLog, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.logs) {
		return s.logs[:limit], nil
	}
	return s.logs, nil
}

func webhookRouter(intake WebhookIntake) http.Handler {
	r := chi.NewRouter()
	r.Route("/webhooks", NewWebhookHandler(intake, logger.NewNop()).Routes)
	return r
}

func TestWebhookHandler_MercadoLibre(t *testing.T) {
	intake := &stubIntake{}
	h := webhookRouter(intake)

	rec := do(t, h, http.MethodPost, "/webhooks/mercadolibre",
		`{"resource":"/items/MLB1","user_id":123456,"topic":"items","application_id":9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, intake.accepted, 1)

	n := intake.accepted[0]
	assert.Equal(t, models.MarketplaceMercadoLibre, n.Source)
	assert.Equal(t, "items", n.Topic)
	assert.Equal(t, "/items/MLB1", n.Resource)
	assert.Equal(t, "123456", n.UserID)
	assert.Contains(t, rec.Body.String(), `"received":true`)

	rec = do(t, h, http.MethodPost, "/webhooks/mercadolibre", `{"resource":"/items/MLB1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookHandler_EnqueueFailureIsRetryable(t *testing.T) {
	intake := &stubIntake{err: services.ErrQueueFull}

	rec := do(t, webhookRouter(intake), http.MethodPost, "/webhooks/mercadolibre",
		`{"resource":"/orders/1","user_id":1,"topic":"orders_v2"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookHandler_WooCommerce(t *testing.T) {
	intake := &stubIntake{}
	h := webhookRouter(intake)

	rec := do(t, h, http.MethodGet, "/webhooks/woocommerce", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodHead, "/webhooks/woocommerce", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// пустое тело это проверка адреса
	rec = do(t, h, http.MethodPost, "/webhooks/woocommerce", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ping received")
	assert.Empty(t, intake.accepted)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/woocommerce", strings.NewReader(`{"id":42,"sku":"A","stock_quantity":3}`))
	req.Header.Set("X-WC-Webhook-Topic", "product.updated")
	req.Header.Set("X-WC-Webhook-Delivery-ID", "d-9")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, intake.accepted, 1)
	assert.Equal(t, models.MarketplaceWooCommerce, intake.accepted[0].Source)
	assert.Equal(t, "product.updated", intake.accepted[0].Topic)
	assert.Equal(t, "42", intake.accepted[0].Resource)
	assert.Equal(t, "d-9", intake.accepted[0].DeliveryID)
}

func TestWebhookHandler_Logs(t *testing.T) {
	intake := &stubIntake{logs: []models.WebhookLog{{ID: "2"}, {ID: "1"}}}

	rec := do(t, webhookRouter(intake), http.MethodGet, "/webhooks/logs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var logs []models.WebhookLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "2", logs[0].ID)
}

func TestWebhookHandler_LogsStoreFailure(t *testing.T) {
	intake := &stubIntake{err: errors.New("redis down")}

	rec := do(t, webhookRouter(intake), http.MethodGet, "/webhooks/logs", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type stubScheduler struct {
	interval int
	busy     bool
}

func (s *stubScheduler) Status() models.SchedulerStatus {
	return models.SchedulerStatus{IntervalMinutes: s.interval}
}
func (s *stubScheduler) History(limit int) []models.SyncResult { return nil }
func (s *stubScheduler) RunFullSync(context.Context) []models.SyncResult {
	return []models.SyncResult{}
}
func (s *stubScheduler) TriggerSync(_ context.Context, m models.Marketplace) (*models.SyncResult, error) {
	if s.busy {
		return nil, services.ErrSyncInProgress
	}
	return &models.SyncResult{Marketplace: m}, nil
}
func (s *stubScheduler) SetInterval(minutes int) error {
	if minutes < 1 {
		return services.ErrInvalidInterval
	}
	s.interval = minutes
	return nil
}

type stubTokens struct{}

func (stubTokens) TokenStatus(_ context.Context, m models.Marketplace) (*models.TokenStatus, error) {
	if m == models.MarketplaceAmazon {
		return nil, services.ErrConnectionNotFound
	}
	return &models.TokenStatus{HasToken: true, IsValid: true}, nil
}
func (stubTokens) ForceRefresh(context.Context, models.Marketplace) models.RefreshOutcome {
	return models.RefreshOutcome{Message: "Marketplace does not support token refresh"}
}

func TestSyncHandler(t *testing.T) {
	sched := &stubScheduler{interval: 15}
	h := NewSyncHandler(sched, stubTokens{}, logger.NewNop())
	r := chi.NewRouter()
	r.Route("/sync", h.SyncRoutes)
	r.Route("/tokens", h.TokenRoutes)

	rec := do(t, r, http.MethodPut, "/sync/interval", `{"minutes":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 15, sched.interval)

	rec = do(t, r, http.MethodPut, "/sync/interval", `{"minutes":5}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, sched.interval)

	sched.busy = true
	rec = do(t, r, http.MethodPost, "/sync/run/woocommerce", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, http.MethodGet, "/tokens/amazon", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodPost, "/tokens/woocommerce/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestRespondServiceError_Unknown(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	respondServiceError(rec, req, logger.NewNop(), "Ошибка", errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Ошибка", decodeError(t, rec).Message)
}
