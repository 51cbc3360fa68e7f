package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/marketplace"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type adapterCall struct {
	Op         string
	ExternalID string
	Quantity   int
	Price      string
}

// fakeAdapter записывает вызовы и отдает заранее подготовленные объявления
type fakeAdapter struct {
	m models.Marketplace

	mu       sync.Mutex
	calls    []adapterCall
	items    map[string]*models.RemoteProduct
	list     []models.RemoteProduct
	orders   map[string]*models.RemoteOrder
	failWith error
	testErr  error
	nextID   int
}

func newFakeAdapter(m models.Marketplace) *fakeAdapter {
	return &fakeAdapter{
		m:      m,
		items:  make(map[string]*models.RemoteProduct),
		orders: make(map[string]*models.RemoteOrder),
	}
}

func (f *fakeAdapter) record(c adapterCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.failWith
}

func (f *fakeAdapter) Calls(op string) []adapterCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []adapterCall
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAdapter) Marketplace() models.Marketplace { return f.m }

func (f *fakeAdapter) TestConnection(context.Context) error { return f.testErr }

func (f *fakeAdapter) ListProducts(_ context.Context, limit, offset int) ([]models.RemoteProduct, error) {
	if err := f.record(adapterCall{Op: "list"}); err != nil {
		return nil, err
	}
	if offset >= len(f.list) {
		return nil, nil
	}
	return f.list[offset:min(offset+limit, len(f.list))], nil
}

func (f *fakeAdapter) GetProduct(_ context.Context, externalID string) (*models.RemoteProduct, error) {
	if err := f.record(adapterCall{Op: "get", ExternalID: externalID}); err != nil {
		return nil, err
	}
	item, ok := f.items[externalID]
	if !ok {
		return nil, nil
	}
	c := *item
	return &c, nil
}

func (f *fakeAdapter) CreateProduct(_ context.Context, p models.RemoteProduct) (*models.RemoteProduct, error) {
	if err := f.record(adapterCall{Op: "create"}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.nextID++
	p.ExternalID = fmt.Sprintf("%s-%d", f.m, f.nextID)
	f.mu.Unlock()
	return &p, nil
}

func (f *fakeAdapter) UpdateProduct(_ context.Context, externalID string, p models.RemoteProduct) (*models.RemoteProduct, error) {
	if err := f.record(adapterCall{Op: "update", ExternalID: externalID}); err != nil {
		return nil, err
	}
	p.ExternalID = externalID
	return &p, nil
}

func (f *fakeAdapter) UpdateStock(_ context.Context, externalID string, qty int) error {
	return f.record(adapterCall{Op: "stock", ExternalID: externalID, Quantity: qty})
}

func (f *fakeAdapter) UpdatePrice(_ context.Context, externalID string, price decimal.Decimal, _ *decimal.Decimal) error {
	return f.record(adapterCall{Op: "price", ExternalID: externalID, Price: price.String()})
}

func (f *fakeAdapter) Pause(_ context.Context, externalID string) error {
	return f.record(adapterCall{Op: "pause", ExternalID: externalID})
}

func (f *fakeAdapter) Activate(_ context.Context, externalID string) error {
	return f.record(adapterCall{Op: "activate", ExternalID: externalID})
}

func (f *fakeAdapter) Delete(_ context.Context, externalID string) error {
	return f.record(adapterCall{Op: "delete", ExternalID: externalID})
}

func (f *fakeAdapter) GetOrder(_ context.Context, orderID string) (*models.RemoteOrder, error) {
	if err := f.record(adapterCall{Op: "order", ExternalID: orderID}); err != nil {
		return nil, err
	}
	return f.orders[orderID], nil
}

type fakeFactory map[models.Marketplace]*fakeAdapter

func (f fakeFactory) Adapter(conn *models.Connection) (marketplace.Adapter, error) {
	if a, ok := f[conn.Marketplace]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMarketplace, conn.Marketplace)
}

type testEnv struct {
	store      *storage.MemoryStorage
	adapters   fakeFactory
	syncer     *Syncer
	resolver   *Resolver
	products   *ProductService
	reconciler *Reconciler
	queue      *InProcessQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.NewNop()
	store := storage.NewMemoryStorage()
	adapters := fakeFactory{
		models.MarketplaceWooCommerce:  newFakeAdapter(models.MarketplaceWooCommerce),
		models.MarketplaceMercadoLibre: newFakeAdapter(models.MarketplaceMercadoLibre),
		models.MarketplaceAmazon:       newFakeAdapter(models.MarketplaceAmazon),
	}
	locker := NewKeyedMutex()
	syncer := NewSyncer(store, nil, adapters, nil, log)
	resolver := NewResolver(store, adapters, locker, syncer, ImportConfig{PageSize: 2, MaxPages: 5}, log)
	queue := NewInProcessQueue(1, 10, log)

	return &testEnv{
		store:      store,
		adapters:   adapters,
		syncer:     syncer,
		resolver:   resolver,
		products:   NewProductService(store, nil, adapters, locker, syncer, resolver, log),
		reconciler: NewReconciler(store, adapters, resolver, syncer, queue, NewWebhookLogBuffer(10), log),
		queue:      queue,
	}
}

func (e *testEnv) connect(t *testing.T, ms ...models.Marketplace) {
	t.Helper()
	expires := time.Now().Add(6 * time.Hour)
	for _, m := range ms {
		require.NoError(t, e.store.SaveConnection(context.Background(), &models.Connection{
			Marketplace:    m,
			IsConnected:    true,
			Credentials:    models.Credentials{AccessToken: "token", RefreshToken: "refresh", APIKey: "id", APISecret: "secret"},
			TokenExpiresAt: &expires,
		}))
	}
}

func (e *testEnv) seed(t *testing.T, p *models.Product) *models.Product {
	t.Helper()
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Status == "" {
		p.Status = models.ProductStatusActive
	}
	require.NoError(t, e.store.SaveProduct(context.Background(), p))
	return p
}

func (e *testEnv) product(t *testing.T, sku string) *models.Product {
	t.Helper()
	p, err := e.store.GetProductBySKU(context.Background(), sku)
	require.NoError(t, err)
	require.NotNil(t, p, "product %s", sku)
	return p
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(v int) *int {
	return &v
}

func nopLogger() interfaces.LoggerPort {
	return logger.NewNop()
}
