package storage

import (
	"context"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageProducts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	p := &models.Product{SKU: "A", Price: decimal.NewFromInt(10), Stock: 3, GroupID: "G1"}
	p.MercadoLibreID = "MLB1"
	require.NoError(t, store.SaveProduct(ctx, p))
	assert.Equal(t, int64(1), p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	bySKU, err := store.GetProductBySKU(ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, bySKU)
	assert.Equal(t, p.ID, bySKU.ID)

	byExt, err := store.GetProductByExternalID(ctx, models.MarketplaceMercadoLibre, "MLB1")
	require.NoError(t, err)
	require.NotNil(t, byExt)

	missing, err := store.GetProductByExternalID(ctx, models.MarketplaceAmazon, "MLB1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// изменения копии не попадают в хранилище без SaveProduct
	bySKU.Stock = 99
	fresh, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.Stock)

	group, err := store.ListGroup(ctx, "G1")
	require.NoError(t, err)
	assert.Len(t, group, 1)

	empty, err := store.ListGroup(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.DeleteProduct(ctx, p.ID))
	gone, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMemoryStorageUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	first := &models.Product{SKU: "A"}
	first.WooCommerceID = "11"
	require.NoError(t, store.SaveProduct(ctx, first))

	err := store.SaveProduct(ctx, &models.Product{SKU: "A"})
	assert.ErrorIs(t, err, models.ErrDuplicateSKU)

	second := &models.Product{SKU: "B"}
	second.WooCommerceID = "11"
	assert.ErrorIs(t, store.SaveProduct(ctx, second), models.ErrDuplicateSKU)

	// повторное сохранение того же товара не конфликтует с самим собой
	first.Title = "renamed"
	assert.NoError(t, store.SaveProduct(ctx, first))
}

func TestMemoryStorageListProductsPage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	for _, sku := range []string{"A", "B", "C"} {
		require.NoError(t, store.SaveProduct(ctx, &models.Product{SKU: sku}))
	}

	page, total, err := store.ListProductsPage(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)

	page, _, err = store.ListProductsPage(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryStorageConnections(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	expires := time.Now().Add(time.Hour)
	conn := &models.Connection{Marketplace: models.MarketplaceMercadoLibre, IsConnected: true, TokenExpiresAt: &expires}
	require.NoError(t, store.SaveConnection(ctx, conn))
	created := conn.CreatedAt

	conn.IsConnected = false
	require.NoError(t, store.SaveConnection(ctx, conn))
	assert.Equal(t, created, conn.CreatedAt)

	got, err := store.GetConnection(ctx, models.MarketplaceMercadoLibre)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsConnected)

	all, err := store.ListConnections(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.DeleteConnection(ctx, models.MarketplaceMercadoLibre))
	got, err = store.GetConnection(ctx, models.MarketplaceMercadoLibre)
	require.NoError(t, err)
	assert.Nil(t, got)
}
