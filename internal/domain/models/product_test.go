package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalIDs(t *testing.T) {
	var ids ExternalIDs
	assert.Empty(t, ids.Linked())
	assert.False(t, ids.OwnedElsewhere(MarketplaceAmazon))

	ids.Set(MarketplaceMercadoLibre, "MLB1")
	assert.Equal(t, "MLB1", ids.Get(MarketplaceMercadoLibre))
	assert.Equal(t, []Marketplace{MarketplaceMercadoLibre}, ids.Linked())

	assert.True(t, ids.OwnedElsewhere(MarketplaceWooCommerce))
	assert.False(t, ids.OwnedElsewhere(MarketplaceMercadoLibre))

	ids.Set(MarketplaceWooCommerce, "7")
	assert.False(t, ids.OwnedElsewhere(MarketplaceWooCommerce))
	assert.Equal(t, []Marketplace{MarketplaceWooCommerce, MarketplaceMercadoLibre}, ids.Linked())
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "group:G1", (&Product{SKU: "A", GroupID: "G1"}).LockKey())
	assert.Equal(t, "sku:A", (&Product{SKU: "A"}).LockKey())
}

func TestNewProductFromRemote(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sale := decimal.RequireFromString("8.5")

	p := NewProductFromRemote(MarketplaceWooCommerce, RemoteProduct{
		ExternalID: "42",
		Title:      "Lamp",
		Price:      decimal.RequireFromString("10"),
		SalePrice:  &sale,
		Stock:      -3,
	}, now)

	assert.Equal(t, "42", p.SKU, "sku falls back to the external id")
	assert.Equal(t, "42", p.WooCommerceID)
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, ConditionNew, p.Condition)
	assert.Equal(t, ProductStatusActive, p.Status)
	assert.Equal(t, MarketplaceWooCommerce, p.SourceMarketplace)
	assert.NotNil(t, p.Images)
	require.NotNil(t, p.LastSyncedAt)
	assert.Equal(t, now, *p.LastSyncedAt)

	sale = decimal.RequireFromString("1")
	assert.Equal(t, "8.5", p.SalePrice.String(), "sale price is copied")
}

func TestCloneIsDeep(t *testing.T) {
	cost := decimal.RequireFromString("3")
	p := &Product{SKU: "A", Images: []string{"a.jpg"}, CostPrice: &cost, Dimensions: &Dimensions{Height: decimal.NewFromInt(1)}}

	c := p.Clone()
	c.Images[0] = "b.jpg"
	*c.CostPrice = decimal.RequireFromString("9")
	c.Dimensions.Height = decimal.NewFromInt(5)

	assert.Equal(t, "a.jpg", p.Images[0])
	assert.Equal(t, "3", p.CostPrice.String())
	assert.True(t, p.Dimensions.Height.Equal(decimal.NewFromInt(1)))
}

func TestDecimalPtrEqual(t *testing.T) {
	a := decimal.RequireFromString("10.0")
	b := decimal.RequireFromString("10")
	c := decimal.RequireFromString("11")

	assert.True(t, DecimalPtrEqual(nil, nil))
	assert.True(t, DecimalPtrEqual(&a, &b))
	assert.False(t, DecimalPtrEqual(&a, &c))
	assert.False(t, DecimalPtrEqual(&a, nil))
}

func TestBuildGroupsOverview(t *testing.T) {
	cost := decimal.RequireFromString("2.5")
	products := []*Product{
		{ID: 1, SKU: "A", GroupID: "G1", Stock: 4},
		{ID: 2, SKU: "B", GroupID: "G1", Stock: 4, CostPrice: &cost},
		{ID: 3, SKU: "C", Stock: 1},
		{ID: 4, SKU: "D", GroupID: "G0", Stock: 2},
	}

	overview := BuildGroupsOverview(products)

	require.Len(t, overview.Groups, 2)
	assert.Equal(t, 2, overview.TotalGroups)
	assert.Equal(t, 1, overview.TotalUngrouped)
	assert.Equal(t, "G0", overview.Groups[0].GroupID)

	g1 := overview.Groups[1]
	assert.Len(t, g1.Products, 2)
	assert.Equal(t, 4, g1.TotalStock)
	require.NotNil(t, g1.CostPrice)
	assert.Equal(t, "10", g1.TotalValue.String())

	assert.True(t, overview.Groups[0].TotalValue.IsZero())
}

func TestConnectionUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		conn *Connection
		want bool
	}{
		{"nil", nil, false},
		{"disconnected", &Connection{Marketplace: MarketplaceWooCommerce}, false},
		{"woocommerce without token", &Connection{Marketplace: MarketplaceWooCommerce, IsConnected: true}, true},
		{"mercadolibre without token", &Connection{Marketplace: MarketplaceMercadoLibre, IsConnected: true}, false},
		{"mercadolibre expired", &Connection{Marketplace: MarketplaceMercadoLibre, IsConnected: true, Credentials: Credentials{AccessToken: "t"}, TokenExpiresAt: &past}, false},
		{"mercadolibre valid", &Connection{Marketplace: MarketplaceMercadoLibre, IsConnected: true, Credentials: Credentials{AccessToken: "t"}, TokenExpiresAt: &future}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.conn.Usable(now))
		})
	}
}

func TestParseMarketplace(t *testing.T) {
	m, err := ParseMarketplace(" WooCommerce ")
	require.NoError(t, err)
	assert.Equal(t, MarketplaceWooCommerce, m)

	_, err = ParseMarketplace("ebay")
	assert.ErrorIs(t, err, ErrUnknownMarketplace)
}
