package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	return NewRegistry(cfg, http.DefaultClient)
}

func wooConnection(url string) *models.Connection {
	return &models.Connection{
		Marketplace: models.MarketplaceWooCommerce,
		IsConnected: true,
		Credentials: models.Credentials{APIURL: url, APIKey: "ck", APISecret: "cs"},
	}
}

func TestWooCommerceListProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wc/v3/products", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("per_page"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ck", user)
		assert.Equal(t, "cs", pass)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 11, "sku": "A-1", "name": "Lamp", "regular_price": "19.90", "sale_price": "", "stock_quantity": 4,
			 "images": [{"src": "http://img/1.jpg"}], "categories": [{"name": "Home"}],
			 "attributes": [{"name": "Marca", "options": ["Acme"]}], "status": "publish"},
			{"id": 12, "sku": "", "name": "Draft", "regular_price": "", "stock_quantity": null, "status": "draft"}
		]`))
	}))
	defer srv.Close()

	adapter, err := newTestRegistry(t, Config{}).Adapter(wooConnection(srv.URL))
	require.NoError(t, err)

	products, err := adapter.ListProducts(context.Background(), 10, 20)
	require.NoError(t, err)
	require.Len(t, products, 2)

	first := products[0]
	assert.Equal(t, "11", first.ExternalID)
	assert.Equal(t, "A-1", first.SKU)
	assert.True(t, decimal.RequireFromString("19.90").Equal(first.Price))
	assert.Nil(t, first.SalePrice)
	assert.Equal(t, 4, first.Stock)
	assert.Equal(t, []string{"http://img/1.jpg"}, first.Images)
	assert.Equal(t, "Home", first.Category)
	assert.Equal(t, "Acme", first.Brand)
	assert.Equal(t, models.ProductStatusActive, first.Status)

	second := products[1]
	assert.True(t, second.Price.IsZero())
	assert.Equal(t, 0, second.Stock)
	assert.Equal(t, models.ProductStatusPaused, second.Status)
	assert.Equal(t, models.ConditionNew, second.Condition)
}

func TestWooCommerceUpdateStockAndPrice(t *testing.T) {
	var bodies []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/wp-json/wc/v3/products/11", r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	adapter, err := newTestRegistry(t, Config{}).Adapter(wooConnection(srv.URL))
	require.NoError(t, err)

	require.NoError(t, adapter.UpdateStock(context.Background(), "11", 7))
	sale := decimal.RequireFromString("8.5")
	require.NoError(t, adapter.UpdatePrice(context.Background(), "11", decimal.RequireFromString("10"), &sale))

	require.Len(t, bodies, 2)
	assert.Equal(t, float64(7), bodies[0]["stock_quantity"])
	assert.Equal(t, true, bodies[0]["manage_stock"])
	assert.Equal(t, "10", bodies[1]["regular_price"])
	assert.Equal(t, "8.5", bodies[1]["sale_price"])
}

func TestWooCommerceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wp-json/wc/v3/products/404":
			http.Error(w, `{"code":"woocommerce_rest_product_invalid_id"}`, http.StatusNotFound)
		case "/wp-json/wc/v3/system_status":
			http.Error(w, `{"code":"woocommerce_rest_cannot_view"}`, http.StatusUnauthorized)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	adapter, err := newTestRegistry(t, Config{}).Adapter(wooConnection(srv.URL))
	require.NoError(t, err)

	product, err := adapter.GetProduct(context.Background(), "404")
	assert.NoError(t, err)
	assert.Nil(t, product)

	err = adapter.TestConnection(context.Background())
	assert.True(t, IsAuth(err))

	err = adapter.Pause(context.Background(), "1")
	var mErr *Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, KindTransport, mErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, mErr.StatusCode)
	assert.Contains(t, err.Error(), "woocommerce")
}

func TestWooCommerceGetOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wc/v3/orders/501", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": 501, "status": "processing",
			"line_items": [{"product_id": 11, "sku": "A-1", "quantity": 2}]}`))
	}))
	defer srv.Close()

	adapter, err := newTestRegistry(t, Config{}).Adapter(wooConnection(srv.URL))
	require.NoError(t, err)

	fetcher, ok := adapter.(OrderFetcher)
	require.True(t, ok)

	order, err := fetcher.GetOrder(context.Background(), "501")
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, models.OrderLine{ExternalID: "11", SKU: "A-1", Quantity: 2}, order.Lines[0])
}
