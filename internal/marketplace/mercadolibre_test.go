package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mlConnection() *models.Connection {
	return &models.Connection{
		Marketplace: models.MarketplaceMercadoLibre,
		IsConnected: true,
		Credentials: models.Credentials{AccessToken: "APP_USR-1", UserID: "777"},
	}
}

func TestMercadoLibreListProductsChunksMultiget(t *testing.T) {
	ids := make([]string, 25)
	for i := range ids {
		ids[i] = fmt.Sprintf("MLB%d", i)
	}

	var multigetCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer APP_USR-1", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/users/777/items/search":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": ids})
		case "/items":
			multigetCalls++
			requested := strings.Split(r.URL.Query().Get("ids"), ",")
			assert.LessOrEqual(t, len(requested), mlMultigetLimit)
			var entries []map[string]interface{}
			for _, id := range requested {
				code := http.StatusOK
				if id == "MLB3" {
					code = http.StatusForbidden
				}
				entries = append(entries, map[string]interface{}{
					"code": code,
					"body": map[string]interface{}{
						"id": id, "title": "Item " + id, "price": 100, "available_quantity": 3,
						"listing_type_id": "gold_pro", "condition": "new", "status": "active",
					},
				})
			}
			_ = json.NewEncoder(w).Encode(entries)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	adapter, err := newTestRegistry(t, Config{MercadoLibreURL: srv.URL}).Adapter(mlConnection())
	require.NoError(t, err)

	products, err := adapter.ListProducts(context.Background(), 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, multigetCalls)
	assert.Len(t, products, 24)

	p := products[0]
	assert.Equal(t, "MLB0", p.ExternalID)
	assert.Equal(t, "MLB0", p.SKU, "without seller_custom_field the item id is the SKU")
	assert.Equal(t, "premium", p.ListingType)
	assert.Equal(t, models.ConditionNew, p.Condition)
	assert.Equal(t, models.ProductStatusActive, p.Status)
}

func TestMercadoLibreListingType(t *testing.T) {
	cases := map[string]string{
		"free":         "classic",
		"bronze":       "classic",
		"silver":       "classic",
		"gold_special": "premium",
		"platinum":     "premium",
		"":             "other",
	}
	for id, want := range cases {
		assert.Equal(t, want, mlListingType(id), id)
	}
}

func TestMercadoLibreMapsMissingFields(t *testing.T) {
	p := fromMLItem(mlItem{ID: "MLB9", SellerCustomField: "SKU-9", AvailableQuantity: -2})
	assert.Equal(t, "SKU-9", p.SKU)
	assert.Equal(t, 0, p.Stock)
	assert.NotNil(t, p.Images)
	assert.Equal(t, models.ConditionUsed, p.Condition)
	assert.Equal(t, models.ProductStatusPaused, p.Status)
}

func TestMercadoLibreDeleteClosesItem(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/items/MLB1", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	adapter, err := newTestRegistry(t, Config{MercadoLibreURL: srv.URL}).Adapter(mlConnection())
	require.NoError(t, err)

	require.NoError(t, adapter.Delete(context.Background(), "MLB1"))
	assert.Equal(t, "closed", body["status"])
}

func TestMercadoLibreAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid access token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter, err := newTestRegistry(t, Config{MercadoLibreURL: srv.URL}).Adapter(mlConnection())
	require.NoError(t, err)

	err = adapter.UpdateStock(context.Background(), "MLB1", 3)
	assert.True(t, IsAuth(err))
	assert.Contains(t, err.Error(), "invalid access token")
}

func TestMercadoLibreGetOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/2000", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": 2000, "status": "paid", "order_items": [
			{"item": {"id": "MLB1", "seller_custom_field": "SKU-1"}, "quantity": 2}]}`))
	}))
	defer srv.Close()

	adapter, err := newTestRegistry(t, Config{MercadoLibreURL: srv.URL}).Adapter(mlConnection())
	require.NoError(t, err)

	order, err := adapter.(OrderFetcher).GetOrder(context.Background(), "2000")
	require.NoError(t, err)
	assert.Equal(t, "2000", order.ID)
	assert.Equal(t, []models.OrderLine{{ExternalID: "MLB1", SKU: "SKU-1", Quantity: 2}}, order.Lines)
}
