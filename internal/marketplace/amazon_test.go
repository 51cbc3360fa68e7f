package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amazonConnection() *models.Connection {
	expires := time.Now().Add(time.Hour)
	return &models.Connection{
		Marketplace:    models.MarketplaceAmazon,
		IsConnected:    true,
		TokenExpiresAt: &expires,
		Credentials: models.Credentials{
			APIURL:       "eu-central-1",
			APIKey:       "amzn1.application",
			APISecret:    "secret",
			AccessToken:  "Atza|token",
			RefreshToken: "Atzr|refresh",
		},
	}
}

func TestAmazonSellerIDIsCachedAcrossAdapters(t *testing.T) {
	var lookups atomic.Int32
	var patches []map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Atza|token", r.Header.Get("x-amz-access-token"))
		switch {
		case r.URL.Path == "/sellers/v1/marketplaceParticipations":
			lookups.Add(1)
			_, _ = w.Write([]byte(`{"payload": [{"sellerId": "SELLER1"}]}`))
		case strings.HasPrefix(r.URL.Path, "/listings/2021-08-01/items/SELLER1/"):
			assert.Equal(t, "A1PA6795UKMFR9", r.URL.Query().Get("marketplaceIds"))
			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			patches = append(patches, body)
			_, _ = w.Write([]byte(`{"status": "ACCEPTED"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	registry := newTestRegistry(t, Config{AmazonEndpoint: srv.URL})

	for i := 0; i < 2; i++ {
		adapter, err := registry.Adapter(amazonConnection())
		require.NoError(t, err)
		require.NoError(t, adapter.UpdateStock(context.Background(), "SKU-1", 5))
	}

	assert.Equal(t, int32(1), lookups.Load())
	require.Len(t, patches, 2)
	patchList := patches[0]["patches"].([]interface{})
	first := patchList[0].(map[string]interface{})
	assert.Equal(t, "/attributes/fulfillment_availability", first["path"])
}

func TestAmazonUpdatePriceUsesSalePrice(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	conn := amazonConnection()
	conn.Credentials.UserID = "SELLER2"
	adapter, err := newTestRegistry(t, Config{AmazonEndpoint: srv.URL}).Adapter(conn)
	require.NoError(t, err)

	sale := decimal.RequireFromString("7.5")
	require.NoError(t, adapter.UpdatePrice(context.Background(), "SKU-1", decimal.RequireFromString("9"), &sale))

	patch := body["patches"].([]interface{})[0].(map[string]interface{})
	offer := patch["value"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "EUR", offer["currency"])
	schedule := offer["our_price"].([]interface{})[0].(map[string]interface{})["schedule"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, 7.5, schedule["value_with_tax"])
}

func TestAmazonListProductsFollowsPageTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"items": [
				{"sku": "S1", "summaries": [{"itemName": "One", "conditionType": "new_new", "status": ["BUYABLE"]}],
				 "offers": [{"price": {"currencyCode": "EUR", "amount": 12.5}}],
				 "fulfillmentAvailability": [{"fulfillmentChannelCode": "DEFAULT", "quantity": 3}]}
			], "pagination": {"nextToken": "next-1"}}`))
			return
		}
		assert.Equal(t, "next-1", r.URL.Query().Get("pageToken"))
		_, _ = w.Write([]byte(`{"items": [{"sku": "S2"}]}`))
	}))
	defer srv.Close()

	conn := amazonConnection()
	conn.Credentials.UserID = "SELLER3"
	adapter, err := newTestRegistry(t, Config{AmazonEndpoint: srv.URL}).Adapter(conn)
	require.NoError(t, err)

	page1, err := adapter.ListProducts(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, page1, 1)
	assert.Equal(t, "S1", page1[0].ExternalID)
	assert.Equal(t, 3, page1[0].Stock)
	assert.Equal(t, models.ProductStatusActive, page1[0].Status)
	assert.Equal(t, models.ConditionNew, page1[0].Condition)
	assert.True(t, decimal.RequireFromString("12.5").Equal(page1[0].Price))

	page2, err := adapter.ListProducts(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "S2", page2[0].SKU)

	page3, err := adapter.ListProducts(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Empty(t, page3)
}

func TestAmazonRegionFallback(t *testing.T) {
	assert.Equal(t, "ATVPDKIKX0DER", resolveAmazonRegion("").marketplaceID)
	assert.Equal(t, "A1F83G8C2ARO7P", resolveAmazonRegion("eu-west-1").marketplaceID)
}
