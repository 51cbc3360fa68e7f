package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

const (
	amazonListingsPath  = "/listings/2021-08-01/items/"
	amazonProductType   = "PRODUCT"
	amazonChannel       = "DEFAULT"
	amazonDefaultRegion = "us-east-1"
)

// amazonRegion площадка и адрес SP-API для региона, указанного в apiUrl подключения
type amazonRegion struct {
	endpoint      string
	marketplaceID string
	currency      string
	language      string
}

var amazonRegions = map[string]amazonRegion{
	"us-east-1":    {"https://sellingpartnerapi-na.amazon.com", "ATVPDKIKX0DER", "USD", "en_US"},
	"us-west-2":    {"https://sellingpartnerapi-na.amazon.com", "ATVPDKIKX0DER", "USD", "en_US"},
	"eu-west-1":    {"https://sellingpartnerapi-eu.amazon.com", "A1F83G8C2ARO7P", "GBP", "en_GB"},
	"eu-central-1": {"https://sellingpartnerapi-eu.amazon.com", "A1PA6795UKMFR9", "EUR", "de_DE"},
}

func resolveAmazonRegion(code string) amazonRegion {
	if r, ok := amazonRegions[strings.TrimSpace(code)]; ok {
		return r
	}
	return amazonRegions[amazonDefaultRegion]
}

// sellerIDStore хранилище идентификатора продавца на одно значение
type sellerIDStore interface {
	SellerID() (string, bool)
	SetSellerID(id string)
}

type amzValue struct {
	Value       string `json:"value"`
	LanguageTag string `json:"language_tag,omitempty"`
}

type amzSummary struct {
	MarketplaceID string   `json:"marketplaceId"`
	ProductType   string   `json:"productType"`
	ConditionType string   `json:"conditionType"`
	Status        []string `json:"status"`
	ItemName      string   `json:"itemName"`
	MainImage     *struct {
		Link string `json:"link"`
	} `json:"mainImage"`
}

type amzAttributes struct {
	ItemName    []amzValue `json:"item_name"`
	BulletPoint []amzValue `json:"bullet_point"`
	Brand       []amzValue `json:"brand"`
}

type amzOffer struct {
	OfferType string `json:"offerType"`
	Price     struct {
		CurrencyCode string          `json:"currencyCode"`
		Amount       decimal.Decimal `json:"amount"`
	} `json:"price"`
}

type amzAvailability struct {
	FulfillmentChannelCode string `json:"fulfillmentChannelCode"`
	Quantity               int    `json:"quantity"`
}

type amzListing struct {
	SKU                     string            `json:"sku"`
	Summaries               []amzSummary      `json:"summaries"`
	Attributes              amzAttributes     `json:"attributes"`
	Offers                  []amzOffer        `json:"offers"`
	FulfillmentAvailability []amzAvailability `json:"fulfillmentAvailability"`
}

type amzSearchResult struct {
	Items      []amzListing `json:"items"`
	Pagination *struct {
		NextToken string `json:"nextToken"`
	} `json:"pagination"`
}

type amzPatch struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

type amzParticipations struct {
	Payload []struct {
		SellerID string `json:"sellerId"`
	} `json:"payload"`
}

// Amazon адаптер Selling Partner API (Listings Items 2021-08-01).
// Токен доступа LWA берется из подключения и обновляется по refresh token при истечении.
type Amazon struct {
	client   *restClient
	region   amazonRegion
	sellerID string
	sellers  sellerIDStore

	mu sync.Mutex
	// токены страниц по смещению, ListProducts вызывается последовательно
	pageTokens map[int]string
}

func newAmazon(conn *models.Connection, base restClient, endpoint string, tokens oauth2.TokenSource, sellers sellerIDStore) *Amazon {
	region := resolveAmazonRegion(conn.Credentials.APIURL)
	if endpoint == "" {
		endpoint = region.endpoint
	}
	base.marketplace = models.MarketplaceAmazon
	base.baseURL = endpoint
	base.authorize = func(_ context.Context, req *http.Request) error {
		token, err := tokens.Token()
		if err != nil {
			return fmt.Errorf("failed to obtain LWA access token: %w", err)
		}
		req.Header.Set("x-amz-access-token", token.AccessToken)
		return nil
	}
	return &Amazon{
		client:     &base,
		region:     region,
		sellerID:   conn.Credentials.UserID,
		sellers:    sellers,
		pageTokens: make(map[int]string),
	}
}

func (a *Amazon) Marketplace() models.Marketplace {
	return models.MarketplaceAmazon
}

func (a *Amazon) marketplaceQuery() url.Values {
	query := url.Values{}
	query.Set("marketplaceIds", a.region.marketplaceID)
	return query
}

func (a *Amazon) TestConnection(ctx context.Context) error {
	var out amzParticipations
	return a.client.do(ctx, "get participations", http.MethodGet, "/sellers/v1/marketplaceParticipations", nil, nil, &out)
}

// resolveSellerID берет продавца из подключения или из кэша, иначе запрашивает его один раз
func (a *Amazon) resolveSellerID(ctx context.Context) (string, error) {
	if a.sellerID != "" {
		return a.sellerID, nil
	}
	if id, ok := a.sellers.SellerID(); ok {
		return id, nil
	}

	var out amzParticipations
	if err := a.client.do(ctx, "get seller", http.MethodGet, "/sellers/v1/marketplaceParticipations", a.marketplaceQuery(), nil, &out); err != nil {
		return "", err
	}
	if len(out.Payload) == 0 || out.Payload[0].SellerID == "" {
		return "", a.client.fail("get seller", 0, KindAuth, errors.New("unable to retrieve seller id"))
	}
	a.sellers.SetSellerID(out.Payload[0].SellerID)
	return out.Payload[0].SellerID, nil
}

func (a *Amazon) listingPath(ctx context.Context, sku string) (string, error) {
	sellerID, err := a.resolveSellerID(ctx)
	if err != nil {
		return "", err
	}
	path := amazonListingsPath + url.PathEscape(sellerID)
	if sku != "" {
		path += "/" + url.PathEscape(sku)
	}
	return path, nil
}

// ListProducts листает объявления продавца. SP-API отдает страницы по токену,
// поэтому смещение сопоставляется с токеном, полученным на предыдущей странице.
func (a *Amazon) ListProducts(ctx context.Context, limit, offset int) ([]models.RemoteProduct, error) {
	path, err := a.listingPath(ctx, "")
	if err != nil {
		return nil, err
	}

	query := a.marketplaceQuery()
	query.Set("pageSize", strconv.Itoa(limit))
	query.Set("includedData", "summaries,attributes,offers,fulfillmentAvailability")
	if offset > 0 {
		a.mu.Lock()
		token, ok := a.pageTokens[offset]
		a.mu.Unlock()
		if !ok {
			return []models.RemoteProduct{}, nil
		}
		query.Set("pageToken", token)
	}

	var result amzSearchResult
	if err := a.client.do(ctx, "search listings", http.MethodGet, path, query, nil, &result); err != nil {
		return nil, err
	}

	if result.Pagination != nil && result.Pagination.NextToken != "" {
		a.mu.Lock()
		a.pageTokens[offset+len(result.Items)] = result.Pagination.NextToken
		a.mu.Unlock()
	}

	products := make([]models.RemoteProduct, 0, len(result.Items))
	for _, item := range result.Items {
		products = append(products, fromAmazonListing(item))
	}
	return products, nil
}

func (a *Amazon) GetProduct(ctx context.Context, externalID string) (*models.RemoteProduct, error) {
	path, err := a.listingPath(ctx, externalID)
	if err != nil {
		return nil, err
	}
	query := a.marketplaceQuery()
	query.Set("includedData", "summaries,attributes,offers,fulfillmentAvailability")

	var item amzListing
	err = a.client.do(ctx, "get listing", http.MethodGet, path, query, nil, &item)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if item.SKU == "" {
		item.SKU = externalID
	}
	p := fromAmazonListing(item)
	return &p, nil
}

// CreateProduct публикует объявление под SKU товара, SKU становится внешним идентификатором
func (a *Amazon) CreateProduct(ctx context.Context, product models.RemoteProduct) (*models.RemoteProduct, error) {
	path, err := a.listingPath(ctx, product.SKU)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"productType":  amazonProductType,
		"requirements": "LISTING",
		"attributes":   a.toAttributes(product),
	}
	if err := a.client.do(ctx, "put listing", http.MethodPut, path, a.marketplaceQuery(), body, nil); err != nil {
		return nil, err
	}
	created := product
	created.ExternalID = product.SKU
	return &created, nil
}

func (a *Amazon) UpdateProduct(ctx context.Context, externalID string, product models.RemoteProduct) (*models.RemoteProduct, error) {
	attrs := a.toAttributes(product)
	patches := make([]amzPatch, 0, len(attrs))
	for _, name := range []string{"item_name", "bullet_point", "brand", "condition_type", "fulfillment_availability", "purchasable_offer"} {
		if value, ok := attrs[name]; ok {
			patches = append(patches, amzPatch{Op: "replace", Path: "/attributes/" + name, Value: value})
		}
	}
	if err := a.patch(ctx, "update listing", externalID, patches...); err != nil {
		return nil, err
	}
	updated := product
	updated.ExternalID = externalID
	if updated.SKU == "" {
		updated.SKU = externalID
	}
	return &updated, nil
}

func (a *Amazon) UpdateStock(ctx context.Context, externalID string, quantity int) error {
	return a.patch(ctx, "update stock", externalID, amzPatch{
		Op:    "replace",
		Path:  "/attributes/fulfillment_availability",
		Value: a.availability(quantity),
	})
}

// UpdatePrice выставляет цену продажи: цену со скидкой, если она задана
func (a *Amazon) UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal, salePrice *decimal.Decimal) error {
	return a.patch(ctx, "update price", externalID, amzPatch{
		Op:    "replace",
		Path:  "/attributes/purchasable_offer",
		Value: a.offer(effectivePrice(price, salePrice)),
	})
}

func (a *Amazon) Pause(ctx context.Context, externalID string) error {
	return a.setCondition(ctx, "pause listing", externalID, "Inactive")
}

func (a *Amazon) Activate(ctx context.Context, externalID string) error {
	return a.setCondition(ctx, "activate listing", externalID, "NewItem")
}

func (a *Amazon) setCondition(ctx context.Context, op, externalID, value string) error {
	return a.patch(ctx, op, externalID, amzPatch{
		Op:    "replace",
		Path:  "/attributes/condition_type",
		Value: []map[string]string{{"value": value}},
	})
}

func (a *Amazon) Delete(ctx context.Context, externalID string) error {
	path, err := a.listingPath(ctx, externalID)
	if err != nil {
		return err
	}
	return a.client.do(ctx, "delete listing", http.MethodDelete, path, a.marketplaceQuery(), nil, nil)
}

func (a *Amazon) patch(ctx context.Context, op, externalID string, patches ...amzPatch) error {
	path, err := a.listingPath(ctx, externalID)
	if err != nil {
		return err
	}
	body := map[string]interface{}{
		"productType": amazonProductType,
		"patches":     patches,
	}
	return a.client.do(ctx, op, http.MethodPatch, path, a.marketplaceQuery(), body, nil)
}

func (a *Amazon) availability(quantity int) []map[string]interface{} {
	return []map[string]interface{}{{
		"fulfillment_channel_code": amazonChannel,
		"quantity":                 quantity,
	}}
}

func (a *Amazon) offer(price decimal.Decimal) []map[string]interface{} {
	return []map[string]interface{}{{
		"marketplace_id": a.region.marketplaceID,
		"currency":       a.region.currency,
		"our_price": []map[string]interface{}{{
			"schedule": []map[string]interface{}{{"value_with_tax": price}},
		}},
	}}
}

func (a *Amazon) toAttributes(p models.RemoteProduct) map[string]interface{} {
	condition := "NewItem"
	if p.Condition == models.ConditionUsed {
		condition = "UsedLikeNew"
	}
	attrs := map[string]interface{}{
		"item_name":                []amzValue{{Value: p.Title, LanguageTag: a.region.language}},
		"condition_type":           []amzValue{{Value: condition}},
		"fulfillment_availability": a.availability(p.Stock),
		"purchasable_offer":        a.offer(effectivePrice(p.Price, p.SalePrice)),
	}
	if p.Description != "" {
		attrs["bullet_point"] = []amzValue{{Value: p.Description, LanguageTag: a.region.language}}
	}
	if p.Brand != "" {
		attrs["brand"] = []amzValue{{Value: p.Brand}}
	}
	return attrs
}

func effectivePrice(price decimal.Decimal, salePrice *decimal.Decimal) decimal.Decimal {
	if salePrice != nil && salePrice.IsPositive() {
		return *salePrice
	}
	return price
}

func fromAmazonListing(item amzListing) models.RemoteProduct {
	p := models.RemoteProduct{
		ExternalID: item.SKU,
		SKU:        item.SKU,
		Images:     []string{},
		Condition:  models.ConditionUsed,
		Status:     models.ProductStatusPaused,
	}

	if len(item.Summaries) > 0 {
		s := item.Summaries[0]
		p.Title = s.ItemName
		p.Category = s.ProductType
		if s.ConditionType == "new_new" {
			p.Condition = models.ConditionNew
		}
		for _, status := range s.Status {
			if status == "BUYABLE" {
				p.Status = models.ProductStatusActive
			}
		}
		if s.MainImage != nil && s.MainImage.Link != "" {
			p.Images = append(p.Images, s.MainImage.Link)
		}
	}
	if p.Title == "" && len(item.Attributes.ItemName) > 0 {
		p.Title = item.Attributes.ItemName[0].Value
	}

	bullets := make([]string, 0, len(item.Attributes.BulletPoint))
	for _, bp := range item.Attributes.BulletPoint {
		bullets = append(bullets, bp.Value)
	}
	p.Description = strings.Join(bullets, "\n")

	if len(item.Attributes.Brand) > 0 {
		p.Brand = item.Attributes.Brand[0].Value
	}
	if len(item.Offers) > 0 {
		p.Price = item.Offers[0].Price.Amount
	}
	for _, fa := range item.FulfillmentAvailability {
		if fa.FulfillmentChannelCode == amazonChannel {
			p.Stock = max(fa.Quantity, 0)
			break
		}
	}
	return p
}
