package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/shopspring/decimal"
)

const (
	DefaultMercadoLibreURL = "https://api.mercadolibre.com"

	// мультиget /items принимает не больше 20 идентификаторов
	mlMultigetLimit = 20

	mlDefaultCategory    = "MLB1648"
	mlDefaultCurrency    = "BRL"
	mlDefaultListingType = "gold_special"
)

type mlPicture struct {
	URL       string `json:"url,omitempty"`
	SecureURL string `json:"secure_url,omitempty"`
	Source    string `json:"source,omitempty"`
}

type mlAttribute struct {
	ID        string `json:"id"`
	ValueName string `json:"value_name"`
}

type mlItem struct {
	ID                string          `json:"id,omitempty"`
	Title             string          `json:"title,omitempty"`
	CategoryID        string          `json:"category_id,omitempty"`
	Price             decimal.Decimal `json:"price"`
	CurrencyID        string          `json:"currency_id,omitempty"`
	AvailableQuantity int             `json:"available_quantity"`
	BuyingMode        string          `json:"buying_mode,omitempty"`
	Condition         string          `json:"condition,omitempty"`
	ListingTypeID     string          `json:"listing_type_id,omitempty"`
	Pictures          []mlPicture     `json:"pictures,omitempty"`
	SellerCustomField string          `json:"seller_custom_field,omitempty"`
	Attributes        []mlAttribute   `json:"attributes,omitempty"`
	Status            string          `json:"status,omitempty"`
}

type mlMultigetEntry struct {
	Code int    `json:"code"`
	Body mlItem `json:"body"`
}

type mlSearchResult struct {
	Results []string `json:"results"`
}

type mlUser struct {
	ID int64 `json:"id"`
}

type mlOrderItem struct {
	Item struct {
		ID                string `json:"id"`
		SellerCustomField string `json:"seller_custom_field"`
	} `json:"item"`
	Quantity int `json:"quantity"`
}

type mlOrder struct {
	ID         int64         `json:"id"`
	Status     string        `json:"status"`
	OrderItems []mlOrderItem `json:"order_items"`
}

// MercadoLibre адаптер MercadoLibre. Требует действующий access token.
type MercadoLibre struct {
	client *restClient

	mu     sync.Mutex
	userID string
}

func newMercadoLibre(conn *models.Connection, base restClient, baseURL string) *MercadoLibre {
	token := conn.Credentials.AccessToken
	base.marketplace = models.MarketplaceMercadoLibre
	base.baseURL = baseURL
	base.authorize = func(_ context.Context, req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
	return &MercadoLibre{client: &base, userID: conn.Credentials.UserID}
}

func (m *MercadoLibre) Marketplace() models.Marketplace {
	return models.MarketplaceMercadoLibre
}

func (m *MercadoLibre) TestConnection(ctx context.Context) error {
	_, err := m.me(ctx)
	return err
}

func (m *MercadoLibre) me(ctx context.Context) (*mlUser, error) {
	var user mlUser
	if err := m.client.do(ctx, "get user", http.MethodGet, "/users/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// sellerID берет идентификатор продавца из подключения, иначе спрашивает /users/me
func (m *MercadoLibre) sellerID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userID != "" {
		return m.userID, nil
	}
	user, err := m.me(ctx)
	if err != nil {
		return "", err
	}
	m.userID = strconv.FormatInt(user.ID, 10)
	return m.userID, nil
}

func (m *MercadoLibre) ListProducts(ctx context.Context, limit, offset int) ([]models.RemoteProduct, error) {
	sellerID, err := m.sellerID(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var search mlSearchResult
	path := fmt.Sprintf("/users/%s/items/search", url.PathEscape(sellerID))
	if err := m.client.do(ctx, "search items", http.MethodGet, path, query, nil, &search); err != nil {
		return nil, err
	}

	products := make([]models.RemoteProduct, 0, len(search.Results))
	for start := 0; start < len(search.Results); start += mlMultigetLimit {
		end := min(start+mlMultigetLimit, len(search.Results))

		q := url.Values{}
		q.Set("ids", strings.Join(search.Results[start:end], ","))

		var entries []mlMultigetEntry
		if err := m.client.do(ctx, "get items", http.MethodGet, "/items", q, nil, &entries); err != nil {
			return nil, err
		}
		for _, entry := range entries {
			// отдельные объявления могут быть недоступны, пропускаем их
			if entry.Code != http.StatusOK {
				continue
			}
			products = append(products, fromMLItem(entry.Body))
		}
	}
	return products, nil
}

func (m *MercadoLibre) GetProduct(ctx context.Context, externalID string) (*models.RemoteProduct, error) {
	var item mlItem
	err := m.client.do(ctx, "get item", http.MethodGet, "/items/"+url.PathEscape(externalID), nil, nil, &item)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := fromMLItem(item)
	return &p, nil
}

func (m *MercadoLibre) CreateProduct(ctx context.Context, product models.RemoteProduct) (*models.RemoteProduct, error) {
	var created mlItem
	if err := m.client.do(ctx, "create item", http.MethodPost, "/items", nil, toMLItem(product), &created); err != nil {
		return nil, err
	}
	p := fromMLItem(created)
	return &p, nil
}

// UpdateProduct меняет только поля, которые MercadoLibre разрешает править у опубликованного объявления
func (m *MercadoLibre) UpdateProduct(ctx context.Context, externalID string, product models.RemoteProduct) (*models.RemoteProduct, error) {
	body := map[string]interface{}{
		"available_quantity": product.Stock,
	}
	if product.Title != "" {
		body["title"] = product.Title
	}
	if product.Price.IsPositive() {
		body["price"] = product.Price
	}

	var updated mlItem
	if err := m.client.do(ctx, "update item", http.MethodPut, "/items/"+url.PathEscape(externalID), nil, body, &updated); err != nil {
		return nil, err
	}
	p := fromMLItem(updated)
	return &p, nil
}

func (m *MercadoLibre) UpdateStock(ctx context.Context, externalID string, quantity int) error {
	return m.put(ctx, "update stock", externalID, map[string]interface{}{"available_quantity": quantity})
}

// UpdatePrice обновляет цену. Цена со скидкой в MercadoLibre задается акциями и здесь не передается.
func (m *MercadoLibre) UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal, _ *decimal.Decimal) error {
	return m.put(ctx, "update price", externalID, map[string]interface{}{"price": price})
}

func (m *MercadoLibre) Pause(ctx context.Context, externalID string) error {
	return m.put(ctx, "pause item", externalID, map[string]interface{}{"status": "paused"})
}

func (m *MercadoLibre) Activate(ctx context.Context, externalID string) error {
	return m.put(ctx, "activate item", externalID, map[string]interface{}{"status": "active"})
}

// Delete закрывает объявление, удаления в API нет
func (m *MercadoLibre) Delete(ctx context.Context, externalID string) error {
	return m.put(ctx, "close item", externalID, map[string]interface{}{"status": "closed"})
}

func (m *MercadoLibre) put(ctx context.Context, op, externalID string, body map[string]interface{}) error {
	return m.client.do(ctx, op, http.MethodPut, "/items/"+url.PathEscape(externalID), nil, body, nil)
}

func (m *MercadoLibre) GetOrder(ctx context.Context, orderID string) (*models.RemoteOrder, error) {
	var order mlOrder
	err := m.client.do(ctx, "get order", http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, nil, &order)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result := &models.RemoteOrder{ID: strconv.FormatInt(order.ID, 10), Status: order.Status}
	for _, line := range order.OrderItems {
		result.Lines = append(result.Lines, models.OrderLine{
			ExternalID: line.Item.ID,
			SKU:        line.Item.SellerCustomField,
			Quantity:   line.Quantity,
		})
	}
	return result, nil
}

// mlListingType сводит тип размещения MercadoLibre к classic, premium или other
func mlListingType(id string) string {
	switch {
	case strings.Contains(id, "free"), id == "bronze", id == "silver":
		return "classic"
	case strings.Contains(id, "gold"), id == "platinum":
		return "premium"
	default:
		return "other"
	}
}

func fromMLItem(item mlItem) models.RemoteProduct {
	sku := item.SellerCustomField
	if sku == "" {
		sku = item.ID
	}
	p := models.RemoteProduct{
		ExternalID:  item.ID,
		SKU:         sku,
		Title:       item.Title,
		Price:       item.Price,
		Stock:       max(item.AvailableQuantity, 0),
		Images:      make([]string, 0, len(item.Pictures)),
		Category:    item.CategoryID,
		Condition:   models.ConditionUsed,
		Status:      models.ProductStatusPaused,
		ListingType: mlListingType(item.ListingTypeID),
	}
	for _, pic := range item.Pictures {
		if pic.URL != "" {
			p.Images = append(p.Images, pic.URL)
		} else if pic.SecureURL != "" {
			p.Images = append(p.Images, pic.SecureURL)
		}
	}
	for _, attr := range item.Attributes {
		if attr.ID == "BRAND" {
			p.Brand = attr.ValueName
			break
		}
	}
	if item.Condition == "new" {
		p.Condition = models.ConditionNew
	}
	if item.Status == "active" {
		p.Status = models.ProductStatusActive
	}
	return p
}

func toMLItem(p models.RemoteProduct) mlItem {
	item := mlItem{
		Title:             p.Title,
		CategoryID:        p.Category,
		Price:             p.Price,
		CurrencyID:        mlDefaultCurrency,
		AvailableQuantity: p.Stock,
		BuyingMode:        "buy_it_now",
		Condition:         string(p.Condition),
		ListingTypeID:     mlDefaultListingType,
		SellerCustomField: p.SKU,
	}
	if item.CategoryID == "" {
		item.CategoryID = mlDefaultCategory
	}
	if item.Condition == "" {
		item.Condition = string(models.ConditionNew)
	}
	for _, src := range p.Images {
		item.Pictures = append(item.Pictures, mlPicture{Source: src})
	}
	if p.Brand != "" {
		item.Attributes = []mlAttribute{{ID: "BRAND", ValueName: p.Brand}}
	}
	return item
}
