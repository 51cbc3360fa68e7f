package marketplace

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/shopspring/decimal"
)

const wooBrandAttribute = "Marca"

type wooImage struct {
	Src string `json:"src"`
}

type wooCategory struct {
	Name string `json:"name"`
}

type wooAttribute struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

type wooDimensions struct {
	Height string `json:"height"`
	Width  string `json:"width"`
	Length string `json:"length"`
}

// wooProduct товар в формате WooCommerce REST API v3. Цены и вес приходят строками.
type wooProduct struct {
	ID            int64          `json:"id,omitempty"`
	Name          string         `json:"name,omitempty"`
	SKU           string         `json:"sku,omitempty"`
	Description   string         `json:"description,omitempty"`
	RegularPrice  string         `json:"regular_price,omitempty"`
	SalePrice     *string        `json:"sale_price,omitempty"`
	StockQuantity *int           `json:"stock_quantity,omitempty"`
	ManageStock   bool           `json:"manage_stock,omitempty"`
	Images        []wooImage     `json:"images,omitempty"`
	Categories    []wooCategory  `json:"categories,omitempty"`
	Attributes    []wooAttribute `json:"attributes,omitempty"`
	Weight        string         `json:"weight,omitempty"`
	Dimensions    *wooDimensions `json:"dimensions,omitempty"`
	Status        string         `json:"status,omitempty"`
}

type wooLineItem struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

type wooOrder struct {
	ID        int64         `json:"id"`
	Status    string        `json:"status"`
	LineItems []wooLineItem `json:"line_items"`
}

// WooCommerce адаптер магазина на WooCommerce
type WooCommerce struct {
	client *restClient
}

func newWooCommerce(conn *models.Connection, base restClient) *WooCommerce {
	creds := conn.Credentials
	base.marketplace = models.MarketplaceWooCommerce
	base.baseURL = strings.TrimRight(creds.APIURL, "/") + "/wp-json/wc/v3"
	base.authorize = func(_ context.Context, req *http.Request) error {
		req.SetBasicAuth(creds.APIKey, creds.APISecret)
		return nil
	}
	return &WooCommerce{client: &base}
}

func (w *WooCommerce) Marketplace() models.Marketplace {
	return models.MarketplaceWooCommerce
}

func (w *WooCommerce) TestConnection(ctx context.Context) error {
	return w.client.do(ctx, "test connection", http.MethodGet, "/system_status", nil, nil, nil)
}

func (w *WooCommerce) ListProducts(ctx context.Context, limit, offset int) ([]models.RemoteProduct, error) {
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var items []wooProduct
	if err := w.client.do(ctx, "list products", http.MethodGet, "/products", query, nil, &items); err != nil {
		return nil, err
	}

	products := make([]models.RemoteProduct, 0, len(items))
	for _, item := range items {
		products = append(products, fromWooProduct(item))
	}
	return products, nil
}

func (w *WooCommerce) GetProduct(ctx context.Context, externalID string) (*models.RemoteProduct, error) {
	var item wooProduct
	err := w.client.do(ctx, "get product", http.MethodGet, "/products/"+url.PathEscape(externalID), nil, nil, &item)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := fromWooProduct(item)
	return &p, nil
}

func (w *WooCommerce) CreateProduct(ctx context.Context, product models.RemoteProduct) (*models.RemoteProduct, error) {
	var created wooProduct
	if err := w.client.do(ctx, "create product", http.MethodPost, "/products", nil, toWooProduct(product), &created); err != nil {
		return nil, err
	}
	p := fromWooProduct(created)
	return &p, nil
}

func (w *WooCommerce) UpdateProduct(ctx context.Context, externalID string, product models.RemoteProduct) (*models.RemoteProduct, error) {
	var updated wooProduct
	if err := w.client.do(ctx, "update product", http.MethodPut, "/products/"+url.PathEscape(externalID), nil, toWooProduct(product), &updated); err != nil {
		return nil, err
	}
	p := fromWooProduct(updated)
	return &p, nil
}

func (w *WooCommerce) UpdateStock(ctx context.Context, externalID string, quantity int) error {
	body := map[string]interface{}{"stock_quantity": quantity, "manage_stock": true}
	return w.client.do(ctx, "update stock", http.MethodPut, "/products/"+url.PathEscape(externalID), nil, body, nil)
}

func (w *WooCommerce) UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal, salePrice *decimal.Decimal) error {
	body := map[string]string{"regular_price": price.String()}
	if salePrice != nil {
		body["sale_price"] = salePrice.String()
	}
	return w.client.do(ctx, "update price", http.MethodPut, "/products/"+url.PathEscape(externalID), nil, body, nil)
}

func (w *WooCommerce) Pause(ctx context.Context, externalID string) error {
	return w.setStatus(ctx, externalID, "draft")
}

func (w *WooCommerce) Activate(ctx context.Context, externalID string) error {
	return w.setStatus(ctx, externalID, "publish")
}

func (w *WooCommerce) setStatus(ctx context.Context, externalID, status string) error {
	body := map[string]string{"status": status}
	return w.client.do(ctx, "set status", http.MethodPut, "/products/"+url.PathEscape(externalID), nil, body, nil)
}

func (w *WooCommerce) Delete(ctx context.Context, externalID string) error {
	query := url.Values{}
	query.Set("force", "true")
	return w.client.do(ctx, "delete product", http.MethodDelete, "/products/"+url.PathEscape(externalID), query, nil, nil)
}

// GetOrder возвращает позиции заказа, nil если заказ не найден
func (w *WooCommerce) GetOrder(ctx context.Context, orderID string) (*models.RemoteOrder, error) {
	var order wooOrder
	err := w.client.do(ctx, "get order", http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, nil, &order)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result := &models.RemoteOrder{ID: strconv.FormatInt(order.ID, 10), Status: order.Status}
	for _, line := range order.LineItems {
		result.Lines = append(result.Lines, models.OrderLine{
			ExternalID: strconv.FormatInt(line.ProductID, 10),
			SKU:        line.SKU,
			Quantity:   line.Quantity,
		})
	}
	return result, nil
}

func fromWooProduct(item wooProduct) models.RemoteProduct {
	p := models.RemoteProduct{
		SKU:         item.SKU,
		Title:       item.Name,
		Description: item.Description,
		Price:       parseDecimal(item.RegularPrice),
		Images:      make([]string, 0, len(item.Images)),
		Condition:   models.ConditionNew,
		Status:      models.ProductStatusPaused,
	}
	if item.ID != 0 {
		p.ExternalID = strconv.FormatInt(item.ID, 10)
	}
	if item.SalePrice != nil && *item.SalePrice != "" {
		sale := parseDecimal(*item.SalePrice)
		p.SalePrice = &sale
	}
	if item.StockQuantity != nil && *item.StockQuantity > 0 {
		p.Stock = *item.StockQuantity
	}
	for _, img := range item.Images {
		p.Images = append(p.Images, img.Src)
	}
	if len(item.Categories) > 0 {
		p.Category = item.Categories[0].Name
	}
	for _, attr := range item.Attributes {
		if attr.Name == wooBrandAttribute && len(attr.Options) > 0 {
			p.Brand = attr.Options[0]
			break
		}
	}
	if item.Weight != "" {
		weight := parseDecimal(item.Weight)
		p.Weight = &weight
	}
	if item.Dimensions != nil && (item.Dimensions.Height != "" || item.Dimensions.Width != "" || item.Dimensions.Length != "") {
		p.Dimensions = &models.Dimensions{
			Height: parseDecimal(item.Dimensions.Height),
			Width:  parseDecimal(item.Dimensions.Width),
			Length: parseDecimal(item.Dimensions.Length),
		}
	}
	if item.Status == "publish" {
		p.Status = models.ProductStatusActive
	}
	return p
}

func toWooProduct(p models.RemoteProduct) wooProduct {
	stock := p.Stock
	item := wooProduct{
		Name:          p.Title,
		SKU:           p.SKU,
		Description:   p.Description,
		RegularPrice:  p.Price.String(),
		StockQuantity: &stock,
		ManageStock:   true,
		Status:        "draft",
	}
	if p.SalePrice != nil {
		sale := p.SalePrice.String()
		item.SalePrice = &sale
	}
	for _, src := range p.Images {
		item.Images = append(item.Images, wooImage{Src: src})
	}
	if p.Brand != "" {
		item.Attributes = []wooAttribute{{Name: wooBrandAttribute, Options: []string{p.Brand}}}
	}
	if p.Weight != nil {
		item.Weight = p.Weight.String()
	}
	if p.Dimensions != nil {
		item.Dimensions = &wooDimensions{
			Height: p.Dimensions.Height.String(),
			Width:  p.Dimensions.Width.String(),
			Length: p.Dimensions.Length.String(),
		}
	}
	if p.Status == models.ProductStatusActive || p.Status == "" {
		item.Status = "publish"
	}
	return item
}

// parseDecimal разбирает сумму из строки, пустая или некорректная строка дает ноль
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
