package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// цены отдаются числами, как в исходном формате каталога
	decimal.MarshalJSONWithoutQuotes = true
}

// ProductStatus статус публикации товара
type ProductStatus string

const (
	ProductStatusActive ProductStatus = "active"
	ProductStatusPaused ProductStatus = "paused"
)

// Condition состояние товара
type Condition string

const (
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
)

// Dimensions габариты товара
type Dimensions struct {
	Height decimal.Decimal `json:"height"`
	Width  decimal.Decimal `json:"width"`
	Length decimal.Decimal `json:"length"`
}

// ExternalIDs хранит идентификаторы товара на каждой площадке.
// Пустая строка означает, что товар там еще не опубликован.
type ExternalIDs struct {
	WooCommerceID  string `json:"woocommerceId,omitempty"`
	MercadoLibreID string `json:"mercadoLibreId,omitempty"`
	AmazonID       string `json:"amazonId,omitempty"`
}

// Get возвращает идентификатор товара на площадке m
func (e ExternalIDs) Get(m Marketplace) string {
	switch m {
	case MarketplaceWooCommerce:
		return e.WooCommerceID
	case MarketplaceMercadoLibre:
		return e.MercadoLibreID
	case MarketplaceAmazon:
		return e.AmazonID
	}
	return ""
}

// Set записывает идентификатор товара на площадке m
func (e *ExternalIDs) Set(m Marketplace, id string) {
	switch m {
	case MarketplaceWooCommerce:
		e.WooCommerceID = id
	case MarketplaceMercadoLibre:
		e.MercadoLibreID = id
	case MarketplaceAmazon:
		e.AmazonID = id
	}
}

// Linked возвращает площадки, на которых у товара есть внешний идентификатор
func (e ExternalIDs) Linked() []Marketplace {
	var linked []Marketplace
	for _, m := range Marketplaces {
		if e.Get(m) != "" {
			linked = append(linked, m)
		}
	}
	return linked
}

// OwnedElsewhere true, если товар привязан к другой площадке и не привязан к m
func (e ExternalIDs) OwnedElsewhere(m Marketplace) bool {
	if e.Get(m) != "" {
		return false
	}
	for _, other := range Marketplaces {
		if other != m && e.Get(other) != "" {
			return true
		}
	}
	return false
}

// Product каноническая карточка товара продавца
type Product struct {
	ID                int64            `json:"id"`
	SKU               string           `json:"sku"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Price             decimal.Decimal  `json:"price"`
	SalePrice         *decimal.Decimal `json:"salePrice,omitempty"`
	CostPrice         *decimal.Decimal `json:"costPrice,omitempty"`
	Stock             int              `json:"stock"`
	GroupID           string           `json:"groupId,omitempty"`
	Images            []string         `json:"images"`
	Category          string           `json:"category,omitempty"`
	Brand             string           `json:"brand,omitempty"`
	Condition         Condition        `json:"condition"`
	Weight            *decimal.Decimal `json:"weight,omitempty"`
	Dimensions        *Dimensions      `json:"dimensions,omitempty"`
	ListingType       string           `json:"listingType,omitempty"`
	SourceMarketplace Marketplace      `json:"sourceMarketplace,omitempty"`
	Status            ProductStatus    `json:"status"`
	ExternalIDs
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

// LockKey ключ критической секции: вся группа целиком или отдельный SKU
func (p *Product) LockKey() string {
	return LockKeyFor(p.GroupID, p.SKU)
}

// LockKeyFor строит ключ блокировки по группе, а без группы по SKU
func LockKeyFor(groupID, sku string) string {
	if groupID != "" {
		return "group:" + groupID
	}
	return "sku:" + sku
}

// Clone возвращает глубокую копию товара
func (p *Product) Clone() *Product {
	c := *p
	c.Images = append([]string(nil), p.Images...)
	c.SalePrice = cloneDecimal(p.SalePrice)
	c.CostPrice = cloneDecimal(p.CostPrice)
	c.Weight = cloneDecimal(p.Weight)
	if p.Dimensions != nil {
		d := *p.Dimensions
		c.Dimensions = &d
	}
	if p.LastSyncedAt != nil {
		t := *p.LastSyncedAt
		c.LastSyncedAt = &t
	}
	return &c
}

// ToRemote переводит товар в каноническую форму для адаптеров
func (p *Product) ToRemote(m Marketplace) RemoteProduct {
	return RemoteProduct{
		ExternalID:  p.ExternalIDs.Get(m),
		SKU:         p.SKU,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		SalePrice:   cloneDecimal(p.SalePrice),
		Stock:       p.Stock,
		Images:      append([]string(nil), p.Images...),
		Category:    p.Category,
		Brand:       p.Brand,
		Condition:   p.Condition,
		Weight:      cloneDecimal(p.Weight),
		Dimensions:  p.Dimensions,
		Status:      p.Status,
		ListingType: p.ListingType,
	}
}

// NewProductFromRemote создает каноническую карточку из объявления площадки m
func NewProductFromRemote(m Marketplace, r RemoteProduct, now time.Time) *Product {
	sku := r.SKU
	if sku == "" {
		sku = r.ExternalID
	}
	condition := r.Condition
	if condition == "" {
		condition = ConditionNew
	}
	status := r.Status
	if status == "" {
		status = ProductStatusActive
	}
	p := &Product{
		SKU:               sku,
		Title:             r.Title,
		Description:       r.Description,
		Price:             r.Price,
		SalePrice:         cloneDecimal(r.SalePrice),
		Stock:             max(r.Stock, 0),
		Images:            append([]string{}, r.Images...),
		Category:          r.Category,
		Brand:             r.Brand,
		Condition:         condition,
		Weight:            cloneDecimal(r.Weight),
		Dimensions:        r.Dimensions,
		ListingType:       r.ListingType,
		SourceMarketplace: m,
		Status:            status,
		LastSyncedAt:      &now,
	}
	p.ExternalIDs.Set(m, r.ExternalID)
	return p
}

// DecimalPtrEqual сравнивает необязательные суммы численно
func DecimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
