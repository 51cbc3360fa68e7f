package models

import "github.com/shopspring/decimal"

// RemoteProduct каноническая форма объявления, которой обмениваются адаптеры площадок
type RemoteProduct struct {
	ExternalID  string           `json:"externalId,omitempty"`
	SKU         string           `json:"sku"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Price       decimal.Decimal  `json:"price"`
	SalePrice   *decimal.Decimal `json:"salePrice,omitempty"`
	Stock       int              `json:"stock"`
	Images      []string         `json:"images"`
	Category    string           `json:"category,omitempty"`
	Brand       string           `json:"brand,omitempty"`
	Condition   Condition        `json:"condition"`
	Weight      *decimal.Decimal `json:"weight,omitempty"`
	Dimensions  *Dimensions      `json:"dimensions,omitempty"`
	Status      ProductStatus    `json:"status"`
	ListingType string           `json:"listingType,omitempty"`
}

// OrderLine позиция заказа площадки
type OrderLine struct {
	ExternalID string `json:"externalId"`
	SKU        string `json:"sku,omitempty"`
	Quantity   int    `json:"quantity"`
}

// RemoteOrder заказ, полученный с площадки
type RemoteOrder struct {
	ID     string      `json:"id"`
	Status string      `json:"status,omitempty"`
	Lines  []OrderLine `json:"lines"`
}
