package services

import "github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"

// Delta изменившиеся поля товара, важные для площадок и группы
type Delta struct {
	Price     bool `json:"price"`
	SalePrice bool `json:"salePrice"`
	Stock     bool `json:"stock"`
	CostPrice bool `json:"costPrice"`
}

// DetectDelta сравнивает сохраненную версию товара с новой. Суммы сравниваются численно.
func DetectDelta(before, after *models.Product) Delta {
	if before == nil {
		return Delta{}
	}
	return Delta{
		Price:     !before.Price.Equal(after.Price),
		SalePrice: !models.DecimalPtrEqual(before.SalePrice, after.SalePrice),
		Stock:     before.Stock != after.Stock,
		CostPrice: !models.DecimalPtrEqual(before.CostPrice, after.CostPrice),
	}
}

// PriceChanged true, если изменилась цена или цена со скидкой
func (d Delta) PriceChanged() bool {
	return d.Price || d.SalePrice
}

// Pushable true, если изменение нужно отправить на площадки товара
func (d Delta) Pushable() bool {
	return d.PriceChanged() || d.Stock
}

// GroupShared true, если изменилось поле, общее для группы
func (d Delta) GroupShared() bool {
	return d.Stock || d.CostPrice
}

func (d Delta) Any() bool {
	return d.Pushable() || d.CostPrice
}
