// Package marketplace содержит адаптеры торговых площадок.
// Каждая площадка реализует Adapter и переводит каноническую карточку в свой формат и обратно.
package marketplace

import (
	"context"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/shopspring/decimal"
)

// Adapter единый набор операций над объявлениями площадки.
// Любая ошибка транспорта или валидации возвращается как *Error.
type Adapter interface {
	Marketplace() models.Marketplace

	// TestConnection проверяет учетные данные
	TestConnection(ctx context.Context) error

	ListProducts(ctx context.Context, limit, offset int) ([]models.RemoteProduct, error)

	// GetProduct возвращает nil, nil, если объявления нет
	GetProduct(ctx context.Context, externalID string) (*models.RemoteProduct, error)

	// CreateProduct публикует товар и возвращает объявление с присвоенным ExternalID
	CreateProduct(ctx context.Context, product models.RemoteProduct) (*models.RemoteProduct, error)

	UpdateProduct(ctx context.Context, externalID string, product models.RemoteProduct) (*models.RemoteProduct, error)
	UpdateStock(ctx context.Context, externalID string, quantity int) error
	UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal, salePrice *decimal.Decimal) error
	Pause(ctx context.Context, externalID string) error
	Activate(ctx context.Context, externalID string) error
	Delete(ctx context.Context, externalID string) error
}

// OrderFetcher реализуют площадки, присылающие уведомления о заказах
type OrderFetcher interface {
	GetOrder(ctx context.Context, orderID string) (*models.RemoteOrder, error)
}

// Factory создает адаптер для подключения
type Factory interface {
	Adapter(conn *models.Connection) (Adapter, error)
}
