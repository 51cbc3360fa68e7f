package services

import (
	"context"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
)

// ProductRepository хранилище канонических товаров.
// Методы поиска возвращают nil, nil, если запись не найдена.
type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	GetProductByExternalID(ctx context.Context, m models.Marketplace, externalID string) (*models.Product, error)

	// ListProducts возвращает весь каталог, новые изменения первыми
	ListProducts(ctx context.Context) ([]*models.Product, error)
	ListProductsPage(ctx context.Context, offset, limit int) ([]*models.Product, int, error)

	// ListGroup возвращает участников группы в порядке id
	ListGroup(ctx context.Context, groupID string) ([]*models.Product, error)

	// SaveProduct вставляет товар с нулевым ID и обновляет существующий
	SaveProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
}

// ConnectionRepository хранилище подключений, одна запись на площадку
type ConnectionRepository interface {
	GetConnection(ctx context.Context, m models.Marketplace) (*models.Connection, error)
	ListConnections(ctx context.Context) ([]*models.Connection, error)
	SaveConnection(ctx context.Context, conn *models.Connection) error
	DeleteConnection(ctx context.Context, m models.Marketplace) error
}

// CatalogStore хранилище каталога
type CatalogStore interface {
	ProductRepository
	ConnectionRepository
}
