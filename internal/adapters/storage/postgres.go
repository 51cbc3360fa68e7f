package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/tx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// ErrNotFound обновляемой записи нет в хранилище
var ErrNotFound = errors.New("record not found")

const productColumns = `
	id, sku, title, description, price, sale_price, cost_price, stock, group_id, images,
	category, brand, condition, weight, dimensions, listing_type, source_marketplace, status,
	woocommerce_id, mercadolibre_id, amazon_id, created_at, updated_at, last_synced_at`

const connectionColumns = `
	id, marketplace, api_url, api_key, api_secret, access_token, refresh_token, user_id,
	is_connected, token_expires_at, created_at, updated_at`

// externalIDColumns колонки внешних идентификаторов по площадкам
var externalIDColumns = map[models.Marketplace]string{
	models.MarketplaceWooCommerce:  "woocommerce_id",
	models.MarketplaceMercadoLibre: "mercadolibre_id",
	models.MarketplaceAmazon:       "amazon_id",
}

// PostgresStorage хранилище каталога в PostgreSQL
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage создает хранилище и накатывает схему
func NewPostgresStorage(ctx context.Context, pool *pgxpool.Pool) (*PostgresStorage, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

// TxManager возвращает менеджер транзакций поверх пула хранилища
func (r *PostgresStorage) TxManager() tx.TxManager {
	return tx.NewTxManager(r.pool)
}

// Ping проверяет доступность базы
func (r *PostgresStorage) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает соединение с БД
func (r *PostgresStorage) Close() error {
	r.pool.Close()
	return nil
}

type executor interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// getExecutor возвращает транзакцию из контекста или пул
func (r *PostgresStorage) getExecutor(ctx context.Context) executor {
	if t, ok := tx.GetTxFromContext(ctx); ok {
		return t
	}
	return r.pool
}

func (r *PostgresStorage) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return r.queryProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (r *PostgresStorage) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	return r.queryProduct(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
}

func (r *PostgresStorage) GetProductByExternalID(ctx context.Context, m models.Marketplace, externalID string) (*models.Product, error) {
	column, ok := externalIDColumns[m]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownMarketplace, m)
	}
	if externalID == "" {
		return nil, nil
	}
	return r.queryProduct(ctx, `SELECT `+productColumns+` FROM products WHERE `+column+` = $1`, externalID)
}

func (r *PostgresStorage) queryProduct(ctx context.Context, query string, args ...interface{}) (*models.Product, error) {
	product, err := scanProduct(r.getExecutor(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

func (r *PostgresStorage) ListProducts(ctx context.Context) ([]*models.Product, error) {
	return r.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY updated_at DESC, id DESC`)
}

func (r *PostgresStorage) ListProductsPage(ctx context.Context, offset, limit int) ([]*models.Product, int, error) {
	var total int
	if err := r.getExecutor(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}
	if total == 0 {
		return []*models.Product{}, 0, nil
	}

	products, err := r.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY updated_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *PostgresStorage) ListGroup(ctx context.Context, groupID string) ([]*models.Product, error) {
	return r.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE group_id = $1 ORDER BY id`, groupID)
}

func (r *PostgresStorage) queryProducts(ctx context.Context, query string, args ...interface{}) ([]*models.Product, error) {
	rows, err := r.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product rows: %w", err)
	}
	return products, nil
}

// SaveProduct сохраняет товар; новому товару присваивается ID
func (r *PostgresStorage) SaveProduct(ctx context.Context, p *models.Product) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	images := p.Images
	if images == nil {
		images = []string{}
	}
	fields := []interface{}{
		p.SKU, p.Title, p.Description, p.Price, p.SalePrice, p.CostPrice, p.Stock, nullString(p.GroupID), images,
		p.Category, p.Brand, string(p.Condition), p.Weight, p.Dimensions, p.ListingType, string(p.SourceMarketplace), string(p.Status),
		nullString(p.WooCommerceID), nullString(p.MercadoLibreID), nullString(p.AmazonID), p.UpdatedAt, p.LastSyncedAt,
	}

	var err error
	if p.ID == 0 {
		query := `
			INSERT INTO products (sku, title, description, price, sale_price, cost_price, stock, group_id, images,
				category, brand, condition, weight, dimensions, listing_type, source_marketplace, status,
				woocommerce_id, mercadolibre_id, amazon_id, updated_at, last_synced_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
			RETURNING id`
		err = r.getExecutor(ctx).QueryRow(ctx, query, append(fields, p.CreatedAt)...).Scan(&p.ID)
	} else {
		query := `
			UPDATE products SET
				sku = $1, title = $2, description = $3, price = $4, sale_price = $5, cost_price = $6, stock = $7,
				group_id = $8, images = $9, category = $10, brand = $11, condition = $12, weight = $13,
				dimensions = $14, listing_type = $15, source_marketplace = $16, status = $17,
				woocommerce_id = $18, mercadolibre_id = $19, amazon_id = $20, updated_at = $21, last_synced_at = $22
			WHERE id = $23`
		var tag pgconn.CommandTag
		tag, err = r.getExecutor(ctx).Exec(ctx, query, append(fields, p.ID)...)
		if err == nil && tag.RowsAffected() == 0 {
			return fmt.Errorf("failed to save product %d: %w", p.ID, ErrNotFound)
		}
	}

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", models.ErrDuplicateSKU, pgErr.ConstraintName)
		}
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (r *PostgresStorage) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := r.getExecutor(ctx).Exec(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

func (r *PostgresStorage) GetConnection(ctx context.Context, m models.Marketplace) (*models.Connection, error) {
	conn, err := scanConnection(r.getExecutor(ctx).QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE marketplace = $1`, string(m)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (r *PostgresStorage) ListConnections(ctx context.Context) ([]*models.Connection, error) {
	rows, err := r.getExecutor(ctx).Query(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY marketplace`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	conns := make([]*models.Connection, 0)
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connection rows: %w", err)
	}
	return conns, nil
}

// SaveConnection создает или заменяет подключение площадки
func (r *PostgresStorage) SaveConnection(ctx context.Context, c *models.Connection) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO connections (marketplace, api_url, api_key, api_secret, access_token, refresh_token, user_id,
			is_connected, token_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (marketplace)
		DO UPDATE SET
			api_url = $2, api_key = $3, api_secret = $4, access_token = $5, refresh_token = $6, user_id = $7,
			is_connected = $8, token_expires_at = $9, updated_at = $11
		RETURNING id, created_at`

	cr := c.Credentials
	err := r.getExecutor(ctx).QueryRow(ctx, query,
		string(c.Marketplace), cr.APIURL, cr.APIKey, cr.APISecret, cr.AccessToken, cr.RefreshToken, cr.UserID,
		c.IsConnected, c.TokenExpiresAt, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

func (r *PostgresStorage) DeleteConnection(ctx context.Context, m models.Marketplace) error {
	if _, err := r.getExecutor(ctx).Exec(ctx, `DELETE FROM connections WHERE marketplace = $1`, string(m)); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var (
		p                              models.Product
		salePrice, costPrice, weight   decimal.NullDecimal
		groupID, wooID, mlID, amazonID *string
		condition, source, status      string
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Title, &p.Description, &p.Price, &salePrice, &costPrice, &p.Stock, &groupID, &p.Images,
		&p.Category, &p.Brand, &condition, &weight, &p.Dimensions, &p.ListingType, &source, &status,
		&wooID, &mlID, &amazonID, &p.CreatedAt, &p.UpdatedAt, &p.LastSyncedAt,
	)
	if err != nil {
		return nil, err
	}

	p.SalePrice = fromNullDecimal(salePrice)
	p.CostPrice = fromNullDecimal(costPrice)
	p.Weight = fromNullDecimal(weight)
	p.GroupID = derefString(groupID)
	p.Condition = models.Condition(condition)
	p.SourceMarketplace = models.Marketplace(source)
	p.Status = models.ProductStatus(status)
	p.WooCommerceID = derefString(wooID)
	p.MercadoLibreID = derefString(mlID)
	p.AmazonID = derefString(amazonID)
	if p.Images == nil {
		p.Images = []string{}
	}
	return &p, nil
}

func scanConnection(row pgx.Row) (*models.Connection, error) {
	var (
		c           models.Connection
		marketplace string
	)
	cr := &c.Credentials
	err := row.Scan(
		&c.ID, &marketplace, &cr.APIURL, &cr.APIKey, &cr.APISecret, &cr.AccessToken, &cr.RefreshToken, &cr.UserID,
		&c.IsConnected, &c.TokenExpiresAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Marketplace = models.Marketplace(marketplace)
	return &c, nil
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
