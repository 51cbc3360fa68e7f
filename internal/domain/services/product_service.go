package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/marketplace"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/tx"
	"github.com/shopspring/decimal"
)

// ProductPatch частичное изменение товара; nil означает "не менять"
type ProductPatch struct {
	Title       *string            `json:"title,omitempty"`
	Description *string            `json:"description,omitempty"`
	Price       *decimal.Decimal   `json:"price,omitempty"`
	SalePrice   *decimal.Decimal   `json:"salePrice,omitempty"`
	CostPrice   *decimal.Decimal   `json:"costPrice,omitempty"`
	Stock       *int               `json:"stock,omitempty"`
	GroupID     *string            `json:"groupId,omitempty"`
	Images      *[]string          `json:"images,omitempty"`
	Category    *string            `json:"category,omitempty"`
	Brand       *string            `json:"brand,omitempty"`
	Condition   *models.Condition  `json:"condition,omitempty"`
	Weight      *decimal.Decimal   `json:"weight,omitempty"`
	Dimensions  *models.Dimensions `json:"dimensions,omitempty"`
	ListingType *string            `json:"listingType,omitempty"`
}

// UpdateResult товар после изменения и итоги отправки
type UpdateResult struct {
	Product      *models.Product              `json:"product"`
	Marketplaces models.SyncReport            `json:"syncResults"`
	Group        map[string]models.SyncReport `json:"groupSyncResults,omitempty"`
}

// GroupStockResult итог установки остатка группы
type GroupStockResult struct {
	GroupID  string                       `json:"groupId"`
	Stock    int                          `json:"stock"`
	Products []*models.Product            `json:"products"`
	Sync     map[string]models.SyncReport `json:"syncResults"`
}

// ProductService прямые изменения каталога оператором
type ProductService struct {
	store     CatalogStore
	txManager tx.TxManager
	adapters  marketplace.Factory
	locker    GroupLocker
	syncer    *Syncer
	resolver  *Resolver
	logger    interfaces.LoggerPort
	now       func() time.Time
}

// NewProductService создает новый экземпляр ProductService
func NewProductService(
	store CatalogStore,
	txManager tx.TxManager,
	adapters marketplace.Factory,
	locker GroupLocker,
	syncer *Syncer,
	resolver *Resolver,
	logger interfaces.LoggerPort,
) *ProductService {
	if txManager == nil {
		txManager = tx.NewNopTxManager()
	}
	return &ProductService{
		store:     store,
		txManager: txManager,
		adapters:  adapters,
		locker:    locker,
		syncer:    syncer,
		resolver:  resolver,
		logger:    logger.WithField("component", "product_service"),
		now:       time.Now,
	}
}

// ListProducts возвращает страницу каталога, последние изменения первыми
func (s *ProductService) ListProducts(ctx context.Context, offset, limit int) ([]*models.Product, int, error) {
	products, total, err := s.store.ListProductsPage(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// Groups собирает представление каталога по группам
func (s *ProductService) Groups(ctx context.Context) (models.GroupsOverview, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return models.GroupsOverview{}, fmt.Errorf("failed to list products: %w", err)
	}
	return models.BuildGroupsOverview(products), nil
}

func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// CreateProduct создает товар. Новый участник существующей группы получает ее остаток,
// а при незаданной себестоимости и себестоимость группы.
func (s *ProductService) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	product.SKU = strings.TrimSpace(product.SKU)
	if product.SKU == "" {
		return nil, fmt.Errorf("%w: sku is required", ErrInvalidProduct)
	}
	if product.Stock < 0 {
		return nil, ErrStockRequired
	}

	unlock, err := s.locker.Lock(ctx, product.LockKey())
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.store.GetProductBySKU(ctx, product.SKU)
	if err != nil {
		return nil, fmt.Errorf("failed to check sku: %w", err)
	}
	if existing != nil {
		return nil, models.ErrDuplicateSKU
	}

	if product.GroupID != "" {
		members, err := s.store.ListGroup(ctx, product.GroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to load group: %w", err)
		}
		if len(members) > 0 {
			product.Stock = members[0].Stock
			if product.CostPrice == nil {
				product.CostPrice = groupCost(members)
			}
		}
	}

	now := s.now().UTC()
	product.ID = 0
	product.CreatedAt = now
	product.UpdatedAt = now
	if product.Status == "" {
		product.Status = models.ProductStatusActive
	}
	if product.Condition == "" {
		product.Condition = models.ConditionNew
	}
	if product.Images == nil {
		product.Images = []string{}
	}

	if err := s.store.SaveProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to save product: %w", err)
	}

	// себестоимость нового участника могла отличаться от группы
	if product.GroupID != "" && product.CostPrice != nil {
		if _, err := s.syncer.PropagateGroup(ctx, product, Delta{CostPrice: true}); err != nil {
			return nil, err
		}
	}

	s.logger.InfoWithContext(ctx, "товар создан",
		interfaces.LogField{Key: "product_id", Value: product.ID},
		interfaces.LogField{Key: "sku", Value: product.SKU},
	)
	return product, nil
}

// UpdateProduct применяет изменение, сохраняет товар и распространяет изменившиеся
// цену, остаток и себестоимость на площадки и группу
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (*UpdateResult, error) {
	if patch.Stock != nil && *patch.Stock < 0 {
		return nil, ErrStockRequired
	}

	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	keys := []string{existing.LockKey()}
	if patch.GroupID != nil {
		keys = append(keys, models.LockKeyFor(strings.TrimSpace(*patch.GroupID), existing.SKU))
	}
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// перечитываем под блокировкой
	current, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.LockKey() != existing.LockKey() {
		return nil, fmt.Errorf("product %d changed group concurrently, retry", id)
	}

	updated := current.Clone()
	applyPatch(updated, patch)

	// при переходе в другую группу товар принимает ее остаток и себестоимость,
	// если они не заданы явно
	joined := updated.GroupID != "" && updated.GroupID != current.GroupID
	if joined {
		members, err := s.store.ListGroup(ctx, updated.GroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to load group: %w", err)
		}
		if len(members) > 0 && patch.Stock == nil {
			updated.Stock = members[0].Stock
		}
		if patch.CostPrice == nil {
			if cost := groupCost(members); cost != nil {
				updated.CostPrice = cost
			}
		}
	}

	d := DetectDelta(current, updated)
	if joined && updated.CostPrice != nil {
		// у группы без себестоимости ее задает новый участник
		d.CostPrice = true
	}
	updated.UpdatedAt = s.now().UTC()

	if err := s.store.SaveProduct(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	result := &UpdateResult{Product: updated, Marketplaces: models.SyncReport{}}
	if !d.Any() {
		return result, nil
	}

	fanOut, err := s.syncer.FanOut(ctx, updated, d)
	if err != nil {
		return nil, err
	}
	result.Marketplaces = fanOut.Marketplaces
	result.Group = fanOut.Group

	s.logger.InfoWithContext(ctx, "товар обновлен",
		interfaces.LogField{Key: "product_id", Value: id},
		interfaces.LogField{Key: "stock_changed", Value: d.Stock},
		interfaces.LogField{Key: "price_changed", Value: d.PriceChanged()},
	)
	return result, nil
}

// groupCost первая заданная себестоимость среди участников группы
func groupCost(members []*models.Product) *decimal.Decimal {
	for _, m := range members {
		if m.CostPrice != nil {
			v := *m.CostPrice
			return &v
		}
	}
	return nil
}

func applyPatch(p *models.Product, patch ProductPatch) {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.SalePrice != nil {
		v := *patch.SalePrice
		p.SalePrice = &v
	}
	if patch.CostPrice != nil {
		v := *patch.CostPrice
		p.CostPrice = &v
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.GroupID != nil {
		p.GroupID = strings.TrimSpace(*patch.GroupID)
	}
	if patch.Images != nil {
		p.Images = append([]string{}, (*patch.Images)...)
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Brand != nil {
		p.Brand = *patch.Brand
	}
	if patch.Condition != nil {
		p.Condition = *patch.Condition
	}
	if patch.Weight != nil {
		v := *patch.Weight
		p.Weight = &v
	}
	if patch.Dimensions != nil {
		v := *patch.Dimensions
		p.Dimensions = &v
	}
	if patch.ListingType != nil {
		p.ListingType = *patch.ListingType
	}
}

// SetGroupStock записывает остаток всем участникам группы одной транзакцией,
// затем отправляет его на площадки каждого изменившегося участника
func (s *ProductService) SetGroupStock(ctx context.Context, groupID string, stock int) (*GroupStockResult, error) {
	if stock < 0 {
		return nil, ErrStockRequired
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, ErrGroupNotFound
	}

	unlock, err := s.locker.Lock(ctx, models.LockKeyFor(groupID, ""))
	if err != nil {
		return nil, err
	}
	defer unlock()

	members, err := s.store.ListGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	if len(members) == 0 {
		return nil, ErrGroupNotFound
	}

	var changed []*models.Product
	err = s.txManager.Do(ctx, func(txCtx context.Context) error {
		now := s.now().UTC()
		for _, member := range members {
			if member.Stock == stock {
				continue
			}
			member.Stock = stock
			member.UpdatedAt = now
			if err := s.store.SaveProduct(txCtx, member); err != nil {
				return fmt.Errorf("failed to update %s: %w", member.SKU, err)
			}
			changed = append(changed, member)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &GroupStockResult{
		GroupID:  groupID,
		Stock:    stock,
		Products: members,
		Sync:     make(map[string]models.SyncReport, len(changed)),
	}
	for _, member := range changed {
		d := Delta{Stock: true}
		s.syncer.events.ProductChanged(ctx, member, d)
		result.Sync[member.SKU] = s.syncer.Push(ctx, member, d)
	}

	s.logger.InfoWithContext(ctx, "остаток группы обновлен",
		interfaces.LogField{Key: "group_id", Value: groupID},
		interfaces.LogField{Key: "stock", Value: stock},
		interfaces.LogField{Key: "changed", Value: len(changed)},
	)
	return result, nil
}

// DeleteProduct удаляет товар только из каталога; объявления на площадках остаются
func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, existing.LockKey())
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.logger.InfoWithContext(ctx, "товар удален",
		interfaces.LogField{Key: "product_id", Value: id},
		interfaces.LogField{Key: "sku", Value: existing.SKU},
	)
	return nil
}

// SyncToMarketplace публикует товар на площадке или обновляет существующее объявление.
// Ошибки публикации возвращаются вызывающему.
func (s *ProductService) SyncToMarketplace(ctx context.Context, id int64, m models.Marketplace) (*models.Product, error) {
	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, existing.LockKey())
	if err != nil {
		return nil, err
	}
	defer unlock()

	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	adapter, err := s.usableAdapter(ctx, m)
	if err != nil {
		return nil, err
	}

	remote := product.ToRemote(m)
	if externalID := product.ExternalIDs.Get(m); externalID != "" {
		if _, err := adapter.UpdateProduct(ctx, externalID, remote); err != nil {
			s.handleAdapterError(ctx, m, err)
			return nil, fmt.Errorf("failed to update listing: %w", err)
		}
	} else {
		created, err := adapter.CreateProduct(ctx, remote)
		if err != nil {
			s.handleAdapterError(ctx, m, err)
			return nil, fmt.Errorf("failed to create listing: %w", err)
		}
		product.ExternalIDs.Set(m, created.ExternalID)
	}

	now := s.now().UTC()
	product.LastSyncedAt = &now
	product.UpdatedAt = now
	if err := s.store.SaveProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to save product: %w", err)
	}

	s.logger.InfoWithContext(ctx, "товар синхронизирован с площадкой",
		interfaces.LogField{Key: "product_id", Value: id},
		interfaces.LogField{Key: "marketplace", Value: m},
		interfaces.LogField{Key: "external_id", Value: product.ExternalIDs.Get(m)},
	)
	return product, nil
}

// SetStatus приостанавливает или активирует товар в каталоге и на всех его площадках
func (s *ProductService) SetStatus(ctx context.Context, id int64, status models.ProductStatus) (*UpdateResult, error) {
	if status != models.ProductStatusActive && status != models.ProductStatusPaused {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidProduct, status)
	}

	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, existing.LockKey())
	if err != nil {
		return nil, err
	}
	defer unlock()

	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Status = status
	product.UpdatedAt = s.now().UTC()
	if err := s.store.SaveProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	report := models.SyncReport{}
	for _, m := range product.ExternalIDs.Linked() {
		adapter, err := s.usableAdapter(ctx, m)
		if err != nil {
			if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnectionNotFound) {
				report[m] = models.SkippedOutcome("not connected")
			} else {
				report[m] = models.ErrorOutcome(err)
			}
			continue
		}

		externalID := product.ExternalIDs.Get(m)
		if status == models.ProductStatusPaused {
			err = adapter.Pause(ctx, externalID)
		} else {
			err = adapter.Activate(ctx, externalID)
		}
		if err != nil {
			s.handleAdapterError(ctx, m, err)
			report[m] = models.ErrorOutcome(err)
			continue
		}
		report[m] = models.OutcomeSynced
	}

	return &UpdateResult{Product: product, Marketplaces: report}, nil
}

// Import запускает ручной импорт площадки
func (s *ProductService) Import(ctx context.Context, m models.Marketplace) (*models.ImportResult, error) {
	return s.resolver.Import(ctx, m)
}

func (s *ProductService) usableAdapter(ctx context.Context, m models.Marketplace) (marketplace.Adapter, error) {
	conn, err := s.store.GetConnection(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}
	if !conn.Usable(s.now()) {
		return nil, ErrNotConnected
	}
	return s.adapters.Adapter(conn)
}

func (s *ProductService) handleAdapterError(ctx context.Context, m models.Marketplace, err error) {
	if marketplace.IsAuth(err) {
		demoteConnection(ctx, s.store, m, s.logger)
	}
}
