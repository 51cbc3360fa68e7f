package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/marketplace"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

// MergeOutcome итог слияния одного объявления
type MergeOutcome string

const (
	MergeImported MergeOutcome = "imported"
	MergeUpdated  MergeOutcome = "updated"
	MergeSkipped  MergeOutcome = "skipped"
)

// MergeResult результат слияния объявления с каталогом
type MergeResult struct {
	Outcome MergeOutcome
	Product *models.Product
	Delta   Delta
	FanOut  *FanOutResult
}

// ImportConfig параметры постраничного импорта
type ImportConfig struct {
	PageSize int
	MaxPages int
}

// lockAttempts сколько раз перечитывать товар, если его группа сменилась до захвата блокировки
const lockAttempts = 3

var errLockKeyChanged = errors.New("product group changed while acquiring lock")

// Resolver сливает объявления площадок с каноническим каталогом
type Resolver struct {
	store    CatalogStore
	adapters marketplace.Factory
	locker   GroupLocker
	syncer   *Syncer
	cfg      ImportConfig
	logger   interfaces.LoggerPort
	now      func() time.Time
}

func NewResolver(store CatalogStore, adapters marketplace.Factory, locker GroupLocker, syncer *Syncer, cfg ImportConfig, logger interfaces.LoggerPort) *Resolver {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	return &Resolver{
		store:    store,
		adapters: adapters,
		locker:   locker,
		syncer:   syncer,
		cfg:      cfg,
		logger:   logger.WithField("component", "resolver"),
		now:      time.Now,
	}
}

// Import забирает объявления площадки постранично и сливает каждую страницу с каталогом
func (r *Resolver) Import(ctx context.Context, m models.Marketplace) (*models.ImportResult, error) {
	conn, err := r.store.GetConnection(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}
	if !conn.Usable(r.now()) {
		return nil, ErrNotConnected
	}

	adapter, err := r.adapters.Adapter(conn)
	if err != nil {
		return nil, err
	}

	result := &models.ImportResult{}
	for page := 0; page < r.cfg.MaxPages; page++ {
		items, err := adapter.ListProducts(ctx, r.cfg.PageSize, page*r.cfg.PageSize)
		if err != nil {
			if marketplace.IsAuth(err) {
				demoteConnection(ctx, r.store, m, r.logger)
			}
			if page == 0 {
				return nil, fmt.Errorf("list %s products: %w", m, err)
			}
			// уже слитые страницы остаются в каталоге
			result.Errors = append(result.Errors, fmt.Sprintf("page %d: %v", page, err))
			break
		}

		r.mergeInto(ctx, m, items, result)

		if len(items) < r.cfg.PageSize {
			break
		}
	}

	r.logger.InfoWithContext(ctx, "импорт завершен",
		interfaces.LogField{Key: "marketplace", Value: m},
		interfaces.LogField{Key: "imported", Value: result.Imported},
		interfaces.LogField{Key: "updated", Value: result.Updated},
		interfaces.LogField{Key: "skipped", Value: result.Skipped},
		interfaces.LogField{Key: "failed", Value: result.Failed},
	)

	return result, nil
}

// MergeBatch сливает объявления по одному, в порядке поступления.
// Сбой одного объявления не отменяет уже слитые.
func (r *Resolver) MergeBatch(ctx context.Context, m models.Marketplace, items []models.RemoteProduct) *models.ImportResult {
	result := &models.ImportResult{}
	r.mergeInto(ctx, m, items, result)
	return result
}

func (r *Resolver) mergeInto(ctx context.Context, m models.Marketplace, items []models.RemoteProduct, result *models.ImportResult) {
	for _, item := range items {
		result.Total++

		res, err := r.Merge(ctx, m, item)
		if err != nil && res != nil && res.Outcome == MergeUpdated {
			// товар сохранен, не удалось выровнять группу
			result.Updated++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: group: %v", remoteSKU(item), err))
			importItemsTotal.WithLabelValues(string(m), string(MergeUpdated)).Inc()
			r.logger.WarnWithContext(ctx, "ошибка выравнивания группы после слияния",
				interfaces.LogField{Key: "marketplace", Value: m},
				interfaces.LogField{Key: "sku", Value: remoteSKU(item)},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			continue
		}
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", remoteSKU(item), err))
			importItemsTotal.WithLabelValues(string(m), "failed").Inc()
			r.logger.WarnWithContext(ctx, "ошибка слияния объявления",
				interfaces.LogField{Key: "marketplace", Value: m},
				interfaces.LogField{Key: "sku", Value: remoteSKU(item)},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			continue
		}

		switch res.Outcome {
		case MergeImported:
			result.Imported++
		case MergeUpdated:
			result.Updated++
		case MergeSkipped:
			result.Skipped++
		}
		importItemsTotal.WithLabelValues(string(m), string(res.Outcome)).Inc()
	}
}

// Merge сливает одно объявление площадки m с каталогом под блокировкой группы товара
// и распространяет изменившиеся остаток и цену на группу и остальные площадки.
func (r *Resolver) Merge(ctx context.Context, m models.Marketplace, remote models.RemoteProduct) (*MergeResult, error) {
	var result *MergeResult
	err := r.withProductLock(ctx,
		func(ctx context.Context) (*models.Product, error) { return r.lookup(ctx, m, remote) },
		remoteSKU(remote),
		func(ctx context.Context, current *models.Product) error {
			var err error
			result, err = r.mergeLocked(ctx, m, remote, current)
			return err
		},
	)
	return result, err
}

// withProductLock находит товар, берет блокировку его группы и перечитывает товар под ней.
// Если за это время товар сменил группу, попытка повторяется.
func (r *Resolver) withProductLock(
	ctx context.Context,
	find func(ctx context.Context) (*models.Product, error),
	fallbackSKU string,
	fn func(ctx context.Context, current *models.Product) error,
) error {
	keyOf := func(p *models.Product) string {
		if p != nil {
			return p.LockKey()
		}
		return models.LockKeyFor("", fallbackSKU)
	}

	for attempt := 0; attempt < lockAttempts; attempt++ {
		existing, err := find(ctx)
		if err != nil {
			return err
		}
		key := keyOf(existing)

		unlock, err := r.locker.Lock(ctx, key)
		if err != nil {
			return err
		}

		current, err := find(ctx)
		if err != nil {
			unlock()
			return err
		}
		if keyOf(current) != key {
			unlock()
			continue
		}

		err = fn(ctx, current)
		unlock()
		return err
	}
	return errLockKeyChanged
}

func (r *Resolver) lookup(ctx context.Context, m models.Marketplace, remote models.RemoteProduct) (*models.Product, error) {
	if remote.ExternalID != "" {
		p, err := r.store.GetProductByExternalID(ctx, m, remote.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("find by external id: %w", err)
		}
		if p != nil {
			return p, nil
		}
	}

	sku := remoteSKU(remote)
	if sku == "" {
		return nil, nil
	}
	p, err := r.store.GetProductBySKU(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("find by sku: %w", err)
	}
	return p, nil
}

func (r *Resolver) mergeLocked(ctx context.Context, m models.Marketplace, remote models.RemoteProduct, current *models.Product) (*MergeResult, error) {
	now := r.now().UTC()

	if current == nil {
		if remoteSKU(remote) == "" {
			return nil, fmt.Errorf("%w: remote item has neither sku nor external id", ErrInvalidProduct)
		}
		product := models.NewProductFromRemote(m, remote, now)
		product.CreatedAt = now
		product.UpdatedAt = now
		if err := r.store.SaveProduct(ctx, product); err != nil {
			return nil, fmt.Errorf("create product: %w", err)
		}
		return &MergeResult{Outcome: MergeImported, Product: product}, nil
	}

	// товар с таким SKU уже привязан к другой площадке: не перехватываем его молча
	if current.ExternalIDs.OwnedElsewhere(m) {
		r.logger.InfoWithContext(ctx, "объявление пропущено: SKU принадлежит другой площадке",
			interfaces.LogField{Key: "marketplace", Value: m},
			interfaces.LogField{Key: "sku", Value: current.SKU},
		)
		return &MergeResult{Outcome: MergeSkipped, Product: current}, nil
	}

	updated := current.Clone()
	updated.Title = remote.Title
	updated.Description = remote.Description
	updated.Price = remote.Price
	updated.SalePrice = remote.SalePrice
	updated.Stock = max(remote.Stock, 0)
	updated.Images = append([]string{}, remote.Images...)
	if remote.ExternalID != "" {
		updated.ExternalIDs.Set(m, remote.ExternalID)
	}
	updated.LastSyncedAt = &now
	updated.UpdatedAt = now

	if err := r.store.SaveProduct(ctx, updated); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	d := DetectDelta(current, updated)
	res := &MergeResult{Outcome: MergeUpdated, Product: updated, Delta: d}

	fanOut, err := r.syncer.FanOut(ctx, updated, d, m)
	res.FanOut = fanOut
	if err != nil {
		return res, err
	}
	return res, nil
}

func remoteSKU(r models.RemoteProduct) string {
	if r.SKU != "" {
		return r.SKU
	}
	return r.ExternalID
}
