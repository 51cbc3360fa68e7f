package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/marketplace"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/tx"
	"golang.org/x/sync/errgroup"
)

// FanOutResult итог распространения одного изменения
type FanOutResult struct {
	Marketplaces models.SyncReport            `json:"marketplaces"`
	Group        map[string]models.SyncReport `json:"group,omitempty"`
}

// Syncer отправляет локальные изменения на площадки и выравнивает группу.
// Вызывающий держит блокировку ключа группы товара.
type Syncer struct {
	store     CatalogStore
	txManager tx.TxManager
	adapters  marketplace.Factory
	events    *EventPublisher
	logger    interfaces.LoggerPort
	now       func() time.Time
}

func NewSyncer(store CatalogStore, txManager tx.TxManager, adapters marketplace.Factory, events *EventPublisher, logger interfaces.LoggerPort) *Syncer {
	if txManager == nil {
		txManager = tx.NewNopTxManager()
	}
	return &Syncer{
		store:     store,
		txManager: txManager,
		adapters:  adapters,
		events:    events,
		logger:    logger.WithField("component", "syncer"),
		now:       time.Now,
	}
}

// FanOut публикует события, отправляет изменившиеся поля на площадки товара (кроме exclude)
// и выравнивает остаток и себестоимость группы. Товар уже сохранен.
// Ошибка возвращается только при сбое локальной записи участников группы.
func (s *Syncer) FanOut(ctx context.Context, product *models.Product, d Delta, exclude ...models.Marketplace) (*FanOutResult, error) {
	result := &FanOutResult{Marketplaces: models.SyncReport{}}

	s.events.ProductChanged(ctx, product, d)

	if d.Pushable() {
		result.Marketplaces = s.Push(ctx, product, d, exclude...)
	}

	if d.GroupShared() && product.GroupID != "" {
		group, err := s.PropagateGroup(ctx, product, d)
		if err != nil {
			return result, err
		}
		result.Group = group
	}

	return result, nil
}

// Push отправляет остаток и цену на все площадки, где у товара есть внешний ID.
// Сбой одной площадки не мешает остальным и попадает в отчет строкой "error: ...".
func (s *Syncer) Push(ctx context.Context, product *models.Product, d Delta, exclude ...models.Marketplace) models.SyncReport {
	report := models.SyncReport{}
	if !d.Pushable() {
		return report
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, m := range product.ExternalIDs.Linked() {
		if containsMarketplace(exclude, m) {
			continue
		}
		m := m
		externalID := product.ExternalIDs.Get(m)

		g.Go(func() error {
			outcome := s.pushOne(gctx, m, externalID, product, d)

			mu.Lock()
			report[m] = outcome
			mu.Unlock()

			pushesTotal.WithLabelValues(string(m), outcomeLabel(string(outcome))).Inc()
			return nil
		})
	}

	// горутины ошибок не возвращают
	_ = g.Wait()

	return report
}

func (s *Syncer) pushOne(ctx context.Context, m models.Marketplace, externalID string, product *models.Product, d Delta) models.SyncOutcome {
	conn, err := s.store.GetConnection(ctx, m)
	if err != nil {
		return models.ErrorOutcome(fmt.Errorf("load connection: %w", err))
	}
	if !conn.Usable(s.now()) {
		return models.SkippedOutcome("not connected")
	}

	adapter, err := s.adapters.Adapter(conn)
	if err != nil {
		return models.ErrorOutcome(err)
	}

	var errs []error
	if d.Stock {
		if err := adapter.UpdateStock(ctx, externalID, product.Stock); err != nil {
			errs = append(errs, err)
		}
	}
	if d.PriceChanged() {
		if err := adapter.UpdatePrice(ctx, externalID, product.Price, product.SalePrice); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.WarnWithContext(ctx, "ошибка отправки изменений на площадку",
			interfaces.LogField{Key: "marketplace", Value: m},
			interfaces.LogField{Key: "sku", Value: product.SKU},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		if marketplace.IsAuth(err) {
			demoteConnection(ctx, s.store, m, s.logger)
		}
		return models.ErrorOutcome(err)
	}

	return models.OutcomeSynced
}

// PropagateGroup копирует участникам группы поля trigger, отмеченные в d: остаток и
// себестоимость. Пустая себестоимость не затирает заданную. Новый остаток отправляется
// на площадки участников. Распространение одноуровневое: участники группы дальше
// ничего не запускают.
func (s *Syncer) PropagateGroup(ctx context.Context, trigger *models.Product, d Delta) (map[string]models.SyncReport, error) {
	if trigger.GroupID == "" {
		return nil, nil
	}
	shareCost := d.CostPrice && trigger.CostPrice != nil
	if !d.Stock && !shareCost {
		return nil, nil
	}

	members, err := s.store.ListGroup(ctx, trigger.GroupID)
	if err != nil {
		return nil, fmt.Errorf("list group %s: %w", trigger.GroupID, err)
	}

	type change struct {
		product *models.Product
		delta   Delta
	}
	var changed []change

	err = s.txManager.Do(ctx, func(txCtx context.Context) error {
		now := s.now().UTC()
		for _, member := range members {
			if member.ID == trigger.ID {
				continue
			}

			md := Delta{
				Stock:     d.Stock && member.Stock != trigger.Stock,
				CostPrice: shareCost && !models.DecimalPtrEqual(member.CostPrice, trigger.CostPrice),
			}
			if !md.GroupShared() {
				continue
			}

			updated := member.Clone()
			if md.Stock {
				updated.Stock = trigger.Stock
			}
			if md.CostPrice {
				updated.CostPrice = trigger.Clone().CostPrice
			}
			updated.UpdatedAt = now

			if err := s.store.SaveProduct(txCtx, updated); err != nil {
				return fmt.Errorf("save group member %s: %w", member.SKU, err)
			}
			changed = append(changed, change{product: updated, delta: md})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reports := make(map[string]models.SyncReport, len(changed))
	for _, c := range changed {
		s.events.ProductChanged(ctx, c.product, c.delta)
		if c.delta.Stock {
			reports[c.product.SKU] = s.Push(ctx, c.product, Delta{Stock: true})
		}
	}

	s.logger.DebugWithContext(ctx, "группа выровнена",
		interfaces.LogField{Key: "group_id", Value: trigger.GroupID},
		interfaces.LogField{Key: "changed", Value: len(changed)},
	)

	return reports, nil
}

func containsMarketplace(list []models.Marketplace, m models.Marketplace) bool {
	for _, item := range list {
		if item == m {
			return true
		}
	}
	return false
}
