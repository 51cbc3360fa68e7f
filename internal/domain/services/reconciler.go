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
	"github.com/google/uuid"
)

type topicKind int

const (
	topicIgnored topicKind = iota
	topicItem
	topicOrder
)

// Reconciler принимает уведомления площадок и сливает их с каталогом в фоне
type Reconciler struct {
	store    CatalogStore
	adapters marketplace.Factory
	resolver *Resolver
	syncer   *Syncer
	queue    WebhookQueue
	logs     WebhookJournal
	logger   interfaces.LoggerPort
	now      func() time.Time
}

func NewReconciler(
	store CatalogStore,
	adapters marketplace.Factory,
	resolver *Resolver,
	syncer *Syncer,
	queue WebhookQueue,
	logs WebhookJournal,
	logger interfaces.LoggerPort,
) *Reconciler {
	if logs == nil {
		logs = NewWebhookLogBuffer(100)
	}
	return &Reconciler{
		store:    store,
		adapters: adapters,
		resolver: resolver,
		syncer:   syncer,
		queue:    queue,
		logs:     logs,
		logger:   logger.WithField("component", "reconciler"),
		now:      time.Now,
	}
}

// Accept ставит уведомление в очередь. nil означает, что площадке можно ответить 200.
func (r *Reconciler) Accept(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = r.now().UTC()
	}

	// запись о приеме делается до постановки в очередь, иначе она может затереть итог обработки
	entry := models.WebhookLog{
		ID:         n.ID,
		Timestamp:  n.ReceivedAt,
		Source:     n.Source,
		Topic:      n.Topic,
		ResourceID: n.Resource,
		Status:     models.WebhookReceived,
	}
	r.record(ctx, entry)

	if err := r.queue.Enqueue(ctx, n); err != nil {
		entry.Status = models.WebhookRejected
		entry.Error = err.Error()
		r.record(ctx, entry)
		webhooksTotal.WithLabelValues(string(n.Source), "rejected").Inc()
		r.logger.ErrorWithContext(ctx, "не удалось поставить уведомление в очередь",
			interfaces.LogField{Key: "source", Value: n.Source},
			interfaces.LogField{Key: "topic", Value: n.Topic},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return err
	}

	webhooksTotal.WithLabelValues(string(n.Source), "accepted").Inc()
	return nil
}

// Logs возвращает последние записи об обработке, новые первыми
func (r *Reconciler) Logs(ctx context.Context, limit int) ([]models.WebhookLog, error) {
	return r.logs.Recent(ctx, limit)
}

// record пишет в журнал; сбой журнала не влияет на обработку уведомления
func (r *Reconciler) record(ctx context.Context, entry models.WebhookLog) {
	if err := r.logs.Add(ctx, entry); err != nil {
		r.logger.WarnWithContext(ctx, "не удалось записать уведомление в журнал",
			interfaces.LogField{Key: "id", Value: entry.ID},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}

// Process обрабатывает уведомление из очереди и записывает итог в журнал
func (r *Reconciler) Process(ctx context.Context, n *models.Notification) error {
	entry := models.WebhookLog{
		ID:         n.ID,
		Timestamp:  r.now().UTC(),
		Source:     n.Source,
		Topic:      n.Topic,
		ResourceID: n.Resource,
	}

	kind, resourceID := classifyTopic(n)

	var err error
	switch kind {
	case topicItem:
		err = r.handleItem(ctx, n.Source, resourceID)
	case topicOrder:
		err = r.handleOrder(ctx, n.Source, resourceID)
	default:
		r.logger.InfoWithContext(ctx, "тема уведомления не обрабатывается",
			interfaces.LogField{Key: "source", Value: n.Source},
			interfaces.LogField{Key: "topic", Value: n.Topic},
		)
		webhooksTotal.WithLabelValues(string(n.Source), "ignored").Inc()
		entry.Status = models.WebhookIgnored
		r.record(ctx, entry)
		return nil
	}

	if err != nil {
		entry.Status = models.WebhookFailed
		entry.Error = err.Error()
		webhooksTotal.WithLabelValues(string(n.Source), "failed").Inc()
		r.logger.ErrorWithContext(ctx, "ошибка обработки уведомления",
			interfaces.LogField{Key: "source", Value: n.Source},
			interfaces.LogField{Key: "topic", Value: n.Topic},
			interfaces.LogField{Key: "resource", Value: n.Resource},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	} else {
		entry.Status = models.WebhookProcessed
		entry.Processed = true
		webhooksTotal.WithLabelValues(string(n.Source), "processed").Inc()
	}

	r.record(ctx, entry)
	return err
}

// classifyTopic определяет тип уведомления и идентификатор ресурса
func classifyTopic(n *models.Notification) (topicKind, string) {
	switch n.Source {
	case models.MarketplaceMercadoLibre:
		switch n.Topic {
		case "items":
			return topicItem, segmentAfter(n.Resource, "items")
		case "orders_v2", "orders":
			return topicOrder, segmentAfter(n.Resource, "orders")
		case "stock-locations", "stock":
			// изменение склада сводится к перечитыванию объявления, если ресурс на него указывает
			if strings.Contains(n.Resource, "/items/") {
				return topicItem, segmentAfter(n.Resource, "items")
			}
		}
	case models.MarketplaceWooCommerce:
		switch n.Topic {
		case "product.created", "product.updated":
			return topicItem, n.Resource
		case "order.created":
			return topicOrder, n.Resource
		}
	}
	return topicIgnored, ""
}

// segmentAfter возвращает сегмент пути после name: "/items/MLB1" -> "MLB1".
// Ресурс без "/" считается самим идентификатором.
func segmentAfter(resource, name string) string {
	if !strings.Contains(resource, "/") {
		return resource
	}
	parts := strings.Split(strings.Trim(resource, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == name {
			return parts[i+1]
		}
	}
	return ""
}

func (r *Reconciler) adapterFor(ctx context.Context, m models.Marketplace) (marketplace.Adapter, error) {
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
	return r.adapters.Adapter(conn)
}

// handleItem перечитывает объявление с площадки и сливает его с каталогом.
// Изменившиеся остаток и цена уходят на группу и остальные площадки товара.
func (r *Reconciler) handleItem(ctx context.Context, m models.Marketplace, itemID string) error {
	if itemID == "" {
		return fmt.Errorf("%w: empty item id", ErrUnsupportedTopic)
	}

	adapter, err := r.adapterFor(ctx, m)
	if err != nil {
		return err
	}

	remote, err := adapter.GetProduct(ctx, itemID)
	if err != nil {
		if marketplace.IsAuth(err) {
			demoteConnection(ctx, r.store, m, r.logger)
		}
		return fmt.Errorf("fetch item %s: %w", itemID, err)
	}
	if remote == nil {
		return fmt.Errorf("item %s not found on %s", itemID, m)
	}
	if remote.ExternalID == "" {
		remote.ExternalID = itemID
	}

	res, err := r.resolver.Merge(ctx, m, *remote)
	if err != nil {
		return err
	}

	r.logger.InfoWithContext(ctx, "объявление слито с каталогом",
		interfaces.LogField{Key: "marketplace", Value: m},
		interfaces.LogField{Key: "item_id", Value: itemID},
		interfaces.LogField{Key: "outcome", Value: res.Outcome},
	)
	return nil
}

// handleOrder списывает проданное количество с остатка товаров заказа, не опуская его ниже нуля
func (r *Reconciler) handleOrder(ctx context.Context, m models.Marketplace, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("%w: empty order id", ErrUnsupportedTopic)
	}

	adapter, err := r.adapterFor(ctx, m)
	if err != nil {
		return err
	}
	fetcher, ok := adapter.(marketplace.OrderFetcher)
	if !ok {
		return fmt.Errorf("%w: %s does not provide orders", ErrUnsupportedTopic, m)
	}

	order, err := fetcher.GetOrder(ctx, orderID)
	if err != nil {
		if marketplace.IsAuth(err) {
			demoteConnection(ctx, r.store, m, r.logger)
		}
		return fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	if order == nil {
		return fmt.Errorf("order %s not found on %s", orderID, m)
	}

	var errs []error
	for _, line := range order.Lines {
		if err := r.decrementStock(ctx, m, line); err != nil {
			errs = append(errs, fmt.Errorf("line %s: %w", line.ExternalID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) decrementStock(ctx context.Context, m models.Marketplace, line models.OrderLine) error {
	if line.Quantity <= 0 {
		return nil
	}

	find := func(ctx context.Context) (*models.Product, error) {
		if line.ExternalID != "" {
			p, err := r.store.GetProductByExternalID(ctx, m, line.ExternalID)
			if err != nil || p != nil {
				return p, err
			}
		}
		if line.SKU != "" {
			return r.store.GetProductBySKU(ctx, line.SKU)
		}
		return nil, nil
	}

	return r.resolver.withProductLock(ctx, find, line.SKU, func(ctx context.Context, current *models.Product) error {
		if current == nil {
			r.logger.InfoWithContext(ctx, "товар заказа не найден в каталоге",
				interfaces.LogField{Key: "marketplace", Value: m},
				interfaces.LogField{Key: "external_id", Value: line.ExternalID},
			)
			return nil
		}

		stock := max(current.Stock-line.Quantity, 0)
		if stock == current.Stock {
			return nil
		}

		now := r.now().UTC()
		updated := current.Clone()
		updated.Stock = stock
		updated.LastSyncedAt = &now
		updated.UpdatedAt = now
		if err := r.store.SaveProduct(ctx, updated); err != nil {
			return fmt.Errorf("save stock: %w", err)
		}

		r.logger.InfoWithContext(ctx, "остаток списан по заказу",
			interfaces.LogField{Key: "sku", Value: updated.SKU},
			interfaces.LogField{Key: "sold", Value: line.Quantity},
			interfaces.LogField{Key: "stock", Value: stock},
		)

		// сама площадка m уже учла продажу
		_, err := r.syncer.FanOut(ctx, updated, Delta{Stock: true}, m)
		return err
	})
}
