package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

const defaultWebhookLogSize = 100

// WebhookJournal журнал последних уведомлений.
// Запись с уже известным ID заменяет прежнюю, так прием и обработка дают одну строку.
type WebhookJournal interface {
	Add(ctx context.Context, entry models.WebhookLog) error
	// Recent возвращает до limit последних записей, новые первыми
	Recent(ctx context.Context, limit int) ([]models.WebhookLog, error)
}

// WebhookLogBuffer журнал в памяти процесса
type WebhookLogBuffer struct {
	mu      sync.RWMutex
	entries []models.WebhookLog
	size    int
}

func NewWebhookLogBuffer(size int) *WebhookLogBuffer {
	if size <= 0 {
		size = defaultWebhookLogSize
	}
	return &WebhookLogBuffer{size: size}
}

// Add записывает запись, вытесняя самую старую при заполнении
func (b *WebhookLogBuffer) Add(_ context.Context, entry models.WebhookLog) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = upsertWebhookLog(b.entries, entry, b.size)
	return nil
}

func (b *WebhookLogBuffer) Recent(_ context.Context, limit int) ([]models.WebhookLog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return newestFirst(b.entries, limit), nil
}

const webhookLogKey = "webhooks:log"

// CacheWebhookLog журнал в кэше, общий для процессов api и worker.
// Чтение-изменение-запись сериализуется блокировкой locker.
type CacheWebhookLog struct {
	cache  interfaces.CachePort
	locker GroupLocker
	size   int
}

func NewCacheWebhookLog(cache interfaces.CachePort, locker GroupLocker, size int) *CacheWebhookLog {
	if size <= 0 {
		size = defaultWebhookLogSize
	}
	return &CacheWebhookLog{cache: cache, locker: locker, size: size}
}

func (c *CacheWebhookLog) Add(ctx context.Context, entry models.WebhookLog) error {
	unlock, err := c.locker.Lock(ctx, webhookLogKey)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := c.load(ctx)
	if err != nil {
		return err
	}
	entries = upsertWebhookLog(entries, entry, c.size)

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode webhook log: %w", err)
	}
	if err := c.cache.Set(ctx, webhookLogKey, data, 0); err != nil {
		return fmt.Errorf("save webhook log: %w", err)
	}
	return nil
}

func (c *CacheWebhookLog) Recent(ctx context.Context, limit int) ([]models.WebhookLog, error) {
	entries, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return newestFirst(entries, limit), nil
}

func (c *CacheWebhookLog) load(ctx context.Context) ([]models.WebhookLog, error) {
	data, err := c.cache.Get(ctx, webhookLogKey)
	if errors.Is(err, interfaces.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load webhook log: %w", err)
	}

	var entries []models.WebhookLog
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode webhook log: %w", err)
	}
	return entries, nil
}

// upsertWebhookLog заменяет запись с тем же ID или дописывает новую в конец,
// оставляя не больше size последних
func upsertWebhookLog(entries []models.WebhookLog, entry models.WebhookLog, size int) []models.WebhookLog {
	if entry.ID != "" {
		for i := range entries {
			if entries[i].ID == entry.ID {
				entries[i] = entry
				return entries
			}
		}
	}
	entries = append(entries, entry)
	if len(entries) > size {
		entries = append([]models.WebhookLog(nil), entries[len(entries)-size:]...)
	}
	return entries
}

func newestFirst(entries []models.WebhookLog, limit int) []models.WebhookLog {
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]models.WebhookLog, 0, limit)
	for i := len(entries) - 1; i >= len(entries)-limit; i-- {
		out = append(out, entries[i])
	}
	return out
}
