package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

// GroupLocker сериализует чтение-изменение-запись по ключу группы (или SKU без группы).
// Блокировки берутся только на входе операции, внутренние шаги выполняются под уже взятой.
type GroupLocker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// normalizeKeys убирает пустые и повторяющиеся ключи и сортирует их,
// чтобы две операции над одной парой групп не взяли блокировки в разном порядке
func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex блокировки по ключам внутри одного процесса
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	acquired := make([]string, 0, len(keys))

	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			k.unlockOne(acquired[i])
		}
	}

	for _, key := range keys {
		if err := k.lockOne(ctx, key); err != nil {
			release()
			return nil, err
		}
		acquired = append(acquired, key)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (k *KeyedMutex) lockOne(ctx context.Context, key string) error {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
		return fmt.Errorf("lock %s: %w", key, ctx.Err())
	}
}

func (k *KeyedMutex) unlockOne(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		return
	}
	<-e.ch
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// CacheGroupLocker распределенная блокировка через CachePort (Redis SET NX).
// Внутри процесса ожидание идет на KeyedMutex, чтобы не опрашивать Redis конкурирующими горутинами.
// Пока блокировка удерживается, ее срок продлевается каждую треть ttl.
type CacheGroupLocker struct {
	cache      interfaces.CachePort
	local      *KeyedMutex
	ttl        time.Duration
	retryDelay time.Duration
	logger     interfaces.LoggerPort
}

// NewCacheGroupLocker создает распределенный локер; ttl ограничивает время удержания после падения процесса
func NewCacheGroupLocker(cache interfaces.CachePort, ttl, retryDelay time.Duration, logger interfaces.LoggerPort) *CacheGroupLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if retryDelay <= 0 {
		retryDelay = 50 * time.Millisecond
	}
	return &CacheGroupLocker{
		cache:      cache,
		local:      NewKeyedMutex(),
		ttl:        ttl,
		retryDelay: retryDelay,
		logger:     logger.WithField("component", "group_locker"),
	}
}

func (l *CacheGroupLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)

	unlockLocal, err := l.local.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}

	acquired := make([]string, 0, len(keys))
	var stopRenew func()
	release := func() {
		if stopRenew != nil {
			stopRenew()
		}
		// снятие не должно зависеть от отмены контекста операции
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(acquired) - 1; i >= 0; i-- {
			if err := l.cache.Unlock(unlockCtx, acquired[i]); err != nil {
				l.logger.Warn("не удалось снять блокировку группы",
					interfaces.LogField{Key: "key", Value: acquired[i]},
					interfaces.LogField{Key: "error", Value: err.Error()},
				)
			}
		}
		unlockLocal()
	}

	for _, key := range keys {
		if err := l.acquire(ctx, key); err != nil {
			release()
			return nil, err
		}
		acquired = append(acquired, key)
	}
	stopRenew = l.renew(acquired)

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// renew продлевает блокировки keys до вызова возвращенной функции
func (l *CacheGroupLocker) renew(keys []string) func() {
	if len(keys) == 0 {
		return func() {}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			for _, key := range keys {
				ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
				ok, err := l.cache.Extend(ctx, key, l.ttl)
				cancel()
				switch {
				case err != nil:
					l.logger.Warn("не удалось продлить блокировку группы",
						interfaces.LogField{Key: "key", Value: key},
						interfaces.LogField{Key: "error", Value: err.Error()},
					)
				case !ok:
					l.logger.Error("блокировка группы потеряна до завершения операции",
						interfaces.LogField{Key: "key", Value: key},
					)
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

func (l *CacheGroupLocker) acquire(ctx context.Context, key string) error {
	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()

	for {
		ok, err := l.cache.Lock(ctx, key, l.ttl)
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}
