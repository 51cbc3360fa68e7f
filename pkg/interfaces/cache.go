package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss возвращается, если ключ отсутствует в кэше
var ErrCacheMiss = errors.New("cache miss")

// CachePort определяет интерфейс для работы с системой кэширования
type CachePort interface {
	// Get получает значение из кэша по ключу, ErrCacheMiss если значения нет
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение в кэше; при expiration == 0 срок не ограничен
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	Delete(ctx context.Context, key string) error

	// Lock пытается захватить распределенную блокировку.
	// Возвращает true, если блокировка получена.
	Lock(ctx context.Context, key string, expiration time.Duration) (bool, error)

	// Extend продлевает блокировку, если ее держит этот процесс.
	// false означает, что блокировка уже потеряна.
	Extend(ctx context.Context, key string, expiration time.Duration) (bool, error)

	// Unlock освобождает блокировку
	Unlock(ctx context.Context, key string) error

	Close() error
}
