package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// unlockScript удаляет ключ только если блокировка принадлежит этому процессу
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript продлевает ключ только если блокировка принадлежит этому процессу
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Options параметры подключения к Redis
type Options struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

type RedisCache struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisCache(ctx context.Context, opts Options) (interfaces.CachePort, error) {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisCache(client, opts.Prefix), nil
}

func newRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, tokens: make(map[string]string)}
}

func (r *RedisCache) buildKey(key string) string {
	if r.prefix != "" {
		return r.prefix + ":" + key
	}
	return key
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, interfaces.ErrCacheMiss
		}
		return nil, err
	}
	return val, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return r.client.Set(ctx, r.buildKey(key), value, expiration).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.buildKey(key)).Err()
}

// Lock захватывает блокировку через SET NX PX со случайным токеном владельца
func (r *RedisCache) Lock(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.buildKey("lock:"+key), token, expiration).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка при захвате блокировки %s: %w", key, err)
	}
	if ok {
		r.mu.Lock()
		r.tokens[key] = token
		r.mu.Unlock()
	}
	return ok, nil
}

// Extend продлевает блокировку владельца на expiration
func (r *RedisCache) Extend(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	r.mu.Lock()
	token, ok := r.tokens[key]
	r.mu.Unlock()
	if !ok {
		return false, nil
	}

	n, err := extendScript.Run(ctx, r.client, []string{r.buildKey("lock:" + key)}, token, expiration.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("ошибка при продлении блокировки %s: %w", key, err)
	}
	return n == 1, nil
}

// Unlock снимает блокировку, если ее держит этот процесс
func (r *RedisCache) Unlock(ctx context.Context, key string) error {
	r.mu.Lock()
	token, ok := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	if err := unlockScript.Run(ctx, r.client, []string{r.buildKey("lock:" + key)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("ошибка при снятии блокировки %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
