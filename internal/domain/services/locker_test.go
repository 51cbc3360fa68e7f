package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, normalizeKeys([]string{"b", "", "a", "b"}))
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(context.Background(), "group:G")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, km.entries, "entries are released")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()
	unlockA, err := km.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := km.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	km := NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "a", "b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Empty(t, km.entries)
}

// memoryCache минимальный CachePort для проверки распределенной блокировки
type memoryCache struct {
	interfaces.CachePort
	mu      sync.Mutex
	locks   map[string]bool
	extends map[string]int
	values  map[string][]byte
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return nil, interfaces.ErrCacheMiss
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = map[string][]byte{}
	}
	c.values[key] = value
	return nil
}

func (c *memoryCache) Extend(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.locks[key] {
		return false, nil
	}
	if c.extends == nil {
		c.extends = map[string]int{}
	}
	c.extends[key]++
	return true, nil
}

func (c *memoryCache) extendCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extends[key]
}

func (c *memoryCache) Lock(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[key] {
		return false, nil
	}
	c.locks[key] = true
	return true, nil
}

func (c *memoryCache) Unlock(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, key)
	return nil
}

func TestCacheGroupLocker_WaitsForRemoteHolder(t *testing.T) {
	cache := &memoryCache{locks: map[string]bool{"group:G": true}}
	locker := NewCacheGroupLocker(cache, time.Second, 5*time.Millisecond, nopLogger())

	acquired := make(chan func())
	go func() {
		unlock, err := locker.Lock(context.Background(), "group:G")
		assert.NoError(t, err)
		acquired <- unlock
	}()

	select {
	case <-acquired:
		t.Fatal("lock held by another instance must block")
	case <-time.After(30 * time.Millisecond):
	}

	// другой экземпляр снимает блокировку
	require.NoError(t, cache.Unlock(context.Background(), "group:G"))

	unlock := <-acquired
	unlock()

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Empty(t, cache.locks)
}

func TestCacheGroupLocker_ContextCancel(t *testing.T) {
	cache := &memoryCache{locks: map[string]bool{"b": true}}
	locker := NewCacheGroupLocker(cache, time.Second, 5*time.Millisecond, nopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := locker.Lock(ctx, "a", "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.False(t, cache.locks["a"], "partially acquired keys are released")
}

func TestCacheGroupLocker_RenewsWhileHeld(t *testing.T) {
	cache := &memoryCache{locks: map[string]bool{}}
	locker := NewCacheGroupLocker(cache, 30*time.Millisecond, 5*time.Millisecond, nopLogger())

	unlock, err := locker.Lock(context.Background(), "group:G")
	require.NoError(t, err)

	// операция дольше ttl: блокировка продлевается
	assert.Eventually(t, func() bool { return cache.extendCount("group:G") >= 3 },
		time.Second, 5*time.Millisecond)

	unlock()
	after := cache.extendCount("group:G")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, cache.extendCount("group:G"), "renewal stops after unlock")

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Empty(t, cache.locks)
}
