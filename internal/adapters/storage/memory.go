package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
)

// MemoryStorage хранилище каталога в памяти процесса.
// Используется в тестах и при storage.driver=memory; данные теряются при перезапуске.
type MemoryStorage struct {
	mu          sync.RWMutex
	nextID      int64
	products    map[int64]*models.Product
	connections map[models.Marketplace]*models.Connection
	nextConnID  int64
}

// NewMemoryStorage создает пустое хранилище
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		products:    make(map[int64]*models.Product),
		connections: make(map[models.Marketplace]*models.Connection),
	}
}

func (s *MemoryStorage) Ping(context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.products[id]; ok {
		return p.Clone(), nil
	}
	return nil, nil
}

func (s *MemoryStorage) GetProductBySKU(_ context.Context, sku string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.find(func(p *models.Product) bool { return p.SKU == sku }), nil
}

func (s *MemoryStorage) GetProductByExternalID(_ context.Context, m models.Marketplace, externalID string) (*models.Product, error) {
	if externalID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.find(func(p *models.Product) bool { return p.ExternalIDs.Get(m) == externalID }), nil
}

func (s *MemoryStorage) find(match func(p *models.Product) bool) *models.Product {
	for _, p := range s.products {
		if match(p) {
			return p.Clone()
		}
	}
	return nil
}

func (s *MemoryStorage) ListProducts(context.Context) ([]*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(), nil
}

func (s *MemoryStorage) ListProductsPage(_ context.Context, offset, limit int) ([]*models.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sorted()
	total := len(all)
	if offset >= total {
		return []*models.Product{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

// sorted возвращает копии товаров, новые изменения первыми
func (s *MemoryStorage) sorted() []*models.Product {
	out := make([]*models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *MemoryStorage) ListGroup(_ context.Context, groupID string) ([]*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Product, 0)
	for _, p := range s.products {
		if groupID != "" && p.GroupID == groupID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) SaveProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID != 0 {
		if _, ok := s.products[p.ID]; !ok {
			return fmt.Errorf("failed to save product %d: %w", p.ID, ErrNotFound)
		}
	}
	if err := s.checkUnique(p); err != nil {
		return err
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	s.products[p.ID] = p.Clone()
	return nil
}

// checkUnique повторяет ограничения уникальности таблицы products
func (s *MemoryStorage) checkUnique(p *models.Product) error {
	for id, other := range s.products {
		if id == p.ID {
			continue
		}
		if other.SKU == p.SKU {
			return fmt.Errorf("%w: sku %s", models.ErrDuplicateSKU, p.SKU)
		}
		for _, m := range models.Marketplaces {
			if ext := p.ExternalIDs.Get(m); ext != "" && other.ExternalIDs.Get(m) == ext {
				return fmt.Errorf("%w: %s id %s", models.ErrDuplicateSKU, m, ext)
			}
		}
	}
	return nil
}

func (s *MemoryStorage) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.products, id)
	return nil
}

func (s *MemoryStorage) GetConnection(_ context.Context, m models.Marketplace) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.connections[m]; ok {
		return cloneConnection(c), nil
	}
	return nil, nil
}

func (s *MemoryStorage) ListConnections(context.Context) ([]*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, cloneConnection(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Marketplace < out[j].Marketplace })
	return out, nil
}

func (s *MemoryStorage) SaveConnection(_ context.Context, c *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.connections[c.Marketplace]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		s.nextConnID++
		c.ID = s.nextConnID
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.connections[c.Marketplace] = cloneConnection(c)
	return nil
}

func (s *MemoryStorage) DeleteConnection(_ context.Context, m models.Marketplace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.connections, m)
	return nil
}

func cloneConnection(c *models.Connection) *models.Connection {
	out := *c
	if c.TokenExpiresAt != nil {
		t := *c.TokenExpiresAt
		out.TokenExpiresAt = &t
	}
	return &out
}
