package utils

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Pagination параметры постраничной выдачи
type Pagination struct {
	Page       int  `json:"page"`       // Номер страницы (начиная с 1)
	PageSize   int  `json:"pageSize"`   // Размер страницы
	TotalItems int  `json:"totalItems"` // Общее количество элементов
	TotalPages int  `json:"totalPages"` // Общее количество страниц
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination нормализует номер и размер страницы
func NewPagination(page, pageSize int) *Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return &Pagination{Page: page, PageSize: pageSize}
}

// SetTotal устанавливает общее количество элементов и пересчитывает зависимые поля
func (p *Pagination) SetTotal(totalItems int) {
	p.TotalItems = totalItems
	p.TotalPages = (totalItems + p.PageSize - 1) / p.PageSize
	p.HasNext = p.Page < p.TotalPages
	p.HasPrev = p.Page > 1
}

// Offset смещение первой записи страницы
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit размер страницы
func (p *Pagination) Limit() int {
	return p.PageSize
}

// PagedResult представляет результат запроса с пагинацией
type PagedResult struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// NewPagedResult создает новый результат с пагинацией
func NewPagedResult(items interface{}, pagination *Pagination) *PagedResult {
	return &PagedResult{Items: items, Pagination: pagination}
}
