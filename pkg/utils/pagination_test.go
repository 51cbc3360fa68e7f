package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPaginationNormalizes(t *testing.T) {
	tests := []struct {
		name     string
		page     int
		size     int
		wantPage int
		wantSize int
	}{
		{"defaults", 0, 0, 1, DefaultPageSize},
		{"negative", -3, -1, 1, DefaultPageSize},
		{"too large", 2, 10_000, 2, MaxPageSize},
		{"as is", 3, 20, 3, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPagination(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantSize, p.PageSize)
		})
	}
}

func TestPaginationSetTotal(t *testing.T) {
	p := NewPagination(2, 10)
	p.SetTotal(25)

	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasNext)
	assert.True(t, p.HasPrev)
	assert.Equal(t, 10, p.Offset())
	assert.Equal(t, 10, p.Limit())

	p = NewPagination(3, 10)
	p.SetTotal(25)
	assert.False(t, p.HasNext)
}
