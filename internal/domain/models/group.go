package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// GroupView производное представление группы. Не хранится.
type GroupView struct {
	GroupID    string           `json:"groupId"`
	Products   []*Product       `json:"products"`
	TotalStock int              `json:"totalStock"`
	TotalValue decimal.Decimal  `json:"totalValue"`
	CostPrice  *decimal.Decimal `json:"costPrice"`
}

// GroupsOverview разбиение каталога на группы и одиночные товары
type GroupsOverview struct {
	Groups         []GroupView `json:"groups"`
	Ungrouped      []*Product  `json:"ungrouped"`
	TotalGroups    int         `json:"totalGroups"`
	TotalUngrouped int         `json:"totalUngrouped"`
}

// BuildGroupsOverview группирует товары по GroupID.
// Остаток группы считается как максимум по участникам, себестоимость берется у первого участника, где она задана.
func BuildGroupsOverview(products []*Product) GroupsOverview {
	index := make(map[string]*GroupView)
	var order []string
	ungrouped := make([]*Product, 0)

	for _, p := range products {
		if p.GroupID == "" {
			ungrouped = append(ungrouped, p)
			continue
		}
		g, ok := index[p.GroupID]
		if !ok {
			g = &GroupView{GroupID: p.GroupID, TotalStock: p.Stock}
			index[p.GroupID] = g
			order = append(order, p.GroupID)
		}
		g.Products = append(g.Products, p)
		if p.Stock > g.TotalStock {
			g.TotalStock = p.Stock
		}
		if g.CostPrice == nil && p.CostPrice != nil {
			g.CostPrice = cloneDecimal(p.CostPrice)
		}
	}

	sort.Strings(order)
	groups := make([]GroupView, 0, len(order))
	for _, id := range order {
		g := index[id]
		if g.CostPrice != nil {
			g.TotalValue = g.CostPrice.Mul(decimal.NewFromInt(int64(g.TotalStock)))
		}
		groups = append(groups, *g)
	}

	return GroupsOverview{
		Groups:         groups,
		Ungrouped:      ungrouped,
		TotalGroups:    len(groups),
		TotalUngrouped: len(ungrouped),
	}
}
