package models

import (
	"errors"
	"fmt"
	"strings"
)

// Marketplace идентифицирует внешнюю торговую площадку
type Marketplace string

const (
	MarketplaceWooCommerce  Marketplace = "woocommerce"
	MarketplaceMercadoLibre Marketplace = "mercadolibre"
	MarketplaceAmazon       Marketplace = "amazon"
)

// Marketplaces перечисляет поддерживаемые площадки в фиксированном порядке обхода
var Marketplaces = []Marketplace{
	MarketplaceWooCommerce,
	MarketplaceMercadoLibre,
	MarketplaceAmazon,
}

var ErrUnknownMarketplace = errors.New("unknown marketplace")

// ParseMarketplace разбирает имя площадки из URL или конфигурации
func ParseMarketplace(s string) (Marketplace, error) {
	m := Marketplace(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MarketplaceWooCommerce, MarketplaceMercadoLibre, MarketplaceAmazon:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMarketplace, s)
}

func (m Marketplace) String() string {
	return string(m)
}

// UsesRefreshToken сообщает, выдает ли площадка короткоживущие токены по refresh token
func (m Marketplace) UsesRefreshToken() bool {
	return m == MarketplaceMercadoLibre || m == MarketplaceAmazon
}

// RequiresAccessToken сообщает, что вызовы адаптера невозможны без действующего access token
func (m Marketplace) RequiresAccessToken() bool {
	return m == MarketplaceMercadoLibre
}
