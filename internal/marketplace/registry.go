package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultMercadoLibreTokenURL = "https://api.mercadolibre.com/oauth/token"
	DefaultAmazonTokenURL       = "https://api.amazon.com/auth/o2/token"

	sellerIDKey = "amazon:seller-id"
)

// ErrUnsupportedMarketplace возвращается для площадки без адаптера
var ErrUnsupportedMarketplace = errors.New("unsupported marketplace")

// Config настройки адаптеров
type Config struct {
	RequestTimeout       time.Duration
	MercadoLibreURL      string
	MercadoLibreTokenURL string
	AmazonEndpoint       string
	AmazonTokenURL       string
	// RateLimits запросов в секунду по площадкам, 0 снимает ограничение
	RateLimits map[models.Marketplace]float64
}

// Registry создает адаптеры по подключениям.
// Ограничители частоты и идентификатор продавца Amazon общие для всех адаптеров процесса.
type Registry struct {
	cfg        Config
	httpClient *http.Client
	limiters   map[models.Marketplace]*rate.Limiter
	sellerIDs  *cache.Cache
}

// NewRegistry создает реестр адаптеров
func NewRegistry(cfg Config, httpClient *http.Client) *Registry {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MercadoLibreURL == "" {
		cfg.MercadoLibreURL = DefaultMercadoLibreURL
	}
	if cfg.MercadoLibreTokenURL == "" {
		cfg.MercadoLibreTokenURL = DefaultMercadoLibreTokenURL
	}
	if cfg.AmazonTokenURL == "" {
		cfg.AmazonTokenURL = DefaultAmazonTokenURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	limiters := make(map[models.Marketplace]*rate.Limiter, len(models.Marketplaces))
	for _, m := range models.Marketplaces {
		limit := rate.Inf
		if rps := cfg.RateLimits[m]; rps > 0 {
			limit = rate.Limit(rps)
		}
		limiters[m] = rate.NewLimiter(limit, 1)
	}

	return &Registry{
		cfg:        cfg,
		httpClient: httpClient,
		limiters:   limiters,
		sellerIDs:  cache.New(cache.NoExpiration, 0),
	}
}

// Adapter реализует Factory
func (r *Registry) Adapter(conn *models.Connection) (Adapter, error) {
	if conn == nil {
		return nil, errors.New("connection is nil")
	}
	base := restClient{httpClient: r.httpClient, limiter: r.limiters[conn.Marketplace]}

	switch conn.Marketplace {
	case models.MarketplaceWooCommerce:
		return newWooCommerce(conn, base), nil
	case models.MarketplaceMercadoLibre:
		return newMercadoLibre(conn, base, r.cfg.MercadoLibreURL), nil
	case models.MarketplaceAmazon:
		return newAmazon(conn, base, r.cfg.AmazonEndpoint, r.amazonTokenSource(conn), r), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMarketplace, conn.Marketplace)
}

// SellerID реализует sellerIDStore
func (r *Registry) SellerID() (string, bool) {
	v, ok := r.sellerIDs.Get(sellerIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// SetSellerID запоминает продавца до перезапуска процесса
func (r *Registry) SetSellerID(id string) {
	r.sellerIDs.Set(sellerIDKey, id, cache.NoExpiration)
}

func (r *Registry) oauthContext() context.Context {
	return context.WithValue(context.Background(), oauth2.HTTPClient, r.httpClient)
}

func (r *Registry) oauthConfig(conn *models.Connection) (*oauth2.Config, error) {
	var tokenURL string
	switch conn.Marketplace {
	case models.MarketplaceMercadoLibre:
		tokenURL = r.cfg.MercadoLibreTokenURL
	case models.MarketplaceAmazon:
		tokenURL = r.cfg.AmazonTokenURL
	default:
		return nil, fmt.Errorf("%w: %s does not use refresh tokens", ErrUnsupportedMarketplace, conn.Marketplace)
	}
	return &oauth2.Config{
		ClientID:     conn.Credentials.APIKey,
		ClientSecret: conn.Credentials.APISecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, nil
}

func (r *Registry) amazonTokenSource(conn *models.Connection) oauth2.TokenSource {
	cfg, _ := r.oauthConfig(conn)
	seed := &oauth2.Token{
		AccessToken:  conn.Credentials.AccessToken,
		RefreshToken: conn.Credentials.RefreshToken,
	}
	if conn.TokenExpiresAt != nil {
		seed.Expiry = *conn.TokenExpiresAt
	}
	return cfg.TokenSource(r.oauthContext(), seed)
}
