package api

import (
	"net/http"
	"time"

	_ "github.com/athebyme/gomarket-platform/catalog-sync/docs"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/api/handlers"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/api/middleware"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Services зависимости обработчиков API
type Services struct {
	Products    handlers.ProductService
	Connections handlers.ConnectionService
	Scheduler   handlers.SyncScheduler
	Tokens      handlers.TokenManager
	Webhooks    handlers.WebhookIntake
}

// Options параметры маршрутизатора
type Options struct {
	RequestTimeout     time.Duration
	RateLimit          float64
	CORSAllowedOrigins []string
	MetricsEndpoint    string
	Auth               interfaces.AuthPort // nil отключает проверку токенов
}

// SetupRouter настраивает маршрутизатор
func SetupRouter(svc Services, opts Options, logger interfaces.LoggerPort) *chi.Mux {
	r := chi.NewRouter()

	// Глобальные middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Tracing)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(opts.CORSAllowedOrigins))

	r.Method(http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	r.Method(http.MethodHead, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if opts.MetricsEndpoint != "" {
		r.Handle(opts.MetricsEndpoint, promhttp.Handler())
	}

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Уведомления площадок: без токена оператора и без таймаута API
	if svc.Webhooks != nil {
		r.Route("/webhooks", handlers.NewWebhookHandler(svc.Webhooks, logger).Routes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimit))
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}
		r.Use(middleware.Auth(opts.Auth, logger))

		r.Route("/products", handlers.NewProductHandler(svc.Products, logger).Routes)
		r.Route("/connections", handlers.NewConnectionHandler(svc.Connections, logger).Routes)

		syncHandler := handlers.NewSyncHandler(svc.Scheduler, svc.Tokens, logger)
		r.Route("/sync", syncHandler.SyncRoutes)
		r.Route("/tokens", syncHandler.TokenRoutes)
	})

	return r
}
