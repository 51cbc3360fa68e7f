package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/config"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/api"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/app"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/security"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

// @title Catalog Sync API
// @version 1.0
// @description Синхронизация каталога WooCommerce, MercadoLibre и Amazon
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	log.Info("Инициализация сервиса",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Ошибка инициализации зависимостей", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer application.Close()

	// Очередь уведомлений: в памяти процесса или топик Kafka для воркера
	var (
		queue        services.WebhookQueue
		inProcess    *services.InProcessQueue
		workerCtx    context.Context
		workerCancel context.CancelFunc
	)
	switch cfg.Webhooks.Queue {
	case config.QueueKafka:
		kq, err := application.KafkaQueue()
		if err != nil {
			log.Fatal("Ошибка инициализации очереди уведомлений", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		queue = kq
	default:
		inProcess = services.NewInProcessQueue(cfg.Webhooks.Workers, cfg.Webhooks.BufferSize, log)
		queue = inProcess
	}

	reconciler := application.NewReconciler(queue)
	if inProcess != nil {
		// обработчики не зависят от контекста HTTP-запроса, принявшего уведомление
		workerCtx, workerCancel = context.WithCancel(context.Background())
		inProcess.Start(workerCtx, reconciler)
	}

	scheduler := services.NewScheduler(application.Store, application.Resolver, services.SchedulerConfig{
		Interval:    time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute,
		Warmup:      cfg.Scheduler.Warmup,
		HistorySize: cfg.Scheduler.HistorySize,
	}, log)
	if cfg.Scheduler.Enabled {
		scheduler.Start(ctx)
	}

	credentials := services.NewCredentialManager(application.Store, application.Registry, services.CredentialConfig{
		CheckInterval:    cfg.Credentials.CheckInterval,
		RefreshThreshold: cfg.Credentials.RefreshThreshold,
	}, log)
	if cfg.Credentials.Enabled {
		credentials.Start(ctx)
	}

	auth, err := newAuth(ctx, cfg)
	if err != nil {
		log.Fatal("Ошибка инициализации проверки токенов", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	metricsEndpoint := ""
	if cfg.Metrics.Enabled {
		metricsEndpoint = cfg.Metrics.Endpoint
	}

	router := api.SetupRouter(api.Services{
		Products:    application.Products,
		Connections: application.Connections,
		Scheduler:   scheduler,
		Tokens:      credentials,
		Webhooks:    reconciler,
	}, api.Options{
		RequestTimeout:     cfg.Server.RequestTimeout,
		RateLimit:          cfg.Server.RateLimit,
		CORSAllowedOrigins: cfg.Security.CORSAllowOrigins,
		MetricsEndpoint:    metricsEndpoint,
		Auth:               auth,
	}, log)
	log.Info("Маршрутизатор настроен")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Сервер запущен", interfaces.LogField{Key: "address", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Ошибка запуска сервера", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Ошибка при graceful shutdown", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		log.Info("HTTP сервер остановлен")

		scheduler.Stop()
		credentials.Stop()

		// принятые уведомления дорабатываются до закрытия хранилища
		if inProcess != nil {
			inProcess.Stop()
			workerCancel()
		}

		cancel()
		close(done)
	}()

	<-done
	log.Info("Сервер корректно завершил работу")
}

// newAuth выбирает проверку токенов операторов; nil для режима none
func newAuth(ctx context.Context, cfg *config.Config) (interfaces.AuthPort, error) {
	switch cfg.Security.Mode {
	case config.SecurityJWT:
		return security.NewJWTManager(cfg.Security.JWTSecret, 0, ""), nil
	case config.SecurityKeycloak:
		return security.NewKeycloakVerifier(ctx, cfg.Security.Keycloak)
	default:
		return nil, nil
	}
}
