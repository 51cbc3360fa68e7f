// Package app собирает зависимости процессов api и worker из конфигурации
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/config"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/infrastructure/postgres"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/marketplace"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/tx"
)

// catalogStorage хранилище каталога с управлением соединением
type catalogStorage interface {
	services.CatalogStore
	interfaces.StoragePort
}

// App инфраструктура и доменные сервисы одного процесса
type App struct {
	Config *config.Config
	Logger interfaces.LoggerPort

	Store     catalogStorage
	TxManager tx.TxManager
	Cache     interfaces.CachePort     // nil без Redis
	Messaging interfaces.MessagingPort // nil без Kafka
	Registry  *marketplace.Registry

	Locker      services.GroupLocker
	Events      *services.EventPublisher
	Syncer      *services.Syncer
	Resolver    *services.Resolver
	Products    *services.ProductService
	Connections *services.ConnectionService
	WebhookLogs services.WebhookJournal

	closers []func() error
}

// New подключается к хранилищу, Redis и Kafka по конфигурации и создает сервисы
func New(ctx context.Context, cfg *config.Config, logger interfaces.LoggerPort) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.initStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initCache(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initMessaging(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = marketplace.NewRegistry(marketplaceConfig(cfg), &http.Client{Timeout: cfg.Marketplaces.RequestTimeout})

	if a.Cache != nil {
		a.Locker = services.NewCacheGroupLocker(a.Cache, cfg.Redis.LockTTL, cfg.Redis.LockRetry, logger)
	} else {
		if cfg.Webhooks.Queue == config.QueueKafka {
			logger.Warn("блокировки групп локальны для процесса: при отдельном воркере включите Redis")
		}
		a.Locker = services.NewKeyedMutex()
	}

	a.Events = services.NewEventPublisher(a.Messaging, cfg.Kafka.EventsTopic, logger)
	a.Syncer = services.NewSyncer(a.Store, a.TxManager, a.Registry, a.Events, logger)
	a.Resolver = services.NewResolver(a.Store, a.Registry, a.Locker, a.Syncer, services.ImportConfig{
		PageSize: cfg.Scheduler.PageSize,
		MaxPages: cfg.Scheduler.MaxPages,
	}, logger)
	a.Products = services.NewProductService(a.Store, a.TxManager, a.Registry, a.Locker, a.Syncer, a.Resolver, logger)
	a.Connections = services.NewConnectionService(a.Store, a.Registry, logger)
	if a.Cache != nil {
		// журнал общий для api и worker
		a.WebhookLogs = services.NewCacheWebhookLog(a.Cache, a.Locker, cfg.Webhooks.LogSize)
	} else {
		if cfg.Webhooks.Queue == config.QueueKafka {
			logger.Warn("журнал уведомлений локален для процесса: итоги обработки воркером видны только с Redis")
		}
		a.WebhookLogs = services.NewWebhookLogBuffer(cfg.Webhooks.LogSize)
	}

	return a, nil
}

// NewReconciler создает обработчик уведомлений поверх очереди queue
func (a *App) NewReconciler(queue services.WebhookQueue) *services.Reconciler {
	return services.NewReconciler(a.Store, a.Registry, a.Resolver, a.Syncer, queue, a.WebhookLogs, a.Logger)
}

// KafkaQueue очередь уведомлений через топик webhookTopic
func (a *App) KafkaQueue() (*services.KafkaWebhookQueue, error) {
	if a.Messaging == nil {
		return nil, errors.New("kafka is not configured")
	}
	return services.NewKafkaWebhookQueue(a.Messaging, a.Config.Kafka.WebhookTopic, a.Logger), nil
}

func (a *App) initStorage(ctx context.Context) error {
	cfg := a.Config

	if cfg.Storage.Driver == config.StorageMemory {
		a.Logger.Warn("используется хранилище в памяти, данные не сохраняются между запусками")
		mem := storage.NewMemoryStorage()
		a.Store = mem
		a.TxManager = tx.NewNopTxManager()
		return nil
	}

	pool, err := postgres.NewPool(ctx, postgres.Options{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
		SSLMode:  cfg.Postgres.SSLMode,
		Timeout:  cfg.Postgres.Timeout,
		PoolSize: cfg.Postgres.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	db, err := storage.NewPostgresStorage(ctx, pool)
	if err != nil {
		pool.Close()
		return fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}

	a.Store = db
	a.TxManager = db.TxManager()
	a.closers = append(a.closers, db.Close)
	a.Logger.Info("Хранилище инициализировано")
	return nil
}

func (a *App) initCache(ctx context.Context) error {
	cfg := a.Config
	if !cfg.Redis.Enabled {
		return nil
	}

	c, err := cache.NewRedisCache(ctx, cache.Options{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Prefix:   cfg.AppName + ":",
	})
	if err != nil {
		return fmt.Errorf("ошибка инициализации кэша: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := checkRedisConnection(checkCtx, c); err != nil {
		c.Close()
		return fmt.Errorf("ошибка подключения к Redis: %w", err)
	}

	a.Cache = c
	a.closers = append(a.closers, c.Close)
	a.Logger.Info("Кэш инициализирован")
	return nil
}

func (a *App) initMessaging(ctx context.Context) error {
	cfg := a.Config
	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}

	k, err := messaging.NewKafkaMessaging(messaging.Options{
		Brokers:         cfg.Kafka.Brokers,
		ClientID:        cfg.AppName,
		GroupID:         cfg.Kafka.GroupID,
		AutoOffsetReset: cfg.Kafka.AutoOffsetReset,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("ошибка инициализации системы обмена сообщениями: %w", err)
	}

	a.Messaging = k
	a.closers = append(a.closers, k.Close)

	for _, topic := range []string{cfg.Kafka.WebhookTopic, cfg.Kafka.EventsTopic} {
		if topic == "" {
			continue
		}
		// кластер может запрещать создание тем, тогда их заводит администратор
		if err := k.EnsureTopic(ctx, topic, 3, 1); err != nil {
			a.Logger.Warn("не удалось создать тему Kafka",
				interfaces.LogField{Key: "topic", Value: topic},
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}
	a.Logger.Info("Система обмена сообщениями инициализирована")
	return nil
}

// Close закрывает соединения в обратном порядке
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Error("Ошибка при закрытии соединения",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}
	a.closers = nil
}

func marketplaceConfig(cfg *config.Config) marketplace.Config {
	mp := cfg.Marketplaces
	return marketplace.Config{
		RequestTimeout:       mp.RequestTimeout,
		MercadoLibreURL:      mp.MercadoLibre.BaseURL,
		MercadoLibreTokenURL: mp.MercadoLibre.TokenURL,
		AmazonEndpoint:       mp.Amazon.Endpoint,
		AmazonTokenURL:       mp.Amazon.LWATokenURL,
		RateLimits: map[models.Marketplace]float64{
			models.MarketplaceWooCommerce:  mp.WooCommerce.RateLimit,
			models.MarketplaceMercadoLibre: mp.MercadoLibre.RateLimit,
			models.MarketplaceAmazon:       mp.Amazon.RateLimit,
		},
	}
}

// checkRedisConnection пишет, читает и удаляет пробный ключ
func checkRedisConnection(ctx context.Context, cacheClient interfaces.CachePort) error {
	testKey := "test:connection"
	testValue := []byte("test-value")

	if err := cacheClient.Set(ctx, testKey, testValue, 10*time.Second); err != nil {
		return fmt.Errorf("ошибка записи в Redis: %w", err)
	}

	value, err := cacheClient.Get(ctx, testKey)
	if err != nil {
		return fmt.Errorf("ошибка чтения из Redis: %w", err)
	}
	if string(value) != string(testValue) {
		return fmt.Errorf("некорректное значение из Redis: получено %s, ожидалось %s",
			string(value), string(testValue))
	}

	return cacheClient.Delete(ctx, testKey)
}
