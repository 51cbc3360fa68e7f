package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config содержит все настройки сервиса
type Config struct {
	AppName  string
	Version  string
	LogLevel string
	ENV      string

	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		RequestTimeout  time.Duration // таймаут обработки запроса API
		RateLimit       float64       // запросов в секунду к API, 0 без ограничения
	}

	Storage struct {
		Driver string // postgres или memory
	}

	Postgres struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
		Timeout  time.Duration
		PoolSize int // размер пула соединений
	}

	Redis struct {
		Enabled   bool
		Host      string
		Port      int
		Password  string
		DB        int
		PoolSize  int
		LockTTL   time.Duration // время жизни блокировки группы
		LockRetry time.Duration // пауза между попытками захвата
	}

	Kafka struct {
		Brokers         []string
		GroupID         string
		AutoOffsetReset string
		WebhookTopic    string // очередь уведомлений площадок
		EventsTopic     string // доменные события товаров
	}

	Webhooks struct {
		Queue      string // memory или kafka
		Workers    int
		BufferSize int
		LogSize    int // размер журнала последних уведомлений
	}

	Scheduler struct {
		Enabled         bool
		IntervalMinutes int
		Warmup          time.Duration
		HistorySize     int
		PageSize        int
		MaxPages        int
	}

	Credentials struct {
		Enabled          bool
		CheckInterval    time.Duration
		RefreshThreshold time.Duration
	}

	Marketplaces struct {
		RequestTimeout time.Duration
		WooCommerce    struct {
			RateLimit float64 // запросов в секунду, 0 без ограничения
		}
		MercadoLibre struct {
			BaseURL   string
			TokenURL  string
			RateLimit float64
		}
		Amazon struct {
			Endpoint    string // переопределение регионального endpoint SP-API
			LWATokenURL string
			RateLimit   float64
		}
	}

	Metrics struct {
		Enabled  bool
		Endpoint string
		Port     int // порт служебного сервера воркера
	}

	Security struct {
		Mode             string // none, jwt или keycloak
		JWTSecret        string
		CORSAllowOrigins []string
		Keycloak         KeycloakConfig
	}
}

// Режимы, допустимые в конфигурации
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	QueueMemory = "memory"
	QueueKafka  = "kafka"

	SecurityNone     = "none"
	SecurityJWT      = "jwt"
	SecurityKeycloak = "keycloak"
)

// maxIntervalMinutes верхняя граница периода планировщика, неделя
const maxIntervalMinutes = 7 * 24 * 60

// Load загружает конфигурацию из .env, файла и переменных окружения
func Load(configPath string) (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	configFile := "config"
	if configPath != "" {
		configFile = configPath
	}

	var cfg Config

	v := viper.New()
	v.SetConfigName(configFile)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.AddConfigPath("../../config")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Чтение конфигурационного файла
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		// без файла работаем на переменных окружения
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации конфигурации: %w", err)
	}

	if cfg.ENV == "" {
		cfg.ENV = "development"
		if envVar := os.Getenv("APP_ENV"); envVar != "" {
			cfg.ENV = envVar
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Webhooks.Queue {
	case QueueMemory:
	case QueueKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.WebhookTopic == "" {
			return errors.New("kafka webhook queue requires kafka.brokers and kafka.webhookTopic")
		}
	default:
		return fmt.Errorf("unknown webhook queue %q", c.Webhooks.Queue)
	}

	if c.Scheduler.IntervalMinutes < 1 || c.Scheduler.IntervalMinutes > maxIntervalMinutes {
		return fmt.Errorf("scheduler.intervalMinutes must be between 1 and %d, got %d", maxIntervalMinutes, c.Scheduler.IntervalMinutes)
	}

	switch c.Security.Mode {
	case SecurityNone:
	case SecurityJWT:
		if c.Security.JWTSecret == "" {
			return errors.New("security.jwtSecret is required in jwt mode")
		}
	case SecurityKeycloak:
		if err := c.Security.Keycloak.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown security mode %q", c.Security.Mode)
	}

	return nil
}

// IsProduction true для боевого окружения
func (c *Config) IsProduction() bool {
	return c.ENV == "production"
}

// setDefaults устанавливает значения по умолчанию
func setDefaults(v *viper.Viper) {
	// Основные настройки
	v.SetDefault("appName", "catalog-sync")
	v.SetDefault("version", "1.0.0")
	v.SetDefault("logLevel", "info")
	v.SetDefault("env", "development")

	// Настройки сервера
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.requestTimeout", "60s")
	v.SetDefault("server.rateLimit", 100)

	v.SetDefault("storage.driver", StoragePostgres)

	// Настройки Postgres
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "catalog")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timeout", "5s")
	v.SetDefault("postgres.poolSize", 10)

	// Настройки Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.lockTTL", "30s")
	v.SetDefault("redis.lockRetry", "50ms")

	// Настройки Kafka
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.groupID", "catalog-sync")
	v.SetDefault("kafka.autoOffsetReset", "earliest")
	v.SetDefault("kafka.webhookTopic", "catalog-webhooks")
	v.SetDefault("kafka.eventsTopic", "catalog-events")

	// Обработка уведомлений
	v.SetDefault("webhooks.queue", QueueMemory)
	v.SetDefault("webhooks.workers", 4)
	v.SetDefault("webhooks.bufferSize", 256)
	v.SetDefault("webhooks.logSize", 100)

	// Планировщик опроса
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.intervalMinutes", 15)
	v.SetDefault("scheduler.warmup", "1m")
	v.SetDefault("scheduler.historySize", 50)
	v.SetDefault("scheduler.pageSize", 50)
	v.SetDefault("scheduler.maxPages", 20)

	// Обновление токенов
	v.SetDefault("credentials.enabled", true)
	v.SetDefault("credentials.checkInterval", "30m")
	v.SetDefault("credentials.refreshThreshold", "1h")

	// Площадки
	v.SetDefault("marketplaces.requestTimeout", "30s")
	v.SetDefault("marketplaces.woocommerce.rateLimit", 0)
	v.SetDefault("marketplaces.mercadolibre.baseURL", "")
	v.SetDefault("marketplaces.mercadolibre.tokenURL", "")
	v.SetDefault("marketplaces.mercadolibre.rateLimit", 5)
	v.SetDefault("marketplaces.amazon.endpoint", "")
	v.SetDefault("marketplaces.amazon.lwaTokenURL", "")
	v.SetDefault("marketplaces.amazon.rateLimit", 5)

	// Настройки метрик
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.endpoint", "/metrics")
	v.SetDefault("metrics.port", 9090)

	// Настройки безопасности
	v.SetDefault("security.mode", SecurityNone)
	v.SetDefault("security.jwtSecret", "")
	v.SetDefault("security.corsAllowOrigins", []string{"*"})
	v.SetDefault("security.keycloak.serverURL", "")
	v.SetDefault("security.keycloak.realm", "")
	v.SetDefault("security.keycloak.clientID", "")
	v.SetDefault("security.keycloak.clientSecret", "")
}

// bindEnvVariables привязывает переменные окружения к конфигурации
func bindEnvVariables(v *viper.Viper) {
	bind := func(key, env string) {
		_ = v.BindEnv(key, env)
	}

	// Основные настройки
	bind("appName", "APP_NAME")
	bind("version", "APP_VERSION")
	bind("logLevel", "LOG_LEVEL")
	bind("env", "APP_ENV")

	// Настройки сервера
	bind("server.host", "SERVER_HOST")
	bind("server.port", "SERVER_PORT")
	bind("server.readTimeout", "SERVER_READ_TIMEOUT")
	bind("server.writeTimeout", "SERVER_WRITE_TIMEOUT")
	bind("server.shutdownTimeout", "SERVER_SHUTDOWN_TIMEOUT")
	bind("server.requestTimeout", "SERVER_REQUEST_TIMEOUT")
	bind("server.rateLimit", "SERVER_RATE_LIMIT")

	bind("storage.driver", "STORAGE_DRIVER")

	// Настройки Postgres
	bind("postgres.host", "POSTGRES_HOST")
	bind("postgres.port", "POSTGRES_PORT")
	bind("postgres.user", "POSTGRES_USER")
	bind("postgres.password", "POSTGRES_PASSWORD")
	bind("postgres.dbname", "POSTGRES_DBNAME")
	bind("postgres.sslmode", "POSTGRES_SSLMODE")
	bind("postgres.timeout", "POSTGRES_TIMEOUT")
	bind("postgres.poolSize", "POSTGRES_POOL_SIZE")

	// Настройки Redis
	bind("redis.enabled", "REDIS_ENABLED")
	bind("redis.host", "REDIS_HOST")
	bind("redis.port", "REDIS_PORT")
	bind("redis.password", "REDIS_PASSWORD")
	bind("redis.db", "REDIS_DB")
	bind("redis.poolSize", "REDIS_POOL_SIZE")
	bind("redis.lockTTL", "REDIS_LOCK_TTL")
	bind("redis.lockRetry", "REDIS_LOCK_RETRY")

	// Настройки Kafka
	bind("kafka.brokers", "KAFKA_BROKERS")
	bind("kafka.groupID", "KAFKA_GROUP_ID")
	bind("kafka.autoOffsetReset", "KAFKA_AUTO_OFFSET_RESET")
	bind("kafka.webhookTopic", "KAFKA_WEBHOOK_TOPIC")
	bind("kafka.eventsTopic", "KAFKA_EVENTS_TOPIC")

	bind("webhooks.queue", "WEBHOOKS_QUEUE")
	bind("webhooks.workers", "WEBHOOKS_WORKERS")
	bind("webhooks.bufferSize", "WEBHOOKS_BUFFER_SIZE")
	bind("webhooks.logSize", "WEBHOOKS_LOG_SIZE")

	bind("scheduler.enabled", "SCHEDULER_ENABLED")
	bind("scheduler.intervalMinutes", "SCHEDULER_INTERVAL_MINUTES")
	bind("scheduler.warmup", "SCHEDULER_WARMUP")
	bind("scheduler.historySize", "SCHEDULER_HISTORY_SIZE")
	bind("scheduler.pageSize", "SCHEDULER_PAGE_SIZE")
	bind("scheduler.maxPages", "SCHEDULER_MAX_PAGES")

	bind("credentials.enabled", "CREDENTIALS_ENABLED")
	bind("credentials.checkInterval", "CREDENTIALS_CHECK_INTERVAL")
	bind("credentials.refreshThreshold", "CREDENTIALS_REFRESH_THRESHOLD")

	bind("marketplaces.requestTimeout", "MARKETPLACES_REQUEST_TIMEOUT")
	bind("marketplaces.woocommerce.rateLimit", "WOOCOMMERCE_RATE_LIMIT")
	bind("marketplaces.mercadolibre.baseURL", "MERCADOLIBRE_BASE_URL")
	bind("marketplaces.mercadolibre.tokenURL", "MERCADOLIBRE_TOKEN_URL")
	bind("marketplaces.mercadolibre.rateLimit", "MERCADOLIBRE_RATE_LIMIT")
	bind("marketplaces.amazon.endpoint", "AMAZON_ENDPOINT")
	bind("marketplaces.amazon.lwaTokenURL", "AMAZON_LWA_TOKEN_URL")
	bind("marketplaces.amazon.rateLimit", "AMAZON_RATE_LIMIT")

	// Настройки метрик
	bind("metrics.enabled", "METRICS_ENABLED")
	bind("metrics.endpoint", "METRICS_ENDPOINT")
	bind("metrics.port", "METRICS_PORT")

	// Настройки безопасности
	bind("security.mode", "SECURITY_MODE")
	bind("security.jwtSecret", "JWT_SECRET")
	bind("security.corsAllowOrigins", "CORS_ALLOW_ORIGINS")
	bind("security.keycloak.serverURL", "KEYCLOAK_SERVER_URL")
	bind("security.keycloak.realm", "KEYCLOAK_REALM")
	bind("security.keycloak.clientID", "KEYCLOAK_CLIENT_ID")
	bind("security.keycloak.clientSecret", "KEYCLOAK_CLIENT_SECRET")
}
