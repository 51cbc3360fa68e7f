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
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/app"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Метрики для Prometheus
var (
	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_messages_processed_total",
		Help: "Общее количество обработанных уведомлений",
	}, []string{"source", "status"})

	messageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_message_processing_duration_seconds",
		Help:    "Длительность обработки уведомлений",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_active_goroutines",
		Help: "Количество активных горутин-обработчиков",
	})
)

// instrumentedProcessor добавляет метрики к обработке уведомлений
type instrumentedProcessor struct {
	next   services.NotificationProcessor
	logger interfaces.LoggerPort
}

func (p instrumentedProcessor) Process(ctx context.Context, n *models.Notification) error {
	startTime := time.Now()
	activeWorkers.Inc()
	defer activeWorkers.Dec()

	p.logger.DebugWithContext(ctx, "Получено уведомление",
		interfaces.LogField{Key: "id", Value: n.ID},
		interfaces.LogField{Key: "source", Value: n.Source},
		interfaces.LogField{Key: "topic", Value: n.Topic},
	)

	err := p.next.Process(ctx, n)

	status := "success"
	if err != nil {
		status = "error"
	}
	messagesProcessed.WithLabelValues(string(n.Source), status).Inc()
	messageProcessingDuration.WithLabelValues(string(n.Source)).Observe(time.Since(startTime).Seconds())
	return err
}

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
	log.Info("Инициализация воркера",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName + "-worker"},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	// Запускаем HTTP сервер для метрик если они включены
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Endpoint, promhttp.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Info("Запуск HTTP сервера для метрик",
				interfaces.LogField{Key: "addr", Value: metricsServer.Addr})
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Ошибка запуска HTTP сервера для метрик",
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}()
	}

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Ошибка инициализации зависимостей", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer application.Close()

	queue, err := application.KafkaQueue()
	if err != nil {
		log.Fatal("Воркеру нужна Kafka", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	reconciler := application.NewReconciler(queue)
	unsubscribe, err := queue.Consume(ctx, instrumentedProcessor{next: reconciler, logger: log})
	if err != nil {
		log.Fatal("Ошибка подписки на уведомления",
			interfaces.LogField{Key: "topic", Value: cfg.Kafka.WebhookTopic},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	log.Info("Подписка на уведомления установлена",
		interfaces.LogField{Key: "topic", Value: cfg.Kafka.WebhookTopic})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info("Воркер запущен и готов к обработке сообщений")
	<-quit
	log.Info("Получен сигнал завершения, выполняется graceful shutdown...")

	if err := unsubscribe(); err != nil {
		log.Error("Ошибка отмены подписки", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	log.Info("Воркер корректно завершил работу")
}
