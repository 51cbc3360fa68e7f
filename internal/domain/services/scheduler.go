package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

// Importer сливает каталог одной площадки
type Importer interface {
	Import(ctx context.Context, m models.Marketplace) (*models.ImportResult, error)
}

// SchedulerConfig параметры планировщика опроса
type SchedulerConfig struct {
	Interval    time.Duration
	Warmup      time.Duration
	HistorySize int
}

const (
	DefaultSyncInterval = 15 * time.Minute
	MinSyncInterval     = time.Minute
	MaxSyncInterval     = 7 * 24 * time.Hour
)

// Scheduler периодически импортирует каталоги подключенных площадок.
// Одновременно выполняется не больше одного запуска.
type Scheduler struct {
	connections ConnectionRepository
	importer    Importer
	cfg         SchedulerConfig
	logger      interfaces.LoggerPort
	now         func() time.Time

	running atomic.Bool
	reset   chan struct{}

	mu         sync.RWMutex
	interval   time.Duration
	history    []models.SyncResult
	lastSync   *time.Time
	lastResult *models.SyncResult
	nextSync   *time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(connections ConnectionRepository, importer Importer, cfg SchedulerConfig, logger interfaces.LoggerPort) *Scheduler {
	if cfg.Interval < MinSyncInterval {
		cfg.Interval = DefaultSyncInterval
	}
	if cfg.Warmup <= 0 {
		cfg.Warmup = time.Minute
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	return &Scheduler{
		connections: connections,
		importer:    importer,
		cfg:         cfg,
		logger:      logger.WithField("component", "scheduler"),
		now:         time.Now,
		reset:       make(chan struct{}, 1),
		interval:    cfg.Interval,
	}
}

// Start запускает таймер: первый запуск через Warmup, затем каждые Interval
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("планировщик запущен",
		interfaces.LogField{Key: "warmup", Value: s.cfg.Warmup.String()},
		interfaces.LogField{Key: "interval", Value: s.getInterval().String()},
	)
}

// Stop останавливает таймер и ждет завершения текущего запуска
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("планировщик остановлен")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.cfg.Warmup)
	defer timer.Stop()
	s.setNext(s.cfg.Warmup)

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.nextSync = nil
			s.mu.Unlock()
			return

		case <-s.reset:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			interval := s.getInterval()
			timer.Reset(interval)
			s.setNext(interval)

		case <-timer.C:
			interval := s.getInterval()
			timer.Reset(interval)
			s.setNext(interval)

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.RunFullSync(ctx)
			}()
		}
	}
}

// RunFullSync импортирует все подключенные площадки по очереди.
// Если запуск уже идет, сразу возвращает пустой результат.
func (s *Scheduler) RunFullSync(ctx context.Context) []models.SyncResult {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.InfoWithContext(ctx, "синхронизация уже выполняется, пропуск")
		schedulerRunsTotal.WithLabelValues("skipped").Inc()
		return []models.SyncResult{}
	}
	defer s.running.Store(false)

	results := []models.SyncResult{}

	conns, err := s.connections.ListConnections(ctx)
	if err != nil {
		s.logger.ErrorWithContext(ctx, "не удалось получить подключения", interfaces.LogField{Key: "error", Value: err.Error()})
		schedulerRunsTotal.WithLabelValues("failed").Inc()
		return results
	}

	for _, conn := range conns {
		if !conn.IsConnected {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		result := s.syncMarketplace(ctx, conn.Marketplace)
		results = append(results, result)
		s.record(result)
	}

	now := s.now().UTC()
	s.mu.Lock()
	s.lastSync = &now
	if len(results) > 0 {
		last := results[len(results)-1]
		s.lastResult = &last
	}
	s.mu.Unlock()

	schedulerRunsTotal.WithLabelValues("completed").Inc()
	s.logger.InfoWithContext(ctx, "полная синхронизация завершена", interfaces.LogField{Key: "marketplaces", Value: len(results)})
	return results
}

// TriggerSync импортирует одну площадку вне расписания
func (s *Scheduler) TriggerSync(ctx context.Context, m models.Marketplace) (*models.SyncResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	result := s.syncMarketplace(ctx, m)
	s.record(result)

	now := s.now().UTC()
	s.mu.Lock()
	s.lastSync = &now
	s.lastResult = &result
	s.mu.Unlock()

	return &result, nil
}

func (s *Scheduler) syncMarketplace(ctx context.Context, m models.Marketplace) models.SyncResult {
	result := models.SyncResult{
		Marketplace: m,
		Errors:      []string{},
		StartedAt:   s.now().UTC(),
	}

	imported, err := s.importer.Import(ctx, m)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		s.logger.WarnWithContext(ctx, "ошибка синхронизации площадки",
			interfaces.LogField{Key: "marketplace", Value: m},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	} else {
		result.Imported = imported.Imported
		result.Updated = imported.Updated
		result.Skipped = imported.Skipped
		result.Failed = imported.Failed
		result.Errors = append(result.Errors, imported.Errors...)
	}

	result.CompletedAt = s.now().UTC()
	return result
}

func (s *Scheduler) record(result models.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, result)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = append([]models.SyncResult(nil), s.history[over:]...)
	}
}

// Status текущее состояние планировщика
func (s *Scheduler) Status() models.SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := models.SchedulerStatus{
		IsRunning:       s.running.Load(),
		IntervalMinutes: int(s.interval / time.Minute),
	}
	if s.lastSync != nil {
		t := *s.lastSync
		status.LastSync = &t
	}
	if s.lastResult != nil {
		r := *s.lastResult
		status.LastResult = &r
	}
	if s.nextSync != nil {
		t := *s.nextSync
		status.NextSync = &t
	}
	return status
}

// History возвращает до limit последних результатов, новые первыми
func (s *Scheduler) History(limit int) []models.SyncResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]models.SyncResult, 0, limit)
	for i := len(s.history) - 1; i >= len(s.history)-limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// SetInterval меняет период и перезапускает таймер; текущий запуск не прерывается
func (s *Scheduler) SetInterval(minutes int) error {
	if minutes < int(MinSyncInterval/time.Minute) || minutes > int(MaxSyncInterval/time.Minute) {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, minutes)
	}
	interval := time.Duration(minutes) * time.Minute

	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()

	select {
	case s.reset <- struct{}{}:
	default:
	}

	s.logger.Info("интервал синхронизации изменен", interfaces.LogField{Key: "minutes", Value: minutes})
	return nil
}

func (s *Scheduler) getInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

func (s *Scheduler) setNext(d time.Duration) {
	next := s.now().UTC().Add(d)
	s.mu.Lock()
	s.nextSync = &next
	s.mu.Unlock()
}
