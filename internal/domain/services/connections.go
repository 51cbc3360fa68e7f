package services

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/marketplace"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

// demoteConnection снимает признак подключения после отказа в авторизации.
// Адаптеры площадки после этого не вызываются до переподключения.
func demoteConnection(ctx context.Context, store ConnectionRepository, m models.Marketplace, logger interfaces.LoggerPort) {
	conn, err := store.GetConnection(ctx, m)
	if err != nil || conn == nil || !conn.IsConnected {
		return
	}

	conn.IsConnected = false
	conn.UpdatedAt = time.Now().UTC()
	if err := store.SaveConnection(ctx, conn); err != nil {
		logger.ErrorWithContext(ctx, "не удалось отключить площадку",
			interfaces.LogField{Key: "marketplace", Value: m},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return
	}

	logger.WarnWithContext(ctx, "площадка отключена из-за ошибки авторизации",
		interfaces.LogField{Key: "marketplace", Value: m},
	)
}

// ConnectionInput учетные данные, присланные оператором
type ConnectionInput struct {
	models.Credentials
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
}

// ConnectionTestResult подключение после проверки учетных данных
type ConnectionTestResult struct {
	Connection models.ConnectionView `json:"connection"`
	Connected  bool                  `json:"connected"`
	Message    string                `json:"message,omitempty"`
}

// ConnectionService управление подключениями площадок
type ConnectionService struct {
	store    ConnectionRepository
	adapters marketplace.Factory
	logger   interfaces.LoggerPort
	now      func() time.Time
}

func NewConnectionService(store ConnectionRepository, adapters marketplace.Factory, logger interfaces.LoggerPort) *ConnectionService {
	return &ConnectionService{
		store:    store,
		adapters: adapters,
		logger:   logger.WithField("component", "connections"),
		now:      time.Now,
	}
}

// ListConnections возвращает подключения без секретов
func (s *ConnectionService) ListConnections(ctx context.Context) ([]models.ConnectionView, error) {
	conns, err := s.store.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	views := make([]models.ConnectionView, 0, len(conns))
	for _, c := range conns {
		views = append(views, c.View())
	}
	return views, nil
}

func (s *ConnectionService) GetConnection(ctx context.Context, m models.Marketplace) (*models.ConnectionView, error) {
	conn, err := s.load(ctx, m)
	if err != nil {
		return nil, err
	}
	view := conn.View()
	return &view, nil
}

// SaveConnection сохраняет учетные данные и сразу проверяет их.
// Результат проверки записывается в isConnected.
func (s *ConnectionService) SaveConnection(ctx context.Context, m models.Marketplace, input ConnectionInput) (*ConnectionTestResult, error) {
	conn, err := s.store.GetConnection(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	now := s.now().UTC()
	if conn == nil {
		conn = &models.Connection{Marketplace: m, CreatedAt: now}
	}
	conn.Credentials = input.Credentials
	conn.TokenExpiresAt = input.TokenExpiresAt

	return s.testAndSave(ctx, conn)
}

// TestConnection повторно проверяет сохраненные учетные данные
func (s *ConnectionService) TestConnection(ctx context.Context, m models.Marketplace) (*ConnectionTestResult, error) {
	conn, err := s.load(ctx, m)
	if err != nil {
		return nil, err
	}
	return s.testAndSave(ctx, conn)
}

func (s *ConnectionService) DeleteConnection(ctx context.Context, m models.Marketplace) error {
	if _, err := s.load(ctx, m); err != nil {
		return err
	}
	if err := s.store.DeleteConnection(ctx, m); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	s.logger.InfoWithContext(ctx, "подключение удалено", interfaces.LogField{Key: "marketplace", Value: m})
	return nil
}

func (s *ConnectionService) load(ctx context.Context, m models.Marketplace) (*models.Connection, error) {
	conn, err := s.store.GetConnection(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

func (s *ConnectionService) testAndSave(ctx context.Context, conn *models.Connection) (*ConnectionTestResult, error) {
	result := &ConnectionTestResult{}

	adapter, err := s.adapters.Adapter(conn)
	if err == nil {
		err = adapter.TestConnection(ctx)
	}
	if err != nil {
		result.Message = err.Error()
		s.logger.WarnWithContext(ctx, "проверка подключения не прошла",
			interfaces.LogField{Key: "marketplace", Value: conn.Marketplace},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}

	conn.IsConnected = err == nil
	conn.UpdatedAt = s.now().UTC()
	if err := s.store.SaveConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}

	result.Connected = conn.IsConnected
	result.Connection = conn.View()
	return result, nil
}
