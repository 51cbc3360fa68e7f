package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/marketplace"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

// CredentialConfig периодичность проверки токенов
type CredentialConfig struct {
	CheckInterval    time.Duration
	RefreshThreshold time.Duration
}

// CredentialManager обновляет короткоживущие токены площадок.
// Товары не трогает: только включает и отключает подключения.
type CredentialManager struct {
	store     ConnectionRepository
	refresher marketplace.TokenRefresher
	cfg       CredentialConfig
	logger    interfaces.LoggerPort
	now       func() time.Time

	// обновления одного refresh token не должны идти параллельно
	refreshMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCredentialManager(store ConnectionRepository, refresher marketplace.TokenRefresher, cfg CredentialConfig, logger interfaces.LoggerPort) *CredentialManager {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Minute
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = time.Hour
	}
	return &CredentialManager{
		store:     store,
		refresher: refresher,
		cfg:       cfg,
		logger:    logger.WithField("component", "credentials"),
		now:       time.Now,
	}
}

// Start проверяет токены сразу и затем каждые CheckInterval
func (c *CredentialManager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.cfg.CheckInterval)
		defer ticker.Stop()

		c.CheckAndRefresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CheckAndRefresh(ctx)
			}
		}
	}()

	c.logger.Info("проверка токенов запущена", interfaces.LogField{Key: "interval", Value: c.cfg.CheckInterval.String()})
}

func (c *CredentialManager) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// CheckAndRefresh обновляет токены, истекающие в пределах RefreshThreshold или уже истекшие
func (c *CredentialManager) CheckAndRefresh(ctx context.Context) {
	conns, err := c.store.ListConnections(ctx)
	if err != nil {
		c.logger.ErrorWithContext(ctx, "не удалось получить подключения", interfaces.LogField{Key: "error", Value: err.Error()})
		return
	}

	for _, conn := range conns {
		if !conn.Marketplace.UsesRefreshToken() || conn.Credentials.RefreshToken == "" {
			continue
		}
		if conn.TokenExpiresAt == nil {
			c.logger.DebugWithContext(ctx, "у токена не задан срок действия", interfaces.LogField{Key: "marketplace", Value: conn.Marketplace})
			continue
		}

		untilExpiry := conn.TokenExpiresAt.Sub(c.now())
		if untilExpiry >= c.cfg.RefreshThreshold {
			continue
		}

		c.logger.InfoWithContext(ctx, "токен истекает, обновление",
			interfaces.LogField{Key: "marketplace", Value: conn.Marketplace},
			interfaces.LogField{Key: "until_expiry", Value: untilExpiry.String()},
		)
		if err := c.refresh(ctx, conn); err != nil {
			c.logger.ErrorWithContext(ctx, "не удалось обновить токен",
				interfaces.LogField{Key: "marketplace", Value: conn.Marketplace},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
	}
}

// ForceRefresh обновляет токен площадки немедленно
func (c *CredentialManager) ForceRefresh(ctx context.Context, m models.Marketplace) models.RefreshOutcome {
	conn, err := c.store.GetConnection(ctx, m)
	if err != nil {
		return models.RefreshOutcome{Message: err.Error()}
	}
	if conn == nil {
		return models.RefreshOutcome{Message: "Connection not found"}
	}
	if !m.UsesRefreshToken() {
		return models.RefreshOutcome{Message: "Marketplace does not support token refresh"}
	}

	if err := c.refresh(ctx, conn); err != nil {
		return models.RefreshOutcome{Message: err.Error()}
	}
	return models.RefreshOutcome{Success: true, Message: "Token refreshed successfully"}
}

// TokenStatus состояние токена подключения
func (c *CredentialManager) TokenStatus(ctx context.Context, m models.Marketplace) (*models.TokenStatus, error) {
	conn, err := c.store.GetConnection(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}

	status := &models.TokenStatus{HasToken: conn.Credentials.AccessToken != ""}
	status.IsValid = status.HasToken
	if conn.TokenExpiresAt != nil {
		expiresAt := *conn.TokenExpiresAt
		until := expiresAt.Sub(c.now())
		hours := int(math.Round(until.Hours()))

		status.ExpiresAt = &expiresAt
		status.HoursUntilExpiry = &hours
		status.IsValid = status.HasToken && until > 0
	}
	return status, nil
}

func (c *CredentialManager) refresh(ctx context.Context, conn *models.Connection) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// перечитываем: пока ждали, токен мог обновить другой вызов
	current, err := c.store.GetConnection(ctx, conn.Marketplace)
	if err != nil {
		return fmt.Errorf("failed to load connection: %w", err)
	}
	if current == nil {
		return ErrConnectionNotFound
	}

	token, err := c.refresher.Refresh(ctx, current)
	if err != nil {
		tokenRefreshTotal.WithLabelValues(string(current.Marketplace), "failed").Inc()
		if errors.Is(err, ErrUnsupportedMarketplace) {
			return ErrRefreshNotSupported
		}
		current.IsConnected = false
		current.UpdatedAt = c.now().UTC()
		if saveErr := c.store.SaveConnection(ctx, current); saveErr != nil {
			return fmt.Errorf("%w (save failed: %v)", err, saveErr)
		}
		return err
	}

	current.Credentials.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		current.Credentials.RefreshToken = token.RefreshToken
	}
	if token.Expiry.IsZero() {
		current.TokenExpiresAt = nil
	} else {
		expiry := token.Expiry.UTC()
		current.TokenExpiresAt = &expiry
	}
	current.IsConnected = true
	current.UpdatedAt = c.now().UTC()

	if err := c.store.SaveConnection(ctx, current); err != nil {
		return fmt.Errorf("failed to save refreshed token: %w", err)
	}

	tokenRefreshTotal.WithLabelValues(string(current.Marketplace), "succeeded").Inc()
	c.logger.InfoWithContext(ctx, "токен обновлен",
		interfaces.LogField{Key: "marketplace", Value: current.Marketplace},
		interfaces.LogField{Key: "expires_at", Value: current.TokenExpiresAt},
	)
	return nil
}
