package services

import (
	"context"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/marketplace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type stubRefresher struct {
	token *oauth2.Token
	err   error
	calls int
}

func (s *stubRefresher) Refresh(_ context.Context, conn *models.Connection) (*oauth2.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if conn.Credentials.RefreshToken == "" {
		return nil, marketplace.ErrMissingRefreshCredentials
	}
	return s.token, nil
}

func saveConn(t *testing.T, store *storage.MemoryStorage, m models.Marketplace, expiresIn time.Duration) {
	t.Helper()
	expires := time.Now().Add(expiresIn)
	require.NoError(t, store.SaveConnection(context.Background(), &models.Connection{
		Marketplace:    m,
		IsConnected:    true,
		Credentials:    models.Credentials{AccessToken: "old", RefreshToken: "r1", APIKey: "id", APISecret: "secret"},
		TokenExpiresAt: &expires,
	}))
}

func TestCredentialManager_RefreshesExpiringTokens(t *testing.T) {
	store := storage.NewMemoryStorage()
	saveConn(t, store, models.MarketplaceMercadoLibre, 10*time.Minute)
	saveConn(t, store, models.MarketplaceAmazon, 5*time.Hour)
	saveConn(t, store, models.MarketplaceWooCommerce, -time.Hour)

	expiry := time.Now().Add(6 * time.Hour).UTC()
	refresher := &stubRefresher{token: &oauth2.Token{AccessToken: "new", RefreshToken: "r2", Expiry: expiry}}
	manager := NewCredentialManager(store, refresher, CredentialConfig{}, nopLogger())

	manager.CheckAndRefresh(context.Background())

	assert.Equal(t, 1, refresher.calls, "only the mercadolibre token is inside the threshold")

	conn, err := store.GetConnection(context.Background(), models.MarketplaceMercadoLibre)
	require.NoError(t, err)
	assert.Equal(t, "new", conn.Credentials.AccessToken)
	assert.Equal(t, "r2", conn.Credentials.RefreshToken)
	assert.True(t, conn.IsConnected)
	require.NotNil(t, conn.TokenExpiresAt)
	assert.WithinDuration(t, expiry, *conn.TokenExpiresAt, time.Second)

	amazon, err := store.GetConnection(context.Background(), models.MarketplaceAmazon)
	require.NoError(t, err)
	assert.Equal(t, "old", amazon.Credentials.AccessToken)
}

func TestCredentialManager_RefreshFailureDemotes(t *testing.T) {
	store := storage.NewMemoryStorage()
	saveConn(t, store, models.MarketplaceMercadoLibre, -time.Minute)

	refresher := &stubRefresher{err: &marketplace.Error{Marketplace: models.MarketplaceMercadoLibre, Op: "refresh token", Kind: marketplace.KindAuth, Message: "invalid_grant"}}
	manager := NewCredentialManager(store, refresher, CredentialConfig{}, nopLogger())

	manager.CheckAndRefresh(context.Background())

	conn, err := store.GetConnection(context.Background(), models.MarketplaceMercadoLibre)
	require.NoError(t, err)
	assert.False(t, conn.IsConnected)

	outcome := manager.ForceRefresh(context.Background(), models.MarketplaceMercadoLibre)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Message, "invalid_grant")
}

func TestCredentialManager_ForceRefresh(t *testing.T) {
	store := storage.NewMemoryStorage()
	saveConn(t, store, models.MarketplaceMercadoLibre, 5*time.Hour)
	saveConn(t, store, models.MarketplaceWooCommerce, 5*time.Hour)

	refresher := &stubRefresher{token: &oauth2.Token{AccessToken: "forced", RefreshToken: "r1"}}
	manager := NewCredentialManager(store, refresher, CredentialConfig{}, nopLogger())
	ctx := context.Background()

	assert.Equal(t, models.RefreshOutcome{Success: true, Message: "Token refreshed successfully"}, manager.ForceRefresh(ctx, models.MarketplaceMercadoLibre))
	assert.Equal(t, models.RefreshOutcome{Message: "Connection not found"}, manager.ForceRefresh(ctx, models.MarketplaceAmazon))
	assert.Equal(t, models.RefreshOutcome{Message: "Marketplace does not support token refresh"}, manager.ForceRefresh(ctx, models.MarketplaceWooCommerce))

	conn, err := store.GetConnection(ctx, models.MarketplaceMercadoLibre)
	require.NoError(t, err)
	assert.Equal(t, "forced", conn.Credentials.AccessToken)
	assert.Nil(t, conn.TokenExpiresAt, "grant without expiry clears the stored one")
}

func TestCredentialManager_TokenStatus(t *testing.T) {
	store := storage.NewMemoryStorage()
	saveConn(t, store, models.MarketplaceMercadoLibre, 5*time.Hour+10*time.Minute)
	saveConn(t, store, models.MarketplaceAmazon, -2*time.Hour)
	manager := NewCredentialManager(store, &stubRefresher{}, CredentialConfig{}, nopLogger())
	ctx := context.Background()

	status, err := manager.TokenStatus(ctx, models.MarketplaceMercadoLibre)
	require.NoError(t, err)
	assert.True(t, status.HasToken)
	assert.True(t, status.IsValid)
	require.NotNil(t, status.HoursUntilExpiry)
	assert.Equal(t, 5, *status.HoursUntilExpiry)

	expired, err := manager.TokenStatus(ctx, models.MarketplaceAmazon)
	require.NoError(t, err)
	assert.False(t, expired.IsValid)
	assert.Equal(t, -2, *expired.HoursUntilExpiry)

	_, err = manager.TokenStatus(ctx, models.MarketplaceWooCommerce)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}
