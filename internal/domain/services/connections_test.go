package services

import (
	"context"
	"errors"
	"testing"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionService_SaveTestsCredentials(t *testing.T) {
	env := newTestEnv(t)
	svc := NewConnectionService(env.store, env.adapters, nopLogger())
	ctx := context.Background()

	result, err := svc.SaveConnection(ctx, models.MarketplaceWooCommerce, ConnectionInput{
		Credentials: models.Credentials{APIURL: "https://shop.example", APIKey: "ck", APISecret: "cs"},
	})
	require.NoError(t, err)
	assert.True(t, result.Connected)
	assert.Equal(t, "https://shop.example", result.Connection.APIURL)

	env.adapters[models.MarketplaceWooCommerce].testErr = errors.New("woocommerce test connection: status 401: invalid key")
	result, err = svc.TestConnection(ctx, models.MarketplaceWooCommerce)
	require.NoError(t, err)
	assert.False(t, result.Connected)
	assert.Contains(t, result.Message, "invalid key")

	conn, err := env.store.GetConnection(ctx, models.MarketplaceWooCommerce)
	require.NoError(t, err)
	assert.False(t, conn.IsConnected)
	assert.Equal(t, "cs", conn.Credentials.APISecret)

	views, err := svc.ListConnections(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)

	require.NoError(t, svc.DeleteConnection(ctx, models.MarketplaceWooCommerce))
	_, err = svc.GetConnection(ctx, models.MarketplaceWooCommerce)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
	assert.ErrorIs(t, svc.DeleteConnection(ctx, models.MarketplaceWooCommerce), ErrConnectionNotFound)
}
