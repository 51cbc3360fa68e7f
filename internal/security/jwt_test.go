package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManagerRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, "catalog-sync")

	token, err := m.Generate("u-1", "operator", []string{"catalog-admin"})
	require.NoError(t, err)

	principal, err := m.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", principal.Subject)
	assert.Equal(t, "operator", principal.Username)
	assert.True(t, principal.HasRole("catalog-admin"))
}

func TestJWTManagerRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, "catalog-sync")

	other := NewJWTManager("other", time.Hour, "catalog-sync")
	foreign, err := other.Generate("u-1", "x", nil)
	require.NoError(t, err)

	_, err = m.Verify(context.Background(), foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Verify(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewJWTManager("secret", time.Minute, "catalog-sync")
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Generate("u-1", "x", nil)
	require.NoError(t, err)

	_, err = m.Verify(context.Background(), old)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestKeycloakRoles(t *testing.T) {
	k := newKeycloakVerifier(nil, "catalog-api")

	var claims KeycloakClaims
	claims.RealmAccess.Roles = []string{"offline_access"}
	claims.ResourceAccess = map[string]struct {
		Roles []string `json:"roles"`
	}{
		"catalog-api": {Roles: []string{"catalog-admin"}},
		"other":       {Roles: []string{"ignored"}},
	}

	assert.ElementsMatch(t, []string{"offline_access", "catalog-admin"}, k.roles(&claims))
}
