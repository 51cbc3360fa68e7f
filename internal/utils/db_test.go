package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateConnectionString(t *testing.T) {
	dsn, err := GenerateConnectionString("localhost", "sync", "p@ss word", "catalog", "disable", 5432, 10, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5432 user=sync password='p@ss word' dbname=catalog sslmode=disable connect_timeout=5", dsn)
}

func TestGenerateConnectionStringValidation(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		port    int
		sslMode string
		want    error
	}{
		{"empty host", "", 5432, "disable", ErrStorageEmptyHostName},
		{"bad port", "db", 70000, "disable", ErrStorageInvalidPortNumber},
		{"bad ssl", "db", 5432, "sometimes", ErrStorageInvalidSslMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateConnectionString(tt.host, "u", "", "catalog", tt.sslMode, tt.port, 0, 0)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
