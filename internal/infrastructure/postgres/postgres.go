package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Options параметры подключения к PostgreSQL
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Timeout  time.Duration
	PoolSize int
}

// NewPool создает пул соединений и проверяет доступность базы
func NewPool(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	connString, err := utils.GenerateConnectionString(
		opts.Host, opts.User, opts.Password, opts.DBName, opts.SSLMode,
		opts.Port, opts.PoolSize, opts.Timeout,
	)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres settings: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	if opts.PoolSize > 0 {
		poolConfig.MaxConns = int32(opts.PoolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	pingCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}
