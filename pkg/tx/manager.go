package tx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txKeyType - ключ для хранения транзакции в контексте. Используем приватный тип, чтобы избежать коллизий.
type txKeyType struct{}

var txKey = txKeyType{}

// TxManager управляет жизненным циклом транзакций БД.
type TxManager interface {
	// Do выполняет fn внутри транзакции.
	// Ошибка fn откатывает транзакцию, nil фиксирует ее.
	// Контекст, передаваемый в fn, содержит саму транзакцию.
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// pgxTxManager - реализация TxManager для pgx.
type pgxTxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager создает новый менеджер транзакций.
func NewTxManager(pool *pgxpool.Pool) TxManager {
	return &pgxTxManager{pool: pool}
}

// Do реализует метод интерфейса TxManager.
func (m *pgxTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	// вложенный вызов переиспользует внешнюю транзакцию
	if _, ok := GetTxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx.Begin failed: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	// после Commit откат вернет ErrTxClosed, это ожидаемо
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx.Commit failed: %w", err)
	}
	return nil
}

// nopTxManager выполняет fn без транзакции. Используется хранилищами без поддержки транзакций.
type nopTxManager struct{}

// NewNopTxManager создает менеджер, который просто вызывает fn
func NewNopTxManager() TxManager {
	return nopTxManager{}
}

func (nopTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// GetTxFromContext извлекает транзакцию из контекста.
func GetTxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return tx, ok
}
