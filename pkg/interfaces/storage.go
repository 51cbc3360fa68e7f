package interfaces

import "context"

// StoragePort определяет интерфейс для работы с постоянным хранилищем данных
type StoragePort interface {
	// Ping проверяет доступность хранилища
	Ping(ctx context.Context) error

	// Close закрывает соединение с хранилищем
	Close() error
}
