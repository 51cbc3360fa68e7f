package services

import (
	"errors"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/marketplace"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrNotConnected       = errors.New("marketplace is not connected")
	ErrSyncInProgress     = errors.New("sync already in progress")
	ErrInvalidInterval    = errors.New("interval must be between 1 minute and 7 days")
	ErrUnsupportedTopic   = errors.New("unsupported webhook topic")
	ErrStockRequired      = errors.New("stock must be a non-negative integer")
	ErrInvalidProduct     = errors.New("invalid product")
	ErrQueueFull          = errors.New("webhook queue is full")

	ErrRefreshNotSupported = errors.New("marketplace does not support token refresh")

	// общие с пакетом адаптеров
	ErrUnsupportedMarketplace = marketplace.ErrUnsupportedMarketplace
	ErrMissingCredentials     = marketplace.ErrMissingRefreshCredentials
)
