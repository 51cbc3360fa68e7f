package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_pushes_total",
			Help: "Outbound updates to marketplaces by outcome",
		},
		[]string{"marketplace", "outcome"},
	)

	importItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_import_items_total",
			Help: "Remote items merged into the catalog by result",
		},
		[]string{"marketplace", "result"},
	)

	schedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_scheduler_runs_total",
			Help: "Poll scheduler runs by status",
		},
		[]string{"status"},
	)

	webhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_webhooks_total",
			Help: "Webhook notifications by source and status",
		},
		[]string{"source", "status"},
	)

	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_token_refresh_total",
			Help: "Token refresh attempts by marketplace and status",
		},
		[]string{"marketplace", "status"},
	)
)

// outcomeLabel сводит итог отправки к метке synced, skipped или error
func outcomeLabel(outcome string) string {
	switch {
	case outcome == "synced":
		return "synced"
	case len(outcome) >= 7 && outcome[:7] == "skipped":
		return "skipped"
	default:
		return "error"
	}
}
