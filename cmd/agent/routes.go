package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	httphandlers "moneyhistory/internal/interfaces/http"
	"moneyhistory/internal/shared/middleware"
)

// SetupRoutes configures the control API routes.
func SetupRoutes(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Health and metrics
	mux.HandleFunc("/health", httphandlers.HandleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	// Ledger
	mux.HandleFunc("/api/transactions", deps.LedgerHandler.HandleTransactions)
	mux.HandleFunc("/api/transactions/{id}", deps.LedgerHandler.HandleTransactionByID)
	mux.HandleFunc("/api/budget", deps.LedgerHandler.HandleBudget)
	mux.HandleFunc("/api/debts", deps.LedgerHandler.HandleDebts)
	mux.HandleFunc("/api/debts/{id}", deps.LedgerHandler.HandleDebtByID)
	mux.HandleFunc("/api/debts/{id}/repayments", deps.LedgerHandler.HandleRepayments)
	mux.HandleFunc("/api/export/csv", deps.LedgerHandler.HandleExportCSV)

	// Profile and app lock
	mux.HandleFunc("/api/profile", deps.ProfileHandler.HandleProfile)
	mux.HandleFunc("/api/lock/enable", deps.ProfileHandler.HandleLockEnable)
	mux.HandleFunc("/api/lock/verify", deps.ProfileHandler.HandleLockVerify)
	mux.HandleFunc("/api/lock/disable", deps.ProfileHandler.HandleLockDisable)
	mux.HandleFunc("/api/reset", deps.ProfileHandler.HandleReset)

	// Statistics
	mux.HandleFunc("/api/stats", deps.StatsHandler.HandleStats)
	mux.HandleFunc("/api/stats/profile", deps.StatsHandler.HandleProfileStats)

	// Sync and client events
	mux.HandleFunc("/api/sync/now", deps.SyncHandler.HandleSyncNow)
	mux.HandleFunc("/api/sync/status", deps.SyncHandler.HandleStatus)
	mux.HandleFunc("/api/sync/restore", deps.SyncHandler.HandleRestore)
	mux.HandleFunc("/api/events/online", deps.SyncHandler.HandleOnlineEvent)
	mux.HandleFunc("/api/events/visible", deps.SyncHandler.HandleVisibleEvent)
	mux.HandleFunc("/api/events/location", deps.SyncHandler.HandleLocationEvent)

	return middleware.Logging(middleware.Telemetry(mux))
}
