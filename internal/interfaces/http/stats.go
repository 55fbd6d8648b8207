package http

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"moneyhistory/internal/domain/ledger"
	"moneyhistory/internal/domain/stats"
)

// StatsHandler computes the derived report on demand. Nothing is cached;
// the computation is a single pass over the ledger.
type StatsHandler struct {
	svc *ledger.Service
	now func() time.Time
}

func NewStatsHandler(svc *ledger.Service) *StatsHandler {
	return &StatsHandler{svc: svc, now: time.Now}
}

// HandleStats serves the monthly report. Defaults to the current month;
// ?month=1..12&year=YYYY selects another.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := h.now()
	month := now.Month()
	year := now.Year()
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m < 1 || m > 12 {
			http.Error(w, "Invalid month", http.StatusBadRequest)
			return
		}
		month = time.Month(m)
	}
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1970 {
			http.Error(w, "Invalid year", http.StatusBadRequest)
			return
		}
		year = y
	}

	txs, err := h.svc.Transactions()
	if err != nil {
		log.Printf("Error reading transactions for stats: %v", err)
		http.Error(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}
	budget, err := h.svc.Budget()
	if err != nil {
		log.Printf("Error reading budget for stats: %v", err)
		http.Error(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}

	report := stats.Compute(stats.Input{
		Transactions: txs,
		Budget:       budget,
		Month:        month,
		Year:         year,
		Now:          now,
	})
	writeJSON(w, http.StatusOK, report)
}

// HandleProfileStats serves all-time usage figures.
func (h *StatsHandler) HandleProfileStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	txs, err := h.svc.Transactions()
	if err != nil {
		log.Printf("Error reading transactions for profile stats: %v", err)
		http.Error(w, "Failed to compute profile stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats.Profile(txs, h.now().Location()))
}
