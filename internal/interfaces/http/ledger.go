package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"moneyhistory/internal/domain/ledger"
)

// LedgerHandler exposes the local ledger over the control API. Everything
// here writes through the ledger service, so mutations bump the store
// revision and wake the sync debounce.
type LedgerHandler struct {
	svc *ledger.Service
}

func NewLedgerHandler(svc *ledger.Service) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

// Request DTOs

type AddTransactionRequest struct {
	Title    string `json:"title"`
	Amount   string `json:"amount"`
	Type     string `json:"type"`
	Category string `json:"category,omitempty"`
	Account  string `json:"account,omitempty"`
	Note     string `json:"note,omitempty"`
	Date     string `json:"date,omitempty"`
}

type SaveBudgetRequest struct {
	TotalIncome       string                `json:"totalIncome"`
	SavingsGoal       string                `json:"savingsGoal"`
	FixedExpenses     []FixedExpenseRequest `json:"fixedExpenses,omitempty"`
	AutoAdjustSavings bool                  `json:"autoAdjustSavings"`
}

type FixedExpenseRequest struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type AddDebtRequest struct {
	Person string `json:"person"`
	Amount string `json:"amount"`
	Type   string `json:"type"`
	Note   string `json:"note,omitempty"`
}

type AddRepaymentRequest struct {
	Amount string `json:"amount"`
	Note   string `json:"note,omitempty"`
}

// HandleTransactions routes the transaction collection.
func (h *LedgerHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListTransactions(w, r)
	case http.MethodPost:
		h.handleAddTransaction(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *LedgerHandler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.Transactions()
	if err != nil {
		log.Printf("Error listing transactions: %v", err)
		http.Error(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *LedgerHandler) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req AddTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	params := ledger.AddTransactionParams{
		Title:    req.Title,
		Amount:   req.Amount,
		Type:     req.Type,
		Category: req.Category,
		Account:  req.Account,
		Note:     req.Note,
	}
	if req.Date != "" {
		date, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			http.Error(w, "Invalid date, want RFC 3339", http.StatusBadRequest)
			return
		}
		params.Date = date
	}

	tx, err := h.svc.AddTransaction(params)
	switch {
	case errors.Is(err, ledger.ErrDuplicate):
		// The duplicate guard treats a same-second identical add as the
		// same tap, not an error worth surfacing.
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate-skipped"})
		return
	case errors.Is(err, ledger.ErrMissingField), errors.Is(err, ledger.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Printf("Error adding transaction: %v", err)
		http.Error(w, "Failed to add transaction", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// HandleTransactionByID deletes a single transaction.
func (h *LedgerHandler) HandleTransactionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.svc.DeleteTransaction(r.PathValue("id"))
	if errors.Is(err, ledger.ErrNotFound) {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error deleting transaction: %v", err)
		http.Error(w, "Failed to delete transaction", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBudget reads or replaces the budget config.
func (h *LedgerHandler) HandleBudget(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := h.svc.Budget()
		if err != nil {
			log.Printf("Error reading budget: %v", err)
			http.Error(w, "Failed to read budget", http.StatusInternalServerError)
			return
		}
		if cfg == nil {
			http.Error(w, "No budget configured", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	case http.MethodPut:
		var req SaveBudgetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		params := ledger.SaveBudgetParams{
			TotalIncome:       req.TotalIncome,
			SavingsGoal:       req.SavingsGoal,
			AutoAdjustSavings: req.AutoAdjustSavings,
		}
		for _, fe := range req.FixedExpenses {
			params.FixedExpenses = append(params.FixedExpenses, ledger.FixedExpenseParams{Name: fe.Name, Amount: fe.Amount})
		}

		cfg, err := h.svc.SaveBudget(params)
		if errors.Is(err, ledger.ErrInvalidAmount) || errors.Is(err, ledger.ErrMissingField) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			log.Printf("Error saving budget: %v", err)
			http.Error(w, "Failed to save budget", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleDebts routes the debt collection.
func (h *LedgerHandler) HandleDebts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		debts, err := h.svc.Debts()
		if err != nil {
			log.Printf("Error listing debts: %v", err)
			http.Error(w, "Failed to list debts", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, debts)

	case http.MethodPost:
		var req AddDebtRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		debt, err := h.svc.AddDebt(ledger.AddDebtParams{
			Person: req.Person, Amount: req.Amount, Type: req.Type, Note: req.Note,
		})
		if errors.Is(err, ledger.ErrMissingField) || errors.Is(err, ledger.ErrInvalidAmount) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			log.Printf("Error adding debt: %v", err)
			http.Error(w, "Failed to add debt", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, debt)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleDebtByID deletes a debt.
func (h *LedgerHandler) HandleDebtByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.svc.DeleteDebt(r.PathValue("id"))
	if errors.Is(err, ledger.ErrNotFound) {
		http.Error(w, "Debt not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error deleting debt: %v", err)
		http.Error(w, "Failed to delete debt", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRepayments records a repayment against a debt.
func (h *LedgerHandler) HandleRepayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AddRepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	debt, err := h.svc.AddRepayment(r.PathValue("id"), ledger.AddRepaymentParams{
		Amount: req.Amount, Note: req.Note,
	})
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, "Debt not found", http.StatusNotFound)
		return
	case errors.Is(err, ledger.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Printf("Error adding repayment: %v", err)
		http.Error(w, "Failed to add repayment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

// HandleExportCSV streams every transaction as CSV.
func (h *LedgerHandler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="money-history.csv"`)
	if err := h.svc.ExportCSV(w); err != nil {
		log.Printf("Error exporting CSV: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
