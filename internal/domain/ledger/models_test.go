package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestDebtRemaining(t *testing.T) {
	tests := []struct {
		name       string
		amount     string
		repayments []string
		remaining  string
		status     string
	}{
		{"no repayments", "1000", nil, "1000", StatusPending},
		{"partial", "1000", []string{"400"}, "600", StatusPending},
		{"exact", "1000", []string{"400", "600"}, "0", StatusSettled},
		{"overpaid floors at zero", "1000", []string{"700", "700"}, "0", StatusSettled},
		{"decimal amounts", "99.90", []string{"33.30", "33.30"}, "33.3", StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			debt := Debt{Amount: d(tt.amount)}
			for _, r := range tt.repayments {
				debt.Repayments = append(debt.Repayments, Repayment{Amount: d(r)})
			}

			if got := debt.Remaining(); !got.Equal(d(tt.remaining)) {
				t.Errorf("Remaining() = %s, want %s", got, tt.remaining)
			}
			if got := debt.DeriveStatus(); got != tt.status {
				t.Errorf("DeriveStatus() = %s, want %s", got, tt.status)
			}
		})
	}
}

// Settled exactly when nothing remains, in both directions.
func TestDebtStatusInvariant(t *testing.T) {
	amounts := []string{"1", "50", "1000", "12345.67"}
	repaymentSets := [][]string{nil, {"0.01"}, {"500"}, {"1000"}, {"600", "400"}, {"12345.67"}}

	for _, a := range amounts {
		for _, rs := range repaymentSets {
			debt := Debt{Amount: d(a)}
			for _, r := range rs {
				debt.Repayments = append(debt.Repayments, Repayment{Amount: d(r)})
			}
			settled := debt.DeriveStatus() == StatusSettled
			if settled != debt.Remaining().IsZero() {
				t.Errorf("amount=%s repayments=%v: settled=%v but remaining=%s",
					a, rs, settled, debt.Remaining())
			}
		}
	}
}

func TestBudgetTotalFixedCosts(t *testing.T) {
	cfg := BudgetConfig{FixedExpenses: []FixedExpense{
		{Name: "rent", Amount: d("15000")},
		{Name: "internet", Amount: d("1200.50")},
	}}
	if got := cfg.TotalFixedCosts(); !got.Equal(d("16200.50")) {
		t.Errorf("TotalFixedCosts() = %s, want 16200.50", got)
	}

	empty := BudgetConfig{}
	if !empty.TotalFixedCosts().IsZero() {
		t.Errorf("TotalFixedCosts() on empty config = %s, want 0", empty.TotalFixedCosts())
	}
}
