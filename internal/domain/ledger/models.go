package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// Accounts a transaction can be booked against.
const (
	AccountCash         = "Cash"
	AccountMobileWallet = "MobileWallet"
	AccountBank         = "Bank"
)

// Debt types: "owe" is money the user owes, "lent" is money owed to them.
const (
	DebtOwe  = "owe"
	DebtLent = "lent"
)

// Debt status is derived from repayments, never set directly.
const (
	StatusPending = "pending"
	StatusSettled = "settled"
)

// Transaction is a single ledger entry. Immutable once created; the only
// mutation is deletion.
type Transaction struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Date     time.Time       `json:"date"`
	Type     string          `json:"type"`
	Account  string          `json:"account"`
	Note     string          `json:"note,omitempty"`
}

type FixedExpense struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// BudgetConfig is the active budget ("setup"). Exactly one is active per
// device; saving a new one replaces the prior value wholesale.
type BudgetConfig struct {
	TotalIncome       decimal.Decimal `json:"totalIncome"`
	SavingsGoal       decimal.Decimal `json:"savingsGoal"`
	FixedExpenses     []FixedExpense  `json:"fixedExpenses"`
	AutoAdjustSavings bool            `json:"autoAdjustSavings"`
	SetupDate         time.Time       `json:"setupDate"`
}

// TotalFixedCosts sums the recurring monthly expenses.
func (c *BudgetConfig) TotalFixedCosts() decimal.Decimal {
	total := decimal.Zero
	for _, fe := range c.FixedExpenses {
		total = total.Add(fe.Amount)
	}
	return total
}

type Repayment struct {
	ID     string          `json:"id"`
	DebtID string          `json:"debtId"`
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
	Note   string          `json:"note,omitempty"`
}

type Debt struct {
	ID         string          `json:"id"`
	Person     string          `json:"person"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type"`
	Note       string          `json:"note,omitempty"`
	Date       string          `json:"date"`
	Status     string          `json:"status"`
	Repayments []Repayment     `json:"repayments"`
}

// TotalRepaid sums all recorded repayments.
func (d *Debt) TotalRepaid() decimal.Decimal {
	total := decimal.Zero
	for _, r := range d.Repayments {
		total = total.Add(r.Amount)
	}
	return total
}

// Remaining is the outstanding principal, floored at zero.
func (d *Debt) Remaining() decimal.Decimal {
	remaining := d.Amount.Sub(d.TotalRepaid())
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// DeriveStatus recomputes the settled/pending status from repayments.
// Status is settled exactly when nothing remains.
func (d *Debt) DeriveStatus() string {
	if d.Remaining().IsZero() {
		return StatusSettled
	}
	return StatusPending
}
