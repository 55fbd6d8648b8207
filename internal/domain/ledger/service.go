package ledger

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"moneyhistory/internal/domain/eval"
	"moneyhistory/internal/localstore"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrMissingField  = errors.New("required field is empty")
	ErrInvalidAmount = errors.New("amount must be a positive number")
	ErrDuplicate     = errors.New("duplicate transaction skipped")
	ErrWrongPIN      = errors.New("wrong PIN")
	ErrLockNotSet    = errors.New("app lock is not configured")
)

// duplicateWindow is the time delta within which an identical title+amount
// pair counts as a double submission.
const duplicateWindow = time.Second

// Service owns all ledger mutations. Every write goes to the local store
// synchronously, bumps the store revision, and then notifies the sync
// orchestrator; sync never blocks data entry.
type Service struct {
	store    *localstore.Store
	onMutate func()
	now      func() time.Time
}

func NewService(store *localstore.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SetOnMutate registers the callback fired after every successful mutation.
// Used by the sync orchestrator to arm its debounce timer.
func (s *Service) SetOnMutate(fn func()) {
	s.onMutate = fn
}

func (s *Service) mutated() {
	if _, err := s.store.BumpRevision(); err != nil {
		log.Printf("Ledger: failed to bump revision: %v", err)
	}
	if s.onMutate != nil {
		s.onMutate()
	}
}

// parseAmount runs the expression evaluator over raw input and validates the
// result as a positive amount.
func parseAmount(raw string) (decimal.Decimal, error) {
	evaluated := eval.Evaluate(raw)
	amount, err := decimal.NewFromString(evaluated)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// --- Transactions ---

type AddTransactionParams struct {
	Title    string
	Amount   string // raw user input, may be an arithmetic expression
	Category string
	Date     time.Time
	Type     string
	Account  string
	Note     string
}

func (s *Service) Transactions() ([]Transaction, error) {
	var txs []Transaction
	if _, err := s.store.GetJSON(localstore.KeyExpenses, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// AddTransaction validates, evaluates the amount expression, and prepends the
// new transaction. A same title+amount entry within one second of an existing
// one is treated as a double submission and skipped.
func (s *Service) AddTransaction(params AddTransactionParams) (*Transaction, error) {
	if params.Title == "" || params.Amount == "" {
		return nil, ErrMissingField
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	if params.Type != TypeIncome && params.Type != TypeExpense {
		return nil, fmt.Errorf("invalid transaction type %q", params.Type)
	}

	txType := params.Type
	account := params.Account
	if account == "" {
		account = AccountCash
	}
	category := params.Category
	if category == "" {
		category = "Others"
	}
	date := params.Date
	if date.IsZero() {
		date = s.now()
	}

	tx := Transaction{
		ID:       uuid.NewString(),
		Title:    params.Title,
		Amount:   amount,
		Category: category,
		Date:     date,
		Type:     txType,
		Account:  account,
		Note:     params.Note,
	}

	existing, err := s.Transactions()
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].Title == tx.Title && existing[i].Amount.Equal(tx.Amount) &&
			absDuration(existing[i].Date.Sub(tx.Date)) < duplicateWindow {
			log.Printf("Ledger: duplicate transaction %q detected, skipping add", tx.Title)
			return nil, ErrDuplicate
		}
	}

	updated := append([]Transaction{tx}, existing...)
	if err := s.store.SetJSON(localstore.KeyExpenses, updated); err != nil {
		return nil, err
	}
	s.mutated()
	return &tx, nil
}

// DeleteTransaction removes by id. The whole array is rewritten; there is no
// tombstone model.
func (s *Service) DeleteTransaction(id string) error {
	existing, err := s.Transactions()
	if err != nil {
		return err
	}

	updated := existing[:0:0]
	found := false
	for _, tx := range existing {
		if tx.ID == id {
			found = true
			continue
		}
		updated = append(updated, tx)
	}
	if !found {
		return ErrNotFound
	}

	if err := s.store.SetJSON(localstore.KeyExpenses, updated); err != nil {
		return err
	}
	s.mutated()
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// --- Budget config ---

type SaveBudgetParams struct {
	TotalIncome       string // raw input, may be an expression
	SavingsGoal       string
	FixedExpenses     []FixedExpenseParams
	AutoAdjustSavings bool
}

type FixedExpenseParams struct {
	Name   string
	Amount string
}

func (s *Service) Budget() (*BudgetConfig, error) {
	var cfg BudgetConfig
	ok, err := s.store.GetJSON(localstore.KeySetup, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

// SaveBudget replaces the active budget config wholesale; fields of a prior
// config are never merged in.
func (s *Service) SaveBudget(params SaveBudgetParams) (*BudgetConfig, error) {
	income, err := parseAmount(params.TotalIncome)
	if err != nil {
		return nil, fmt.Errorf("total income: %w", err)
	}
	savings, err := parseAmount(params.SavingsGoal)
	if err != nil {
		return nil, fmt.Errorf("savings goal: %w", err)
	}

	fixed := make([]FixedExpense, 0, len(params.FixedExpenses))
	for _, fe := range params.FixedExpenses {
		if fe.Name == "" {
			return nil, fmt.Errorf("fixed expense: %w", ErrMissingField)
		}
		amount, err := parseAmount(fe.Amount)
		if err != nil {
			return nil, fmt.Errorf("fixed expense %q: %w", fe.Name, err)
		}
		fixed = append(fixed, FixedExpense{ID: uuid.NewString(), Name: fe.Name, Amount: amount})
	}

	cfg := BudgetConfig{
		TotalIncome:       income,
		SavingsGoal:       savings,
		FixedExpenses:     fixed,
		AutoAdjustSavings: params.AutoAdjustSavings,
		SetupDate:         s.now(),
	}
	if err := s.store.SetJSON(localstore.KeySetup, cfg); err != nil {
		return nil, err
	}
	s.mutated()
	return &cfg, nil
}

// --- Debts ---

type AddDebtParams struct {
	Person string
	Amount string
	Type   string
	Note   string
	Date   string
}

type AddRepaymentParams struct {
	Amount string
	Date   string
	Note   string
}

func (s *Service) Debts() ([]Debt, error) {
	var debts []Debt
	if _, err := s.store.GetJSON(localstore.KeyDebts, &debts); err != nil {
		return nil, err
	}
	return debts, nil
}

func (s *Service) AddDebt(params AddDebtParams) (*Debt, error) {
	if params.Person == "" || params.Amount == "" {
		return nil, ErrMissingField
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	if params.Type != DebtOwe && params.Type != DebtLent {
		return nil, fmt.Errorf("invalid debt type %q", params.Type)
	}
	date := params.Date
	if date == "" {
		date = s.now().Format("2006-01-02")
	}

	debt := Debt{
		ID:         uuid.NewString(),
		Person:     params.Person,
		Amount:     amount,
		Type:       params.Type,
		Note:       params.Note,
		Date:       date,
		Status:     StatusPending,
		Repayments: []Repayment{},
	}

	existing, err := s.Debts()
	if err != nil {
		return nil, err
	}
	updated := append([]Debt{debt}, existing...)
	if err := s.store.SetJSON(localstore.KeyDebts, updated); err != nil {
		return nil, err
	}
	s.mutated()
	return &debt, nil
}

func (s *Service) DeleteDebt(id string) error {
	existing, err := s.Debts()
	if err != nil {
		return err
	}

	updated := existing[:0:0]
	found := false
	for _, d := range existing {
		if d.ID == id {
			found = true
			continue
		}
		updated = append(updated, d)
	}
	if !found {
		return ErrNotFound
	}

	if err := s.store.SetJSON(localstore.KeyDebts, updated); err != nil {
		return err
	}
	s.mutated()
	return nil
}

// AddRepayment appends a repayment and re-derives the debt status: settled
// exactly when the repaid total covers the principal.
func (s *Service) AddRepayment(debtID string, params AddRepaymentParams) (*Debt, error) {
	if params.Amount == "" {
		return nil, ErrMissingField
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	date := params.Date
	if date == "" {
		date = s.now().Format("2006-01-02")
	}

	debts, err := s.Debts()
	if err != nil {
		return nil, err
	}

	var updated *Debt
	for i := range debts {
		if debts[i].ID != debtID {
			continue
		}
		debts[i].Repayments = append(debts[i].Repayments, Repayment{
			ID:     uuid.NewString(),
			DebtID: debtID,
			Amount: amount,
			Date:   date,
			Note:   params.Note,
		})
		debts[i].Status = debts[i].DeriveStatus()
		updated = &debts[i]
		break
	}
	if updated == nil {
		return nil, ErrNotFound
	}

	if err := s.store.SetJSON(localstore.KeyDebts, debts); err != nil {
		return nil, err
	}
	s.mutated()
	return updated, nil
}

// --- Profile & preferences ---

func (s *Service) DisplayName() string {
	name, _, err := s.store.Get(localstore.KeyDisplayName)
	if err != nil {
		log.Printf("Ledger: failed to read display name: %v", err)
	}
	return name
}

func (s *Service) SetDisplayName(name string) error {
	if name == "" {
		return ErrMissingField
	}
	if err := s.store.Set(localstore.KeyDisplayName, name); err != nil {
		return err
	}
	s.mutated()
	return nil
}

func (s *Service) GoalName() string {
	goal, _, _ := s.store.Get(localstore.KeyGoalName)
	return goal
}

func (s *Service) SetGoalName(goal string) error {
	return s.store.Set(localstore.KeyGoalName, goal)
}

// preferenceKeys maps the short names the control API speaks to the
// namespaced store keys.
var preferenceKeys = map[string]string{
	"theme":    localstore.KeyTheme,
	"lang":     localstore.KeyLang,
	"currency": localstore.KeyCurrency,
}

// Preference reads one of the theme/lang/currency settings by short name.
func (s *Service) Preference(name string) string {
	key, ok := preferenceKeys[name]
	if !ok {
		return ""
	}
	value, _, _ := s.store.Get(key)
	return value
}

func (s *Service) SetPreference(name, value string) error {
	key, ok := preferenceKeys[name]
	if !ok {
		return fmt.Errorf("unknown preference %q", name)
	}
	return s.store.Set(key, value)
}

// --- App lock ---

// EnableLock stores a bcrypt hash of the PIN; the PIN itself is never
// persisted.
func (s *Service) EnableLock(pin string) error {
	if len(pin) < 4 {
		return fmt.Errorf("PIN must be at least 4 digits")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash PIN: %w", err)
	}
	if err := s.store.Set(localstore.KeyAppLockPin, string(hash)); err != nil {
		return err
	}
	return s.store.Set(localstore.KeyAppLockEnabled, "true")
}

func (s *Service) LockEnabled() bool {
	enabled, _, _ := s.store.Get(localstore.KeyAppLockEnabled)
	return enabled == "true"
}

func (s *Service) VerifyPIN(pin string) error {
	hash, ok, err := s.store.Get(localstore.KeyAppLockPin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockNotSet
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) != nil {
		return ErrWrongPIN
	}
	return nil
}

// DisableLock requires the current PIN and removes the lock.
func (s *Service) DisableLock(pin string) error {
	if err := s.VerifyPIN(pin); err != nil {
		return err
	}
	if err := s.store.Delete(localstore.KeyAppLockPin); err != nil {
		return err
	}
	return s.store.Set(localstore.KeyAppLockEnabled, "false")
}

// --- Reset ---

// ResetAll wipes transactions, budget, debts, and profile data. Theme,
// language, and the device identity survive so a re-setup keeps syncing to
// the same remote row.
func (s *Service) ResetAll() error {
	wipe := []string{
		localstore.KeySetup,
		localstore.KeyExpenses,
		localstore.KeyDebts,
		localstore.KeyDisplayName,
		localstore.KeySyncCode,
		localstore.KeyGoalName,
		localstore.KeyCurrency,
		localstore.KeyAppLockPin,
		localstore.KeyAppLockEnabled,
		localstore.KeyLastHourlySync,
		localstore.KeyLastSyncPayload,
		localstore.KeyProfileImage,
	}
	for _, key := range wipe {
		if err := s.store.Delete(key); err != nil {
			return err
		}
	}

	s.mutated()
	log.Println("Ledger: all data reset")
	return nil
}
