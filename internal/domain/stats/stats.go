// Package stats derives all budget figures from raw ledger data. Everything
// here is a pure function of (transactions, budget config, selected period,
// now); nothing is persisted and negative amounts are assumed to have been
// rejected at entry.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"moneyhistory/internal/domain/ledger"
)

// CanonicalCategories fixes the display order of category breakdowns.
var CanonicalCategories = []string{
	"Food", "Transport", "Shopping", "Bills", "Health",
	"Salary", "Gift", "Invest", "Business", "Freelance", "Others",
}

var five = decimal.NewFromInt(5)

type Input struct {
	Transactions []ledger.Transaction
	Budget       *ledger.BudgetConfig
	Month        time.Month
	Year         int
	Now          time.Time
}

type MonthTotals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Savings decimal.Decimal `json:"savings"`
}

type YearTotals struct {
	Income  decimal.Decimal             `json:"income"`
	Expense decimal.Decimal             `json:"expense"`
	Savings decimal.Decimal             `json:"savings"`
	Months  map[time.Month]*MonthTotals `json:"months"`
}

type CategorySlice struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

type DayTotals struct {
	Day     int             `json:"day"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// Projection estimates time to reach the savings goal. Available is false
// when average monthly savings is zero or negative; there is no meaningful
// horizon then.
type Projection struct {
	Available         bool            `json:"available"`
	Months            int             `json:"months"`
	Days              int             `json:"days"`
	AvgMonthlySavings decimal.Decimal `json:"avgMonthlySavings"`
	RemainingGoal     decimal.Decimal `json:"remainingGoal"`
}

type Report struct {
	TotalIncome           decimal.Decimal     `json:"totalIncome"`
	TotalSpent            decimal.Decimal     `json:"totalSpent"`
	SpentToday            decimal.Decimal     `json:"spentToday"`
	LeftoverToday         decimal.Decimal     `json:"leftoverToday"`
	DailyAllowance        decimal.Decimal     `json:"dailyAllowance"`
	MoneyForDailySpending decimal.Decimal     `json:"moneyForDailySpending"`
	PlannedSavingsGoal    decimal.Decimal     `json:"plannedSavingsGoal"`
	CurrentSavings        decimal.Decimal     `json:"currentSavings"`
	SavingsAdjustment     decimal.Decimal     `json:"savingsAdjustment"`
	TotalFixedCosts       decimal.Decimal     `json:"totalFixedCosts"`
	RemainingBudget       decimal.Decimal     `json:"remainingBudget"`
	SavedSoFar            decimal.Decimal     `json:"savedSoFar"`
	DaysInMonth           int                 `json:"daysInMonth"`
	TxCount               int                 `json:"txCount"`
	Categories            []CategorySlice     `json:"categories"`
	Daily                 []DayTotals         `json:"daily"`
	BiggestCategory       CategorySlice       `json:"biggestCategory"`
	Yearly                map[int]*YearTotals `json:"yearly"`
	Projection            Projection          `json:"projection"`
}

// Compute builds the full report for the selected month. All grouping is
// single-pass over the transaction list.
func Compute(in Input) *Report {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	isCurrentMonth := in.Month == now.Month() && in.Year == now.Year()

	monthlyIncome := decimal.Zero
	totalFixedCosts := decimal.Zero
	plannedSavingsGoal := decimal.Zero
	if in.Budget != nil {
		monthlyIncome = in.Budget.TotalIncome
		totalFixedCosts = in.Budget.TotalFixedCosts()
		plannedSavingsGoal = in.Budget.SavingsGoal
	}

	daysInMonth := time.Date(in.Year, in.Month+1, 0, 0, 0, 0, 0, now.Location()).Day()

	// Single pass: selected-month totals, per-day totals, per-category
	// totals, today's spend, and the all-time year/month grouping.
	otherIncome := decimal.Zero
	totalSpent := decimal.Zero
	spentToday := decimal.Zero
	txCount := 0
	categoryTotals := make(map[string]decimal.Decimal)
	dayTotals := make(map[int]*DayTotals)
	dateSpend := make(map[string]decimal.Decimal)
	yearly := make(map[int]*YearTotals)

	todayKey := dayKey(now)

	for i := range in.Transactions {
		tx := &in.Transactions[i]
		d := tx.Date.In(now.Location())
		year, month, day := d.Year(), d.Month(), d.Day()

		yt := yearly[year]
		if yt == nil {
			yt = &YearTotals{Months: make(map[time.Month]*MonthTotals)}
			yearly[year] = yt
		}
		mt := yt.Months[month]
		if mt == nil {
			mt = &MonthTotals{}
			yt.Months[month] = mt
		}
		if tx.Type == ledger.TypeIncome {
			yt.Income = yt.Income.Add(tx.Amount)
			mt.Income = mt.Income.Add(tx.Amount)
		} else {
			yt.Expense = yt.Expense.Add(tx.Amount)
			mt.Expense = mt.Expense.Add(tx.Amount)
			dateSpend[dayKey(d)] = dateSpend[dayKey(d)].Add(tx.Amount)
			if dayKey(d) == todayKey {
				spentToday = spentToday.Add(tx.Amount)
			}
		}

		if year != in.Year || month != in.Month {
			continue
		}
		txCount++
		dt := dayTotals[day]
		if dt == nil {
			dt = &DayTotals{Day: day}
			dayTotals[day] = dt
		}
		if tx.Type == ledger.TypeIncome {
			otherIncome = otherIncome.Add(tx.Amount)
			dt.Income = dt.Income.Add(tx.Amount)
		} else {
			totalSpent = totalSpent.Add(tx.Amount)
			dt.Expense = dt.Expense.Add(tx.Amount)
			categoryTotals[tx.Category] = categoryTotals[tx.Category].Add(tx.Amount)
		}
	}

	// The configured income and fixed costs recur once per month that has
	// any activity, regardless of transaction count.
	if in.Budget != nil {
		for _, yt := range yearly {
			for _, mt := range yt.Months {
				mt.Income = mt.Income.Add(monthlyIncome)
				yt.Income = yt.Income.Add(monthlyIncome)
				mt.Expense = mt.Expense.Add(totalFixedCosts)
				yt.Expense = yt.Expense.Add(totalFixedCosts)
				mt.Savings = mt.Income.Sub(mt.Expense)
			}
			yt.Savings = yt.Income.Sub(yt.Expense)
		}
	}

	totalIncome := otherIncome
	if isCurrentMonth {
		totalIncome = totalIncome.Add(monthlyIncome)
	}

	moneyForDailySpending := floorZero(monthlyIncome.Sub(totalFixedCosts).Sub(plannedSavingsGoal))

	// Allowance rounds down to the nearest multiple of 5 currency units.
	dailyAllowance := decimal.Zero
	if daysInMonth > 0 {
		dailyAllowance = moneyForDailySpending.
			Div(decimal.NewFromInt(int64(daysInMonth))).
			Div(five).Floor().Mul(five)
	}

	leftoverToday := floorZero(dailyAllowance.Sub(spentToday))

	// Savings auto-adjustment: every elapsed day contributes its surplus or
	// overrun against the allowance, today included in real time. Applies
	// only when viewing the current month. A budget created mid-month only
	// accrues from its setup day.
	savingsAdjustment := decimal.Zero
	if isCurrentMonth && in.Budget != nil && in.Budget.AutoAdjustSavings {
		startDay := 1
		setup := in.Budget.SetupDate.In(now.Location())
		if setup.Month() == now.Month() && setup.Year() == now.Year() {
			startDay = setup.Day()
		}
		for day := startDay; day <= now.Day()-1; day++ {
			key := dayKey(time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location()))
			savingsAdjustment = savingsAdjustment.Add(dailyAllowance.Sub(dateSpend[key]))
		}
		savingsAdjustment = savingsAdjustment.Add(dailyAllowance.Sub(spentToday))
	}
	currentSavings := plannedSavingsGoal.Add(savingsAdjustment)

	categories := buildCategories(categoryTotals)
	biggest := CategorySlice{Name: "None", Value: decimal.Zero}
	for _, c := range categories {
		if c.Value.GreaterThan(biggest.Value) {
			biggest = c
		}
	}

	daily := make([]DayTotals, daysInMonth)
	for day := 1; day <= daysInMonth; day++ {
		if dt := dayTotals[day]; dt != nil {
			daily[day-1] = *dt
		} else {
			daily[day-1] = DayTotals{Day: day}
		}
	}

	return &Report{
		TotalIncome:           totalIncome,
		TotalSpent:            totalSpent,
		SpentToday:            spentToday,
		LeftoverToday:         leftoverToday,
		DailyAllowance:        dailyAllowance,
		MoneyForDailySpending: moneyForDailySpending,
		PlannedSavingsGoal:    plannedSavingsGoal,
		CurrentSavings:        currentSavings,
		SavingsAdjustment:     savingsAdjustment,
		TotalFixedCosts:       totalFixedCosts,
		RemainingBudget:       moneyForDailySpending.Sub(totalSpent),
		SavedSoFar:            totalIncome.Sub(totalSpent),
		DaysInMonth:           daysInMonth,
		TxCount:               txCount,
		Categories:            categories,
		Daily:                 daily,
		BiggestCategory:       biggest,
		Yearly:                yearly,
		Projection:            project(in.Budget, yearly, plannedSavingsGoal, totalIncome, totalSpent),
	}
}

// project estimates months+days to the savings goal from average monthly
// savings, approximating a month as 30 days for the remainder split. With no
// transaction history the single-month estimate from the budget config is
// used instead.
func project(budget *ledger.BudgetConfig, yearly map[int]*YearTotals, goal, totalIncome, totalSpent decimal.Decimal) Projection {
	sum := decimal.Zero
	count := 0
	for _, yt := range yearly {
		for _, mt := range yt.Months {
			sum = sum.Add(mt.Savings)
			count++
		}
	}

	avg := decimal.Zero
	switch {
	case count > 0:
		avg = sum.Div(decimal.NewFromInt(int64(count)))
	case budget != nil:
		avg = budget.TotalIncome.Sub(budget.TotalFixedCosts()).Sub(budget.SavingsGoal)
	}

	remaining := floorZero(goal.Sub(totalIncome.Sub(totalSpent)))

	p := Projection{AvgMonthlySavings: avg, RemainingGoal: remaining}
	if !avg.IsPositive() {
		return p
	}

	monthsToGoal := remaining.Div(avg)
	whole := monthsToGoal.Floor()
	p.Available = true
	p.Months = int(whole.IntPart())
	p.Days = int(monthsToGoal.Sub(whole).Mul(decimal.NewFromInt(30)).Floor().IntPart())
	return p
}

func buildCategories(totals map[string]decimal.Decimal) []CategorySlice {
	out := make([]CategorySlice, 0, len(totals))
	seen := make(map[string]bool, len(totals))
	for _, name := range CanonicalCategories {
		if v, ok := totals[name]; ok && v.IsPositive() {
			out = append(out, CategorySlice{Name: name, Value: v})
			seen[name] = true
		}
	}

	var extra []string
	for name, v := range totals {
		if !seen[name] && v.IsPositive() {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, CategorySlice{Name: name, Value: totals[name]})
	}
	return out
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// ProfileStats summarizes all-time activity for the profile view.
type ProfileStats struct {
	TotalTx    int             `json:"totalTx"`
	ActiveDays int             `json:"activeDays"`
	AvgSpend   decimal.Decimal `json:"avgSpend"`
}

// Profile computes all-time usage figures: transaction count, distinct
// active days, and average spend per active day (rounded to whole units).
func Profile(transactions []ledger.Transaction, loc *time.Location) ProfileStats {
	if len(transactions) == 0 {
		return ProfileStats{}
	}

	days := make(map[string]bool)
	totalSpent := decimal.Zero
	for i := range transactions {
		tx := &transactions[i]
		days[dayKey(tx.Date.In(loc))] = true
		if tx.Type == ledger.TypeExpense {
			totalSpent = totalSpent.Add(tx.Amount)
		}
	}

	avg := decimal.Zero
	if len(days) > 0 {
		avg = totalSpent.Div(decimal.NewFromInt(int64(len(days)))).Round(0)
	}
	return ProfileStats{TotalTx: len(transactions), ActiveDays: len(days), AvgSpend: avg}
}
