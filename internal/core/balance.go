package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SortByDate   SortOption = "date"
	SortByAmount SortOption = "amount"
)

type (
	// SortOption selects the ordering of transaction listings.
	SortOption string

	// CategoryAmount is one slice of a period summary.
	CategoryAmount struct {
		Category Category
		Amount   decimal.Decimal
	}

	// PeriodSummary aggregates one direction over a date range.
	PeriodSummary struct {
		Direction  Direction
		Total      decimal.Decimal
		ByCategory []CategoryAmount
	}

	// DailyBalance is the signed net movement of a single day.
	DailyBalance struct {
		Date  time.Time
		Total decimal.Decimal
	}
)

// ComputeBalance recomputes the account balance from scratch:
// sum of amounts, signed by category direction. Transactions whose
// category cannot be resolved are skipped rather than failed on.
func ComputeBalance(txs []Transaction, categories map[int64]Category) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range txs {
		cat, ok := categories[tx.CategoryID]
		if !ok {
			continue
		}
		if cat.IsIncome() {
			balance = balance.Add(tx.Amount)
		} else {
			balance = balance.Sub(tx.Amount)
		}
	}
	return balance
}

// Summarize totals the transactions of one direction and breaks them
// down per category, largest amount first. Unresolvable categories and
// transactions of the other direction are excluded.
func Summarize(txs []Transaction, categories map[int64]Category, direction Direction) PeriodSummary {
	summary := PeriodSummary{Direction: direction, Total: decimal.Zero}

	perCategory := make(map[int64]decimal.Decimal)
	for _, tx := range txs {
		cat, ok := categories[tx.CategoryID]
		if !ok || cat.Direction != direction {
			continue
		}
		summary.Total = summary.Total.Add(tx.Amount)
		perCategory[cat.ID] = perCategory[cat.ID].Add(tx.Amount)
	}

	for id, amount := range perCategory {
		summary.ByCategory = append(summary.ByCategory, CategoryAmount{
			Category: categories[id],
			Amount:   amount,
		})
	}
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		if !summary.ByCategory[i].Amount.Equal(summary.ByCategory[j].Amount) {
			return summary.ByCategory[i].Amount.GreaterThan(summary.ByCategory[j].Amount)
		}
		return summary.ByCategory[i].Category.ID < summary.ByCategory[j].Category.ID
	})

	return summary
}

// DailyBalances buckets transactions into signed per-day totals for the
// given number of days starting at from. Days without movements are
// present with a zero total so chart rendering gets a dense series.
func DailyBalances(txs []Transaction, categories map[int64]Category, from time.Time, days int) []DailyBalance {
	startOfDay := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	}

	grouped := make(map[time.Time]decimal.Decimal)
	for _, tx := range txs {
		cat, ok := categories[tx.CategoryID]
		if !ok {
			continue
		}
		day := startOfDay(tx.TransactionDate)
		if cat.IsIncome() {
			grouped[day] = grouped[day].Add(tx.Amount)
		} else {
			grouped[day] = grouped[day].Sub(tx.Amount)
		}
	}

	series := make([]DailyBalance, 0, days)
	start := startOfDay(from)
	for offset := 0; offset < days; offset++ {
		day := start.AddDate(0, 0, offset)
		series = append(series, DailyBalance{Date: day, Total: grouped[day]})
	}
	return series
}

// SortTransactions orders transactions in place by the given option.
func SortTransactions(txs []Transaction, option SortOption) {
	switch option {
	case SortByAmount:
		sort.SliceStable(txs, func(i, j int) bool {
			return txs[i].Amount.LessThan(txs[j].Amount)
		})
	default:
		sort.SliceStable(txs, func(i, j int) bool {
			return txs[i].CreatedAt.Before(txs[j].CreatedAt)
		})
	}
}
