package window

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/model"
)

// DayTotal is the amount spent on one calendar day.
type DayTotal struct {
	Date  time.Time
	Total model.Money
}

// CategoryTotal is the amount spent in one category.
type CategoryTotal struct {
	ID    string
	Name  string
	Total model.Money
	// Percentage of the window total, rounded to two decimals.
	Percentage float64
}

// Summary aggregates the window items for the dashboard.
type Summary struct {
	Total           model.Money
	Days            []DayTotal
	Categories      []CategoryTotal
	HighestDay      *DayTotal
	HighestCategory *CategoryTotal
}

// Summary aggregates the current items.
func (w *Window) Summary() Summary {
	return Summarize(w.Snapshot())
}

// Summarize computes totals per day of the window and per category.
// Categories are ordered by total, largest first; ties keep first-seen order.
func Summarize(s State) Summary {
	var sum Summary

	loc := s.WindowStart.Location()
	dayIndex := make(map[string]int)
	if !s.WindowEnd.Before(s.WindowStart) {
		for d := dayStart(s.WindowStart, loc); !d.After(s.WindowEnd); d = d.AddDate(0, 0, 1) {
			dayIndex[d.Format(time.DateOnly)] = len(sum.Days)
			sum.Days = append(sum.Days, DayTotal{Date: d})
		}
	}

	catIndex := make(map[string]int)
	for _, t := range s.Items {
		sum.Total = sum.Total.Add(t.Amount)

		if i, ok := dayIndex[t.TransactionDate.In(loc).Format(time.DateOnly)]; ok {
			sum.Days[i].Total = sum.Days[i].Total.Add(t.Amount)
		}

		key := t.CategoryKey()
		i, ok := catIndex[key]
		if !ok {
			i = len(sum.Categories)
			catIndex[key] = i
			sum.Categories = append(sum.Categories, CategoryTotal{ID: key, Name: t.Category.Value})
		}
		sum.Categories[i].Total = sum.Categories[i].Total.Add(t.Amount)
	}

	hundred := decimal.NewFromInt(100)
	for i := range sum.Categories {
		if sum.Total.IsPositive() {
			pct := sum.Categories[i].Total.Decimal.Div(sum.Total.Decimal).Mul(hundred).Round(2)
			sum.Categories[i].Percentage = pct.InexactFloat64()
		}
	}
	sort.SliceStable(sum.Categories, func(a, b int) bool {
		return sum.Categories[a].Total.GreaterThan(sum.Categories[b].Total.Decimal)
	})

	for i := range sum.Days {
		if sum.Days[i].Total.IsPositive() && (sum.HighestDay == nil || sum.Days[i].Total.GreaterThan(sum.HighestDay.Total.Decimal)) {
			sum.HighestDay = &sum.Days[i]
		}
	}
	if len(sum.Categories) > 0 {
		sum.HighestCategory = &sum.Categories[0]
	}
	return sum
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
