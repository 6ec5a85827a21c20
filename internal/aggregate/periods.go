package aggregate

import (
	"time"

	"github.com/hwidmann/liquiplan/internal/model"
)

// PeriodIndex maps a date to its plan period offset. Dates before the plan
// start yield negative indexes; callers filter out-of-range results.
func PeriodIndex(date, startDate time.Time, periodType model.PeriodType) int {
	if periodType == model.PeriodMonthly {
		startMonth := startDate.Year()*12 + int(startDate.Month()) - 1
		dateMonth := date.Year()*12 + int(date.Month()) - 1
		return dateMonth - startMonth
	}

	days := int(truncateDay(date).Sub(truncateDay(startDate)).Hours() / 24)
	if days < 0 {
		// Integer division truncates toward zero; partial weeks before the
		// start still belong to an earlier period.
		return (days - 6) / 7
	}
	return days / 7
}

// PeriodPortion is the slice of an entry's amount attributed to one period.
type PeriodPortion struct {
	PeriodIndex int
	AmountCents int64
}

// DistributePeriods attributes an entry's amount to plan periods. An entry
// with a service period spanning several plan periods is distributed by day
// count per period, with per-period floor division and the accumulated
// remainder assigned to the last overlapping period so the portions sum to
// the full amount. Without a service period the transaction date's period
// receives everything. Portions outside [0, periodCount) are dropped.
func DistributePeriods(e *model.LedgerEntry, startDate time.Time, periodType model.PeriodType, periodCount int) []PeriodPortion {
	if !e.HasServicePeriod() {
		if e.TransactionDate.IsZero() {
			return nil
		}
		idx := PeriodIndex(e.TransactionDate, startDate, periodType)
		if idx < 0 || idx >= periodCount {
			return nil
		}
		return []PeriodPortion{{PeriodIndex: idx, AmountCents: e.AmountCents}}
	}

	start := truncateDay(*e.ServicePeriodStart)
	end := truncateDay(*e.ServicePeriodEnd)
	if end.Before(start) {
		start, end = end, start
	}

	firstIdx := PeriodIndex(start, startDate, periodType)
	lastIdx := PeriodIndex(end, startDate, periodType)
	if firstIdx == lastIdx {
		if firstIdx < 0 || firstIdx >= periodCount {
			return nil
		}
		return []PeriodPortion{{PeriodIndex: firstIdx, AmountCents: e.AmountCents}}
	}

	totalDays := int64(end.Sub(start).Hours()/24) + 1

	type span struct {
		index int
		days  int64
	}
	spans := make([]span, 0, lastIdx-firstIdx+1)
	var assignedDays int64
	for idx := firstIdx; idx <= lastIdx; idx++ {
		days := overlapDays(start, end, idx, startDate, periodType)
		if days > 0 {
			spans = append(spans, span{index: idx, days: days})
			assignedDays += days
		}
	}
	if len(spans) == 0 || assignedDays != totalDays {
		// Defensive: day bookkeeping must cover the whole window.
		return []PeriodPortion{{PeriodIndex: firstIdx, AmountCents: e.AmountCents}}
	}

	portions := make([]PeriodPortion, 0, len(spans))
	var distributed int64
	for i, sp := range spans {
		var amount int64
		if i == len(spans)-1 {
			amount = e.AmountCents - distributed
		} else {
			amount = floorDiv(e.AmountCents*sp.days, totalDays)
			distributed += amount
		}
		portions = append(portions, PeriodPortion{PeriodIndex: sp.index, AmountCents: amount})
	}

	inRange := portions[:0]
	for _, p := range portions {
		if p.PeriodIndex >= 0 && p.PeriodIndex < periodCount {
			inRange = append(inRange, p)
		}
	}
	return inRange
}

// overlapDays counts the days of [start, end] falling into the given period.
func overlapDays(start, end time.Time, periodIndex int, startDate time.Time, periodType model.PeriodType) int64 {
	pStart, pEnd := periodBounds(periodIndex, startDate, periodType)
	lo := start
	if pStart.After(lo) {
		lo = pStart
	}
	hi := end
	if pEnd.Before(hi) {
		hi = pEnd
	}
	if hi.Before(lo) {
		return 0
	}
	return int64(hi.Sub(lo).Hours()/24) + 1
}

// periodBounds returns the first and last day of a plan period.
func periodBounds(periodIndex int, startDate time.Time, periodType model.PeriodType) (time.Time, time.Time) {
	base := truncateDay(startDate)
	if periodType == model.PeriodMonthly {
		first := time.Date(base.Year(), base.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, periodIndex, 0)
		return first, first.AddDate(0, 1, -1)
	}
	first := base.AddDate(0, 0, periodIndex*7)
	return first, first.AddDate(0, 0, 6)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// floorDiv divides rounding toward negative infinity, so negative amounts
// prorate the same way positive ones do.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
