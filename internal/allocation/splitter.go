package allocation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hwidmann/liquiplan/internal/common"
	"github.com/hwidmann/liquiplan/internal/model"
)

// Splitter assigns estate allocations to ledger entries. It is pure with
// respect to its immutable configuration and safe for concurrent use.
type Splitter struct {
	cfg Config
}

// NewSplitter validates the configuration and returns a splitter.
func NewSplitter(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{cfg: cfg}, nil
}

// Result is the outcome of allocating one entry.
type Result struct {
	NewRatio       *decimal.Decimal
	Allocation     model.EstateAllocation
	Source         model.AllocationSource
	Note           string
	RequiresReview bool
}

// Allocate determines the estate allocation for an entry without mutating it.
//
// Precedence, first match wins:
//  1. Explicit, human-confirmed allocations are kept untouched.
//  2. A service window (service period, a counterparty's prior-month derived
//     period, or the bare transaction date) entirely before the cutoff is
//     OLD_ESTATE; entirely on or after it is NEW_ESTATE.
//  3. A window straddling the cutoff is split. Categories with a configured
//     fixed contract ratio use that ratio in place of date-based proration;
//     all others are prorated day-exact across the cutoff.
//  4. Entries without any usable date but with a configured fixed ratio for
//     their category apply that ratio directly.
//  5. Everything else is UNDETERMINED; the splitter never guesses.
func (s *Splitter) Allocate(e *model.LedgerEntry) Result {
	if e.IsAllocated() && (e.AllocationSource == model.SourceExplicit || e.ReviewStatus == model.ReviewConfirmed) {
		return Result{
			Allocation: e.EstateAllocation,
			NewRatio:   e.EstateRatio,
			Source:     model.SourceExplicit,
			Note:       e.AllocationNote,
		}
	}

	window, source, ok := s.serviceWindow(e)
	if ok {
		return s.allocateWindow(e, window, source)
	}

	if rule, found := s.cfg.ratioRuleFor(e.CategoryTag); found {
		return ratioResult(rule, e.CategoryTag)
	}

	if cp, found := s.cfg.counterpartyFor(e.CounterpartyRef); found && cp.Fallback == FallbackManualReview {
		return Result{
			Allocation:     model.AllocationUndetermined,
			Source:         model.SourceUndetermined,
			Note:           fmt.Sprintf("%s: payment without service date, manual assignment required", cp.Name),
			RequiresReview: true,
		}
	}

	return Result{
		Allocation:     model.AllocationUndetermined,
		Source:         model.SourceUndetermined,
		Note:           "no allocation rule applicable, manual review required",
		RequiresReview: true,
	}
}

// Apply allocates an entry and writes the allocation fields back onto it.
// Classification fields (category tag, counterparty, location) are never
// touched; those belong to the external rule engine.
func (s *Splitter) Apply(e *model.LedgerEntry) Result {
	res := s.Allocate(e)
	e.EstateAllocation = res.Allocation
	e.EstateRatio = res.NewRatio
	e.AllocationSource = res.Source
	e.AllocationNote = res.Note
	return res
}

// dateWindow is the service window an entry is judged by.
type dateWindow struct {
	start time.Time
	end   time.Time
}

func (s *Splitter) serviceWindow(e *model.LedgerEntry) (dateWindow, model.AllocationSource, bool) {
	if e.HasServicePeriod() {
		return dateWindow{start: dateOnly(*e.ServicePeriodStart), end: dateOnly(*e.ServicePeriodEnd)},
			model.SourceDateCutoff, true
	}

	if cp, found := s.cfg.counterpartyFor(e.CounterpartyRef); found &&
		cp.Fallback == FallbackPriorMonth && !e.TransactionDate.IsZero() {
		start, end := priorMonthBounds(e.TransactionDate)
		return dateWindow{start: start, end: end}, model.SourcePriorMonth, true
	}

	if !e.TransactionDate.IsZero() {
		d := dateOnly(e.TransactionDate)
		return dateWindow{start: d, end: d}, model.SourceDateCutoff, true
	}

	return dateWindow{}, "", false
}

func (s *Splitter) allocateWindow(e *model.LedgerEntry, w dateWindow, source model.AllocationSource) Result {
	cutoff := dateOnly(s.cfg.CutoffDate)

	if w.end.Before(cutoff) {
		return Result{
			Allocation: model.AllocationOldEstate,
			Source:     source,
			Note:       fmt.Sprintf("service window %s entirely before cutoff %s", formatWindow(w), formatDate(cutoff)),
		}
	}
	if !w.start.Before(cutoff) {
		return Result{
			Allocation: model.AllocationNewEstate,
			Source:     source,
			Note:       fmt.Sprintf("service window %s entirely on or after cutoff %s", formatWindow(w), formatDate(cutoff)),
		}
	}

	// Straddling window. A configured contract ratio replaces day proration
	// for its category.
	if rule, found := s.cfg.ratioRuleFor(e.CategoryTag); found {
		return ratioResult(rule, e.CategoryTag)
	}

	oldDays := daysBetween(w.start, cutoff)
	totalDays := daysBetween(w.start, w.end) + 1
	newDays := totalDays - oldDays

	prorationSource := model.SourceProration
	if source == model.SourcePriorMonth {
		prorationSource = model.SourcePriorMonth
	}

	// 30 digits keep the decimal rendering of the day fraction so precise
	// that SplitCents can always recover the exact integer split.
	newRatio := decimal.NewFromInt(int64(newDays)).DivRound(decimal.NewFromInt(int64(totalDays)), ratioPrecision)
	return Result{
		Allocation: model.AllocationMixed,
		NewRatio:   &newRatio,
		Source:     prorationSource,
		Note: fmt.Sprintf("service window %s straddles cutoff %s: %d/%d days old estate, %d/%d days new estate",
			formatWindow(w), formatDate(cutoff), oldDays, totalDays, newDays, totalDays),
	}
}

func ratioResult(rule RatioRule, categoryTag string) Result {
	note := rule.Note
	if note == "" {
		note = fmt.Sprintf("contract ratio for category %s", categoryTag)
	}

	one := decimal.NewFromInt(1)
	switch {
	case rule.NewRatio.Equal(one):
		return Result{Allocation: model.AllocationNewEstate, Source: model.SourceContractRatio, Note: note}
	case rule.NewRatio.IsZero():
		return Result{Allocation: model.AllocationOldEstate, Source: model.SourceContractRatio, Note: note}
	default:
		ratio := rule.NewRatio
		return Result{
			Allocation: model.AllocationMixed,
			NewRatio:   &ratio,
			Source:     model.SourceContractRatio,
			Note:       note,
		}
	}
}

// ratioPrecision is the number of decimal places carried by ratios the
// splitter derives itself (day prorations like 14/31 have no finite decimal
// form). Stored ratios round-trip through TEXT columns unchanged.
const ratioPrecision = 30

// SplitCents divides an amount between the estates by the new-estate ratio.
//
// Convention: the old-estate portion is the ratio product of the absolute
// amount rounded down, the new-estate portion is the exact remainder, and the
// sign is re-applied to both. Every fractional cent therefore lands on the
// new-estate side, deterministically, for positive and negative amounts
// alike. The two portions always sum to the original amount exactly.
//
// Ratios that stand for exact fractions (2/3, 14/31 days) arrive as rounded
// decimals, so the product can sit a hair on the wrong side of a whole cent.
// The product is quantized far below cent resolution before flooring; that
// snaps representation error back to the exact integer without ever moving a
// genuine fractional cent, whose distance from an integer is bounded below by
// the day-count or contract-ratio granularity.
func SplitCents(amountCents int64, newRatio decimal.Decimal) (oldCents, newCents int64, err error) {
	if newRatio.IsNegative() || newRatio.GreaterThan(decimal.NewFromInt(1)) {
		return 0, 0, fmt.Errorf("new-estate ratio %s outside [0, 1]", newRatio)
	}

	abs := amountCents
	sign := int64(1)
	if abs < 0 {
		abs = -abs
		sign = -1
	}

	oldRatio := decimal.NewFromInt(1).Sub(newRatio)
	oldAbs := decimal.NewFromInt(abs).Mul(oldRatio).Round(12).Floor().IntPart()
	newAbs := abs - oldAbs

	oldCents = sign * oldAbs
	newCents = sign * newAbs

	if oldCents+newCents != amountCents {
		return 0, 0, fmt.Errorf("%w: split of %d produced %d + %d",
			common.ErrInternalInvariant, amountCents, oldCents, newCents)
	}
	return oldCents, newCents, nil
}

// Portions resolves an allocated entry into its old- and new-estate cent
// portions. Undetermined entries contribute to neither estate.
func Portions(e *model.LedgerEntry) (oldCents, newCents int64, err error) {
	switch e.EstateAllocation {
	case model.AllocationOldEstate:
		return e.AmountCents, 0, nil
	case model.AllocationNewEstate:
		return 0, e.AmountCents, nil
	case model.AllocationMixed:
		if e.EstateRatio == nil {
			return 0, 0, fmt.Errorf("%w: mixed allocation on entry %s without estate ratio",
				common.ErrInternalInvariant, e.ID)
		}
		return SplitCents(e.AmountCents, *e.EstateRatio)
	case model.AllocationUndetermined:
		return 0, 0, nil
	default:
		return 0, 0, fmt.Errorf("entry %s has no estate allocation", e.ID)
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from a to b, exclusive of b.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func priorMonthBounds(txDate time.Time) (start, end time.Time) {
	d := dateOnly(txDate)
	start = time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	end = start.AddDate(0, 1, -1)
	return start, end
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func formatWindow(w dateWindow) string {
	if w.start.Equal(w.end) {
		return formatDate(w.start)
	}
	return formatDate(w.start) + ".." + formatDate(w.end)
}
