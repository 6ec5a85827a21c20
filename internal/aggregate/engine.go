package aggregate

import (
	"fmt"
	"time"

	"github.com/hwidmann/liquiplan/internal/allocation"
	"github.com/hwidmann/liquiplan/internal/model"
)

// Scope filters entries to an organizational subset before bucketing. A nil
// scope means global. Scope filtering is a pure subset operation; it never
// re-derives or alters estate allocations.
type Scope struct {
	Name      string
	Locations []string
}

func (s *Scope) contains(locationRef string) bool {
	if s == nil {
		return true
	}
	for _, loc := range s.Locations {
		if loc == locationRef {
			return true
		}
	}
	return false
}

// Options selects the output shape of an aggregation run.
type Options struct {
	// TraceMode additionally records, per contributing entry, which bucket
	// rule selected it and how its amount was split. Used for drill-down.
	TraceMode bool
}

// CellKey addresses one aggregation cell.
type CellKey struct {
	BucketID    string
	PeriodIndex int
}

// CellTotal is the summed amount and contribution count of one cell.
type CellTotal struct {
	AmountCents int64
	EntryCount  int
}

// EstateFlowTotals splits one period's flows by estate pool. Undetermined
// amounts are carried separately and contribute to neither estate.
type EstateFlowTotals struct {
	InflowsOldCents   int64
	InflowsNewCents   int64
	OutflowsOldCents  int64
	OutflowsNewCents  int64
	UndeterminedCents int64
}

// Stats are the data-quality counters of one aggregation run.
type Stats struct {
	TotalEntries      int
	ISTCount          int
	PlanCount         int
	UndeterminedCount int
	UnreviewedCount   int
	SkippedOutOfRange int
}

// EntryTrace explains one entry's contribution to the aggregation.
type EntryTrace struct {
	TransactionDate  time.Time
	Rule             *PatternRule
	EntryID          string
	Description      string
	BucketID         string
	MatchedVia       MatchVia
	ValueType        model.ValueType
	EstateAllocation model.EstateAllocation
	AllocationSource model.AllocationSource
	AllocationNote   string
	Portions         []PeriodPortion
	AmountCents      int64
	OldPortionCents  int64
	NewPortionCents  int64
}

// Result is the output of one aggregation run.
type Result struct {
	Cells        map[CellKey]*CellTotal
	EstateTotals []EstateFlowTotals
	Stats        Stats
	Traces       []EntryTrace
	PeriodCount  int
}

// Engine aggregates allocated ledger entries. The matcher and plan geometry
// are immutable; an engine is safe for concurrent use.
type Engine struct {
	matcher     *Matcher
	startDate   time.Time
	periodType  model.PeriodType
	periodCount int
}

// NewEngine creates an aggregation engine over a plan geometry.
func NewEngine(matcher *Matcher, startDate time.Time, periodType model.PeriodType, periodCount int) (*Engine, error) {
	if periodCount < model.MinPeriodCount || periodCount > model.MaxPeriodCount {
		return nil, fmt.Errorf("period count %d outside [%d, %d]", periodCount, model.MinPeriodCount, model.MaxPeriodCount)
	}
	return &Engine{
		matcher:     matcher,
		startDate:   startDate,
		periodType:  periodType,
		periodCount: periodCount,
	}, nil
}

// Aggregate sums the scoped entries into bucket/period cells and per-period
// estate totals. Entries must already carry their estate allocation; this
// function never derives one.
func (e *Engine) Aggregate(entries []*model.LedgerEntry, scope *Scope, opts Options) (*Result, error) {
	result := &Result{
		Cells:        make(map[CellKey]*CellTotal),
		EstateTotals: make([]EstateFlowTotals, e.periodCount),
		PeriodCount:  e.periodCount,
	}

	for _, entry := range entries {
		if !scope.contains(entry.LocationRef) {
			continue
		}

		portions := DistributePeriods(entry, e.startDate, e.periodType, e.periodCount)
		if len(portions) == 0 {
			result.Stats.SkippedOutOfRange++
			// Skipped entries stay in the data-quality counters; an entry
			// outside the horizon is still an open allocation question.
			if entry.EstateAllocation == model.AllocationUndetermined {
				result.Stats.UndeterminedCount++
			}
			continue
		}

		result.Stats.TotalEntries++
		if entry.ValueType == model.ValueIST {
			result.Stats.ISTCount++
		} else {
			result.Stats.PlanCount++
		}
		if entry.EstateAllocation == model.AllocationUndetermined {
			result.Stats.UndeterminedCount++
		}
		if entry.ReviewStatus == model.ReviewUnreviewed {
			result.Stats.UnreviewedCount++
		}

		oldPortion, newPortion, err := allocation.Portions(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", entry.ID, err)
		}

		match := e.matcher.Match(entry)

		for _, portion := range portions {
			key := CellKey{BucketID: match.BucketID, PeriodIndex: portion.PeriodIndex}
			cell := result.Cells[key]
			if cell == nil {
				cell = &CellTotal{}
				result.Cells[key] = cell
			}
			cell.AmountCents += portion.AmountCents
			cell.EntryCount++

			e.addEstateTotals(result, entry, portion)
		}

		if opts.TraceMode {
			result.Traces = append(result.Traces, EntryTrace{
				EntryID:          entry.ID,
				TransactionDate:  entry.TransactionDate,
				Description:      entry.Description,
				AmountCents:      entry.AmountCents,
				ValueType:        entry.ValueType,
				BucketID:         match.BucketID,
				MatchedVia:       match.Via,
				Rule:             match.Rule,
				EstateAllocation: entry.EstateAllocation,
				AllocationSource: entry.AllocationSource,
				AllocationNote:   entry.AllocationNote,
				OldPortionCents:  oldPortion,
				NewPortionCents:  newPortion,
				Portions:         portions,
			})
		}
	}

	return result, nil
}

// addEstateTotals books one period portion into the estate/flow totals. The
// portion's estate split reuses the entry's allocation ratio so the cutoff
// logic is never re-derived here.
func (e *Engine) addEstateTotals(result *Result, entry *model.LedgerEntry, portion PeriodPortion) {
	totals := &result.EstateTotals[portion.PeriodIndex]

	if entry.EstateAllocation == model.AllocationUndetermined {
		totals.UndeterminedCents += portion.AmountCents
		return
	}

	portionEntry := *entry
	portionEntry.AmountCents = portion.AmountCents
	oldPart, newPart, err := allocation.Portions(&portionEntry)
	if err != nil {
		// Allocation was already validated for the full entry.
		return
	}

	if portion.AmountCents >= 0 {
		totals.InflowsOldCents += oldPart
		totals.InflowsNewCents += newPart
	} else {
		totals.OutflowsOldCents += -oldPart
		totals.OutflowsNewCents += -newPart
	}
}

// CellTrace filters a trace-mode result to the entries contributing to one
// cell, preserving aggregation order.
func (r *Result) CellTrace(bucketID string, periodIndex int) []EntryTrace {
	var out []EntryTrace
	for _, tr := range r.Traces {
		if tr.BucketID != bucketID {
			continue
		}
		for _, p := range tr.Portions {
			if p.PeriodIndex == periodIndex {
				out = append(out, tr)
				break
			}
		}
	}
	return out
}
