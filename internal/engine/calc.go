package engine

import (
	"fmt"

	"github.com/hwidmann/liquiplan/internal/common"
	"github.com/hwidmann/liquiplan/internal/model"
)

// ValueSource records where a cell's effective value came from.
type ValueSource string

const (
	// SourceIST means an actual value existed and was used unconditionally.
	SourceIST ValueSource = "IST"
	// SourcePLAN means no actual value existed, so the forecast was used.
	SourcePLAN ValueSource = "PLAN"
	// SourceDefault means neither value existed; the cell is zero.
	SourceDefault ValueSource = "DEFAULT"
)

// EffectiveValue is the resolved value of one (line, period) cell.
type EffectiveValue struct {
	ISTCents      *int64
	PLANCents     *int64
	LineID        string
	Source        ValueSource
	PeriodIndex   int
	EffectiveCents int64
}

// LineTotals holds a line's effective values and their sum across all periods.
type LineTotals struct {
	LineID       string
	CategoryID   string
	PeriodValues []EffectiveValue
	TotalCents   int64
}

// CategoryTotals aggregates the lines of one category per period.
type CategoryTotals struct {
	CategoryID       string
	FlowType         model.FlowType
	EstateType       model.EstateType
	PeriodTotalsCents []int64
	TotalCents       int64
}

// PeriodResult is the liquidity position of a single period.
type PeriodResult struct {
	PeriodIndex         int
	OpeningBalanceCents int64
	InflowsOldCents     int64
	InflowsNewCents     int64
	TotalInflowsCents   int64
	OutflowsOldCents    int64
	OutflowsNewCents    int64
	TotalOutflowsCents  int64
	NetCashflowCents    int64
	ClosingBalanceCents int64
}

// CalculationResult is the complete output of one forecast computation.
type CalculationResult struct {
	DataHash                 string
	Periods                  []PeriodResult
	LineTotals               []LineTotals
	CategoryTotals           []CategoryTotals
	GrandTotalInflowsCents   int64
	GrandTotalOutflowsCents  int64
	GrandTotalNetCents       int64
	FinalClosingBalanceCents int64
}

// effectiveValue resolves one cell. An IST value wins unconditionally, even
// when it is zero or has a different sign than the PLAN value; the precedence
// is evaluated per cell, never per period or per line.
func effectiveValue(ist, plan *int64) (int64, ValueSource) {
	if ist != nil {
		return *ist, SourceIST
	}
	if plan != nil {
		return *plan, SourcePLAN
	}
	return 0, SourceDefault
}

type valueIndex map[cellKey]int64

func buildValueIndex(values []model.PeriodValue) valueIndex {
	idx := make(valueIndex, len(values))
	for _, pv := range values {
		idx[cellKey{lineID: pv.LineID, periodIndex: pv.PeriodIndex, valueType: pv.ValueType}] = pv.AmountCents
	}
	return idx
}

func (idx valueIndex) lookup(lineID string, periodIndex int, vt model.ValueType) *int64 {
	if v, ok := idx[cellKey{lineID: lineID, periodIndex: periodIndex, valueType: vt}]; ok {
		return &v
	}
	return nil
}

// Calculate runs the full forward pass over a validated input: effective
// values per cell, line and category totals, and balance propagation across
// periods. It is pure and deterministic; identical inputs produce identical
// results and an identical data hash.
//
// The only error path is an internal invariant failure, which signals an
// implementation defect rather than a data problem.
func Calculate(in *ValidatedInput) (*CalculationResult, error) {
	idx := buildValueIndex(in.Values)

	lineTotals := make([]LineTotals, 0, len(in.Lines))
	lineTotalsByID := make(map[string]*LineTotals, len(in.Lines))

	for _, line := range in.Lines {
		lt := LineTotals{
			LineID:       line.ID,
			CategoryID:   line.CategoryID,
			PeriodValues: make([]EffectiveValue, 0, in.PeriodCount),
		}
		for p := 0; p < in.PeriodCount; p++ {
			ist := idx.lookup(line.ID, p, model.ValueIST)
			plan := idx.lookup(line.ID, p, model.ValuePLAN)
			amount, source := effectiveValue(ist, plan)

			lt.PeriodValues = append(lt.PeriodValues, EffectiveValue{
				LineID:         line.ID,
				PeriodIndex:    p,
				EffectiveCents: amount,
				Source:         source,
				ISTCents:       ist,
				PLANCents:      plan,
			})
			lt.TotalCents += amount
		}
		lineTotals = append(lineTotals, lt)
		lineTotalsByID[line.ID] = &lineTotals[len(lineTotals)-1]
	}

	categoryTotals := make([]CategoryTotals, 0, len(in.Categories))
	for _, cat := range in.Categories {
		ct := CategoryTotals{
			CategoryID:        cat.ID,
			FlowType:          cat.FlowType,
			EstateType:        cat.EstateType,
			PeriodTotalsCents: make([]int64, in.PeriodCount),
		}
		for _, line := range in.Lines {
			if line.CategoryID != cat.ID {
				continue
			}
			lt := lineTotalsByID[line.ID]
			ct.TotalCents += lt.TotalCents
			for p := 0; p < in.PeriodCount; p++ {
				ct.PeriodTotalsCents[p] += lt.PeriodValues[p].EffectiveCents
			}
		}
		categoryTotals = append(categoryTotals, ct)
	}

	periods := make([]PeriodResult, 0, in.PeriodCount)
	opening := in.OpeningBalanceCents
	for p := 0; p < in.PeriodCount; p++ {
		pr := PeriodResult{PeriodIndex: p, OpeningBalanceCents: opening}

		for _, ct := range categoryTotals {
			if len(ct.PeriodTotalsCents) != in.PeriodCount {
				return nil, fmt.Errorf("%w: category %s has %d period totals, want %d",
					common.ErrInternalInvariant, ct.CategoryID, len(ct.PeriodTotalsCents), in.PeriodCount)
			}
			amount := ct.PeriodTotalsCents[p]
			switch {
			case ct.FlowType == model.FlowInflow && ct.EstateType == model.EstateOld:
				pr.InflowsOldCents += amount
			case ct.FlowType == model.FlowInflow:
				pr.InflowsNewCents += amount
			case ct.EstateType == model.EstateOld:
				pr.OutflowsOldCents += amount
			default:
				pr.OutflowsNewCents += amount
			}
		}

		pr.TotalInflowsCents = pr.InflowsOldCents + pr.InflowsNewCents
		pr.TotalOutflowsCents = pr.OutflowsOldCents + pr.OutflowsNewCents
		pr.NetCashflowCents = pr.TotalInflowsCents - pr.TotalOutflowsCents
		pr.ClosingBalanceCents = pr.OpeningBalanceCents + pr.NetCashflowCents

		periods = append(periods, pr)
		opening = pr.ClosingBalanceCents
	}

	if len(periods) != in.PeriodCount {
		return nil, fmt.Errorf("%w: produced %d periods, want %d", common.ErrInternalInvariant, len(periods), in.PeriodCount)
	}

	result := &CalculationResult{
		Periods:        periods,
		LineTotals:     lineTotals,
		CategoryTotals: categoryTotals,
		DataHash:       DataHash(in.OpeningBalanceCents, in.Values),
	}
	for _, pr := range periods {
		result.GrandTotalInflowsCents += pr.TotalInflowsCents
		result.GrandTotalOutflowsCents += pr.TotalOutflowsCents
	}
	result.GrandTotalNetCents = result.GrandTotalInflowsCents - result.GrandTotalOutflowsCents
	result.FinalClosingBalanceCents = periods[len(periods)-1].ClosingBalanceCents

	return result, nil
}
