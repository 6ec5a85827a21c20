package output

import (
	"github.com/hwidmann/liquiplan/internal/aggregate"
	"github.com/hwidmann/liquiplan/internal/engine"
	"github.com/hwidmann/liquiplan/internal/model"
)

// KPIs are the headline scalars of one forecast run. Monetary fields are
// decimal-string cents.
type KPIs struct {
	OpeningBalanceCents string `json:"openingBalanceCents"`
	ClosingBalanceCents string `json:"closingBalanceCents"`
	MinBalanceCents     string `json:"minBalanceCents"`
	MinBalancePeriod    int    `json:"minBalancePeriod"`
	FirstNegativePeriod *int   `json:"firstNegativePeriod,omitempty"`
	TotalInflowsCents   string `json:"totalInflowsCents"`
	TotalOutflowsCents  string `json:"totalOutflowsCents"`
	NetCashflowCents    string `json:"netCashflowCents"`
	DataHash            string `json:"dataHash"`
	PeriodCount         int    `json:"periodCount"`
}

// RowKind distinguishes the row types of a table series.
type RowKind string

const (
	RowLine     RowKind = "LINE"
	RowCategory RowKind = "CATEGORY"
	RowBucket   RowKind = "BUCKET"
	RowBalance  RowKind = "BALANCE"
)

// TableRow is one row of a table series: a label plus one cell per period.
type TableRow struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Kind       RowKind  `json:"kind"`
	CellsCents []string `json:"cellsCents"`
	TotalCents string   `json:"totalCents"`
}

// Table is the row/column series of a forecast or matrix.
type Table struct {
	PeriodLabels []string   `json:"periodLabels"`
	Rows         []TableRow `json:"rows"`
}

// ChartSeries is a chart-ready time series over the plan's periods.
type ChartSeries struct {
	Labels               []string `json:"labels"`
	OpeningBalancesCents []string `json:"openingBalancesCents"`
	ClosingBalancesCents []string `json:"closingBalancesCents"`
	InflowsCents         []string `json:"inflowsCents"`
	OutflowsCents        []string `json:"outflowsCents"`
	NetCashflowCents     []string `json:"netCashflowCents"`
}

// ForecastPayload is the UI-ready shape of one calculation result.
type ForecastPayload struct {
	KPIs  KPIs        `json:"kpis"`
	Table Table       `json:"table"`
	Chart ChartSeries `json:"chart"`
}

// Transform reshapes a calculation result into a presentation payload. It is
// a pure mapping; no amount is recomputed or rounded here.
func Transform(plan *model.Plan, in *engine.ValidatedInput, result *engine.CalculationResult) *ForecastPayload {
	labels := PeriodLabels(plan.StartDate, plan.PeriodType, in.PeriodCount)

	payload := &ForecastPayload{
		KPIs:  buildKPIs(result, in.OpeningBalanceCents, in.PeriodCount),
		Table: Table{PeriodLabels: labels},
		Chart: ChartSeries{
			Labels:               labels,
			OpeningBalancesCents: make([]string, 0, in.PeriodCount),
			ClosingBalancesCents: make([]string, 0, in.PeriodCount),
			InflowsCents:         make([]string, 0, in.PeriodCount),
			OutflowsCents:        make([]string, 0, in.PeriodCount),
			NetCashflowCents:     make([]string, 0, in.PeriodCount),
		},
	}

	for _, pr := range result.Periods {
		payload.Chart.OpeningBalancesCents = append(payload.Chart.OpeningBalancesCents, model.CentsString(pr.OpeningBalanceCents))
		payload.Chart.ClosingBalancesCents = append(payload.Chart.ClosingBalancesCents, model.CentsString(pr.ClosingBalanceCents))
		payload.Chart.InflowsCents = append(payload.Chart.InflowsCents, model.CentsString(pr.TotalInflowsCents))
		payload.Chart.OutflowsCents = append(payload.Chart.OutflowsCents, model.CentsString(pr.TotalOutflowsCents))
		payload.Chart.NetCashflowCents = append(payload.Chart.NetCashflowCents, model.CentsString(pr.NetCashflowCents))
	}

	lineNames := make(map[string]string, len(in.Lines))
	for _, line := range in.Lines {
		lineNames[line.ID] = line.Name
	}
	lineTotalsByID := make(map[string]*engine.LineTotals, len(result.LineTotals))
	for i := range result.LineTotals {
		lineTotalsByID[result.LineTotals[i].LineID] = &result.LineTotals[i]
	}
	categoryTotalsByID := make(map[string]*engine.CategoryTotals, len(result.CategoryTotals))
	for i := range result.CategoryTotals {
		categoryTotalsByID[result.CategoryTotals[i].CategoryID] = &result.CategoryTotals[i]
	}

	// Category rows followed by their line rows, in declaration order.
	for _, cat := range in.Categories {
		ct := categoryTotalsByID[cat.ID]
		if ct == nil {
			continue
		}
		catRow := TableRow{
			ID:         cat.ID,
			Label:      cat.Name,
			Kind:       RowCategory,
			CellsCents: make([]string, 0, in.PeriodCount),
			TotalCents: model.CentsString(ct.TotalCents),
		}
		for _, cents := range ct.PeriodTotalsCents {
			catRow.CellsCents = append(catRow.CellsCents, model.CentsString(cents))
		}
		payload.Table.Rows = append(payload.Table.Rows, catRow)

		for _, line := range in.Lines {
			if line.CategoryID != cat.ID {
				continue
			}
			lt := lineTotalsByID[line.ID]
			if lt == nil {
				continue
			}
			row := TableRow{
				ID:         line.ID,
				Label:      lineNames[line.ID],
				Kind:       RowLine,
				CellsCents: make([]string, 0, in.PeriodCount),
				TotalCents: model.CentsString(lt.TotalCents),
			}
			for _, ev := range lt.PeriodValues {
				row.CellsCents = append(row.CellsCents, model.CentsString(ev.EffectiveCents))
			}
			payload.Table.Rows = append(payload.Table.Rows, row)
		}
	}

	payload.Table.Rows = append(payload.Table.Rows, balanceRow("closing-balance", "Endbestand", result))

	return payload
}

func balanceRow(id, label string, result *engine.CalculationResult) TableRow {
	row := TableRow{
		ID:         id,
		Label:      label,
		Kind:       RowBalance,
		CellsCents: make([]string, 0, len(result.Periods)),
		TotalCents: model.CentsString(result.FinalClosingBalanceCents),
	}
	for _, pr := range result.Periods {
		row.CellsCents = append(row.CellsCents, model.CentsString(pr.ClosingBalanceCents))
	}
	return row
}

func buildKPIs(result *engine.CalculationResult, openingBalanceCents int64, periodCount int) KPIs {
	kpis := KPIs{
		OpeningBalanceCents: model.CentsString(openingBalanceCents),
		ClosingBalanceCents: model.CentsString(result.FinalClosingBalanceCents),
		TotalInflowsCents:   model.CentsString(result.GrandTotalInflowsCents),
		TotalOutflowsCents:  model.CentsString(result.GrandTotalOutflowsCents),
		NetCashflowCents:    model.CentsString(result.GrandTotalNetCents),
		DataHash:            result.DataHash,
		PeriodCount:         periodCount,
	}

	// The minimum is taken over closing balances; the opening balance itself
	// is not a period.
	minBalance := openingBalanceCents
	minPeriod := 0
	if len(result.Periods) > 0 {
		minBalance = result.Periods[0].ClosingBalanceCents
		for _, pr := range result.Periods {
			if pr.ClosingBalanceCents < minBalance {
				minBalance = pr.ClosingBalanceCents
				minPeriod = pr.PeriodIndex
			}
			if pr.ClosingBalanceCents < 0 && kpis.FirstNegativePeriod == nil {
				p := pr.PeriodIndex
				kpis.FirstNegativePeriod = &p
			}
		}
	}
	kpis.MinBalanceCents = model.CentsString(minBalance)
	kpis.MinBalancePeriod = minPeriod

	return kpis
}

// MatrixStats mirrors the aggregation data-quality counters for the payload.
type MatrixStats struct {
	TotalEntries      int `json:"totalEntries"`
	ISTCount          int `json:"istCount"`
	PlanCount         int `json:"planCount"`
	UndeterminedCount int `json:"undeterminedCount"`
	UnreviewedCount   int `json:"unreviewedCount"`
	SkippedOutOfRange int `json:"skippedOutOfRange"`
}

// EstateRow is one period's estate split in the matrix payload.
type EstateRow struct {
	InflowsOldCents   string `json:"inflowsOldCents"`
	InflowsNewCents   string `json:"inflowsNewCents"`
	OutflowsOldCents  string `json:"outflowsOldCents"`
	OutflowsNewCents  string `json:"outflowsNewCents"`
	UndeterminedCents string `json:"undeterminedCents"`
}

// MatrixPayload is the UI-ready shape of one aggregation result.
type MatrixPayload struct {
	Scope      string      `json:"scope"`
	Table      Table       `json:"table"`
	EstateRows []EstateRow `json:"estateRows"`
	Stats      MatrixStats `json:"stats"`
}

// TransformMatrix reshapes an aggregation result into a matrix payload. Rows
// follow bucket display order; buckets with no contributing entries still get
// a zero row so the matrix shape is stable across runs.
func TransformMatrix(plan *model.Plan, buckets []aggregate.Bucket, scopeName string, res *aggregate.Result) *MatrixPayload {
	if scopeName == "" {
		scopeName = "GLOBAL"
	}
	payload := &MatrixPayload{
		Scope: scopeName,
		Table: Table{
			PeriodLabels: PeriodLabels(plan.StartDate, plan.PeriodType, res.PeriodCount),
		},
		Stats: MatrixStats{
			TotalEntries:      res.Stats.TotalEntries,
			ISTCount:          res.Stats.ISTCount,
			PlanCount:         res.Stats.PlanCount,
			UndeterminedCount: res.Stats.UndeterminedCount,
			UnreviewedCount:   res.Stats.UnreviewedCount,
			SkippedOutOfRange: res.Stats.SkippedOutOfRange,
		},
	}

	for _, bucket := range buckets {
		row := TableRow{
			ID:         bucket.ID,
			Label:      bucket.Label,
			Kind:       RowBucket,
			CellsCents: make([]string, 0, res.PeriodCount),
		}
		var total int64
		for p := 0; p < res.PeriodCount; p++ {
			var cents int64
			if cell, ok := res.Cells[aggregate.CellKey{BucketID: bucket.ID, PeriodIndex: p}]; ok {
				cents = cell.AmountCents
			}
			total += cents
			row.CellsCents = append(row.CellsCents, model.CentsString(cents))
		}
		row.TotalCents = model.CentsString(total)
		payload.Table.Rows = append(payload.Table.Rows, row)
	}

	for _, totals := range res.EstateTotals {
		payload.EstateRows = append(payload.EstateRows, EstateRow{
			InflowsOldCents:   model.CentsString(totals.InflowsOldCents),
			InflowsNewCents:   model.CentsString(totals.InflowsNewCents),
			OutflowsOldCents:  model.CentsString(totals.OutflowsOldCents),
			OutflowsNewCents:  model.CentsString(totals.OutflowsNewCents),
			UndeterminedCents: model.CentsString(totals.UndeterminedCents),
		})
	}

	return payload
}
