package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwidmann/liquiplan/internal/model"
)

func mustValidate(t *testing.T, in Input) *ValidatedInput {
	t.Helper()
	validated, errs := Validate(in)
	require.Empty(t, errs)
	return validated
}

func TestCalculate_ISTPrecedencePerCell(t *testing.T) {
	in := Input{
		PeriodCount:         5,
		OpeningBalanceCents: 0,
		Categories: []model.Category{
			{ID: "cat", FlowType: model.FlowInflow, EstateType: model.EstateNew},
		},
		Lines: []model.Line{{ID: "line", CategoryID: "cat"}},
		Values: []model.PeriodValue{
			// Period 2: both IST and PLAN exist, IST wins unconditionally.
			{LineID: "line", PeriodIndex: 2, ValueType: model.ValuePLAN, AmountCents: 500},
			{LineID: "line", PeriodIndex: 2, ValueType: model.ValueIST, AmountCents: 300},
			// Period 3: only PLAN exists, PLAN is effective.
			{LineID: "line", PeriodIndex: 3, ValueType: model.ValuePLAN, AmountCents: 700},
			// Period 4: IST of zero still overrides PLAN.
			{LineID: "line", PeriodIndex: 4, ValueType: model.ValuePLAN, AmountCents: 900},
			{LineID: "line", PeriodIndex: 4, ValueType: model.ValueIST, AmountCents: 0},
		},
	}

	result, err := Calculate(mustValidate(t, in))
	require.NoError(t, err)
	require.Len(t, result.LineTotals, 1)

	cells := result.LineTotals[0].PeriodValues
	require.Len(t, cells, 5)

	assert.Equal(t, int64(0), cells[0].EffectiveCents)
	assert.Equal(t, SourceDefault, cells[0].Source)

	assert.Equal(t, int64(300), cells[2].EffectiveCents, "IST must win over PLAN")
	assert.Equal(t, SourceIST, cells[2].Source)

	assert.Equal(t, int64(700), cells[3].EffectiveCents)
	assert.Equal(t, SourcePLAN, cells[3].Source)

	assert.Equal(t, int64(0), cells[4].EffectiveCents, "zero IST still overrides PLAN")
	assert.Equal(t, SourceIST, cells[4].Source)

	assert.Equal(t, int64(1000), result.LineTotals[0].TotalCents)
}

func TestCalculate_BalanceContinuity(t *testing.T) {
	// Net flows +300, -200, +50 over three periods starting from 1000.
	in := Input{
		PeriodCount:         3,
		OpeningBalanceCents: 1000,
		Categories: []model.Category{
			{ID: "cat-in", FlowType: model.FlowInflow, EstateType: model.EstateNew},
			{ID: "cat-out", FlowType: model.FlowOutflow, EstateType: model.EstateNew},
		},
		Lines: []model.Line{
			{ID: "line-in", CategoryID: "cat-in"},
			{ID: "line-out", CategoryID: "cat-out"},
		},
		Values: []model.PeriodValue{
			{LineID: "line-in", PeriodIndex: 0, ValueType: model.ValueIST, AmountCents: 300},
			{LineID: "line-out", PeriodIndex: 1, ValueType: model.ValueIST, AmountCents: 200},
			{LineID: "line-in", PeriodIndex: 2, ValueType: model.ValueIST, AmountCents: 50},
		},
	}

	result, err := Calculate(mustValidate(t, in))
	require.NoError(t, err)
	require.Len(t, result.Periods, 3)

	assert.Equal(t, int64(1300), result.Periods[0].ClosingBalanceCents)
	assert.Equal(t, int64(1100), result.Periods[1].ClosingBalanceCents)
	assert.Equal(t, int64(1150), result.Periods[2].ClosingBalanceCents)

	assert.Equal(t, result.Periods[0].ClosingBalanceCents, result.Periods[1].OpeningBalanceCents)
	assert.Equal(t, result.Periods[1].ClosingBalanceCents, result.Periods[2].OpeningBalanceCents)

	assert.Equal(t, int64(1150), result.FinalClosingBalanceCents)
	assert.Equal(t, int64(350), result.GrandTotalInflowsCents)
	assert.Equal(t, int64(200), result.GrandTotalOutflowsCents)
	assert.Equal(t, int64(150), result.GrandTotalNetCents)
}

func TestCalculate_EstateDimensionSplit(t *testing.T) {
	in := Input{
		PeriodCount:         1,
		OpeningBalanceCents: 0,
		Categories: []model.Category{
			{ID: "cat-old-in", FlowType: model.FlowInflow, EstateType: model.EstateOld},
			{ID: "cat-new-in", FlowType: model.FlowInflow, EstateType: model.EstateNew},
			{ID: "cat-old-out", FlowType: model.FlowOutflow, EstateType: model.EstateOld},
			{ID: "cat-new-out", FlowType: model.FlowOutflow, EstateType: model.EstateNew},
		},
		Lines: []model.Line{
			{ID: "l1", CategoryID: "cat-old-in"},
			{ID: "l2", CategoryID: "cat-new-in"},
			{ID: "l3", CategoryID: "cat-old-out"},
			{ID: "l4", CategoryID: "cat-new-out"},
		},
		Values: []model.PeriodValue{
			{LineID: "l1", PeriodIndex: 0, ValueType: model.ValueIST, AmountCents: 100},
			{LineID: "l2", PeriodIndex: 0, ValueType: model.ValueIST, AmountCents: 200},
			{LineID: "l3", PeriodIndex: 0, ValueType: model.ValueIST, AmountCents: 40},
			{LineID: "l4", PeriodIndex: 0, ValueType: model.ValueIST, AmountCents: 60},
		},
	}

	result, err := Calculate(mustValidate(t, in))
	require.NoError(t, err)

	p := result.Periods[0]
	assert.Equal(t, int64(100), p.InflowsOldCents)
	assert.Equal(t, int64(200), p.InflowsNewCents)
	assert.Equal(t, int64(300), p.TotalInflowsCents)
	assert.Equal(t, int64(40), p.OutflowsOldCents)
	assert.Equal(t, int64(60), p.OutflowsNewCents)
	assert.Equal(t, int64(100), p.TotalOutflowsCents)
	assert.Equal(t, int64(200), p.NetCashflowCents)
}

func TestCalculate_Idempotent(t *testing.T) {
	validated := mustValidate(t, validInput())

	first, err := Calculate(validated)
	require.NoError(t, err)
	second, err := Calculate(validated)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.DataHash, second.DataHash)
}

func TestCalculate_IntegrityVerifierAcceptsResult(t *testing.T) {
	validated := mustValidate(t, validInput())
	result, err := Calculate(validated)
	require.NoError(t, err)

	findings := VerifyResultIntegrity(result, validated.OpeningBalanceCents)
	assert.Empty(t, findings)
}
