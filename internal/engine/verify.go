package engine

import "fmt"

// VerifyResultIntegrity re-checks the arithmetic invariants of a finished
// calculation: balance propagation between periods, net and closing formulas,
// and grand-total consistency. Any finding is an implementation defect.
func VerifyResultIntegrity(result *CalculationResult, openingBalanceCents int64) []string {
	var findings []string

	if len(result.Periods) == 0 {
		return []string{"result has no periods"}
	}

	if result.Periods[0].OpeningBalanceCents != openingBalanceCents {
		findings = append(findings, fmt.Sprintf(
			"period 0 opening balance %d does not match provided opening balance %d",
			result.Periods[0].OpeningBalanceCents, openingBalanceCents))
	}

	for i := 0; i < len(result.Periods)-1; i++ {
		cur, next := result.Periods[i], result.Periods[i+1]
		if cur.ClosingBalanceCents != next.OpeningBalanceCents {
			findings = append(findings, fmt.Sprintf(
				"period %d closing balance %d does not match period %d opening balance %d",
				i, cur.ClosingBalanceCents, i+1, next.OpeningBalanceCents))
		}
	}

	var sumNet, sumInflows, sumOutflows int64
	for _, p := range result.Periods {
		if net := p.TotalInflowsCents - p.TotalOutflowsCents; p.NetCashflowCents != net {
			findings = append(findings, fmt.Sprintf(
				"period %d net cashflow %d does not match inflows minus outflows %d",
				p.PeriodIndex, p.NetCashflowCents, net))
		}
		if closing := p.OpeningBalanceCents + p.NetCashflowCents; p.ClosingBalanceCents != closing {
			findings = append(findings, fmt.Sprintf(
				"period %d closing balance %d does not match opening plus net %d",
				p.PeriodIndex, p.ClosingBalanceCents, closing))
		}
		sumNet += p.NetCashflowCents
		sumInflows += p.TotalInflowsCents
		sumOutflows += p.TotalOutflowsCents
	}

	if want := openingBalanceCents + sumNet; result.FinalClosingBalanceCents != want {
		findings = append(findings, fmt.Sprintf(
			"final closing balance %d does not match opening plus sum of nets %d",
			result.FinalClosingBalanceCents, want))
	}
	if result.GrandTotalInflowsCents != sumInflows {
		findings = append(findings, fmt.Sprintf(
			"grand total inflows %d does not match sum of period inflows %d",
			result.GrandTotalInflowsCents, sumInflows))
	}
	if result.GrandTotalOutflowsCents != sumOutflows {
		findings = append(findings, fmt.Sprintf(
			"grand total outflows %d does not match sum of period outflows %d",
			result.GrandTotalOutflowsCents, sumOutflows))
	}

	return findings
}
