package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyResultIntegrity_FlagsCorruption(t *testing.T) {
	validated := mustValidate(t, validInput())
	result, err := Calculate(validated)
	require.NoError(t, err)

	tests := []struct {
		name    string
		corrupt func(*CalculationResult)
	}{
		{
			name: "broken balance propagation",
			corrupt: func(r *CalculationResult) {
				r.Periods[1].OpeningBalanceCents += 100
			},
		},
		{
			name: "net does not match flows",
			corrupt: func(r *CalculationResult) {
				r.Periods[0].NetCashflowCents += 1
			},
		},
		{
			name: "closing does not match opening plus net",
			corrupt: func(r *CalculationResult) {
				r.Periods[2].ClosingBalanceCents -= 1
			},
		},
		{
			name: "grand total inflows drifted",
			corrupt: func(r *CalculationResult) {
				r.GrandTotalInflowsCents += 50
			},
		},
		{
			name: "final closing balance drifted",
			corrupt: func(r *CalculationResult) {
				r.FinalClosingBalanceCents -= 50
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Fresh result per case so corruptions do not stack.
			fresh, calcErr := Calculate(validated)
			require.NoError(t, calcErr)

			tt.corrupt(fresh)
			findings := VerifyResultIntegrity(fresh, validated.OpeningBalanceCents)
			assert.NotEmpty(t, findings)
		})
	}

	// Untouched result stays clean.
	assert.Empty(t, VerifyResultIntegrity(result, validated.OpeningBalanceCents))
}

func TestVerifyResultIntegrity_EmptyResult(t *testing.T) {
	findings := VerifyResultIntegrity(&CalculationResult{}, 0)
	assert.NotEmpty(t, findings)
}
