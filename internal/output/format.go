// Package output reshapes engine results into presentation-ready payloads.
// It never computes or alters monetary values; every amount crosses the
// boundary as a decimal-string cent value.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/hwidmann/liquiplan/internal/model"
)

// EuroString renders a cent amount for terminal display using German
// conventions (thousands dot, decimal comma). Display only; serialization
// always uses model.CentsString.
func EuroString(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%s,%02d €", sign, b.String(), frac)
}

var germanMonths = [...]string{
	"Jan", "Feb", "Mär", "Apr", "Mai", "Jun",
	"Jul", "Aug", "Sep", "Okt", "Nov", "Dez",
}

// PeriodLabel names a plan period for table and chart axes. Weekly plans use
// ISO calendar weeks, monthly plans the German month abbreviation.
func PeriodLabel(startDate time.Time, periodType model.PeriodType, periodIndex int) string {
	if periodType == model.PeriodMonthly {
		d := time.Date(startDate.Year(), startDate.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, periodIndex, 0)
		return fmt.Sprintf("%s %d", germanMonths[int(d.Month())-1], d.Year())
	}
	d := startDate.AddDate(0, 0, periodIndex*7)
	year, week := d.ISOWeek()
	return fmt.Sprintf("KW %02d/%d", week, year)
}

// PeriodLabels builds the full label axis of a plan.
func PeriodLabels(startDate time.Time, periodType model.PeriodType, periodCount int) []string {
	labels := make([]string, periodCount)
	for i := range labels {
		labels[i] = PeriodLabel(startDate, periodType, i)
	}
	return labels
}
