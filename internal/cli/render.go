package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hwidmann/liquiplan/internal/model"
	"github.com/hwidmann/liquiplan/internal/output"
)

// RenderKPIs formats the headline figures of a forecast as a styled box.
func RenderKPIs(kpis output.KPIs) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Anfangsbestand:  %s\n", euroCell(kpis.OpeningBalanceCents))
	fmt.Fprintf(&b, "Endbestand:      %s\n", euroCell(kpis.ClosingBalanceCents))
	fmt.Fprintf(&b, "Einzahlungen:    %s\n", euroCell(kpis.TotalInflowsCents))
	fmt.Fprintf(&b, "Auszahlungen:    %s\n", euroCell(kpis.TotalOutflowsCents))
	fmt.Fprintf(&b, "Nettocashflow:   %s\n", euroCell(kpis.NetCashflowCents))
	fmt.Fprintf(&b, "Tiefster Stand:  %s (Periode %d)", euroCell(kpis.MinBalanceCents), kpis.MinBalancePeriod+1)
	if kpis.FirstNegativePeriod != nil {
		fmt.Fprintf(&b, "\n%s", NegativeStyle.Render(
			fmt.Sprintf("Unterdeckung ab Periode %d", *kpis.FirstNegativePeriod+1)))
	}

	return RenderBox(ChartIcon+" Liquidität", b.String())
}

// RenderTable formats a table series for the terminal. Cell amounts are shown
// in euro display format; negative values are highlighted. Styling is applied
// after padding so ANSI codes never skew the column widths.
func RenderTable(table output.Table) string {
	var b strings.Builder

	header := TableCellStyle.Render(padRight("", 28))
	for _, label := range table.PeriodLabels {
		header += TableCellStyle.Render(padLeft(label, 14))
	}
	header += TableCellStyle.Render(padLeft("Summe", 14))
	b.WriteString(TableHeaderStyle.Render(header))
	b.WriteString("\n")

	for _, row := range table.Rows {
		label := row.Label
		if row.Kind == output.RowLine {
			label = "  " + label
		}
		line := TableCellStyle.Render(padRight(truncate(label, 28), 28))
		for _, cell := range row.CellsCents {
			line += TableCellStyle.Render(amountCell(cell, 14))
		}
		line += TableCellStyle.Render(amountCell(row.TotalCents, 14))

		switch row.Kind {
		case output.RowCategory:
			b.WriteString(BoldStyle.Render(line))
		case output.RowBalance:
			b.WriteString(BalanceRowStyle.Render(line))
		default:
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// RenderStats summarizes aggregation data-quality counters.
func RenderStats(stats output.MatrixStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Buchungen: %d (IST %d / PLAN %d)", stats.TotalEntries, stats.ISTCount, stats.PlanCount)
	if stats.SkippedOutOfRange > 0 {
		fmt.Fprintf(&b, ", außerhalb des Horizonts: %d", stats.SkippedOutOfRange)
	}
	out := b.String()
	if stats.UndeterminedCount > 0 {
		out += "\n" + FormatWarning(fmt.Sprintf("%d Buchungen ohne Massezuordnung", stats.UndeterminedCount))
	}
	if stats.UnreviewedCount > 0 {
		out += "\n" + SubtleStyle.Render(fmt.Sprintf("%d Zuordnungen noch ungeprüft", stats.UnreviewedCount))
	}
	return out
}

// euroCell converts a decimal-string cent amount into euro display form. A
// malformed amount is rendered verbatim so the defect stays visible.
func euroCell(cents string) string {
	v, err := model.ParseCents(cents)
	if err != nil {
		return cents
	}
	s := output.EuroString(v)
	if v < 0 {
		return NegativeStyle.Render(s)
	}
	return s
}

// amountCell pads the plain euro representation first and styles it second.
func amountCell(cents string, width int) string {
	v, err := model.ParseCents(cents)
	if err != nil {
		return padLeft(cents, width)
	}
	padded := padLeft(output.EuroString(v), width)
	if v < 0 {
		return NegativeStyle.Render(padded)
	}
	return padded
}

// Padding measures display width, not bytes: German labels and the euro sign
// are multi-byte and would otherwise skew the columns.
func padRight(s string, width int) string {
	gap := width - lipgloss.Width(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

func padLeft(s string, width int) string {
	gap := width - lipgloss.Width(s)
	if gap <= 0 {
		return s
	}
	return strings.Repeat(" ", gap) + s
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
