// Package allocation implements the estate allocation splitter: it assigns
// every ledger entry's amount to the old estate, the new estate, or marks it
// undetermined, following a fixed rule precedence and recording provenance.
package allocation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hwidmann/liquiplan/internal/common"
)

// FallbackRule configures how entries of a counterparty are handled when no
// service period is available.
type FallbackRule string

const (
	// FallbackPriorMonth derives a synthetic service period covering the
	// calendar month before the transaction date. Used for counterparties
	// that settle in arrears.
	FallbackPriorMonth FallbackRule = "PRIOR_MONTH"
	// FallbackManualReview marks entries as undetermined with a note naming
	// the counterparty, for operator follow-up.
	FallbackManualReview FallbackRule = "MANUAL_REVIEW"
)

// CounterpartyRule is per-counterparty configuration.
type CounterpartyRule struct {
	Ref      string
	Name     string
	Fallback FallbackRule
}

// RatioRule is a fixed split from a governing agreement, keyed by category
// tag. NewRatio is the fraction assigned to the new estate.
type RatioRule struct {
	NewRatio decimal.Decimal
	Note     string
}

// Config is the immutable rule configuration of a splitter. It must not be
// mutated while a computation is running.
type Config struct {
	CutoffDate     time.Time
	RatioRules     map[string]RatioRule
	Counterparties map[string]CounterpartyRule
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.CutoffDate.IsZero() {
		return fmt.Errorf("%w: cutoff date is required", common.ErrInvalidConfig)
	}
	for tag, rule := range c.RatioRules {
		if rule.NewRatio.IsNegative() || rule.NewRatio.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: ratio rule for %q has new-estate ratio %s outside [0, 1]",
				common.ErrInvalidConfig, tag, rule.NewRatio)
		}
	}
	for ref, rule := range c.Counterparties {
		switch rule.Fallback {
		case FallbackPriorMonth, FallbackManualReview, "":
		default:
			return fmt.Errorf("%w: counterparty %q has unknown fallback rule %q",
				common.ErrInvalidConfig, ref, rule.Fallback)
		}
	}
	return nil
}

// ratioRuleFor returns the fixed split for a category tag, if configured.
func (c Config) ratioRuleFor(categoryTag string) (RatioRule, bool) {
	if categoryTag == "" {
		return RatioRule{}, false
	}
	rule, ok := c.RatioRules[categoryTag]
	return rule, ok
}

// counterpartyFor returns the configuration for a counterparty, if any.
func (c Config) counterpartyFor(ref string) (CounterpartyRule, bool) {
	if ref == "" {
		return CounterpartyRule{}, false
	}
	rule, ok := c.Counterparties[ref]
	return rule, ok
}
