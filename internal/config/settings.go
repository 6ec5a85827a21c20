package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hwidmann/liquiplan/internal/aggregate"
	"github.com/hwidmann/liquiplan/internal/allocation"
	"github.com/hwidmann/liquiplan/internal/model"
)

// AllocationSettings is the file representation of the estate allocation
// rules, decoded from the viper config tree.
type AllocationSettings struct {
	CutoffDate     string                      `mapstructure:"cutoff_date"`
	RatioRules     map[string]RatioRuleSetting `mapstructure:"ratio_rules"`
	Counterparties []CounterpartySetting       `mapstructure:"counterparties"`
}

// RatioRuleSetting is a fixed contract split keyed by category tag.
type RatioRuleSetting struct {
	NewRatio string `mapstructure:"new_ratio"`
	Note     string `mapstructure:"note"`
}

// CounterpartySetting configures the fallback behavior of one counterparty.
type CounterpartySetting struct {
	Ref      string `mapstructure:"ref"`
	Name     string `mapstructure:"name"`
	Fallback string `mapstructure:"fallback"`
}

// ToAllocationConfig converts the settings into a validated splitter config.
func (s AllocationSettings) ToAllocationConfig() (allocation.Config, error) {
	if s.CutoffDate == "" {
		return allocation.Config{}, fmt.Errorf("allocation.cutoff_date is required")
	}
	cutoff, err := time.Parse("2006-01-02", s.CutoffDate)
	if err != nil {
		return allocation.Config{}, fmt.Errorf("invalid allocation.cutoff_date %q: %w", s.CutoffDate, err)
	}

	cfg := allocation.Config{
		CutoffDate:     cutoff,
		RatioRules:     make(map[string]allocation.RatioRule, len(s.RatioRules)),
		Counterparties: make(map[string]allocation.CounterpartyRule, len(s.Counterparties)),
	}

	for tag, rule := range s.RatioRules {
		ratio, err := decimal.NewFromString(rule.NewRatio)
		if err != nil {
			return allocation.Config{}, fmt.Errorf("invalid new_ratio %q for category %q: %w", rule.NewRatio, tag, err)
		}
		cfg.RatioRules[tag] = allocation.RatioRule{NewRatio: ratio, Note: rule.Note}
	}

	for _, cp := range s.Counterparties {
		if cp.Ref == "" {
			return allocation.Config{}, fmt.Errorf("counterparty entry without ref")
		}
		cfg.Counterparties[cp.Ref] = allocation.CounterpartyRule{
			Ref:      cp.Ref,
			Name:     cp.Name,
			Fallback: allocation.FallbackRule(cp.Fallback),
		}
	}

	if err := cfg.Validate(); err != nil {
		return allocation.Config{}, err
	}
	return cfg, nil
}

// BucketSettings is the file representation of the aggregation bucket
// configuration.
type BucketSettings struct {
	Buckets            []BucketSetting   `mapstructure:"buckets"`
	TagMap             map[string]string `mapstructure:"tag_map"`
	Patterns           []PatternSetting  `mapstructure:"patterns"`
	UnclassifiedBucket string            `mapstructure:"unclassified_bucket"`
}

// BucketSetting declares one aggregation bucket.
type BucketSetting struct {
	ID           string `mapstructure:"id"`
	Label        string `mapstructure:"label"`
	DisplayOrder int    `mapstructure:"display_order"`
}

// PatternSetting is one fallback classification rule.
type PatternSetting struct {
	ID       int    `mapstructure:"id"`
	BucketID string `mapstructure:"bucket"`
	Pattern  string `mapstructure:"pattern"`
	Field    string `mapstructure:"field"`
	Priority int    `mapstructure:"priority"`
	IsRegex  bool   `mapstructure:"regex"`
}

// ToBucketConfig converts the settings into a matcher configuration. Rule
// validation (unknown targets, bad regexes) happens in aggregate.NewMatcher.
func (s BucketSettings) ToBucketConfig() aggregate.BucketConfig {
	cfg := aggregate.BucketConfig{
		TagMap:             s.TagMap,
		UnclassifiedBucket: s.UnclassifiedBucket,
	}
	for _, b := range s.Buckets {
		cfg.Buckets = append(cfg.Buckets, aggregate.Bucket{
			ID:           b.ID,
			Label:        b.Label,
			DisplayOrder: b.DisplayOrder,
		})
	}
	for _, p := range s.Patterns {
		field := aggregate.FieldDescription
		if p.Field == "counterparty" {
			field = aggregate.FieldCounterparty
		}
		cfg.Patterns = append(cfg.Patterns, aggregate.PatternRule{
			ID:       p.ID,
			BucketID: p.BucketID,
			Pattern:  p.Pattern,
			Field:    field,
			Priority: p.Priority,
			IsRegex:  p.IsRegex,
		})
	}
	return cfg
}

// ScopeSetting names an organizational subset of locations for scoped
// aggregation.
type ScopeSetting struct {
	Name      string   `mapstructure:"name"`
	Locations []string `mapstructure:"locations"`
}

// ToScope converts the setting into an aggregation scope.
func (s ScopeSetting) ToScope() *aggregate.Scope {
	return &aggregate.Scope{Name: s.Name, Locations: s.Locations}
}

// PlanSettings describe the plan skeleton used when creating a new plan from
// configuration.
type PlanSettings struct {
	CaseRef             string            `mapstructure:"case_ref"`
	Name                string            `mapstructure:"name"`
	PeriodType          string            `mapstructure:"period_type"`
	PeriodCount         int               `mapstructure:"period_count"`
	StartDate           string            `mapstructure:"start_date"`
	OpeningBalanceCents int64             `mapstructure:"opening_balance_cents"`
	Categories          []CategorySetting `mapstructure:"categories"`
	Lines               []LineSetting     `mapstructure:"lines"`
}

// CategorySetting declares one cashflow category of the plan skeleton.
type CategorySetting struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	FlowType     string `mapstructure:"flow"`
	EstateType   string `mapstructure:"estate"`
	DisplayOrder int    `mapstructure:"display_order"`
}

// LineSetting declares one cashflow line of the plan skeleton.
type LineSetting struct {
	ID           string `mapstructure:"id"`
	CategoryID   string `mapstructure:"category"`
	Name         string `mapstructure:"name"`
	DisplayOrder int    `mapstructure:"display_order"`
}

// ToCategories converts the declared categories for a plan.
func (s PlanSettings) ToCategories(planID string) ([]model.Category, error) {
	categories := make([]model.Category, 0, len(s.Categories))
	for _, c := range s.Categories {
		flow := model.FlowType(c.FlowType)
		if flow != model.FlowInflow && flow != model.FlowOutflow {
			return nil, fmt.Errorf("category %q has invalid flow %q", c.ID, c.FlowType)
		}
		estate := model.EstateType(c.EstateType)
		if estate != model.EstateOld && estate != model.EstateNew {
			return nil, fmt.Errorf("category %q has invalid estate %q", c.ID, c.EstateType)
		}
		categories = append(categories, model.Category{
			ID:           c.ID,
			PlanID:       planID,
			Name:         c.Name,
			FlowType:     flow,
			EstateType:   estate,
			DisplayOrder: c.DisplayOrder,
		})
	}
	return categories, nil
}

// ToLines converts the declared lines of the plan skeleton.
func (s PlanSettings) ToLines() []model.Line {
	lines := make([]model.Line, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, model.Line{
			ID:           l.ID,
			CategoryID:   l.CategoryID,
			Name:         l.Name,
			DisplayOrder: l.DisplayOrder,
		})
	}
	return lines
}

// ToPlan converts the settings into a fresh plan.
func (s PlanSettings) ToPlan() (*model.Plan, error) {
	start, err := time.Parse("2006-01-02", s.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid plan.start_date %q: %w", s.StartDate, err)
	}
	periodType := model.PeriodType(s.PeriodType)
	if periodType != model.PeriodWeekly && periodType != model.PeriodMonthly {
		return nil, fmt.Errorf("invalid plan.period_type %q", s.PeriodType)
	}
	return model.NewPlan(s.CaseRef, s.Name, periodType, s.PeriodCount, start, s.OpeningBalanceCents), nil
}
