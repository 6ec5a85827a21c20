// Package aggregate groups allocated ledger entries into named buckets per
// plan period, optionally tracing which entries and rules contributed to each
// cell.
package aggregate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hwidmann/liquiplan/internal/common"
	"github.com/hwidmann/liquiplan/internal/model"
)

// Bucket is a named aggregation row, e.g. a revenue or expense line of the
// liquidity matrix.
type Bucket struct {
	ID           string
	Label        string
	DisplayOrder int
}

// PatternRule matches entries without a tag mapping by free-text pattern
// against the description or counterparty. Rules are configuration data, not
// code; they are evaluated top-down by priority, first match wins.
type PatternRule struct {
	ID       int
	BucketID string
	Pattern  string
	Field    PatternField
	Priority int
	IsRegex  bool
}

// PatternField selects which entry field a pattern rule inspects.
type PatternField string

const (
	FieldDescription  PatternField = "DESCRIPTION"
	FieldCounterparty PatternField = "COUNTERPARTY"
)

// BucketConfig is the immutable bucket configuration for one aggregation run.
type BucketConfig struct {
	Buckets             []Bucket
	TagMap              map[string]string // category tag -> bucket id
	Patterns            []PatternRule
	UnclassifiedBucket  string
}

// MatchVia records which mechanism selected a bucket for an entry.
type MatchVia string

const (
	ViaTagMap   MatchVia = "TAG_MAP"
	ViaPattern  MatchVia = "PATTERN"
	ViaFallback MatchVia = "FALLBACK"
)

// Match is the outcome of bucket matching for one entry.
type Match struct {
	Rule     *PatternRule
	BucketID string
	Via      MatchVia
}

// Matcher assigns entries to buckets. Regex patterns are compiled once at
// construction; the matcher is safe for concurrent use afterwards.
type Matcher struct {
	compiledRegex map[int]*regexp.Regexp
	bucketIDs     map[string]struct{}
	cfg           BucketConfig
}

// NewMatcher validates the bucket configuration and pre-compiles patterns.
func NewMatcher(cfg BucketConfig) (*Matcher, error) {
	if cfg.UnclassifiedBucket == "" {
		return nil, fmt.Errorf("%w: unclassified bucket is required", common.ErrInvalidConfig)
	}

	bucketIDs := make(map[string]struct{}, len(cfg.Buckets))
	for _, b := range cfg.Buckets {
		if b.ID == "" {
			return nil, fmt.Errorf("%w: bucket with empty id", common.ErrInvalidConfig)
		}
		if _, seen := bucketIDs[b.ID]; seen {
			return nil, fmt.Errorf("%w: duplicate bucket id %q", common.ErrInvalidConfig, b.ID)
		}
		bucketIDs[b.ID] = struct{}{}
	}
	if _, ok := bucketIDs[cfg.UnclassifiedBucket]; !ok {
		return nil, fmt.Errorf("%w: unclassified bucket %q is not declared", common.ErrInvalidConfig, cfg.UnclassifiedBucket)
	}
	for tag, bucketID := range cfg.TagMap {
		if _, ok := bucketIDs[bucketID]; !ok {
			return nil, fmt.Errorf("%w: tag %q maps to unknown bucket %q", common.ErrInvalidConfig, tag, bucketID)
		}
	}

	m := &Matcher{
		cfg:           cfg,
		bucketIDs:     bucketIDs,
		compiledRegex: make(map[int]*regexp.Regexp),
	}

	patterns := make([]PatternRule, len(cfg.Patterns))
	copy(patterns, cfg.Patterns)
	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Priority > patterns[j].Priority
	})
	m.cfg.Patterns = patterns

	for _, rule := range patterns {
		if _, ok := bucketIDs[rule.BucketID]; !ok {
			return nil, fmt.Errorf("%w: pattern rule %d targets unknown bucket %q", common.ErrInvalidConfig, rule.ID, rule.BucketID)
		}
		if rule.IsRegex {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("pattern rule %d: %w", rule.ID, err)
			}
			m.compiledRegex[rule.ID] = re
		}
	}

	return m, nil
}

// Buckets returns the configured buckets in display order.
func (m *Matcher) Buckets() []Bucket {
	out := make([]Bucket, len(m.cfg.Buckets))
	copy(out, m.cfg.Buckets)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out
}

// Match finds the bucket for an entry: the tag map first, then the fallback
// pattern rules, then the designated unclassified bucket. Entries are never
// dropped.
func (m *Matcher) Match(e *model.LedgerEntry) Match {
	if e.CategoryTag != "" {
		if bucketID, ok := m.cfg.TagMap[e.CategoryTag]; ok {
			return Match{BucketID: bucketID, Via: ViaTagMap}
		}
	}

	for i := range m.cfg.Patterns {
		rule := &m.cfg.Patterns[i]
		if m.ruleMatches(e, rule) {
			return Match{BucketID: rule.BucketID, Via: ViaPattern, Rule: rule}
		}
	}

	return Match{BucketID: m.cfg.UnclassifiedBucket, Via: ViaFallback}
}

func (m *Matcher) ruleMatches(e *model.LedgerEntry, rule *PatternRule) bool {
	var subject string
	switch rule.Field {
	case FieldCounterparty:
		subject = e.CounterpartyRef
	default:
		subject = e.Description
	}
	subject = strings.ToLower(subject)

	if rule.IsRegex {
		re, ok := m.compiledRegex[rule.ID]
		return ok && re.MatchString(subject)
	}
	return strings.Contains(subject, strings.ToLower(rule.Pattern))
}
