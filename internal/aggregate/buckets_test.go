package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwidmann/liquiplan/internal/model"
)

func testBucketConfig() BucketConfig {
	return BucketConfig{
		Buckets: []Bucket{
			{ID: "revenue-kv", Label: "KV revenue", DisplayOrder: 1},
			{ID: "revenue-other", Label: "Other revenue", DisplayOrder: 2},
			{ID: "payroll", Label: "Payroll", DisplayOrder: 3},
			{ID: "unclassified", Label: "Unclassified", DisplayOrder: 99},
		},
		TagMap: map[string]string{
			"KV_SETTLEMENT": "revenue-kv",
			"SALARY":        "payroll",
		},
		Patterns: []PatternRule{
			{ID: 1, BucketID: "payroll", Pattern: "lohn", Field: FieldDescription, Priority: 10},
			{ID: 2, BucketID: "revenue-other", Pattern: `(?i)^erstattung`, Field: FieldDescription, Priority: 5, IsRegex: true},
			{ID: 3, BucketID: "revenue-kv", Pattern: "kv-nord", Field: FieldCounterparty, Priority: 1},
		},
		UnclassifiedBucket: "unclassified",
	}
}

func TestMatcher_TagMapWinsOverPatterns(t *testing.T) {
	m, err := NewMatcher(testBucketConfig())
	require.NoError(t, err)

	entry := &model.LedgerEntry{
		CategoryTag: "KV_SETTLEMENT",
		Description: "Lohnzahlung", // would match the payroll pattern
	}
	match := m.Match(entry)
	assert.Equal(t, "revenue-kv", match.BucketID)
	assert.Equal(t, ViaTagMap, match.Via)
	assert.Nil(t, match.Rule)
}

func TestMatcher_PatternFallback(t *testing.T) {
	m, err := NewMatcher(testBucketConfig())
	require.NoError(t, err)

	tests := []struct {
		name       string
		entry      model.LedgerEntry
		wantBucket string
		wantRuleID int
	}{
		{
			name:       "substring match on description",
			entry:      model.LedgerEntry{Description: "Lohn und Gehalt Oktober"},
			wantBucket: "payroll",
			wantRuleID: 1,
		},
		{
			name:       "regex match on description",
			entry:      model.LedgerEntry{Description: "Erstattung Q3"},
			wantBucket: "revenue-other",
			wantRuleID: 2,
		},
		{
			name:       "counterparty pattern",
			entry:      model.LedgerEntry{CounterpartyRef: "kv-nord", Description: "Abschlag"},
			wantBucket: "revenue-kv",
			wantRuleID: 3,
		},
		{
			name:       "unknown tag falls through to patterns",
			entry:      model.LedgerEntry{CategoryTag: "UNMAPPED_TAG", Description: "lohn"},
			wantBucket: "payroll",
			wantRuleID: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := m.Match(&tt.entry)
			assert.Equal(t, tt.wantBucket, match.BucketID)
			assert.Equal(t, ViaPattern, match.Via)
			require.NotNil(t, match.Rule)
			assert.Equal(t, tt.wantRuleID, match.Rule.ID)
		})
	}
}

func TestMatcher_PriorityOrder(t *testing.T) {
	cfg := testBucketConfig()
	// Competing rule with higher priority for the same description.
	cfg.Patterns = append(cfg.Patterns, PatternRule{
		ID: 4, BucketID: "revenue-other", Pattern: "lohn", Field: FieldDescription, Priority: 20,
	})
	m, err := NewMatcher(cfg)
	require.NoError(t, err)

	match := m.Match(&model.LedgerEntry{Description: "lohn"})
	require.NotNil(t, match.Rule)
	assert.Equal(t, 4, match.Rule.ID, "higher priority rule must win")
}

func TestMatcher_UnmatchedGoesToUnclassified(t *testing.T) {
	m, err := NewMatcher(testBucketConfig())
	require.NoError(t, err)

	match := m.Match(&model.LedgerEntry{Description: "completely unknown"})
	assert.Equal(t, "unclassified", match.BucketID)
	assert.Equal(t, ViaFallback, match.Via)
}

func TestNewMatcher_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BucketConfig)
	}{
		{
			name:   "missing unclassified bucket",
			mutate: func(c *BucketConfig) { c.UnclassifiedBucket = "" },
		},
		{
			name:   "undeclared unclassified bucket",
			mutate: func(c *BucketConfig) { c.UnclassifiedBucket = "ghost" },
		},
		{
			name: "tag maps to unknown bucket",
			mutate: func(c *BucketConfig) {
				c.TagMap["X"] = "ghost"
			},
		},
		{
			name: "pattern targets unknown bucket",
			mutate: func(c *BucketConfig) {
				c.Patterns = append(c.Patterns, PatternRule{ID: 9, BucketID: "ghost", Pattern: "x"})
			},
		},
		{
			name: "invalid regex",
			mutate: func(c *BucketConfig) {
				c.Patterns = append(c.Patterns, PatternRule{ID: 9, BucketID: "payroll", Pattern: "(", IsRegex: true})
			},
		},
		{
			name: "duplicate bucket id",
			mutate: func(c *BucketConfig) {
				c.Buckets = append(c.Buckets, Bucket{ID: "payroll"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testBucketConfig()
			tt.mutate(&cfg)
			_, err := NewMatcher(cfg)
			assert.Error(t, err)
		})
	}
}

func TestMatcher_BucketsSortedByDisplayOrder(t *testing.T) {
	m, err := NewMatcher(testBucketConfig())
	require.NoError(t, err)

	buckets := m.Buckets()
	require.Len(t, buckets, 4)
	assert.Equal(t, "revenue-kv", buckets[0].ID)
	assert.Equal(t, "unclassified", buckets[3].ID)
}
