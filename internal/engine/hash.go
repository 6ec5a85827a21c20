package engine

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hwidmann/liquiplan/internal/model"
)

// CanonicalString serializes an opening balance and a period value set into a
// deterministic form: the opening balance first, then every value sorted by
// (lineId, periodIndex, valueType), fields joined with ":" and entries with
// "|". Integers are serialized in plain decimal, so no locale or float
// formatting can perturb the result.
func CanonicalString(openingBalanceCents int64, values []model.PeriodValue) string {
	sorted := make([]model.PeriodValue, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.LineID != b.LineID {
			return a.LineID < b.LineID
		}
		if a.PeriodIndex != b.PeriodIndex {
			return a.PeriodIndex < b.PeriodIndex
		}
		return a.ValueType < b.ValueType
	})

	var sb strings.Builder
	sb.WriteString("opening:")
	sb.WriteString(strconv.FormatInt(openingBalanceCents, 10))
	for _, v := range sorted {
		sb.WriteByte('|')
		sb.WriteString(v.LineID)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(v.PeriodIndex))
		sb.WriteByte(':')
		sb.WriteString(string(v.ValueType))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(v.AmountCents, 10))
	}
	return sb.String()
}

// DataHash computes the canonical SHA-256 content hash of a plan snapshot.
// The hash is independent of the order values were inserted; any single-cent
// change to any value changes it.
func DataHash(openingBalanceCents int64, values []model.PeriodValue) string {
	sum := sha256.Sum256([]byte(CanonicalString(openingBalanceCents, values)))
	return fmt.Sprintf("%x", sum)
}

// VerifyDataHash recomputes a snapshot's hash and compares it with the stored
// one. A mismatch is tamper or corruption evidence and must never be
// auto-corrected.
func VerifyDataHash(expected string, openingBalanceCents int64, values []model.PeriodValue) bool {
	return DataHash(openingBalanceCents, values) == expected
}
