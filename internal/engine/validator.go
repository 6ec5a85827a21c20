// Package engine implements the deterministic liquidity forecast calculation:
// input validation, per-cell effective values, balance propagation and the
// canonical content hash stamped onto every snapshot.
package engine

import (
	"fmt"
	"math"

	"github.com/hwidmann/liquiplan/internal/model"
)

// ErrorCode identifies a class of validation failure.
type ErrorCode string

const (
	CodeInvalidPeriodCount   ErrorCode = "INVALID_PERIOD_COUNT"
	CodeInvalidPeriodOffset  ErrorCode = "INVALID_PERIOD_OFFSET"
	CodeDuplicatePeriodValue ErrorCode = "DUPLICATE_PERIOD_VALUE"
	CodeDanglingReference    ErrorCode = "DANGLING_REFERENCE"
	CodeDuplicateID          ErrorCode = "DUPLICATE_ID"
	CodeEmptyID              ErrorCode = "EMPTY_ID"
	CodeInvalidValueType     ErrorCode = "INVALID_VALUE_TYPE"
	CodeAmountOutOfRange     ErrorCode = "AMOUNT_OUT_OF_RANGE"
)

// MaxAbsAmountCents bounds a single cell amount. The headroom below
// math.MaxInt64 keeps sums over 52 periods and thousands of lines from
// overflowing int64.
const MaxAbsAmountCents = math.MaxInt64 / (model.MaxPeriodCount * 4096)

// ValidationError describes one structural defect in a calculation input.
// Errors are collected, not raised: the caller always receives the full list.
type ValidationError struct {
	Code    ErrorCode
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Path, e.Message)
}

// Input is a candidate calculation input before validation.
type Input struct {
	Categories          []model.Category
	Lines               []model.Line
	Values              []model.PeriodValue
	PeriodCount         int
	OpeningBalanceCents int64
}

// ValidatedInput is a deep copy of an Input that passed every check. It is
// never mutated after construction and is safe to share across computations.
type ValidatedInput struct {
	Categories          []model.Category
	Lines               []model.Line
	Values              []model.PeriodValue
	PeriodCount         int
	OpeningBalanceCents int64
}

// Validate checks structural and referential invariants of a calculation
// input. It returns either a validated copy or the complete error list; it
// never returns a partially valid input.
func Validate(in Input) (*ValidatedInput, []ValidationError) {
	var errs []ValidationError

	if in.PeriodCount < model.MinPeriodCount || in.PeriodCount > model.MaxPeriodCount {
		errs = append(errs, ValidationError{
			Code:    CodeInvalidPeriodCount,
			Path:    "periodCount",
			Message: fmt.Sprintf("periodCount %d outside [%d, %d]", in.PeriodCount, model.MinPeriodCount, model.MaxPeriodCount),
		})
	}

	if in.OpeningBalanceCents > MaxAbsAmountCents || in.OpeningBalanceCents < -MaxAbsAmountCents {
		errs = append(errs, ValidationError{
			Code:    CodeAmountOutOfRange,
			Path:    "openingBalanceCents",
			Message: fmt.Sprintf("opening balance %d exceeds representable range", in.OpeningBalanceCents),
		})
	}

	categoryIDs := make(map[string]struct{}, len(in.Categories))
	for i, cat := range in.Categories {
		path := fmt.Sprintf("categories[%d]", i)
		if cat.ID == "" {
			errs = append(errs, ValidationError{Code: CodeEmptyID, Path: path + ".id", Message: "category id is empty"})
			continue
		}
		if _, seen := categoryIDs[cat.ID]; seen {
			errs = append(errs, ValidationError{
				Code:    CodeDuplicateID,
				Path:    path + ".id",
				Message: fmt.Sprintf("category id %q is duplicated", cat.ID),
			})
			continue
		}
		categoryIDs[cat.ID] = struct{}{}
	}

	lineIDs := make(map[string]struct{}, len(in.Lines))
	for i, line := range in.Lines {
		path := fmt.Sprintf("lines[%d]", i)
		if line.ID == "" {
			errs = append(errs, ValidationError{Code: CodeEmptyID, Path: path + ".id", Message: "line id is empty"})
		} else if _, seen := lineIDs[line.ID]; seen {
			errs = append(errs, ValidationError{
				Code:    CodeDuplicateID,
				Path:    path + ".id",
				Message: fmt.Sprintf("line id %q is duplicated", line.ID),
			})
		} else {
			lineIDs[line.ID] = struct{}{}
		}

		if _, ok := categoryIDs[line.CategoryID]; !ok {
			errs = append(errs, ValidationError{
				Code:    CodeDanglingReference,
				Path:    path + ".categoryId",
				Message: fmt.Sprintf("line %q references unknown category %q", line.ID, line.CategoryID),
			})
		}
	}

	seenCells := make(map[cellKey]struct{}, len(in.Values))
	for i, pv := range in.Values {
		path := fmt.Sprintf("values[%d]", i)

		if _, ok := lineIDs[pv.LineID]; !ok {
			errs = append(errs, ValidationError{
				Code:    CodeDanglingReference,
				Path:    path + ".lineId",
				Message: fmt.Sprintf("value references unknown line %q", pv.LineID),
			})
		}

		if pv.PeriodIndex < 0 || pv.PeriodIndex >= in.PeriodCount {
			errs = append(errs, ValidationError{
				Code:    CodeInvalidPeriodOffset,
				Path:    path + ".periodIndex",
				Message: fmt.Sprintf("periodIndex %d outside [0, %d)", pv.PeriodIndex, in.PeriodCount),
			})
		}

		if pv.ValueType != model.ValueIST && pv.ValueType != model.ValuePLAN {
			errs = append(errs, ValidationError{
				Code:    CodeInvalidValueType,
				Path:    path + ".valueType",
				Message: fmt.Sprintf("valueType %q is neither IST nor PLAN", pv.ValueType),
			})
		}

		if pv.AmountCents > MaxAbsAmountCents || pv.AmountCents < -MaxAbsAmountCents {
			errs = append(errs, ValidationError{
				Code:    CodeAmountOutOfRange,
				Path:    path + ".amountCents",
				Message: fmt.Sprintf("amount %d exceeds representable range", pv.AmountCents),
			})
		}

		key := cellKey{lineID: pv.LineID, periodIndex: pv.PeriodIndex, valueType: pv.ValueType}
		if _, seen := seenCells[key]; seen {
			errs = append(errs, ValidationError{
				Code:    CodeDuplicatePeriodValue,
				Path:    path,
				Message: fmt.Sprintf("duplicate value for line %q, period %d, type %s", pv.LineID, pv.PeriodIndex, pv.ValueType),
			})
		} else {
			seenCells[key] = struct{}{}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	validated := &ValidatedInput{
		Categories:          make([]model.Category, len(in.Categories)),
		Lines:               make([]model.Line, len(in.Lines)),
		Values:              make([]model.PeriodValue, len(in.Values)),
		PeriodCount:         in.PeriodCount,
		OpeningBalanceCents: in.OpeningBalanceCents,
	}
	copy(validated.Categories, in.Categories)
	copy(validated.Lines, in.Lines)
	copy(validated.Values, in.Values)

	return validated, nil
}

type cellKey struct {
	lineID      string
	valueType   model.ValueType
	periodIndex int
}

// FormatValidationErrors renders the error list for display, one line per error.
func FormatValidationErrors(errs []ValidationError) string {
	if len(errs) == 0 {
		return "no validation errors"
	}
	out := fmt.Sprintf("validation failed with %d error(s):", len(errs))
	for i, err := range errs {
		out += fmt.Sprintf("\n%d. %s", i+1, err.Error())
	}
	return out
}
