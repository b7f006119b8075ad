package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/hoarder/internal/record"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Changes  []ChangeEvent // Delivered batches for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Changes) > 0 {
		fmt.Fprintf(&buf, "\nChanges:\n")
		for i, c := range e.Changes {
			fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, c.Kind, c.Records)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and the
// final contents of the store. Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, final []record.Record) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertFinalState:
			err = assertFinalState(final, a, result.Changes)
		case AssertChangeCount:
			err = assertChangeCount(result.Changes, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertFinalState compares the display titles of every record, in
// insertion order.
func assertFinalState(final []record.Record, a Assertion, changes []ChangeEvent) error {
	titles := displayTitles(final)
	if slices.Equal(titles, a.Titles) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("%q", a.Titles),
		Actual:   fmt.Sprintf("%q", titles),
		Changes:  changes,
	}
}

// assertChangeCount checks how many batches the subscriber received.
func assertChangeCount(changes []ChangeEvent, a Assertion) error {
	if len(changes) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertChangeCount,
		Expected: fmt.Sprintf("%d change batches", a.Count),
		Actual:   fmt.Sprintf("%d change batches", len(changes)),
		Changes:  changes,
	}
}
