package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the matches to help debug the failure.
type AssertionError struct {
	Type     string  // Assertion type for categorization
	Expected string  // Human-readable expected outcome
	Actual   string  // Human-readable actual outcome
	Matches  []Match // Matches for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Matches) > 0 {
		fmt.Fprintf(&buf, "\nMatches:\n")
		for _, m := range e.Matches {
			fmt.Fprintf(&buf, "  [%d] %s %s %q..%q\n", m.Rank, m.Transcript, m.Speaker, m.FirstWord, m.LastWord)
		}
	}

	return buf.String()
}

// evaluateAssertion checks one assertion against a result.
func evaluateAssertion(a Assertion, result *Result) error {
	switch a.Type {
	case AssertCount:
		if len(result.Matches) != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d match(es)", a.Count),
				Actual:   fmt.Sprintf("%d match(es)", len(result.Matches)),
				Matches:  result.Matches,
			}
		}
	case AssertTranscripts:
		return assertColumn(a, result, func(m Match) string { return m.Transcript })
	case AssertSpeakers:
		return assertColumn(a, result, func(m Match) string { return m.Speaker })
	case AssertFirstWords:
		return assertColumn(a, result, func(m Match) string { return m.FirstWord })
	case AssertStrategy:
		if result.Strategy != a.Value {
			return &AssertionError{Type: a.Type, Expected: a.Value, Actual: result.Strategy}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// assertColumn compares one field of every match, in rank order.
func assertColumn(a Assertion, result *Result, field func(Match) string) error {
	actual := make([]string, len(result.Matches))
	for i, m := range result.Matches {
		actual[i] = field(m)
	}
	if !slices.Equal(actual, a.Values) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%q", a.Values),
			Actual:   fmt.Sprintf("%q", actual),
			Matches:  result.Matches,
		}
	}
	return nil
}
