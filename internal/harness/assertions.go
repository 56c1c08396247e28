package harness

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/store"
)

// validIdentifier matches SQL identifiers. Table and column names cannot be
// bound as parameters, so they are checked against this before use.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s -> %s", event.Step, event.Op, event.Case)
			if event.Kind != "" {
				fmt.Fprintf(&buf, " (%s)", event.Kind)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// checkExpect compares a step outcome with its expect clause.
func checkExpect(event TraceEvent, expect *ExpectClause) []string {
	if expect == nil {
		return nil
	}
	var errs []string
	if event.Case != expect.Case {
		errs = append(errs, fmt.Sprintf("step %d (%s): expected case %q, got %q", event.Step, event.Op, expect.Case, event.Case))
	}
	if expect.Kind != "" && event.Kind != expect.Kind {
		errs = append(errs, fmt.Sprintf("step %d (%s): expected kind %q, got %q", event.Step, event.Op, expect.Kind, event.Kind))
	}
	if msg := matchSubset(event.Result, expect.Result); msg != "" {
		errs = append(errs, fmt.Sprintf("step %d (%s): %s", event.Step, event.Op, msg))
	}
	return errs
}

func stepMatches(event TraceEvent, op, outcome string) bool {
	return event.Op == op && (outcome == "" || event.Case == outcome)
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if stepMatches(event, a.Op, a.Case) && matchSubset(event.Args, a.Args) == "" {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s (case %q) with args %v", a.Op, a.Case, a.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the listed steps appear in order. Steps in
// between are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, want := range a.Steps {
		op, outcome, _ := strings.Cut(want, ":")
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if stepMatches(event, op, outcome) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("steps in order: %v", a.Steps),
				Actual:   fmt.Sprintf("%s not found after the preceding steps", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if stepMatches(event, a.Op, a.Case) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s (case %q)", a.Count, a.Op, a.Case),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState queries a table with a parameterized WHERE clause. With
// an Expect map exactly one row must match and carry the expected values;
// without one the number of matching rows must equal Count.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT * FROM %s", a.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	var matched []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		matched = append(matched, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}

	whereDesc := formatWhereClause(a.Where)
	if len(a.Expect) == 0 {
		if len(matched) != a.Count {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%d rows in %s where %s", a.Count, a.Table, whereDesc),
				Actual:   fmt.Sprintf("%d rows", len(matched)),
			}
		}
		return nil
	}

	switch len(matched) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, whereDesc),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := matched[0]
	for _, key := range sortedKeys(a.Expect) {
		expected := a.Expect[key]
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// buildWhereClause returns a parameterized WHERE fragment with keys in
// sorted order.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, where[key])
	}
	return strings.Join(clauses, " AND "), args, nil
}

func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares a YAML value with a SQLite column value.
// SQLite returns integers as int64, text as string or []byte, and stores
// booleans as 0/1.
func stateValuesEqual(expected, actual any) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	switch exp := expected.(type) {
	case nil:
		return actual == nil
	case string:
		s, ok := actual.(string)
		return ok && s == exp
	case int:
		n, ok := actual.(int64)
		return ok && n == int64(exp)
	case int64:
		n, ok := actual.(int64)
		return ok && n == exp
	case bool:
		switch act := actual.(type) {
		case bool:
			return act == exp
		case int64:
			return exp == (act != 0)
		}
		return false
	default:
		return fmt.Sprint(expected) == fmt.Sprint(actual)
	}
}

// matchSubset checks that every expected key is present in actual with an
// equal canonical value. It returns a description of the first mismatch, or
// "" when everything matches.
func matchSubset(actual canon.Object, expected map[string]any) string {
	for _, key := range sortedKeys(expected) {
		want, err := canon.Marshal(expected[key])
		if err != nil {
			return fmt.Sprintf("expected %q: %v", key, err)
		}
		val, ok := actual[key]
		if !ok {
			return fmt.Sprintf("result field %q missing", key)
		}
		got, err := canon.Marshal(val)
		if err != nil {
			return fmt.Sprintf("result %q: %v", key, err)
		}
		if !bytes.Equal(want, got) {
			return fmt.Sprintf("result field %q = %s, expected %s", key, got, want)
		}
	}
	return ""
}

// AssertionContext provides database access for final_state assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
