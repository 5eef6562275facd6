package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/contest/internal/config"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
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
			if event.Type != EventCompletion {
				fmt.Fprintf(&buf, "  [%d] %s %s %v\n", event.Seq, event.Type, event.Action, event.Args)
			}
		}
	}
	return buf.String()
}

// evaluateAssertions runs every scenario assertion and returns one message
// per failure.
func (h *Harness) evaluateAssertions(ctx context.Context) []string {
	var failures []string
	for i, a := range h.scenario.Assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(h.result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(h.result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(h.result.Trace, a)
		case AssertFinalState:
			err = h.assertFinalState(ctx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// actionEvents returns the invocation and record events, which are the
// ones assertions match by action name.
func actionEvents(trace []TraceEvent) []TraceEvent {
	out := make([]TraceEvent, 0, len(trace))
	for _, e := range trace {
		if e.Type == EventInvocation || e.Type == EventRecord {
			out = append(out, e)
		}
	}
	return out
}

// assertTraceContains checks that some event has the action and args
// (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range actionEvents(trace) {
		if event.Action == assertion.Action && len(subsetMismatches(assertion.Args, event.Args)) == 0 {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of the actions appear
// in the given order. Intervening events are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range actionEvents(trace) {
		if _, seen := positions[event.Action]; !seen {
			positions[event.Action] = i + 1 // 1-indexed for readability
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev, curr := assertion.Actions[i-1], assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the action appears exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range actionEvents(trace) {
		if event.Action == assertion.Action {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState compares one row of a final state table against the
// expected values (subset match).
func (h *Harness) assertFinalState(ctx context.Context, assertion Assertion) error {
	row, err := h.finalRow(ctx, assertion)
	if err != nil {
		return err
	}
	if mismatches := subsetMismatches(assertion.Expect, row); len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s row matching %v", assertion.Table, assertion.Expect),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

func (h *Harness) finalRow(ctx context.Context, assertion Assertion) (map[string]any, error) {
	switch assertion.Table {
	case TableEngine:
		row := h.stateRow()
		delete(row, "view")
		row["next"] = int(h.engine.FindNextUnsolvedStage())
		row["summary"] = h.engine.Summary().Text
		return row, nil

	case TableStage:
		stage, err := stageArg(assertion.Where)
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
		return map[string]any{
			"stage":          int(stage),
			"status":         string(h.engine.Status(stage)),
			"solved":         h.engine.IsSolved(stage),
			"first_solved":   h.engine.IsFirstSolved(stage),
			"unlocked":       h.engine.IsUnlocked(stage),
			"admin_disabled": h.engine.IsAdminDisabled(stage),
		}, nil

	case TableSolves:
		userID, _ := assertion.Where["user_id"].(string)
		if userID == "" && h.scenario.Setup.User != nil {
			userID = h.scenario.Setup.User.ID
		}
		if userID == "" {
			return nil, fmt.Errorf("where.user_id is required without setup.user")
		}
		solves, err := h.store.Solves(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("read solves: %w", err)
		}
		ids := make([]config.StageID, 0, len(solves))
		for _, s := range solves {
			ids = append(ids, s.Stage)
		}
		return map[string]any{
			"user_id": userID,
			"count":   len(solves),
			"stages":  config.NewStageSet(ids...).Ints(),
		}, nil

	case TableSession:
		history := h.session.History()
		views := make([]string, len(history))
		for i, v := range history {
			views[i] = string(v)
		}
		u, signedIn := h.session.User()
		return map[string]any{
			"view":      string(h.session.View()),
			"history":   views,
			"signed_in": signedIn,
			"email":     u.Email,
		}, nil
	}
	return nil, fmt.Errorf("unknown table %q", assertion.Table)
}

// subsetMismatches compares every key of expected against actual after
// normalizing both through JSON, so YAML integers match Go ints and
// StageSet lists. Returns one message per mismatching key, sorted.
func subsetMismatches(expected, actual map[string]any) []string {
	if len(expected) == 0 {
		return nil
	}
	exp, err := normalize(expected)
	if err != nil {
		return []string{fmt.Sprintf("cannot normalize expected values: %v", err)}
	}
	act, err := normalize(actual)
	if err != nil {
		return []string{fmt.Sprintf("cannot normalize actual values: %v", err)}
	}

	var out []string
	for k, want := range exp {
		got, ok := act[k]
		if !ok {
			out = append(out, fmt.Sprintf("%s: missing", k))
			continue
		}
		if !reflect.DeepEqual(want, got) {
			out = append(out, fmt.Sprintf("%s: expected %v, got %v", k, want, got))
		}
	}
	sort.Strings(out)
	return out
}

func normalize(m map[string]any) (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
