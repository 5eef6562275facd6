package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a contest scenario: a starting position, a flow of
// player and administrator actions, and assertions on the resulting trace
// and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Contest is an inline CUE contest definition. Empty means the built-in
	// default contest.
	Contest string `yaml:"contest,omitempty"`

	// Setup establishes the starting position before the session starts.
	Setup Setup `yaml:"setup,omitempty"`

	// Flow is the sequence of actions to run, each with an optional
	// expected completion.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup is the starting position of a scenario.
type Setup struct {
	// User is the player. Required by sign_in steps that give no user.
	User *UserSpec `yaml:"user,omitempty"`

	// SignedIn starts the session with User already signed in.
	SignedIn bool `yaml:"signed_in,omitempty"`

	// LocalSolved and LocalFirst seed the local progress cache.
	LocalSolved []int `yaml:"local_solved,omitempty"`
	LocalFirst  []int `yaml:"local_first,omitempty"`

	// RemoteSolved seeds solve records for User in the contest store.
	RemoteSolved []int `yaml:"remote_solved,omitempty"`

	// Disabled lists stages the administrator has disabled.
	Disabled []int `yaml:"disabled,omitempty"`

	// GateUnavailable makes every availability load fail.
	GateUnavailable bool `yaml:"gate_unavailable,omitempty"`
}

// UserSpec identifies a player.
type UserSpec struct {
	ID    string `yaml:"id"`
	Email string `yaml:"email"`
}

// FlowStep is one action of the flow.
type FlowStep struct {
	// Invoke names the action, e.g. "submit" or "admin_toggle".
	Invoke string `yaml:"invoke"`

	// Args are the action arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect, if set, is checked against the completion.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected completion of a step.
type ExpectClause struct {
	// Case is "ok" or "error".
	Case string `yaml:"case"`

	// Result is a subset match against the completion result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Action names an invocation or record action (trace_contains,
	// trace_count).
	Action string `yaml:"action,omitempty"`

	// Args is a subset match on the event args (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Table selects the final state view: engine, stage, solves or session.
	Table string `yaml:"table,omitempty"`

	// Where selects a row of the table (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect is a subset match on the row (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Final state tables.
const (
	TableEngine  = "engine"
	TableStage   = "stage"
	TableSolves  = "solves"
	TableSession = "session"
)

// Flow actions.
const (
	ActionSignIn      = "sign_in"
	ActionSignOut     = "sign_out"
	ActionSubmit      = "submit"
	ActionSolve       = "solve"
	ActionSelect      = "select"
	ActionAdminToggle = "admin_toggle"
	ActionAdminBulk   = "admin_bulk"
	ActionGateReload  = "gate_reload"
	ActionStatus      = "status"
	ActionLeaderboard = "leaderboard"

	// ActionLogSolve is the record action emitted for each solve write.
	ActionLogSolve = "log_solve"
)

var knownActions = map[string]bool{
	ActionSignIn:      true,
	ActionSignOut:     true,
	ActionSubmit:      true,
	ActionSolve:       true,
	ActionSelect:      true,
	ActionAdminToggle: true,
	ActionAdminBulk:   true,
	ActionGateReload:  true,
	ActionStatus:      true,
	ActionLeaderboard: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Setup.SignedIn && s.Setup.User == nil {
		return fmt.Errorf("setup: signed_in requires user")
	}
	if len(s.Setup.RemoteSolved) > 0 && s.Setup.User == nil {
		return fmt.Errorf("setup: remote_solved requires user")
	}
	if u := s.Setup.User; u != nil && (u.ID == "" || u.Email == "") {
		return fmt.Errorf("setup.user: id and email are required")
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if !knownActions[step.Invoke] {
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Invoke)
		}
		if step.Expect != nil && step.Expect.Case != CaseOK && step.Expect.Case != CaseError {
			return fmt.Errorf("flow[%d].expect: case must be %q or %q", i, CaseOK, CaseError)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		switch a.Table {
		case TableEngine, TableStage, TableSolves, TableSession:
		case "":
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		default:
			return fmt.Errorf("assertions[%d]: unknown table %q", index, a.Table)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		if a.Table == TableStage {
			if _, ok := a.Where["stage"]; !ok {
				return fmt.Errorf("assertions[%d]: where.stage is required for the stage table", index)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
