package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is a governance conformance test: a flow of pipeline operations
// with expected outcomes, followed by assertions on the trace and on the
// persisted registry and ledger.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Profiles is the governance profile file (YAML or CUE), relative to
	// the scenario file. Required when the flow has a generate step.
	Profiles string `yaml:"profiles,omitempty"`

	// Flow is executed in order. Each step may check its outcome.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one pipeline operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Args are the operation arguments.
	Args map[string]any `yaml:"args"`

	// Expect checks the outcome. If nil, any outcome is accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Case is the outcome case, e.g. "approved" or "policy_violation".
	Case string `yaml:"case"`

	// Kind is the violation kind, checked when set.
	Kind string `yaml:"kind,omitempty"`

	// Result is a subset match against the step's result fields.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op names the operation (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Case optionally narrows trace_contains and trace_count to an outcome.
	Case string `yaml:"case,omitempty"`

	// Args is a subset match on step args (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Table, Where and Expect drive final_state.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of matching steps (trace_count), or of
	// matching rows (final_state, when Expect is empty).
	Count int `yaml:"count,omitempty"`

	// Steps is the expected step order (trace_order). Each entry is "op"
	// or "op:case".
	Steps []string `yaml:"steps,omitempty"`
}

// Operations a step may run.
const (
	OpGenerate     = "generate"
	OpVerify       = "verify"
	OpScore        = "score"
	OpLedgerAppend = "ledger_append"
	OpLookup       = "lookup"
)

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and the profiles path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Profiles != "" && !filepath.IsAbs(scenario.Profiles) {
		scenario.Profiles = filepath.Join(filepath.Dir(path), scenario.Profiles)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

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

	needsProfiles := false
	for i, step := range s.Flow {
		switch step.Op {
		case OpGenerate:
			needsProfiles = true
		case OpVerify, OpScore, OpLedgerAppend, OpLookup:
		case "":
			return fmt.Errorf("flow[%d]: op is required", i)
		default:
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}

	if needsProfiles {
		if s.Profiles == "" {
			return fmt.Errorf("profiles is required for generate steps")
		}
		if _, err := os.Stat(s.Profiles); os.IsNotExist(err) {
			return fmt.Errorf("profiles file not found: %s", s.Profiles)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Steps) == 0 {
			return fmt.Errorf("assertions[%d]: steps list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
