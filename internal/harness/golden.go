package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/windi/internal/canon"
)

// TraceSnapshot is the golden-file form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// Value renders the snapshot for canonical serialization.
func (s TraceSnapshot) Value() canon.Object {
	trace := make(canon.Array, len(s.Trace))
	for i, event := range s.Trace {
		trace[i] = event.Value()
	}
	return canon.Object{
		"scenario_name": canon.String(s.ScenarioName),
		"trace":         trace,
	}
}

// Marshal returns the snapshot as canonical JSON followed by a newline.
func (s TraceSnapshot) Marshal() ([]byte, error) {
	data, err := canon.Marshal(s.Value())
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its trace with
// testdata/golden/<scenario.Name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := TraceSnapshot{ScenarioName: name, Trace: result.Trace}.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
