package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profilesPath(t *testing.T) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join("testdata", "profiles.yaml"))
	require.NoError(t, err)
	return p
}

func TestRun_FailedExpectationIsRecorded(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectation",
		Description: "a LOW document expected to be rejected",
		Profiles:    profilesPath(t),
		Flow: []Step{
			{
				Op: OpGenerate,
				Args: map[string]any{
					"profile":       "open-office",
					"document_type": "memo",
				},
				Expect: &ExpectClause{Case: CasePolicyViolation},
			},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected case "policy_violation", got "approved"`)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, CaseApproved, result.Trace[0].Case)
}

func TestRun_FailedAssertionIsRecorded(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_count",
		Description: "counts a step that never ran",
		Flow: []Step{
			{Op: OpScore, Args: map[string]any{"level": "LOW"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Op: OpScore, Count: 2},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: trace_count")
}

func TestRun_VerifyBeforeGenerateAborts(t *testing.T) {
	scenario := &Scenario{
		Name:        "verify_first",
		Description: "verify with nothing to verify",
		Flow:        []Step{{Op: OpVerify}},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no approved record")
}

func TestRun_GenerateWithoutProfilesAborts(t *testing.T) {
	scenario := &Scenario{
		Name:        "unconfigured",
		Description: "generate with no service",
		Flow:        []Step{{Op: OpGenerate, Args: map[string]any{"profile": "open-office"}}},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario has no profiles")
}

func TestRun_UnknownFeatureAborts(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_feature",
		Description: "score with a feature that does not exist",
		Flow: []Step{
			{Op: OpScore, Args: map[string]any{
				"level":    "HIGH",
				"features": map[string]any{"quantum_seal": true},
			}},
		},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown feature "quantum_seal"`)
}

func TestRun_LookupMissingSubmission(t *testing.T) {
	scenario := &Scenario{
		Name:        "lookup_missing",
		Description: "lookup of an unknown submission",
		Flow: []Step{
			{
				Op:     OpLookup,
				Args:   map[string]any{"submission_id": "REG-20261019-0099"},
				Expect: &ExpectClause{Case: CaseNotFound},
			},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
