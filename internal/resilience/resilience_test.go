package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_Defaults(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"HIGH", 70},   // 40 + 15 + 5 + 5 + 5 jurisdiction
		{"MEDIUM", 30}, // 25 + 5 jurisdiction
		{"LOW", 15},
		{"", 10},
		{"CRITICAL", 10},
		{"high", 70},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.level, Features{}))
		})
	}
}

func TestScore_HighWithIdentityAndStrictHash(t *testing.T) {
	f := Features{IdentityGovernance: true, StructuralHash: "strict"}

	score := Score("HIGH", f)
	assert.Equal(t, 90, score)
	assert.Equal(t, "maximum", Rating(score))
}

func TestScore_ExplicitOverridesDefaults(t *testing.T) {
	f := Features{
		ForensicLedger: Bool(false),
		FourEyes:       Bool(false),
		TamperEvidence: Bool(false),
		Jurisdiction:   Bool(false),
	}
	assert.Equal(t, 40, Score("HIGH", f))

	f = Features{ForensicLedger: Bool(true), TamperEvidence: Bool(true)}
	assert.Equal(t, 10+15+5+5, Score("LOW", f))
}

func TestScore_NonStrictHashMode(t *testing.T) {
	assert.Equal(t, 15+5, Score("LOW", Features{StructuralHash: "lenient"}))
	assert.Equal(t, 15+10, Score("LOW", Features{StructuralHash: "STRICT"}))
}

func TestScore_Clamped(t *testing.T) {
	f := Features{
		IdentityGovernance: true,
		StructuralHash:     "strict",
		ProvenanceRecord:   true,
		EmbeddedMetadata:   true,
	}
	// 40+15+5+5+10+10+5+5+5 = 100
	assert.Equal(t, MaxScore, Score("HIGH", f))
}

func TestRating_Bands(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, "maximum"},
		{85, "maximum"},
		{84, "high"},
		{60, "high"},
		{59, "medium"},
		{40, "medium"},
		{39, "low"},
		{20, "low"},
		{19, "minimal"},
		{0, "minimal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Rating(tt.score), "score %d", tt.score)
	}
}

func TestFactors_Breakdown(t *testing.T) {
	factors := Factors("HIGH", Features{StructuralHash: "strict"})

	byName := map[string]Factor{}
	sum := 0
	for _, f := range factors {
		byName[f.Name] = f
		sum += f.Points
	}

	assert.Len(t, factors, 9)
	assert.Equal(t, Score("HIGH", Features{StructuralHash: "strict"}), sum)
	assert.Equal(t, 40, byName["governance_level"].Points)
	assert.True(t, byName["forensic_ledger"].Active)
	assert.Equal(t, 15, byName["forensic_ledger"].Points)
	assert.False(t, byName["identity_governance"].Active)
	assert.Zero(t, byName["identity_governance"].Points)
	assert.Equal(t, 10, byName["structural_hash"].Points)
	assert.NotEmpty(t, byName["structural_hash"].Description)
}

func TestAssess(t *testing.T) {
	a := Assess("high", Features{})

	assert.Equal(t, "HIGH", a.Level)
	assert.Equal(t, 70, a.Score)
	assert.Equal(t, "high", a.Rating)
	assert.Len(t, a.Factors, 9)
}
