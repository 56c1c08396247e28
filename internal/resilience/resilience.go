// Package resilience scores how forgery-resistant a document's provenance
// trail is, from 0 to 100.
package resilience

import "strings"

// MaxScore caps the total.
const MaxScore = 100

// StrictHashMode is the structural hash mode worth the full bonus.
const StrictHashMode = "strict"

// Features are the controls active for a document. Nil pointer fields take
// their default: forensic ledger, four-eyes and tamper evidence default on
// for HIGH, jurisdiction binding defaults on for every level.
type Features struct {
	ForensicLedger     *bool  `json:"forensic_ledger,omitempty" yaml:"forensic_ledger,omitempty"`
	FourEyes           *bool  `json:"four_eyes,omitempty" yaml:"four_eyes,omitempty"`
	TamperEvidence     *bool  `json:"tamper_evidence,omitempty" yaml:"tamper_evidence,omitempty"`
	IdentityGovernance bool   `json:"identity_governance,omitempty" yaml:"identity_governance,omitempty"`
	StructuralHash     string `json:"structural_hash,omitempty" yaml:"structural_hash,omitempty"`
	ProvenanceRecord   bool   `json:"provenance_record,omitempty" yaml:"provenance_record,omitempty"`
	Jurisdiction       *bool  `json:"jurisdiction,omitempty" yaml:"jurisdiction,omitempty"`
	EmbeddedMetadata   bool   `json:"embedded_metadata,omitempty" yaml:"embedded_metadata,omitempty"`
}

// Bool returns a pointer to b, for Features literals.
func Bool(b bool) *bool {
	return &b
}

// Factor is one line of the score breakdown.
type Factor struct {
	Name        string `json:"name"`
	Active      bool   `json:"active"`
	Points      int    `json:"points"`
	Description string `json:"description"`
}

// Assessment is a score with its rating and breakdown.
type Assessment struct {
	Level   string   `json:"level"`
	Score   int      `json:"score"`
	Rating  string   `json:"rating"`
	Factors []Factor `json:"factors"`
}

func baseScore(level string) int {
	switch strings.ToUpper(level) {
	case "HIGH":
		return 40
	case "MEDIUM":
		return 25
	case "LOW":
		return 10
	default:
		return 5
	}
}

func orDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Factors decomposes the score for level and f. Inactive factors are
// listed with zero points.
func Factors(level string, f Features) []Factor {
	high := strings.EqualFold(level, "HIGH")

	hashPoints := 0
	switch {
	case strings.EqualFold(f.StructuralHash, StrictHashMode):
		hashPoints = 10
	case f.StructuralHash != "":
		hashPoints = 5
	}

	factors := []Factor{
		{Name: "governance_level", Active: true, Points: baseScore(level),
			Description: "Base score for governance level " + strings.ToUpper(level)},
		bonus("forensic_ledger", orDefault(f.ForensicLedger, high), 15,
			"Decision recorded in the hash-chained forensic ledger"),
		bonus("four_eyes", orDefault(f.FourEyes, high), 5,
			"Dual control: a second person approves the decision"),
		bonus("tamper_evidence", orDefault(f.TamperEvidence, high), 5,
			"Record sealed with an integrity hash"),
		bonus("identity_governance", f.IdentityGovernance, 10,
			"Decision actors verified against an identity provider"),
		{Name: "structural_hash", Active: hashPoints > 0, Points: hashPoints,
			Description: structuralHashDescription(f.StructuralHash)},
		bonus("provenance_record", f.ProvenanceRecord, 5,
			"Provenance record attached to the document"),
		bonus("jurisdiction", orDefault(f.Jurisdiction, true), 5,
			"Document bound to a jurisdiction"),
		bonus("embedded_metadata", f.EmbeddedMetadata, 5,
			"Governance metadata embedded in the document"),
	}
	return factors
}

func bonus(name string, active bool, points int, desc string) Factor {
	if !active {
		points = 0
	}
	return Factor{Name: name, Active: active, Points: points, Description: desc}
}

func structuralHashDescription(mode string) string {
	switch {
	case strings.EqualFold(mode, StrictHashMode):
		return "Structural hash in strict mode"
	case mode != "":
		return "Structural hash in " + mode + " mode"
	default:
		return "No structural hash"
	}
}

// Score returns the clamped total for level and f.
func Score(level string, f Features) int {
	total := 0
	for _, factor := range Factors(level, f) {
		total += factor.Points
	}
	return min(total, MaxScore)
}

// Rating maps a score to its band. Each band includes its lower edge.
func Rating(score int) string {
	switch {
	case score >= 85:
		return "maximum"
	case score >= 60:
		return "high"
	case score >= 40:
		return "medium"
	case score >= 20:
		return "low"
	default:
		return "minimal"
	}
}

// Assess computes the score, rating and breakdown together.
func Assess(level string, f Features) Assessment {
	factors := Factors(level, f)
	total := 0
	for _, factor := range factors {
		total += factor.Points
	}
	score := min(total, MaxScore)
	return Assessment{
		Level:   strings.ToUpper(level),
		Score:   score,
		Rating:  Rating(score),
		Factors: factors,
	}
}
