package policy

import "slices"

// Controls are the integrity controls a level activates.
type Controls struct {
	// TamperEvidence seals the audit record with an integrity hash.
	TamperEvidence bool `json:"tamper_evidence"`

	// Registration mints a submission ID and persists the record.
	Registration bool `json:"registration"`

	// ForensicLedger appends the decision to the hash-chained ledger.
	ForensicLedger bool `json:"forensic_ledger"`

	// FourEyes marks the level as requiring dual control.
	FourEyes bool `json:"four_eyes"`
}

// LevelSchema is the evidence schema for one governance level.
type LevelSchema struct {
	Level    Level
	Required []string
	Optional []string

	// Enums restricts field values to an allow-list.
	Enums map[string][]string

	Controls Controls
}

// DefaultSchema returns the built-in schema for level. Used when a profile
// does not define one.
func DefaultSchema(level Level) LevelSchema {
	switch level {
	case LevelHigh:
		return LevelSchema{
			Level:    LevelHigh,
			Required: []string{"reporting_entity", "reference_period", "data_frequency"},
			Enums: map[string][]string{
				"data_frequency": {"quarterly", "annual", "monthly"},
			},
			Controls: Controls{TamperEvidence: true, Registration: true, ForensicLedger: true, FourEyes: true},
		}
	case LevelMedium:
		return LevelSchema{
			Level:    LevelMedium,
			Optional: []string{"reporting_entity"},
			Controls: Controls{TamperEvidence: true, ForensicLedger: true},
		}
	default:
		return LevelSchema{Level: level}
	}
}

// Profile is an organization's governance configuration. Immutable once loaded.
type Profile struct {
	ID           string
	Name         string
	DefaultLevel Level

	// AllowedLevels bounds the resolved level.
	AllowedLevels []Level

	// NoDowngrade forbids resolving below the baseline level.
	NoDowngrade bool

	// MinimumLevel is an optional floor applied when NoDowngrade is set.
	MinimumLevel Level

	// ManualUpgrades lists levels a request may explicitly raise to.
	ManualUpgrades []Level

	// DocumentTypes maps a document type to its base level.
	DocumentTypes map[string]Level

	// Schemas holds the per-level evidence schema.
	Schemas map[Level]LevelSchema

	// SubmissionPrefix prefixes minted submission IDs.
	SubmissionPrefix string

	// PolicyVersion is used when a request does not specify one.
	PolicyVersion string
}

// Allows reports whether level is in AllowedLevels.
func (p *Profile) Allows(level Level) bool {
	return slices.Contains(p.AllowedLevels, level)
}

// UpgradeAllowed reports whether level is in the manual upgrade allow-list.
func (p *Profile) UpgradeAllowed(level Level) bool {
	return slices.Contains(p.ManualUpgrades, level)
}

// Schema returns the schema for level, falling back to DefaultSchema.
func (p *Profile) Schema(level Level) LevelSchema {
	if s, ok := p.Schemas[level]; ok {
		return s
	}
	return DefaultSchema(level)
}

// Prefix returns the submission ID prefix, defaulting to "REG".
func (p *Profile) Prefix() string {
	if p.SubmissionPrefix == "" {
		return "REG"
	}
	return p.SubmissionPrefix
}
