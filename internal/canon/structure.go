package canon

// expectedFields is the canonical metadata field sequence per governance
// level. Fixed data, never user input.
var expectedFields = map[string][]string{
	"LOW": {
		"document_type",
	},
	"MEDIUM": {
		"document_type",
		"reporting_entity",
	},
	"HIGH": {
		"document_type",
		"reporting_entity",
		"reference_period",
		"data_frequency",
	},
}

// ExpectedFields returns a copy of the expected field sequence for level.
func ExpectedFields(level string) []string {
	fields := expectedFields[level]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// ValidateStructure returns the expected fields for level that are absent
// from metadata, in canonical order. A key holding Null counts as present.
func ValidateStructure(metadata Object, level string) []string {
	missing := []string{}
	for _, f := range expectedFields[level] {
		if !metadata.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}
