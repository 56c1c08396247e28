package governance

import (
	"bufio"
	"fmt"
	"strings"
)

// Header labels, in emission order.
const (
	LabelSubmissionID = "WINDI-SUBMISSION-ID"
	LabelLevel        = "Governance-Level"
	LabelPolicy       = "Policy-Version"
	LabelConfigHash   = "Configuration-Hash"
	LabelGenerated    = "Generated"
)

// Header is the submission header handed to callers with every registered
// document.
type Header struct {
	SubmissionID  string `json:"submission_id"`
	Level         string `json:"governance_level"`
	PolicyVersion string `json:"policy_version"`
	ConfigHash    string `json:"config_hash"`
	Generated     string `json:"generated"`
}

// String renders the header as labeled lines.
func (h Header) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", LabelSubmissionID, h.SubmissionID)
	fmt.Fprintf(&b, "%s: %s\n", LabelLevel, h.Level)
	fmt.Fprintf(&b, "%s: %s\n", LabelPolicy, h.PolicyVersion)
	fmt.Fprintf(&b, "%s: %s\n", LabelConfigHash, h.ConfigHash)
	fmt.Fprintf(&b, "%s: %s\n", LabelGenerated, h.Generated)
	return b.String()
}

// ParseHeader reads a header rendered by Header.String. Unknown lines are
// ignored; every label must be present.
func ParseHeader(text string) (Header, error) {
	var h Header
	seen := map[string]bool{}
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		label, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		label = strings.TrimSpace(label)
		value = strings.TrimSpace(value)
		switch label {
		case LabelSubmissionID:
			h.SubmissionID = value
		case LabelLevel:
			h.Level = value
		case LabelPolicy:
			h.PolicyVersion = value
		case LabelConfigHash:
			h.ConfigHash = value
		case LabelGenerated:
			h.Generated = value
		default:
			continue
		}
		seen[label] = true
	}
	if err := sc.Err(); err != nil {
		return Header{}, fmt.Errorf("parse header: %w", err)
	}
	for _, label := range []string{LabelSubmissionID, LabelLevel, LabelPolicy, LabelConfigHash, LabelGenerated} {
		if !seen[label] {
			return Header{}, fmt.Errorf("parse header: missing %s", label)
		}
	}
	return h, nil
}
