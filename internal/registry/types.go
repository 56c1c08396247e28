// Package registry persists finalized governance decisions and allocates
// submission IDs.
//
// Submission IDs have the form PREFIX-YYYYMMDD-NNNN where NNNN is a per-day,
// per-prefix counter stored apart from the entries. Counter increments and
// entry registration (with its statistics update) are each a single atomic
// store operation, so concurrent producers never share a sequence number
// and never lose a statistics increment.
package registry

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultNamespace is the counter namespace used when none is given.
const DefaultNamespace = "submissions"

// Default and maximum number of entries returned by Query.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
)

// Entry is the registry projection of a sealed audit record. It is never
// updated after registration except for VerifiedCount.
type Entry struct {
	SubmissionID    string `json:"submission_id"`
	DocumentID      string `json:"document_id"`
	RecordID        string `json:"record_id"`
	ProfileID       string `json:"profile_id"`
	DocumentType    string `json:"document_type"`
	GovernanceLevel string `json:"governance_level"`
	PolicyVersion   string `json:"policy_version"`
	ConfigHash      string `json:"config_hash"`
	IntegrityHash   string `json:"integrity_hash"`
	StructuralHash  string `json:"structural_hash"`
	ReportingEntity string `json:"reporting_entity"`
	ReferencePeriod string `json:"reference_period"`
	RegisteredAt    string `json:"registered_at"`
	VerifiedCount   int    `json:"verified_count"`
}

// StatsKey is the by_entity bucket of e: the reporting entity, or the
// profile when the record names no entity.
func (e Entry) StatsKey() string {
	if e.ReportingEntity != "" {
		return e.ReportingEntity
	}
	return e.ProfileID
}

// Stats are the aggregate counts kept alongside the entries.
type Stats struct {
	Total    int            `json:"total"`
	ByLevel  map[string]int `json:"by_level"`
	ByEntity map[string]int `json:"by_entity"`
}

// NewStats returns empty stats with non-nil maps.
func NewStats() Stats {
	return Stats{ByLevel: map[string]int{}, ByEntity: map[string]int{}}
}

// Add counts e.
func (s *Stats) Add(e Entry) {
	if s.ByLevel == nil {
		s.ByLevel = map[string]int{}
	}
	if s.ByEntity == nil {
		s.ByEntity = map[string]int{}
	}
	s.Total++
	s.ByLevel[e.GovernanceLevel]++
	s.ByEntity[e.StatsKey()]++
}

// Query filters registry entries. Empty fields match everything.
type Query struct {
	// Level matches exactly.
	Level string
	// Entity matches a case-insensitive substring of the reporting entity,
	// or the whole folded name when ExactEntity is set.
	Entity      string
	ExactEntity bool
	// After and Before are inclusive bounds on registered_at, in the
	// persisted timestamp layout.
	After  string
	Before string
	Limit  int
	// Offset skips that many matches, for paging.
	Offset int
}

// Matches reports whether e passes every filter in q.
func (q Query) Matches(e Entry) bool {
	if q.Level != "" && e.GovernanceLevel != q.Level {
		return false
	}
	if q.Entity != "" {
		folded := Fold(e.ReportingEntity)
		if q.ExactEntity && folded != Fold(q.Entity) {
			return false
		}
		if !q.ExactEntity && !strings.Contains(folded, Fold(q.Entity)) {
			return false
		}
	}
	if q.After != "" && e.RegisteredAt < q.After {
		return false
	}
	if q.Before != "" && e.RegisteredAt > q.Before {
		return false
	}
	return true
}

func (q Query) normalized() Query {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultQueryLimit
	case q.Limit > MaxQueryLimit:
		q.Limit = MaxQueryLimit
	}
	q.Offset = max(q.Offset, 0)
	return q
}

// Fold case-folds s for entity comparisons. Both stores compare folded
// strings so they agree beyond ASCII.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// ChainStatus reports whether every registered entry was sealed.
type ChainStatus struct {
	Total    int  `json:"total"`
	Sealed   int  `json:"sealed"`
	Complete bool `json:"complete"`
}
