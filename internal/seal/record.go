package seal

import "github.com/roach88/windi/internal/canon"

// AuditRecord is the decision unit produced for every document request.
//
// Once sealed it is logically immutable: changing any field afterwards
// makes Verify fail. Mutation is detected, not prevented.
type AuditRecord struct {
	RecordID        string       `json:"record_id"`
	ProfileID       string       `json:"profile_id"`
	DocumentID      string       `json:"document_id"`
	DocumentType    string       `json:"document_type"`
	GovernanceLevel string       `json:"governance_level"`
	RequestedLevel  string       `json:"requested_level"`
	PolicyVersion   string       `json:"policy_version"`
	ConfigHash      string       `json:"config_hash"`
	Metadata        canon.Object `json:"metadata"`

	StructuralHash string   `json:"structural_hash"`
	FieldOrderHash string   `json:"field_order_hash"`
	MissingFields  []string `json:"missing_structural_fields"`
	CreatedAt      string   `json:"created_at"`

	SealedAt      string `json:"sealed_at,omitempty"`
	IntegrityHash string `json:"integrity_hash,omitempty"`
}

// Sealed reports whether the record carries an integrity hash.
func (r AuditRecord) Sealed() bool {
	return r.IntegrityHash != ""
}

// Clone returns a deep copy of r.
func (r AuditRecord) Clone() AuditRecord {
	out := r
	out.Metadata = r.Metadata.Clone()
	if r.MissingFields != nil {
		out.MissingFields = append([]string(nil), r.MissingFields...)
	}
	return out
}

// StructuralPayload is the decision payload fingerprinted by the structural
// hash: what was decided, independent of when and under which record ID.
func (r AuditRecord) StructuralPayload() canon.Object {
	return canon.Object{
		"profile_id":       canon.String(r.ProfileID),
		"document_type":    canon.String(r.DocumentType),
		"governance_level": canon.String(r.GovernanceLevel),
		"policy_version":   canon.String(r.PolicyVersion),
		"config_hash":      canon.String(r.ConfigHash),
		"metadata":         metadataValue(r.Metadata),
	}
}

// Value renders every field except the integrity hash. This is the input to
// the integrity hash, so any field added to AuditRecord must be added here.
func (r AuditRecord) Value() canon.Object {
	return canon.Object{
		"record_id":                 canon.String(r.RecordID),
		"profile_id":                canon.String(r.ProfileID),
		"document_id":               canon.String(r.DocumentID),
		"document_type":             canon.String(r.DocumentType),
		"governance_level":          canon.String(r.GovernanceLevel),
		"requested_level":           canon.String(r.RequestedLevel),
		"policy_version":            canon.String(r.PolicyVersion),
		"config_hash":               canon.String(r.ConfigHash),
		"metadata":                  metadataValue(r.Metadata),
		"structural_hash":           canon.String(r.StructuralHash),
		"field_order_hash":          canon.String(r.FieldOrderHash),
		"missing_structural_fields": canon.Strings(r.MissingFields...),
		"created_at":                canon.String(r.CreatedAt),
		"sealed_at":                 canon.String(r.SealedAt),
	}
}

func metadataValue(m canon.Object) canon.Value {
	if m == nil {
		return canon.Object{}
	}
	return m
}
