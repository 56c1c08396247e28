package seal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/windi/internal/canon"
)

var sealTime = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func sampleRecord() AuditRecord {
	return AuditRecord{
		RecordID:        "rec-0001",
		ProfileID:       "central-bank",
		DocumentID:      "doc-0001",
		DocumentType:    "financial-report",
		GovernanceLevel: "HIGH",
		RequestedLevel:  "",
		PolicyVersion:   "2026.1",
		ConfigHash:      strings.Repeat("c", 64),
		Metadata: canon.Object{
			"document_type":    canon.String("financial-report"),
			"reporting_entity": canon.String("Banco Central"),
			"reference_period": canon.String("2026-Q3"),
			"data_frequency":   canon.String("quarterly"),
		},
		StructuralHash: strings.Repeat("a", 64),
		FieldOrderHash: strings.Repeat("b", 64),
		MissingFields:  []string{},
		CreatedAt:      "2026-10-19T09:29:59.000000Z",
	}
}

func TestSeal_SetsHashAndTimestamp(t *testing.T) {
	rec := sampleRecord()

	sealed, err := Seal(rec, sealTime)
	require.NoError(t, err)

	assert.Len(t, sealed.IntegrityHash, 64)
	assert.Equal(t, "2026-10-19T09:30:00.000000Z", sealed.SealedAt)
	assert.True(t, sealed.Sealed())
	assert.False(t, rec.Sealed(), "input must not be modified")
	assert.Empty(t, rec.SealedAt)
}

func TestSeal_Deterministic(t *testing.T) {
	a, err := Seal(sampleRecord(), sealTime)
	require.NoError(t, err)
	b, err := Seal(sampleRecord(), sealTime)
	require.NoError(t, err)

	assert.Equal(t, a.IntegrityHash, b.IntegrityHash)
}

func TestSeal_AlreadySealed(t *testing.T) {
	sealed, err := Seal(sampleRecord(), sealTime)
	require.NoError(t, err)

	_, err = Seal(sealed, sealTime)
	assert.ErrorIs(t, err, ErrAlreadySealed)
}

func TestSeal_DetachesMetadata(t *testing.T) {
	rec := sampleRecord()
	sealed, err := Seal(rec, sealTime)
	require.NoError(t, err)

	rec.Metadata["reporting_entity"] = canon.String("Someone Else")
	assert.NoError(t, Verify(sealed))
}

func TestVerify_Untouched(t *testing.T) {
	sealed, err := Seal(sampleRecord(), sealTime)
	require.NoError(t, err)

	assert.NoError(t, Verify(sealed))
	assert.Equal(t, Result{Valid: true, Message: VerifiedMessage}, Check(sealed))
}

func TestVerify_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AuditRecord)
	}{
		{"governance level", func(r *AuditRecord) { r.GovernanceLevel = "LOW" }},
		{"metadata value", func(r *AuditRecord) {
			r.Metadata["reporting_entity"] = canon.String("Shell Corp")
		}},
		{"metadata key added", func(r *AuditRecord) {
			r.Metadata["note"] = canon.String("x")
		}},
		{"metadata key removed", func(r *AuditRecord) {
			delete(r.Metadata, "data_frequency")
		}},
		{"config hash", func(r *AuditRecord) { r.ConfigHash = strings.Repeat("d", 64) }},
		{"sealed at", func(r *AuditRecord) { r.SealedAt = "2030-01-01T00:00:00.000000Z" }},
		{"missing fields", func(r *AuditRecord) { r.MissingFields = []string{"reference_period"} }},
		{"record id", func(r *AuditRecord) { r.RecordID = "rec-9999" }},
		{"integrity hash", func(r *AuditRecord) { r.IntegrityHash = strings.Repeat("0", 64) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := Seal(sampleRecord(), sealTime)
			require.NoError(t, err)

			tampered := sealed.Clone()
			tt.mutate(&tampered)

			err = Verify(tampered)
			require.Error(t, err)
			assert.True(t, IsIntegrityViolation(err, KindTamperDetected))

			res := Check(tampered)
			assert.False(t, res.Valid)
			assert.Contains(t, res.Message, "TAMPER")

			assert.NoError(t, Verify(sealed), "original must still verify")
		})
	}
}

func TestVerify_ReportsPrefixes(t *testing.T) {
	sealed, err := Seal(sampleRecord(), sealTime)
	require.NoError(t, err)
	sealed.DocumentType = "altered"

	err = Verify(sealed)
	var iv *IntegrityViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, sealed.IntegrityHash[:16], iv.StoredPrefix)
	assert.Len(t, iv.ComputedPrefix, 16)
	assert.NotEqual(t, iv.StoredPrefix, iv.ComputedPrefix)
	assert.Equal(t, "rec-0001", iv.RecordID)
}

func TestVerify_NotSealed(t *testing.T) {
	err := Verify(sampleRecord())
	assert.True(t, IsIntegrityViolation(err, KindNotSealed))
	assert.False(t, IsIntegrityViolation(err, KindTamperDetected))

	res := Check(sampleRecord())
	assert.False(t, res.Valid)
	assert.Contains(t, res.Message, "not sealed")
}

func TestVerify_NilAndEmptyMetadataAgree(t *testing.T) {
	rec := sampleRecord()
	rec.Metadata = nil
	sealed, err := Seal(rec, sealTime)
	require.NoError(t, err)

	sealed.Metadata = canon.Object{}
	assert.NoError(t, Verify(sealed))
}

func TestStructuralPayload_IgnoresIdentity(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.RecordID = "rec-0002"
	b.DocumentID = "doc-0002"
	b.CreatedAt = "2027-01-01T00:00:00.000000Z"

	ha, err := canon.StructuralHash(a.StructuralPayload())
	require.NoError(t, err)
	hb, err := canon.StructuralHash(b.StructuralPayload())
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}
