package governance_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/governance"
	"github.com/roach88/windi/internal/ledger"
	"github.com/roach88/windi/internal/metrics"
	"github.com/roach88/windi/internal/policy"
	"github.com/roach88/windi/internal/registry"
	"github.com/roach88/windi/internal/resilience"
	"github.com/roach88/windi/internal/seal"
	windtest "github.com/roach88/windi/internal/testutil"
)

type fixture struct {
	svc     *governance.Service
	reg     *registry.Registry
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	engine, err := policy.Open("testdata/profiles.yaml")
	require.NoError(t, err)

	store, err := registry.NewFileStore(t.TempDir())
	require.NoError(t, err)

	clk := windtest.NewDefaultClock()
	m := metrics.New()
	reg := registry.New(store, registry.WithClock(clk), registry.WithMetrics(m))
	l := ledger.New(ledger.NewMemoryStore(),
		ledger.WithClock(clk),
		ledger.WithIDGenerator(windtest.NewSequentialIDs("evt")),
		ledger.WithMetrics(m))

	svc := governance.New(engine,
		governance.WithRegistry(reg),
		governance.WithLedger(l),
		governance.WithClock(clk),
		governance.WithIDGenerator(windtest.NewSequentialIDs("rec")),
		governance.WithMetrics(m))

	return fixture{svc: svc, reg: reg, ledger: l, metrics: m}
}

func validMetadata() canon.Object {
	return canon.Object{
		"reporting_entity": canon.String("Banco Central"),
		"reference_period": canon.String("2026-Q3"),
		"data_frequency":   canon.String("quarterly"),
	}
}

func TestGenerateDocument_LowDefault(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.GenerateDocument(context.Background(), governance.Request{ProfileID: "open-office"})
	require.NoError(t, err)

	assert.Equal(t, governance.StatusApproved, res.Status)
	assert.Equal(t, policy.LevelLow, res.Level)
	assert.Empty(t, res.SubmissionID)
	assert.Nil(t, res.Header)
	assert.Nil(t, res.Ledger)
	assert.False(t, res.Record.Sealed())
	assert.Equal(t, []string{"document_type"}, res.Record.MissingFields)
	assert.Equal(t, "rec-0001", res.Record.RecordID)
	assert.Equal(t, "rec-0001", res.Record.DocumentID)
	assert.Equal(t, "2026.1", res.Record.PolicyVersion)
	assert.Equal(t, canon.FieldOrderHash("LOW"), res.Record.FieldOrderHash)

	stats, err := f.reg.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestGenerateDocument_MissingRequiredField(t *testing.T) {
	f := newFixture(t)
	md := validMetadata()
	delete(md, "reporting_entity")

	_, err := f.svc.GenerateDocument(context.Background(), governance.Request{
		ProfileID: "central-bank",
		Metadata:  md,
	})
	require.Error(t, err)

	v, ok := policy.AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, policy.KindMissingRequiredField, v.Kind)
	assert.Equal(t, "reporting_entity", v.Field)
	assert.Equal(t, "central-bank", v.Profile)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Violations.WithLabelValues("missing_required_field")))

	stats, err := f.reg.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestGenerateDocument_HighRegistersAndSeals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.GenerateDocument(ctx, governance.Request{
		ProfileID:    "central-bank",
		DocumentType: "statistical-return",
		DocumentID:   "DOC-7",
		Actor:        "maria.santos",
		Metadata:     validMetadata(),
	})
	require.NoError(t, err)

	assert.Equal(t, governance.StatusApproved, res.Status)
	assert.Equal(t, policy.LevelHigh, res.Level)
	assert.Regexp(t, regexp.MustCompile(`^REG-\d{8}-\d{4}$`), res.SubmissionID)
	assert.Equal(t, "REG-20261019-0001", res.SubmissionID)

	rec := res.Record
	assert.True(t, rec.Sealed())
	assert.NotEmpty(t, rec.SealedAt)
	assert.Len(t, rec.IntegrityHash, 64)
	assert.Empty(t, rec.MissingFields)
	text, _ := rec.Metadata.Text("document_type")
	assert.Equal(t, "statistical-return", text)
	assert.Equal(t, seal.Result{Valid: true, Message: seal.VerifiedMessage}, f.svc.Verify(rec))

	require.NotNil(t, res.Header)
	assert.Equal(t, res.SubmissionID, res.Header.SubmissionID)
	assert.Equal(t, "HIGH", res.Header.Level)
	assert.Equal(t, f.svc.Engine().ConfigHash(), res.Header.ConfigHash)
	assert.Equal(t, rec.CreatedAt, res.Header.Generated)

	entry, err := f.reg.Get(ctx, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, "DOC-7", entry.DocumentID)
	assert.Equal(t, rec.IntegrityHash, entry.IntegrityHash)
	assert.Equal(t, "Banco Central", entry.ReportingEntity)

	require.NotNil(t, res.Ledger)
	assert.Equal(t, ledger.Genesis, res.Ledger.PrevHash)
	entries, err := f.ledger.Read(ctx, ledger.Filter{Action: governance.ActionDecision})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "maria.santos", entries[0].Actor)
	sub, _ := entries[0].Payload.Text("submission_id")
	assert.Equal(t, res.SubmissionID, sub)
	assert.False(t, entries[0].Payload.Has("reporting_entity"))

	// 40 base + 15 ledger + 5 four-eyes + 5 seal + 10 strict hash + 5 provenance + 5 jurisdiction
	assert.Equal(t, 85, res.Resilience.Score)
	assert.Equal(t, "maximum", res.Resilience.Rating)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Decisions.WithLabelValues("HIGH", "central-bank")))
}

func TestGenerateDocument_IBANShapedDocumentID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.GenerateDocument(ctx, governance.Request{
		ProfileID:    "central-bank",
		DocumentType: "statistical-return",
		DocumentID:   "RP20261019ABCDEFG",
		Actor:        "maria.santos",
		Metadata:     validMetadata(),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Ledger)
	doc, _ := res.Ledger.Payload.Text("document_id")
	assert.Equal(t, "RP20261019ABCDEFG", doc)
}

func TestGenerateDocument_InvalidEnumValue(t *testing.T) {
	f := newFixture(t)
	md := validMetadata()
	md["data_frequency"] = canon.String("biweekly")

	_, err := f.svc.GenerateDocument(context.Background(), governance.Request{
		ProfileID: "central-bank",
		Metadata:  md,
	})

	v, ok := policy.AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, policy.KindInvalidEnumValue, v.Kind)
	assert.Equal(t, "data_frequency", v.Field)
	assert.Equal(t, "biweekly", v.Value)
	assert.Equal(t, []string{"quarterly", "annual"}, v.Allowed)
}

func TestGenerateDocument_NoDowngrade(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GenerateDocument(context.Background(), governance.Request{
		ProfileID: "central-bank",
		Level:     policy.LevelLow,
		Metadata:  validMetadata(),
	})
	assert.True(t, policy.IsViolation(err, policy.KindNoDowngrade))
}

func TestGenerateDocument_SequentialSubmissionIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for range 3 {
		res, err := f.svc.GenerateDocument(ctx, governance.Request{ProfileID: "central-bank", Metadata: validMetadata()})
		require.NoError(t, err)
		ids = append(ids, res.SubmissionID)
	}
	assert.Equal(t, []string{"REG-20261019-0001", "REG-20261019-0002", "REG-20261019-0003"}, ids)

	report, err := f.ledger.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Length)
}

func TestGenerateDocument_DefaultActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateDocument(ctx, governance.Request{ProfileID: "central-bank", Metadata: validMetadata()})
	require.NoError(t, err)

	entries, err := f.ledger.Read(ctx, ledger.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, governance.DefaultActor, entries[0].Actor)
}

func TestGenerateDocument_AIActorLeavesNoSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateDocument(ctx, governance.Request{
		ProfileID: "central-bank",
		Actor:     "ai:report-drafter",
		Metadata:  validMetadata(),
	})
	assert.True(t, ledger.IsInvariantViolation(err, ledger.KindNonHumanActor))

	stats, err := f.reg.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)

	entries, err := f.ledger.Read(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	next, err := f.reg.GenerateSubmissionID(ctx, registry.DefaultNamespace, "REG")
	require.NoError(t, err)
	assert.Equal(t, "REG-20261019-0001", next, "rejected decision must not consume a sequence number")
}

func TestGenerateDocument_NotConfigured(t *testing.T) {
	engine, err := policy.Open("testdata/profiles.yaml")
	require.NoError(t, err)
	svc := governance.New(engine)

	_, err = svc.GenerateDocument(context.Background(), governance.Request{ProfileID: "central-bank", Metadata: validMetadata()})
	assert.ErrorIs(t, err, governance.ErrNotConfigured)

	res, err := svc.GenerateDocument(context.Background(), governance.Request{ProfileID: "open-office"})
	require.NoError(t, err)
	assert.Equal(t, policy.LevelLow, res.Level)
}

func TestGenerateDocument_ManualUpgrade(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.GenerateDocument(context.Background(), governance.Request{
		ProfileID: "open-office",
		Level:     policy.LevelMedium,
		Actor:     "joao.silva",
	})
	require.NoError(t, err)
	assert.Equal(t, policy.LevelMedium, res.Level)
	assert.True(t, res.Record.Sealed())
	assert.Empty(t, res.SubmissionID)
	assert.NotNil(t, res.Ledger)

	_, err = f.svc.GenerateDocument(context.Background(), governance.Request{
		ProfileID: "open-office",
		Level:     policy.LevelHigh,
	})
	assert.True(t, policy.IsViolation(err, policy.KindUpgradeNotAllowed))
}

func TestGenerateDocument_CallerFeatures(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.GenerateDocument(context.Background(), governance.Request{
		ProfileID:    "central-bank",
		DocumentType: "statistical-return",
		Metadata:     validMetadata(),
		Features:     resilience.Features{IdentityGovernance: true, EmbeddedMetadata: true},
	})
	require.NoError(t, err)
	assert.Equal(t, resilience.MaxScore, res.Resilience.Score)
}

func TestGenerateDocument_DoesNotAliasMetadata(t *testing.T) {
	f := newFixture(t)
	md := validMetadata()

	res, err := f.svc.GenerateDocument(context.Background(), governance.Request{
		ProfileID:    "central-bank",
		DocumentType: "statistical-return",
		Metadata:     md,
	})
	require.NoError(t, err)

	assert.False(t, md.Has("document_type"))
	md["reporting_entity"] = canon.String("Someone Else")
	assert.True(t, f.svc.Verify(res.Record).Valid)
}

func TestVerify_Tampered(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.GenerateDocument(context.Background(), governance.Request{ProfileID: "central-bank", Metadata: validMetadata()})
	require.NoError(t, err)

	tampered := res.Record.Clone()
	tampered.Metadata["data_frequency"] = canon.String("annual")

	got := f.svc.Verify(tampered)
	assert.False(t, got.Valid)
	assert.Contains(t, got.Message, "TAMPER")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues("tamper_detected")))
}

func TestVerify_Unsealed(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.GenerateDocument(context.Background(), governance.Request{ProfileID: "open-office"})
	require.NoError(t, err)

	got := f.svc.Verify(res.Record)
	assert.False(t, got.Valid)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues("not_sealed")))
}

func TestHeader_Golden(t *testing.T) {
	h := governance.Header{
		SubmissionID:  "REG-20261019-0001",
		Level:         "HIGH",
		PolicyVersion: "2026.1",
		ConfigHash:    "3f5a0c9e1b7d4c2a8e6f0b1d2c3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e",
		Generated:     "2026-10-19T09:30:00.000000Z",
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "header", []byte(h.String()))

	parsed, err := governance.ParseHeader(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseHeader_MissingLabel(t *testing.T) {
	_, err := governance.ParseHeader("WINDI-SUBMISSION-ID: REG-20261019-0001\nGovernance-Level: HIGH\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), governance.LabelPolicy)
}
