// Package governance is the document decision pipeline: it resolves the
// governance level for a request, fingerprints and seals the resulting audit
// record, registers it and records the decision in the ledger.
//
// Every step returns its failure to the caller. Nothing is logged and
// swallowed.
package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/clock"
	"github.com/roach88/windi/internal/ident"
	"github.com/roach88/windi/internal/ledger"
	"github.com/roach88/windi/internal/metrics"
	"github.com/roach88/windi/internal/policy"
	"github.com/roach88/windi/internal/registry"
	"github.com/roach88/windi/internal/resilience"
	"github.com/roach88/windi/internal/seal"
)

// StatusApproved is the status of every successful decision.
const StatusApproved = "APPROVED"

// DefaultActor records decisions made without a named operator.
const DefaultActor = "windi-governance"

// ActionDecision is the ledger action for an approved document decision.
const ActionDecision = "governance.decision"

// ErrNotConfigured is returned when a level activates a control whose
// collaborator was not given to the Service.
var ErrNotConfigured = errors.New("governance: control not configured")

// Request is one document decision request.
type Request struct {
	ProfileID    string
	DocumentType string

	// Level is the explicitly requested level; empty means "resolve".
	Level policy.Level

	DocumentID    string
	PolicyVersion string

	// Actor is recorded as the decision actor in the ledger.
	Actor string

	Metadata canon.Object

	// Features adds controls the pipeline cannot observe itself, such as
	// identity governance, to the resilience score.
	Features resilience.Features
}

// Result is an approved decision.
type Result struct {
	Status       string                `json:"status"`
	Level        policy.Level          `json:"level"`
	Record       seal.AuditRecord      `json:"audit_record"`
	SubmissionID string                `json:"submission_id,omitempty"`
	Header       *Header               `json:"header,omitempty"`
	Ledger       *ledger.Receipt       `json:"ledger,omitempty"`
	Resilience   resilience.Assessment `json:"resilience"`
}

// Service runs the decision pipeline. Registry and ledger are optional;
// a level that needs one that is missing fails with ErrNotConfigured.
//
// Thread-safety: safe for concurrent use. Serialization of durable writes
// is owned by the registry and ledger.
type Service struct {
	engine    *policy.Engine
	registry  *registry.Registry
	ledger    *ledger.Ledger
	clock     clock.Clock
	ids       ident.Generator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	namespace string
}

// Option configures a Service.
type Option func(*Service)

// WithRegistry enables registration.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithLedger enables forensic ledger appends.
func WithLedger(l *ledger.Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithClock sets the timestamp source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator sets the record ID source.
func WithIDGenerator(g ident.Generator) Option {
	return func(s *Service) { s.ids = g }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics records decisions, violations and verifications.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNamespace sets the submission ID counter namespace.
func WithNamespace(ns string) Option {
	return func(s *Service) { s.namespace = ns }
}

// New creates a Service over engine.
func New(engine *policy.Engine, opts ...Option) *Service {
	s := &Service{
		engine:    engine,
		clock:     clock.System{},
		ids:       ident.UUIDv7Generator{},
		logger:    slog.Default(),
		namespace: registry.DefaultNamespace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the policy engine.
func (s *Service) Engine() *policy.Engine {
	return s.engine
}

// GenerateDocument resolves, records and certifies one document decision.
//
// Steps: evaluate policy, build the audit record, seal it when the level
// requires tamper evidence, gate the ledger event, register when the level
// requires registration, append to the ledger when the level requires it,
// then score the result. The ledger gates run before registration so a
// rejected event never leaves a registered submission behind.
func (s *Service) GenerateDocument(ctx context.Context, req Request) (Result, error) {
	metadata, err := normalizeMetadata(req)
	if err != nil {
		return Result{}, err
	}

	res, err := s.engine.Evaluate(req.ProfileID, req.DocumentType, req.Level, metadata)
	if err != nil {
		if v, ok := policy.AsViolation(err); ok {
			s.metrics.Violation(string(v.Kind))
		}
		return Result{}, err
	}
	controls := res.Schema.Controls

	if controls.Registration && s.registry == nil {
		return Result{}, fmt.Errorf("%w: level %s requires registration", ErrNotConfigured, res.Level)
	}
	if controls.ForensicLedger && s.ledger == nil {
		return Result{}, fmt.Errorf("%w: level %s requires the forensic ledger", ErrNotConfigured, res.Level)
	}

	rec, err := s.buildRecord(req, res, metadata)
	if err != nil {
		return Result{}, err
	}

	if controls.TamperEvidence {
		if rec, err = seal.Seal(rec, s.clock.Now()); err != nil {
			return Result{}, err
		}
	}

	var event ledger.Event
	if controls.ForensicLedger {
		event = decisionEvent(req.Actor, rec)
		if err := s.ledger.Check(event); err != nil {
			return Result{}, err
		}
	}

	out := Result{Status: StatusApproved, Level: res.Level, Record: rec}

	if controls.Registration {
		id, err := s.registry.GenerateSubmissionID(ctx, s.namespace, res.Profile.Prefix())
		if err != nil {
			return Result{}, err
		}
		if _, err := s.registry.Register(ctx, id, rec, rec.DocumentID); err != nil {
			return Result{}, err
		}
		out.SubmissionID = id
		out.Header = &Header{
			SubmissionID:  id,
			Level:         string(res.Level),
			PolicyVersion: rec.PolicyVersion,
			ConfigHash:    rec.ConfigHash,
			Generated:     rec.CreatedAt,
		}
	}

	if controls.ForensicLedger {
		if out.SubmissionID != "" {
			event.Payload["submission_id"] = canon.String(out.SubmissionID)
		}
		receipt, err := s.ledger.Append(ctx, event)
		if err != nil {
			return Result{}, err
		}
		out.Ledger = &receipt
	}

	out.Resilience = resilience.Assess(string(res.Level), features(req.Features, controls, rec, out.SubmissionID != ""))

	s.metrics.Decision(string(res.Level), res.Profile.ID)
	s.logger.Debug("document approved",
		"record_id", rec.RecordID,
		"profile", res.Profile.ID,
		"level", res.Level,
		"sealed", rec.Sealed(),
		"submission_id", out.SubmissionID,
		"score", out.Resilience.Score)

	return out, nil
}

// Verify checks a record's integrity seal.
func (s *Service) Verify(rec seal.AuditRecord) seal.Result {
	err := seal.Verify(rec)
	var iv *seal.IntegrityViolation
	switch {
	case err == nil:
		s.metrics.Verified("valid")
	case errors.As(err, &iv):
		s.metrics.Verified(string(iv.Kind))
	default:
		s.metrics.Verified("error")
	}
	return seal.Check(rec)
}

func (s *Service) buildRecord(req Request, res policy.Resolution, metadata canon.Object) (seal.AuditRecord, error) {
	version := req.PolicyVersion
	if version == "" {
		version = res.Profile.PolicyVersion
	}

	rec := seal.AuditRecord{
		RecordID:        s.ids.Generate(),
		ProfileID:       res.Profile.ID,
		DocumentID:      req.DocumentID,
		DocumentType:    req.DocumentType,
		GovernanceLevel: string(res.Level),
		RequestedLevel:  string(req.Level),
		PolicyVersion:   version,
		ConfigHash:      res.ConfigHash,
		Metadata:        metadata,
		FieldOrderHash:  canon.FieldOrderHash(string(res.Level)),
		MissingFields:   canon.ValidateStructure(metadata, string(res.Level)),
		CreatedAt:       clock.Stamp(s.clock),
	}
	if rec.DocumentID == "" {
		rec.DocumentID = rec.RecordID
	}

	h, err := canon.StructuralHash(rec.StructuralPayload())
	if err != nil {
		return seal.AuditRecord{}, fmt.Errorf("structural hash: %w", err)
	}
	rec.StructuralHash = h
	return rec, nil
}

// normalizeMetadata returns an NFC-normalized copy of the request metadata
// with document_type filled in from the request when absent.
func normalizeMetadata(req Request) (canon.Object, error) {
	metadata := req.Metadata.Clone()
	if metadata == nil {
		metadata = canon.Object{}
	}
	if req.DocumentType != "" && !metadata.Has("document_type") {
		metadata["document_type"] = canon.String(req.DocumentType)
	}
	v, err := canon.Canonicalize(metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return v.(canon.Object), nil
}

// decisionEvent carries the decision's identity and hashes, never its
// metadata.
func decisionEvent(actor string, rec seal.AuditRecord) ledger.Event {
	if actor == "" {
		actor = DefaultActor
	}
	return ledger.Event{
		Actor:  actor,
		Action: ActionDecision,
		Payload: canon.Object{
			"record_id":        canon.String(rec.RecordID),
			"document_id":      canon.String(rec.DocumentID),
			"profile_id":       canon.String(rec.ProfileID),
			"governance_level": canon.String(rec.GovernanceLevel),
			"policy_version":   canon.String(rec.PolicyVersion),
			"config_hash":      canon.String(rec.ConfigHash),
			"structural_hash":  canon.String(rec.StructuralHash),
			"integrity_hash":   canon.String(rec.IntegrityHash),
		},
	}
}

// features merges what the pipeline did with what the caller asserts.
// Caller-set pointer fields win over the observed controls.
func features(f resilience.Features, c policy.Controls, rec seal.AuditRecord, registered bool) resilience.Features {
	if f.ForensicLedger == nil {
		f.ForensicLedger = resilience.Bool(c.ForensicLedger)
	}
	if f.FourEyes == nil {
		f.FourEyes = resilience.Bool(c.FourEyes)
	}
	if f.TamperEvidence == nil {
		f.TamperEvidence = resilience.Bool(rec.Sealed())
	}
	if f.StructuralHash == "" {
		if len(rec.MissingFields) == 0 {
			f.StructuralHash = resilience.StrictHashMode
		} else {
			f.StructuralHash = "partial"
		}
	}
	f.ProvenanceRecord = f.ProvenanceRecord || registered
	return f
}
