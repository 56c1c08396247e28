package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/dashboard"
	"github.com/roach88/windi/internal/governance"
	"github.com/roach88/windi/internal/ledger"
	"github.com/roach88/windi/internal/policy"
	"github.com/roach88/windi/internal/registry"
	"github.com/roach88/windi/internal/resilience"
	"github.com/roach88/windi/internal/seal"
	"github.com/roach88/windi/internal/store"
	"github.com/roach88/windi/internal/testutil"
)

// Harness runs scenario steps against a real pipeline backed by a fresh
// in-memory SQLite store.
type Harness struct {
	store     *store.Store
	service   *governance.Service
	registry  *registry.Registry
	ledger    *ledger.Ledger
	dashboard *dashboard.Dashboard
	logger    *slog.Logger

	// last is the most recent approved record, the subject of verify steps.
	last *seal.AuditRecord
}

// Run executes a scenario and returns its result.
//
// Every run gets a fresh in-memory database, a clock starting at
// testutil.DefaultStart and sequential record and event IDs, so two runs of
// the same scenario produce identical traces.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		event, err := h.execute(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Op, err)
		}
		result.AddTrace(event)
		for _, msg := range checkExpect(event, step.Expect) {
			result.AddError(msg)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Store: st}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	clk := testutil.NewDefaultClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := registry.New(st.Registry(), registry.WithClock(clk), registry.WithLogger(logger))
	l := ledger.New(st.Ledger(),
		ledger.WithClock(clk),
		ledger.WithIDGenerator(testutil.NewSequentialIDs("evt")),
		ledger.WithLogger(logger))

	h := &Harness{
		store:     st,
		registry:  reg,
		ledger:    l,
		dashboard: dashboard.New(reg, dashboard.WithLedger(l)),
		logger:    logger,
	}

	if scenario.Profiles != "" {
		engine, err := policy.Open(scenario.Profiles, policy.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to load profiles: %w", err)
		}
		h.service = governance.New(engine,
			governance.WithRegistry(reg),
			governance.WithLedger(l),
			governance.WithClock(clk),
			governance.WithIDGenerator(testutil.NewSequentialIDs("rec")),
			governance.WithLogger(logger))
	}
	return h, nil
}

func (h *Harness) execute(ctx context.Context, i int, step Step) (TraceEvent, error) {
	args, err := canon.ObjectFrom(step.Args)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("failed to convert args: %w", err)
	}
	if args == nil {
		args = canon.Object{}
	}
	event := TraceEvent{Step: i, Op: step.Op, Args: args, Result: canon.Object{}}

	switch step.Op {
	case OpGenerate:
		err = h.generate(ctx, args, &event)
	case OpVerify:
		err = h.verify(args, &event)
	case OpScore:
		err = score(args, &event)
	case OpLedgerAppend:
		err = h.appendEvent(ctx, args, &event)
	case OpLookup:
		err = h.lookup(ctx, args, &event)
	default:
		err = fmt.Errorf("unknown op %q", step.Op)
	}
	if err != nil {
		return TraceEvent{}, err
	}

	h.logger.Info("flow step completed", "step", i, "op", step.Op, "case", event.Case)
	return event, nil
}

func (h *Harness) generate(ctx context.Context, args canon.Object, event *TraceEvent) error {
	if h.service == nil {
		return errors.New("generate: scenario has no profiles")
	}
	level, err := policy.ParseLevel(text(args, "level"))
	if err != nil {
		return err
	}
	req := governance.Request{
		ProfileID:     text(args, "profile"),
		DocumentType:  text(args, "document_type"),
		Level:         level,
		DocumentID:    text(args, "document_id"),
		PolicyVersion: text(args, "policy_version"),
		Actor:         text(args, "actor"),
	}
	if md, ok := args["metadata"].(canon.Object); ok {
		req.Metadata = md
	}
	if f, ok := args["features"].(canon.Object); ok {
		if req.Features, err = decodeFeatures(f); err != nil {
			return err
		}
	}

	res, err := h.service.GenerateDocument(ctx, req)
	if err != nil {
		return classify(err, event)
	}

	rec := res.Record
	h.last = &rec
	event.Case = CaseApproved
	event.Result = canon.Object{
		"status":         canon.String(res.Status),
		"level":          canon.String(res.Level),
		"sealed":         canon.Bool(rec.Sealed()),
		"missing_fields": canon.Strings(rec.MissingFields...),
		"score":          canon.Int(res.Resilience.Score),
		"rating":         canon.String(res.Resilience.Rating),
	}
	if res.SubmissionID != "" {
		event.Result["submission_id"] = canon.String(res.SubmissionID)
	}
	if res.Ledger != nil {
		event.Result["ledger_event"] = canon.String(res.Ledger.ID)
	}
	return nil
}

// verify checks the last approved record. A "tamper" argument overwrites
// metadata fields on a copy first.
func (h *Harness) verify(args canon.Object, event *TraceEvent) error {
	if h.last == nil {
		return errors.New("verify: no approved record in this scenario yet")
	}
	rec := h.last.Clone()
	if tamper, ok := args["tamper"].(canon.Object); ok {
		if rec.Metadata == nil {
			rec.Metadata = canon.Object{}
		}
		for k, v := range tamper {
			rec.Metadata[k] = v
		}
	}

	res := h.service.Verify(rec)
	event.Result = canon.Object{"valid": canon.Bool(res.Valid)}
	if res.Valid {
		event.Case = CaseValid
		return nil
	}
	return classify(seal.Verify(rec), event)
}

func score(args canon.Object, event *TraceEvent) error {
	var f resilience.Features
	if obj, ok := args["features"].(canon.Object); ok {
		var err error
		if f, err = decodeFeatures(obj); err != nil {
			return err
		}
	}
	a := resilience.Assess(text(args, "level"), f)
	event.Case = CaseScored
	event.Result = canon.Object{
		"score":  canon.Int(a.Score),
		"rating": canon.String(a.Rating),
	}
	return nil
}

func (h *Harness) appendEvent(ctx context.Context, args canon.Object, event *TraceEvent) error {
	ev := ledger.Event{
		Actor:  text(args, "actor"),
		Action: text(args, "action"),
		Origin: text(args, "origin"),
	}
	if p, ok := args["payload"].(canon.Object); ok {
		ev.Payload = p
	}
	receipt, err := h.ledger.Append(ctx, ev)
	if err != nil {
		return classify(err, event)
	}
	event.Case = CaseAppended
	event.Result = canon.Object{
		"id":      canon.String(receipt.ID),
		"genesis": canon.Bool(receipt.PrevHash == ledger.Genesis),
	}
	return nil
}

func (h *Harness) lookup(ctx context.Context, args canon.Object, event *TraceEvent) error {
	e, err := h.dashboard.Lookup(ctx, text(args, "submission_id"))
	if errors.Is(err, registry.ErrNotFound) {
		event.Case = CaseNotFound
		return nil
	}
	if err != nil {
		return err
	}
	event.Case = CaseFound
	event.Result = canon.Object{
		"level":            canon.String(e.GovernanceLevel),
		"reporting_entity": canon.String(e.ReportingEntity),
		"sealed":           canon.Bool(e.IntegrityHash != ""),
	}
	return nil
}

// classify turns a typed pipeline failure into a trace outcome. Anything
// else is an infrastructure error and aborts the run.
func classify(err error, event *TraceEvent) error {
	if v, ok := policy.AsViolation(err); ok {
		event.Case = CasePolicyViolation
		event.Kind = string(v.Kind)
		if v.Field != "" {
			event.Result["field"] = canon.String(v.Field)
		}
		if len(v.Allowed) > 0 {
			event.Result["allowed"] = canon.Strings(v.Allowed...)
		}
		return nil
	}
	var iv *seal.IntegrityViolation
	if errors.As(err, &iv) {
		event.Case = CaseIntegrityViolation
		event.Kind = string(iv.Kind)
		return nil
	}
	var lv *ledger.InvariantViolation
	if errors.As(err, &lv) {
		event.Case = CaseInvariantViolation
		event.Kind = string(lv.Kind)
		return nil
	}
	if errors.Is(err, governance.ErrNotConfigured) {
		event.Case = CaseNotConfigured
		return nil
	}
	return err
}

func decodeFeatures(obj canon.Object) (resilience.Features, error) {
	var f resilience.Features
	for k, v := range obj {
		switch k {
		case "forensic_ledger":
			f.ForensicLedger = boolPtr(v)
		case "four_eyes":
			f.FourEyes = boolPtr(v)
		case "tamper_evidence":
			f.TamperEvidence = boolPtr(v)
		case "jurisdiction":
			f.Jurisdiction = boolPtr(v)
		case "identity_governance":
			f.IdentityGovernance = v == canon.Bool(true)
		case "provenance_record":
			f.ProvenanceRecord = v == canon.Bool(true)
		case "embedded_metadata":
			f.EmbeddedMetadata = v == canon.Bool(true)
		case "structural_hash":
			s, _ := v.(canon.String)
			f.StructuralHash = string(s)
		default:
			return resilience.Features{}, fmt.Errorf("unknown feature %q", k)
		}
	}
	return f, nil
}

func boolPtr(v canon.Value) *bool {
	b, ok := v.(canon.Bool)
	if !ok {
		return nil
	}
	return resilience.Bool(bool(b))
}

func text(obj canon.Object, key string) string {
	s, _ := obj.Text(key)
	return s
}
