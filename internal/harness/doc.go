// Package harness runs governance conformance scenarios.
//
// A scenario drives the real pipeline (policy engine, seal, registry and
// ledger over an in-memory SQLite store) through a flow of operations, checks
// each outcome and then asserts on the trace and on the persisted tables.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	profiles: profiles.yaml
//	flow:
//	  - op: generate
//	    args:
//	      profile: central-bank
//	      metadata: { reporting_entity: "Banco Central" }
//	    expect:
//	      case: policy_violation
//	      kind: missing_required_field
//	      result: { field: reference_period }
//	  - op: verify
//	    args: { tamper: { data_frequency: annual } }
//	    expect: { case: integrity_violation, kind: tamper_detected }
//	assertions:
//	  - type: trace_count
//	    op: generate
//	    case: approved
//	    count: 1
//	  - type: final_state
//	    table: submissions
//	    where: { governance_level: HIGH }
//	    expect: { reporting_entity: "Banco Central" }
//
// # Operations
//
//   - generate: runs one document decision; args mirror governance.Request
//   - verify: checks the seal of the last approved record, optionally after
//     overwriting metadata fields given under "tamper"
//   - score: computes a resilience score for "level" and "features"
//   - ledger_append: appends a raw event (actor, action, payload, origin)
//   - lookup: reads a submission through the dashboard
//
// # Assertion Types
//
//   - trace_contains: a step with the op (and optional case) and matching args
//   - trace_order: steps, written "op" or "op:case", appear in order
//   - trace_count: a step with the op (and optional case) appears N times
//   - final_state: queries a table; with expect, exactly one row must match
//     and carry the values; without, the row count must equal count
//
// # Determinism
//
// Each run starts from an empty database, a clock at testutil.DefaultStart
// advancing one second per reading, and sequential record and event IDs, so
// traces are stable enough for golden comparison.
package harness
