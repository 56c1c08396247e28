// Package canon provides deterministic serialization and fingerprinting of
// governance decision payloads.
//
// Values are modelled as a sealed variant (Null, String, Int, Bool, Array,
// Object). Canonical JSON follows RFC 8785 ordering rules:
//   - object keys sorted by UTF-16 code units at every depth
//   - array order preserved
//   - null kept as null (absent and null are different values)
//   - strings NFC normalized, no HTML escaping
//   - floats rejected, integers only
//
// StructuralHash wraps the canonical payload with CanonicalVersion so a change
// to these rules never collides with hashes computed under the old ones.
package canon
