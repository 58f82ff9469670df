// Package value provides the generic structured value tree used to inspect
// vault export items.
//
// Items are decoded into a sealed set of variants (Null, String, Int, Number,
// Bool, Array, Object) so that every consumer can switch over them
// exhaustively. A separate Absent variant represents "this path does not
// exist" and is kept distinct from a present null or empty string.
//
// Key design constraints:
//   - Trees are read-only once decoded; transformations build new trees
//   - Numbers never pass through float64
//   - MarshalCanonical is the only serialization used for fingerprints
package value
