// Package dedup groups items by fingerprint and keeps one survivor per group.
//
// The pipeline is:
//
//	canonicalize -> fingerprint -> group -> select keeper -> assemble
//
// Fingerprinting is per item and may run on several goroutines when the
// policy asks for workers. Grouping, keeper selection and assembly are
// single-pass reductions over the input order, so a run is deterministic
// regardless of worker count.
//
// Items are never modified. Results refer back to them by original index.
package dedup
