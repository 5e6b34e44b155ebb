// Package quota provides atomic, race-free admission control for metered
// subjects.
//
// A Manager answers "may subject S perform one more operation right now?"
// and, when the answer is yes, durably records the consumption. The
// increment decision is always arbitrated by the durable CounterStore's
// conditional write; the in-process and shared cache tiers in front of it
// are read-through conveniences only and never decide an admission.
//
// Counters are kept per (subject, day) bucket with a parallel monthly
// bucket. Rollover happens by key derivation, never by mutating history:
// a new day or month simply reads and writes a fresh bucket.
package quota
