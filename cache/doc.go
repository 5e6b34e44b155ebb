// Package cache provides the tiered caching layer used for admission control.
//
// It provides a Cache interface with a bounded in-memory LRU implementation,
// a Redis-backed shared tier, and a Tiered composite that reads through an
// ordered list of tiers and back-fills outer tiers on a hit.
package cache
