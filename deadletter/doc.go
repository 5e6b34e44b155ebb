// Package deadletter routes terminally-failed operations to a durable
// destination.
//
// A FailureRecord is built exactly once per exhausted or terminal failure
// and handed to a Sink: queued for later inspection, persisted to a
// durable error log, and - for High and Critical severities - pushed to a
// notification channel. Records are immutable once built.
package deadletter
