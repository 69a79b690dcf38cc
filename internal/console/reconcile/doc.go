// Package reconcile implements the per-category sequence reconciler: gap
// detection against the stack's sequence cursor, non-blocking backfill
// requests on the private channel, exponential-backoff retries with a
// bounded attempt ceiling, and the forced reconciliation pass performed on
// reconnect.
package reconcile
