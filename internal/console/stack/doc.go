// Package stack implements the per-category normalized alarm store: a map
// of alarms by ID, a priority-ordered index maintained incrementally by
// positional search, a last-applied sequence cursor and the pending-gap set.
//
// Apply is the single mutation entry point shared by live broadcast events,
// backfill responses and local optimistic changes, which is what makes
// conflict resolution a single code path.
package stack
