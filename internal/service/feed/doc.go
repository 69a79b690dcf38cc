// Package feed implements the demo broadcast feed server: an in-memory,
// per-category sequenced event log with subscriber fan-out, backfill replay
// of requested sequence numbers, server-authoritative handling of agent
// updates, and republication of closed alarms into the history category.
package feed
