// Package protocol defines the JSON wire messages exchanged with the
// broadcast feed: inbound sequenced envelopes, outbound public updates and
// private backfill requests, plus validation and domain conversion helpers.
package protocol
