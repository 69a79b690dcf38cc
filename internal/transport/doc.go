// Package transport implements the connection adapter between the console
// core and the broadcast feed.
//
// The feed protocol mandates JSON envelopes, so the gRPC service is
// registered by hand with a JSON codec instead of generated protobuf types:
// one bidirectional Channel stream per category carries broadcast envelopes
// downstream and subscribe/backfill/update messages upstream.
//
// The core never manages transport retry or backoff; the client here only
// re-establishes its streams and reports disconnect/reconnect transitions.
package transport
