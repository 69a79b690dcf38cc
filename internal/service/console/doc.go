// Package console runs the operator console process: it loads settings,
// connects the engine to the feed server over gRPC, subscribes every
// category and periodically renders the active stack, optionally narrowed
// by a filter expression.
package console
