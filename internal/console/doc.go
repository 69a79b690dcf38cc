// Package console assembles the alarm console core: one independent,
// serialized pipeline per category (dispatcher -> sequence reconciler ->
// stack store) plus an optimistic update coordinator per category and the
// application view state (active category, per-category connectivity).
package console
