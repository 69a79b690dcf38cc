// Package optimistic implements the optimistic update coordinator: local
// claim, progress and close actions are applied tentatively through the
// ordinary stack apply-path, dispatched to the transport (or a fallback
// direct-request path), and later reconciled against the authoritative
// broadcast by the standard last-writer-wins rule.
package optimistic
