// Package dispatch implements the stateless event dispatcher: it decodes
// raw broadcast envelopes, validates required fields and enum membership,
// and routes each envelope to the reconciler of its alarm's category.
package dispatch
