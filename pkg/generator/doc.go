// Package generator sends assembled prompts to a generative-text backend and
// normalizes every way that can go wrong into a typed Failure.
//
// The orchestrator never branches on the failure reason; the taxonomy exists
// so logs and metrics can tell a safety block from a dead network. A single
// attempt is made per call - retry policy, if it ever exists, lives with the
// caller.
package generator
