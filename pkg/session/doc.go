// Package session keeps per-user conversation history in memory.
//
// Invariants:
// - One live session per user id; created lazily on first append.
// - Turns are append-only and ordered by arrival; Reset is the only way to clear them.
// - Appends for the same user are serialized; different users never block each other.
//
// Usage:
//
//	store := session.NewStore()
//	store.Append(123, session.SpeakerUser, "hello")
//	turns := store.Window(123, 5)
//	_ = turns
package session
