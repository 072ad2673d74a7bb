// Package ratchet implements the Olm double ratchet on top of the triple-DH handshake.
//
// The state holds a root key plus one sending and one receiving KDF chain. Each message
// advances a chain so that message keys are forward secure. When a side sees a new
// ratchet key from its peer it mixes a fresh DH output into the root key; its next send
// then generates a new ratchet key of its own.
//
// Decrypt is all-or-nothing: it works on a copy of the state and only commits the copy
// when the message authenticates. A failed decryption, a replayed message or a garbage
// header therefore leaves the state exactly as it was.
//
// Concurrency: State is NOT safe for concurrent use. Callers serialise access per
// session and clone the state when they need to discard an advance.
package ratchet
