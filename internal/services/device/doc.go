// Package device manages Olm sessions with individual remote devices.
//
// Sessions are keyed by the remote device's Curve25519 identity key; a device may have
// several. Every operation on a given key runs under a per-key lock, loads the sessions
// from the store, works on copies and persists the advanced session before returning
// plaintext or ciphertext. A failure or a cancelled context before that point leaves
// the stored state untouched. Cancellation is returned as ctx.Err() without a kind.
//
// # Wedged sessions
//
// A device whose only session keeps failing to decrypt is reported as wedged once
// Config.WedgeThreshold consecutive failures have been seen. A normal message from a
// device with no sessions at all is wedged immediately. Creating a new session clears
// the flag; the caller is expected to do so after a wedged report.
// Messages whose key was already used are duplicates and do not count. Wedge state
// lives in the Manager only and starts clean when the process restarts.
//
// # Payload
//
// Plaintexts are JSON objects binding sender, sender_device, keys.ed25519, recipient,
// recipient_keys.ed25519, type and content. Decrypt rejects payloads whose claims do
// not match the event and the local account.
package device
