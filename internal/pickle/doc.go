// Package pickle seals session and account state for storage.
//
// A pickle is the JSON encoding of a state struct sealed with XChaCha20-Poly1305 under a
// 32-byte pickle Key. The record kind ("olm.session", "megolm.inbound", ...) is bound as
// associated data so a pickle cannot be opened as a different kind of state.
//
// The pickle Key itself is random and is stored wrapped under a passphrase using scrypt
// (see WrapKey / UnwrapKey).
//
// # Notes
//
//   - Stores only ever see sealed bytes plus the lookup fields needed to index them.
//   - A wrong key and a tampered pickle are indistinguishable: both return ErrCorrupt.
package pickle
