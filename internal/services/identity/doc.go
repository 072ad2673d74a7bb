// Package identity manages the local Olm account.
//
// The account holds the device's long-term Curve25519 identity key, its Ed25519
// signing key and a pool of one-time Curve25519 keys that remote devices claim to
// start sessions. It is persisted as a sealed pickle through domain.AccountStore.
//
// # Notes
//
//   - One-time keys are removed once a session has been created from them; a key that
//     was never generated or has already been used yields ErrUnknownOneTimeKey.
//   - Service serialises account mutations in-process. The device manager only touches
//     the account to look up or consume a one-time key.
package identity
