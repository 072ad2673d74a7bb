// Package tripledh implements the Olm triple Diffie-Hellman handshake that bootstraps a
// double ratchet session between two devices.
//
// # Overview
//
// The initiator (A) claims one of the responder's (B) one-time keys and generates a
// fresh base key. Both sides then compute the same three shared secrets:
//   - DH(identity A, one-time B)
//   - DH(base A, identity B)
//   - DH(base A, one-time B)
//
// The concatenation is fed through HKDF-SHA256 to produce the initial root key and
// chain key of the ratchet.
//
// # Flows
//
// Initiator:
//  1. Generate a base key pair.
//  2. Compute the DH set with the responder's identity and one-time keys.
//  3. Send identity key, base key and the one-time key used in every pre-key message
//     until a reply arrives.
//
// Responder:
//  1. Look up the private half of the one-time key named in the pre-key message.
//  2. Compute the mirrored DH set.
//  3. Remove the one-time key so it cannot be reused.
//
// # Session identity
//
// SessionID hashes the three public keys of the handshake, so both sides (and any
// later pre-key message for the same session) agree on it without extra signalling.
package tripledh
