// Package crypto exposes the minimal primitives used by olmcore.
//
// Contents
//
//   - Curve25519 key generation, clamping and Diffie–Hellman (GenerateCurve25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Unpadded base64 helpers matching the wire format (B64, UnB64)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and rely on memzero.Zero when practical to reduce lifetime in memory.
package crypto
