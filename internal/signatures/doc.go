// Package signatures canonicalizes JSON values and signs or verifies them with Ed25519.
//
// # Canonical form
//
// Object keys are sorted by code point, no insignificant whitespace is emitted, strings
// are escaped minimally and numbers must be integers in the range ±(2^53-1). Values that
// cannot be represented this way (NaN, ±Inf, fractions, unsupported Go types, or nesting
// deeper than maxDepth, which also catches self-referencing maps) are rejected rather
// than coerced.
//
// # Signed objects
//
// Signatures live under "signatures" → user id → key id ("ed25519:DEVICE") → unpadded
// base64 signature. Both "signatures" and "unsigned" are stripped before canonicalizing.
//
// Verification has no side effects; every failure is a *cryptoerr.SignatureError.
package signatures
