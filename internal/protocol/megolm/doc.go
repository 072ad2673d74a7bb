// Package megolm implements the Megolm group ratchet and its outbound and inbound
// sessions.
//
// # Ratchet
//
// The ratchet is four 32-byte parts R0..R3 and a 32-bit counter. Advancing by one
// rehashes the parts whose counter byte changed (HMAC-SHA256 keyed by the more
// significant part), so a receiver can jump forward by up to 2^24 steps with a handful
// of hashes but can never go backwards.
//
// # Sessions
//
// An OutboundSession owns a ratchet and an Ed25519 key pair; its id is the public
// key. Every message is encrypted with a key derived from the ratchet at its index and
// signed with the session key. An InboundSession is created from the exported session
// key and keeps the ratchet at its first known index plus a cached copy of the latest
// ratchet decrypted with, so old indices stay readable.
//
// # Wire formats
//
//	session key  : 0x02 | index(4) | ratchet(128) | ed25519 pub(32) | signature(64)
//	export       : 0x01 | index(4) | ratchet(128) | ed25519 pub(32)
//	message      : 0x03 | index(4) | ciphertext | signature(64)
//
// All three are carried as unpadded base64.
package megolm
