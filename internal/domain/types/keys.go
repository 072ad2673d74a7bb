package types

import (
	"encoding/base64"
	"fmt"
)

// Curve25519Public is a Curve25519 public key.
type Curve25519Public [32]byte

// Slice returns the key as a []byte.
func (p Curve25519Public) Slice() []byte { return p[:] }

// String returns the unpadded base64 form used on the wire.
func (p Curve25519Public) String() string { return base64.RawStdEncoding.EncodeToString(p[:]) }

// IsZero reports whether the key is unset.
func (p Curve25519Public) IsZero() bool { return p == Curve25519Public{} }

// MarshalText encodes the key as unpadded base64.
func (p Curve25519Public) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText decodes unpadded base64.
func (p *Curve25519Public) UnmarshalText(b []byte) error {
	return decodeKey(p[:], string(b), "curve25519")
}

// Curve25519Private is a Curve25519 private key.
type Curve25519Private [32]byte

// Slice returns the key as a []byte.
func (k Curve25519Private) Slice() []byte { return k[:] }

// IsZero reports whether the key is unset.
func (k Curve25519Private) IsZero() bool { return k == Curve25519Private{} }

// MarshalText encodes the key as unpadded base64. Private keys are only ever
// marshalled into sealed pickles.
func (k Curve25519Private) MarshalText() ([]byte, error) {
	return []byte(base64.RawStdEncoding.EncodeToString(k[:])), nil
}

// UnmarshalText decodes unpadded base64.
func (k *Curve25519Private) UnmarshalText(b []byte) error {
	return decodeKey(k[:], string(b), "curve25519 private")
}

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// String returns the unpadded base64 form used on the wire.
func (p Ed25519Public) String() string { return base64.RawStdEncoding.EncodeToString(p[:]) }

// IsZero reports whether the key is unset.
func (p Ed25519Public) IsZero() bool { return p == Ed25519Public{} }

// MarshalText encodes the key as unpadded base64.
func (p Ed25519Public) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText decodes unpadded base64.
func (p *Ed25519Public) UnmarshalText(b []byte) error {
	return decodeKey(p[:], string(b), "ed25519")
}

// Ed25519Private is an Ed25519 signing private key (ed25519.PrivateKey layout).
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

// MarshalText encodes the key as unpadded base64.
func (k Ed25519Private) MarshalText() ([]byte, error) {
	return []byte(base64.RawStdEncoding.EncodeToString(k[:])), nil
}

// UnmarshalText decodes unpadded base64.
func (k *Ed25519Private) UnmarshalText(b []byte) error {
	return decodeKey(k[:], string(b), "ed25519 private")
}

// ParseCurve25519 decodes an unpadded base64 Curve25519 public key.
func ParseCurve25519(s string) (Curve25519Public, error) {
	var k Curve25519Public
	err := decodeKey(k[:], s, "curve25519")
	return k, err
}

// ParseEd25519 decodes an unpadded base64 Ed25519 public key.
func ParseEd25519(s string) (Ed25519Public, error) {
	var k Ed25519Public
	err := decodeKey(k[:], s, "ed25519")
	return k, err
}

func decodeKey(dst []byte, s, kind string) error {
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%s key: %w", kind, err)
	}
	if len(b) != len(dst) {
		return fmt.Errorf("%s key: want %d bytes, got %d", kind, len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
