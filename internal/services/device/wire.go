package device

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"olmcore/internal/domain"
	"olmcore/internal/protocol/ratchet"
)

const (
	messageVersion = 0x03
	keySize        = 32

	normalHeaderSize = 1 + keySize + 4 + 4
	preKeyHeaderSize = 1 + 3*keySize
)

var errMalformed = errors.New("malformed olm message")

// normalMessage is version | ratchet key | previous chain length | index | ciphertext.
type normalMessage struct {
	Header     ratchet.Header
	Ciphertext []byte
}

func (m normalMessage) encode() []byte {
	out := make([]byte, 0, normalHeaderSize+len(m.Ciphertext))
	out = append(out, messageVersion)
	out = append(out, m.Header.RatchetKey[:]...)
	out = binary.BigEndian.AppendUint32(out, m.Header.PrevCount)
	out = binary.BigEndian.AppendUint32(out, m.Header.Index)
	return append(out, m.Ciphertext...)
}

func decodeNormal(b []byte) (normalMessage, error) {
	if len(b) < normalHeaderSize+chacha20poly1305.Overhead || b[0] != messageVersion {
		return normalMessage{}, errMalformed
	}
	var m normalMessage
	copy(m.Header.RatchetKey[:], b[1:1+keySize])
	m.Header.PrevCount = binary.BigEndian.Uint32(b[1+keySize:])
	m.Header.Index = binary.BigEndian.Uint32(b[1+keySize+4:])
	m.Ciphertext = append([]byte(nil), b[normalHeaderSize:]...)
	return m, nil
}

// preKeyMessage is version | one-time key | base key | identity key | normal message.
type preKeyMessage struct {
	OneTimeKey  domain.Curve25519Public
	BaseKey     domain.Curve25519Public
	IdentityKey domain.Curve25519Public
	Inner       normalMessage
}

func (m preKeyMessage) encode() []byte {
	inner := m.Inner.encode()
	out := make([]byte, 0, preKeyHeaderSize+len(inner))
	out = append(out, messageVersion)
	out = append(out, m.OneTimeKey[:]...)
	out = append(out, m.BaseKey[:]...)
	out = append(out, m.IdentityKey[:]...)
	return append(out, inner...)
}

func decodePreKey(b []byte) (preKeyMessage, error) {
	if len(b) < preKeyHeaderSize || b[0] != messageVersion {
		return preKeyMessage{}, errMalformed
	}
	var m preKeyMessage
	copy(m.OneTimeKey[:], b[1:])
	copy(m.BaseKey[:], b[1+keySize:])
	copy(m.IdentityKey[:], b[1+2*keySize:])
	inner, err := decodeNormal(b[preKeyHeaderSize:])
	if err != nil {
		return preKeyMessage{}, err
	}
	m.Inner = inner
	return m, nil
}
