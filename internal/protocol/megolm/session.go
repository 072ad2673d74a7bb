package megolm

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"olmcore/internal/crypto"
	"olmcore/internal/domain"
	"olmcore/internal/util/memzero"
)

const (
	sessionKeyVersion = 0x02
	exportVersion     = 0x01
	messageVersion    = 0x03
	signatureSize     = 64
)

var (
	// ErrUnknownMessageIndex is returned for messages older than the first index the
	// inbound session knows.
	ErrUnknownMessageIndex = errors.New("megolm: message index below first known index")
	ErrBadSignature        = errors.New("megolm: bad message signature")
	ErrBadMessage          = errors.New("megolm: malformed message")
	ErrDecrypt             = errors.New("megolm: message failed to authenticate")
	ErrBadSessionKey       = errors.New("megolm: malformed or unsigned session key")
)

var keysInfo = []byte("MEGOLM_KEYS")

// OutboundSession is the sending half of a group session.
type OutboundSession struct {
	Ratchet     Ratchet               `json:"ratchet"`
	SigningPriv domain.Ed25519Private `json:"signing_priv"`
	SigningPub  domain.Ed25519Public  `json:"signing_pub"`
}

// NewOutboundSession creates a session with a random ratchet and signing key.
func NewOutboundSession() (*OutboundSession, error) {
	r, err := NewRatchet()
	if err != nil {
		return nil, err
	}
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		return nil, err
	}
	return &OutboundSession{Ratchet: r, SigningPriv: priv, SigningPub: pub}, nil
}

// ID returns the session id, the base64 signing public key.
func (s *OutboundSession) ID() domain.SessionID {
	return domain.SessionID(s.SigningPub.String())
}

// MessageIndex is the index the next message will be encrypted at.
func (s *OutboundSession) MessageIndex() uint32 { return s.Ratchet.Counter }

// SessionKey exports the current ratchet, signed, for sharing with other devices.
func (s *OutboundSession) SessionKey() string {
	r, _ := s.Ratchet.MarshalBinary()
	out := make([]byte, 0, 1+len(r)+32+signatureSize)
	out = append(out, sessionKeyVersion)
	out = append(out, r...)
	out = append(out, s.SigningPub[:]...)
	out = append(out, crypto.SignEd25519(s.SigningPriv, out)...)
	return crypto.B64(out)
}

// Encrypt seals plaintext at the current index and advances the ratchet.
func (s *OutboundSession) Encrypt(plaintext []byte) (string, error) {
	key, nonce := messageKey(&s.Ratchet)
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}
	out := make([]byte, 5, 5+len(plaintext)+aead.Overhead()+signatureSize)
	out[0] = messageVersion
	binary.BigEndian.PutUint32(out[1:5], s.Ratchet.Counter)
	out = aead.Seal(out, nonce, plaintext, out[:5])
	out = append(out, crypto.SignEd25519(s.SigningPriv, out)...)

	s.Ratchet.Advance()
	return crypto.B64(out), nil
}

// InboundSession is the receiving half of a group session.
type InboundSession struct {
	Initial    Ratchet              `json:"initial"`
	Latest     Ratchet              `json:"latest"`
	SigningKey domain.Ed25519Public `json:"signing_key"`
}

// NewInboundSession imports a signed session key as produced by SessionKey.
func NewInboundSession(sessionKey string) (*InboundSession, error) {
	raw, err := crypto.UnB64(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSessionKey, err)
	}
	body := 1 + 4 + ratchetLen + 32
	if len(raw) != body+signatureSize || raw[0] != sessionKeyVersion {
		return nil, ErrBadSessionKey
	}
	s, err := parseExport(raw[1:body])
	if err != nil {
		return nil, err
	}
	if !crypto.VerifyEd25519(s.SigningKey, raw[:body], raw[body:]) {
		return nil, ErrBadSessionKey
	}
	return s, nil
}

// ImportInboundSession imports an unsigned export as produced by Export.
func ImportInboundSession(exported string) (*InboundSession, error) {
	raw, err := crypto.UnB64(exported)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSessionKey, err)
	}
	if len(raw) != 1+4+ratchetLen+32 || raw[0] != exportVersion {
		return nil, ErrBadSessionKey
	}
	return parseExport(raw[1:])
}

func parseExport(b []byte) (*InboundSession, error) {
	var r Ratchet
	if err := r.UnmarshalBinary(b[:4+ratchetLen]); err != nil {
		return nil, err
	}
	var pub domain.Ed25519Public
	copy(pub[:], b[4+ratchetLen:])
	return &InboundSession{Initial: r, Latest: r, SigningKey: pub}, nil
}

// ID returns the session id.
func (s *InboundSession) ID() domain.SessionID {
	return domain.SessionID(s.SigningKey.String())
}

// FirstKnownIndex is the lowest index this session can decrypt.
func (s *InboundSession) FirstKnownIndex() uint32 { return s.Initial.Counter }

// Export returns the session at index as an unsigned export, or ErrUnknownMessageIndex
// when index is below the first known index.
func (s *InboundSession) Export(index uint32) (string, error) {
	r, err := s.ratchetAt(index)
	if err != nil {
		return "", err
	}
	b, _ := r.MarshalBinary()
	out := make([]byte, 0, 1+len(b)+32)
	out = append(out, exportVersion)
	out = append(out, b...)
	out = append(out, s.SigningKey[:]...)
	return crypto.B64(out), nil
}

// Decrypt verifies and opens a message. On success the cached latest ratchet moves to
// the message's index if that is ahead of it; the initial ratchet never moves.
func (s *InboundSession) Decrypt(message string) ([]byte, uint32, error) {
	raw, err := crypto.UnB64(message)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if len(raw) < 5+chacha20poly1305.Overhead+signatureSize || raw[0] != messageVersion {
		return nil, 0, ErrBadMessage
	}
	signed, sig := raw[:len(raw)-signatureSize], raw[len(raw)-signatureSize:]
	if !crypto.VerifyEd25519(s.SigningKey, signed, sig) {
		return nil, 0, ErrBadSignature
	}
	index := binary.BigEndian.Uint32(signed[1:5])

	r, err := s.ratchetAt(index)
	if err != nil {
		return nil, index, err
	}
	key, nonce := messageKey(&r)
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, index, err
	}
	pt, err := aead.Open(nil, nonce, signed[5:], signed[:5])
	if err != nil {
		return nil, index, ErrDecrypt
	}
	if index > s.Latest.Counter {
		s.Latest = r
	}
	return pt, index, nil
}

// ratchetAt returns a copy of the ratchet advanced to index, starting from the latest
// cached ratchet when possible.
func (s *InboundSession) ratchetAt(index uint32) (Ratchet, error) {
	if index < s.Initial.Counter {
		return Ratchet{}, fmt.Errorf("%w: %d < %d", ErrUnknownMessageIndex, index, s.Initial.Counter)
	}
	r := s.Initial
	if index >= s.Latest.Counter {
		r = s.Latest
	}
	if err := r.AdvanceTo(index); err != nil {
		return Ratchet{}, err
	}
	return r, nil
}

func messageKey(r *Ratchet) (key, nonce []byte) {
	b, _ := r.MarshalBinary()
	h := hkdf.New(sha256.New, b[4:], nil, keysInfo)
	key = make([]byte, chacha20poly1305.KeySize)
	nonce = make([]byte, chacha20poly1305.NonceSize)
	_, _ = io.ReadFull(h, key)
	_, _ = io.ReadFull(h, nonce)
	memzero.Zero(b)
	return key, nonce
}
