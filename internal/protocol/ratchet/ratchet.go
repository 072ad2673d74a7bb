package ratchet

import (
	"crypto/hmac"
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
	// MaxSkip bounds how far ahead of the receiving chain a message may be.
	MaxSkip = 2000
	// maxSkippedKeys bounds the number of stored out-of-order message keys.
	maxSkippedKeys = 40
	// maxRetiredPeers bounds the number of replaced peer ratchet keys remembered.
	maxRetiredPeers = 8
)

var (
	ErrMessageKeyNotFound = errors.New("message key already used or never derived")
	ErrTooFarAhead        = errors.New("message index too far ahead of the receiving chain")
	ErrDecrypt            = errors.New("message failed to authenticate")
	ErrNoPeerRatchet      = errors.New("no peer ratchet key to send to")
	errChainUninitialised = errors.New("ratchet chain key is uninitialised")
)

var (
	ratchetInfo = []byte("OLM_RATCHET")
	messageInfo = []byte("OLM_KEYS")
	chainSeed   = []byte{0x02}
	messageSeed = []byte{0x01}
)

// SkippedKey is a message key derived for a message that has not arrived yet.
type SkippedKey struct {
	RatchetKey domain.Curve25519Public `json:"ratchet_key"`
	Index      uint32                  `json:"index"`
	Key        []byte                  `json:"key"`
}

// State is the persisted double ratchet state.
type State struct {
	RootKey []byte `json:"root_key"`

	SelfPriv domain.Curve25519Private `json:"self_priv"`
	SelfPub  domain.Curve25519Public  `json:"self_pub"`
	PeerPub  domain.Curve25519Public  `json:"peer_pub"`

	SendChain []byte `json:"send_chain,omitempty"`
	SendIndex uint32 `json:"send_index"`
	RecvChain []byte `json:"recv_chain,omitempty"`
	RecvIndex uint32 `json:"recv_index"`
	// PrevSendCount is the length of our previous sending chain.
	PrevSendCount uint32 `json:"prev_send_count"`

	Skipped []SkippedKey `json:"skipped,omitempty"`
	// RetiredPeers are peer ratchet keys whose receiving chains were closed. Messages
	// under them can only be replays or keys that were dropped from Skipped.
	RetiredPeers []domain.Curve25519Public `json:"retired_peers,omitempty"`
}

// Header travels in clear next to every ciphertext.
type Header struct {
	RatchetKey domain.Curve25519Public
	PrevCount  uint32
	Index      uint32
}

// InitAsInitiator starts the state of the device that performed the handshake. It owns a
// fresh ratchet key and can send immediately.
func InitAsInitiator(rootKey, chainKey []byte) (*State, error) {
	priv, pub, err := crypto.GenerateCurve25519()
	if err != nil {
		return nil, err
	}
	return &State{
		RootKey:   clone(rootKey),
		SelfPriv:  priv,
		SelfPub:   pub,
		SendChain: clone(chainKey),
	}, nil
}

// InitAsResponder starts the state of the device that received the first pre-key
// message. The initiator's chain becomes our receiving chain; we ratchet on first send.
func InitAsResponder(rootKey, chainKey []byte, peerRatchet domain.Curve25519Public) *State {
	return &State{
		RootKey:   clone(rootKey),
		PeerPub:   peerRatchet,
		RecvChain: clone(chainKey),
	}
}

// Clone returns a deep copy of st.
func (st *State) Clone() *State {
	out := *st
	out.RootKey = clone(st.RootKey)
	out.SendChain = clone(st.SendChain)
	out.RecvChain = clone(st.RecvChain)
	if st.Skipped != nil {
		out.Skipped = make([]SkippedKey, len(st.Skipped))
		for i, k := range st.Skipped {
			k.Key = clone(k.Key)
			out.Skipped[i] = k
		}
	}
	out.RetiredPeers = append([]domain.Curve25519Public(nil), st.RetiredPeers...)
	return &out
}

// Encrypt seals plaintext with the next sending message key, stepping the DH ratchet
// first when the sending chain is empty.
func Encrypt(st *State, ad, plaintext []byte) (Header, []byte, error) {
	if len(st.SendChain) == 0 {
		if st.PeerPub.IsZero() {
			return Header{}, nil, ErrNoPeerRatchet
		}
		priv, pub, err := crypto.GenerateCurve25519()
		if err != nil {
			return Header{}, nil, err
		}
		dh, err := crypto.DH(priv, st.PeerPub)
		if err != nil {
			return Header{}, nil, err
		}
		rk, ck := kdfRoot(st.RootKey, dh[:])
		memzero.Zero(dh[:])

		st.RootKey = rk
		st.SelfPriv, st.SelfPub = priv, pub
		st.SendChain = ck
		st.PrevSendCount = st.SendIndex
		st.SendIndex = 0
	}

	mk := messageKey(st.SendChain)
	h := Header{RatchetKey: st.SelfPub, PrevCount: st.PrevSendCount, Index: st.SendIndex}
	ct, err := seal(mk, h, ad, plaintext)
	memzero.Zero(mk)
	if err != nil {
		return Header{}, nil, err
	}
	st.SendChain = advanceChain(st.SendChain)
	st.SendIndex++
	return h, ct, nil
}

// Decrypt opens a message. st is only modified when the message authenticates.
func Decrypt(st *State, ad []byte, h Header, ciphertext []byte) ([]byte, error) {
	work := st.Clone()
	pt, err := work.decrypt(ad, h, ciphertext)
	if err != nil {
		return nil, err
	}
	*st = *work
	return pt, nil
}

func (st *State) decrypt(ad []byte, h Header, ciphertext []byte) ([]byte, error) {
	if mk, ok := st.takeSkipped(h.RatchetKey, h.Index); ok {
		defer memzero.Zero(mk)
		return open(mk, h, ad, ciphertext)
	}

	if h.RatchetKey != st.PeerPub && st.retired(h.RatchetKey) {
		return nil, ErrMessageKeyNotFound
	}

	if h.RatchetKey != st.PeerPub || len(st.RecvChain) == 0 {
		if st.SelfPriv.IsZero() {
			return nil, ErrNoPeerRatchet
		}
		if len(st.RecvChain) > 0 {
			if err := st.skipTo(h.PrevCount); err != nil {
				return nil, err
			}
		}
		dh, err := crypto.DH(st.SelfPriv, h.RatchetKey)
		if err != nil {
			return nil, err
		}
		rk, ck := kdfRoot(st.RootKey, dh[:])
		memzero.Zero(dh[:])

		st.RootKey = rk
		st.retire(st.PeerPub)
		st.PeerPub = h.RatchetKey
		st.RecvChain = ck
		st.RecvIndex = 0
		// Our next send starts a new chain against the new peer key.
		st.SendChain = nil
	}

	if h.Index < st.RecvIndex {
		return nil, ErrMessageKeyNotFound
	}
	if err := st.skipTo(h.Index); err != nil {
		return nil, err
	}
	mk := messageKey(st.RecvChain)
	defer memzero.Zero(mk)
	pt, err := open(mk, h, ad, ciphertext)
	if err != nil {
		return nil, err
	}
	st.RecvChain = advanceChain(st.RecvChain)
	st.RecvIndex++
	return pt, nil
}

// skipTo stores message keys for indices [RecvIndex, n) of the current receiving chain.
func (st *State) skipTo(n uint32) error {
	if len(st.RecvChain) == 0 {
		return errChainUninitialised
	}
	if n < st.RecvIndex {
		return nil
	}
	if n-st.RecvIndex > MaxSkip {
		return fmt.Errorf("%w: %d > %d", ErrTooFarAhead, n-st.RecvIndex, MaxSkip)
	}
	for st.RecvIndex < n {
		st.Skipped = append(st.Skipped, SkippedKey{
			RatchetKey: st.PeerPub,
			Index:      st.RecvIndex,
			Key:        messageKey(st.RecvChain),
		})
		st.RecvChain = advanceChain(st.RecvChain)
		st.RecvIndex++
	}
	if over := len(st.Skipped) - maxSkippedKeys; over > 0 {
		for _, k := range st.Skipped[:over] {
			memzero.Zero(k.Key)
		}
		st.Skipped = append([]SkippedKey(nil), st.Skipped[over:]...)
	}
	return nil
}

func (st *State) retire(peer domain.Curve25519Public) {
	if peer.IsZero() {
		return
	}
	st.RetiredPeers = append(st.RetiredPeers, peer)
	if over := len(st.RetiredPeers) - maxRetiredPeers; over > 0 {
		st.RetiredPeers = append([]domain.Curve25519Public(nil), st.RetiredPeers[over:]...)
	}
}

func (st *State) retired(peer domain.Curve25519Public) bool {
	for _, p := range st.RetiredPeers {
		if p == peer {
			return true
		}
	}
	return false
}

func (st *State) takeSkipped(ratchetKey domain.Curve25519Public, index uint32) ([]byte, bool) {
	for i, k := range st.Skipped {
		if k.RatchetKey == ratchetKey && k.Index == index {
			st.Skipped = append(st.Skipped[:i:i], st.Skipped[i+1:]...)
			return k.Key, true
		}
	}
	return nil, false
}

// --- helpers ---

func kdfRoot(rk, dh []byte) (newRK, ck []byte) {
	r := hkdf.New(sha256.New, dh, rk, ratchetInfo)
	newRK = make([]byte, 32)
	ck = make([]byte, 32)
	_, _ = io.ReadFull(r, newRK)
	_, _ = io.ReadFull(r, ck)
	return
}

func advanceChain(ck []byte) []byte {
	m := hmac.New(sha256.New, ck)
	m.Write(chainSeed)
	return m.Sum(nil)
}

// messageKey derives the AEAD key for the chain's current index.
func messageKey(ck []byte) []byte {
	m := hmac.New(sha256.New, ck)
	m.Write(messageSeed)
	seed := m.Sum(nil)
	r := hkdf.New(sha256.New, seed, nil, messageInfo)
	mk := make([]byte, chacha20poly1305.KeySize)
	_, _ = io.ReadFull(r, mk)
	memzero.Zero(seed)
	return mk
}

func seal(mk []byte, h Header, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce(h), plaintext, associated(ad, h)), nil
}

func open(mk []byte, h Header, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce(h), ciphertext, associated(ad, h))
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

func nonce(h Header) []byte {
	n := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(n[len(n)-4:], h.Index)
	return n
}

func associated(ad []byte, h Header) []byte {
	out := make([]byte, 0, len(ad)+40)
	out = append(out, ad...)
	out = append(out, h.RatchetKey[:]...)
	out = binary.BigEndian.AppendUint32(out, h.PrevCount)
	out = binary.BigEndian.AppendUint32(out, h.Index)
	return out
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
