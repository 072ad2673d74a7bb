package tripledh

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"olmcore/internal/crypto"
	"olmcore/internal/domain"
	"olmcore/internal/util/memzero"
)

var rootInfo = []byte("OLM_ROOT")

// Secrets is the output of the handshake.
type Secrets struct {
	RootKey  []byte
	ChainKey []byte
}

// Initiator derives the handshake secrets on the side that claimed the one-time key.
func Initiator(
	ourIdentity domain.Curve25519Private,
	ourBase domain.Curve25519Private,
	theirIdentity domain.Curve25519Public,
	theirOneTime domain.Curve25519Public,
) (Secrets, error) {
	dh1, err := crypto.DH(ourIdentity, theirOneTime)
	if err != nil {
		return Secrets{}, err
	}
	dh2, err := crypto.DH(ourBase, theirIdentity)
	if err != nil {
		return Secrets{}, err
	}
	dh3, err := crypto.DH(ourBase, theirOneTime)
	if err != nil {
		return Secrets{}, err
	}
	return derive(dh1, dh2, dh3), nil
}

// Responder derives the handshake secrets on the side that owns the one-time key.
func Responder(
	ourIdentity domain.Curve25519Private,
	ourOneTime domain.Curve25519Private,
	theirIdentity domain.Curve25519Public,
	theirBase domain.Curve25519Public,
) (Secrets, error) {
	dh1, err := crypto.DH(ourOneTime, theirIdentity)
	if err != nil {
		return Secrets{}, err
	}
	dh2, err := crypto.DH(ourIdentity, theirBase)
	if err != nil {
		return Secrets{}, err
	}
	dh3, err := crypto.DH(ourOneTime, theirBase)
	if err != nil {
		return Secrets{}, err
	}
	return derive(dh1, dh2, dh3), nil
}

// SessionID returns the unpadded base64 SHA-256 of the handshake's public keys.
func SessionID(initiatorIdentity, base, oneTime domain.Curve25519Public) domain.SessionID {
	h := sha256.New()
	h.Write(initiatorIdentity[:])
	h.Write(base[:])
	h.Write(oneTime[:])
	return domain.SessionID(crypto.B64(h.Sum(nil)))
}

func derive(dh1, dh2, dh3 [32]byte) Secrets {
	ikm := make([]byte, 0, 96)
	ikm = append(ikm, dh1[:]...)
	ikm = append(ikm, dh2[:]...)
	ikm = append(ikm, dh3[:]...)

	r := hkdf.New(sha256.New, ikm, nil, rootInfo)
	out := Secrets{RootKey: make([]byte, 32), ChainKey: make([]byte, 32)}
	_, _ = io.ReadFull(r, out.RootKey)
	_, _ = io.ReadFull(r, out.ChainKey)

	memzero.Zero(ikm)
	memzero.Zero(dh1[:])
	memzero.Zero(dh2[:])
	memzero.Zero(dh3[:])
	return out
}
