package pickle

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const formatVersion = 1

// ErrCorrupt is returned when a pickle cannot be authenticated under the key.
var ErrCorrupt = errors.New("pickle: wrong key or corrupted state")

// Key encrypts pickles.
type Key [chacha20poly1305.KeySize]byte

// NewKey returns a random pickle key.
func NewKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, err
	}
	return k, nil
}

type sealed struct {
	V      int    `json:"v"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

func aad(kind string) []byte {
	return []byte(fmt.Sprintf("olmcore.pickle.v%d:%s", formatVersion, kind))
}

// Seal encodes v as JSON and encrypts it.
func Seal(key Key, kind string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pickle: encode %s: %w", kind, err)
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return json.Marshal(sealed{
		V:      formatVersion,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, raw, aad(kind)),
	})
}

// Open authenticates and decrypts a pickle produced by Seal into out.
func Open(key Key, kind string, data []byte, out any) error {
	var s sealed
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("pickle: %w", ErrCorrupt)
	}
	if s.V > formatVersion {
		return fmt.Errorf("pickle: unsupported format version %d", s.V)
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return err
	}
	if len(s.Nonce) != aead.NonceSize() {
		return ErrCorrupt
	}
	raw, err := aead.Open(nil, s.Nonce, s.Cipher, aad(kind))
	if err != nil {
		return ErrCorrupt
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("pickle: decode %s: %w", kind, err)
	}
	return nil
}
