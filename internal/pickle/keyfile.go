package pickle

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const keyfileFormatVersion = 1

// ErrWrongPassphrase is returned when the passphrase is incorrect or the wrapped key
// has been modified.
var ErrWrongPassphrase = errors.New("pickle: wrong passphrase or corrupted key file")

// ScryptParams tunes passphrase stretching.
type ScryptParams struct {
	N, R, P int
}

// DefaultScrypt is used for new key files.
var DefaultScrypt = ScryptParams{N: 1 << 15, R: 8, P: 1}

// keyfile is the JSON structure holding the wrapped pickle key and KDF parameters.
type keyfile struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// WrapKey derives a key-encryption key from passphrase and seals key into a JSON blob.
func WrapKey(passphrase string, key Key, params ScryptParams) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	kek, err := scrypt.Key([]byte(passphrase), salt[:], params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte // zero nonce; the salt makes every kek unique
	ct := aead.Seal(nil, nonce[:], key[:], salt[:])

	return json.Marshal(keyfile{
		V:      keyfileFormatVersion,
		Salt:   salt[:],
		N:      params.N,
		R:      params.R,
		P:      params.P,
		Cipher: ct,
	})
}

// UnwrapKey recovers the pickle key sealed by WrapKey.
func UnwrapKey(passphrase string, data []byte) (Key, error) {
	var kf keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return Key{}, err
	}
	if kf.V > keyfileFormatVersion {
		return Key{}, fmt.Errorf("unsupported key file version %d", kf.V)
	}
	kek, err := scrypt.Key([]byte(passphrase), kf.Salt, kf.N, kf.R, kf.P, chacha20poly1305.KeySize)
	if err != nil {
		return Key{}, err
	}
	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return Key{}, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], kf.Cipher, kf.Salt)
	if err != nil || len(pt) != len(Key{}) {
		return Key{}, ErrWrongPassphrase
	}
	var k Key
	copy(k[:], pt)
	return k, nil
}
