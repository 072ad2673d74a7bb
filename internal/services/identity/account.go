package identity

import (
	"encoding/binary"
	"errors"
	"fmt"

	"olmcore/internal/crypto"
	"olmcore/internal/domain"
	"olmcore/internal/signatures"
)

// MaxOneTimeKeys is the number of one-time keys an account keeps before discarding the
// oldest.
const MaxOneTimeKeys = 100

// ErrUnknownOneTimeKey is returned when a pre-key message names a one-time key the
// account does not hold.
var ErrUnknownOneTimeKey = errors.New("unknown or already used one-time key")

// OneTimeKey is one claimable Curve25519 key.
type OneTimeKey struct {
	ID        string                   `json:"id"`
	Priv      domain.Curve25519Private `json:"priv"`
	Pub       domain.Curve25519Public  `json:"pub"`
	Published bool                     `json:"published"`
}

// Account is the local device's key material.
type Account struct {
	UserID   domain.UserID   `json:"user_id"`
	DeviceID domain.DeviceID `json:"device_id"`

	IdentityPriv domain.Curve25519Private `json:"identity_priv"`
	IdentityPub  domain.Curve25519Public  `json:"identity_pub"`
	SigningPriv  domain.Ed25519Private    `json:"signing_priv"`
	SigningPub   domain.Ed25519Public     `json:"signing_pub"`

	OneTimeKeys []OneTimeKey `json:"one_time_keys"`
	NextKeyID   uint32       `json:"next_key_id"`
}

// NewAccount generates fresh identity and signing keys.
func NewAccount(user domain.UserID, device domain.DeviceID) (*Account, error) {
	idPriv, idPub, err := crypto.GenerateCurve25519()
	if err != nil {
		return nil, err
	}
	sigPriv, sigPub, err := crypto.GenerateEd25519()
	if err != nil {
		return nil, err
	}
	return &Account{
		UserID:       user,
		DeviceID:     device,
		IdentityPriv: idPriv,
		IdentityPub:  idPub,
		SigningPriv:  sigPriv,
		SigningPub:   sigPub,
	}, nil
}

// Fingerprint returns a short fingerprint of the Ed25519 signing key.
func (a *Account) Fingerprint() domain.Fingerprint {
	return domain.Fingerprint(crypto.Fingerprint(a.SigningPub))
}

// DeviceKeys returns the account's self-signed device keys.
func (a *Account) DeviceKeys() (domain.DeviceKeys, error) {
	keys := domain.DeviceKeys{
		UserID:     a.UserID,
		DeviceID:   a.DeviceID,
		Algorithms: []string{domain.AlgorithmOlm, domain.AlgorithmMegolm},
		Keys: map[string]string{
			domain.KeyID("curve25519", a.DeviceID): a.IdentityPub.String(),
			domain.KeyID("ed25519", a.DeviceID):    a.SigningPub.String(),
		},
	}
	keyID := domain.KeyID("ed25519", a.DeviceID)
	_, sig, err := signatures.Sign(keys, a.UserID, keyID, a.SigningPriv)
	if err != nil {
		return domain.DeviceKeys{}, err
	}
	keys.Signatures = map[domain.UserID]map[string]string{a.UserID: {keyID: sig}}
	return keys, nil
}

// GenerateOneTimeKeys adds n unpublished keys, discarding the oldest once the pool
// exceeds MaxOneTimeKeys.
func (a *Account) GenerateOneTimeKeys(n int) error {
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateCurve25519()
		if err != nil {
			return err
		}
		a.NextKeyID++
		var id [4]byte
		binary.BigEndian.PutUint32(id[:], a.NextKeyID)
		a.OneTimeKeys = append(a.OneTimeKeys, OneTimeKey{ID: crypto.B64(id[:]), Priv: priv, Pub: pub})
	}
	if over := len(a.OneTimeKeys) - MaxOneTimeKeys; over > 0 {
		a.OneTimeKeys = append([]OneTimeKey(nil), a.OneTimeKeys[over:]...)
	}
	return nil
}

// UnpublishedOneTimeKeys returns key id → public key for keys not yet marked published.
func (a *Account) UnpublishedOneTimeKeys() map[string]domain.Curve25519Public {
	out := make(map[string]domain.Curve25519Public)
	for _, k := range a.OneTimeKeys {
		if !k.Published {
			out[k.ID] = k.Pub
		}
	}
	return out
}

// SignedOneTimeKeys returns the unpublished keys in upload form:
// "signed_curve25519:<id>" → {"key": ..., "signatures": {...}}.
func (a *Account) SignedOneTimeKeys() (map[string]any, error) {
	out := make(map[string]any)
	keyID := domain.KeyID("ed25519", a.DeviceID)
	for id, pub := range a.UnpublishedOneTimeKeys() {
		signed, _, err := signatures.Sign(map[string]any{"key": pub.String()}, a.UserID, keyID, a.SigningPriv)
		if err != nil {
			return nil, fmt.Errorf("sign one-time key %s: %w", id, err)
		}
		out["signed_curve25519:"+id] = signed
	}
	return out, nil
}

// MarkKeysAsPublished flags every current one-time key as uploaded.
func (a *Account) MarkKeysAsPublished() {
	for i := range a.OneTimeKeys {
		a.OneTimeKeys[i].Published = true
	}
}

// OneTimeKey returns the private half of pub.
func (a *Account) OneTimeKey(pub domain.Curve25519Public) (domain.Curve25519Private, error) {
	for _, k := range a.OneTimeKeys {
		if k.Pub == pub {
			return k.Priv, nil
		}
	}
	return domain.Curve25519Private{}, ErrUnknownOneTimeKey
}

// RemoveOneTimeKey deletes pub from the pool.
func (a *Account) RemoveOneTimeKey(pub domain.Curve25519Public) error {
	for i, k := range a.OneTimeKeys {
		if k.Pub == pub {
			a.OneTimeKeys = append(a.OneTimeKeys[:i:i], a.OneTimeKeys[i+1:]...)
			return nil
		}
	}
	return ErrUnknownOneTimeKey
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	out := *a
	out.OneTimeKeys = append([]OneTimeKey(nil), a.OneTimeKeys...)
	return &out
}
