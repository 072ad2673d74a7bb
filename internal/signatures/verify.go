package signatures

import (
	"encoding/json"
	"fmt"

	"olmcore/internal/crypto"
	"olmcore/internal/cryptoerr"
	"olmcore/internal/domain"
)

// Verify checks that v carries a valid signature by signer under keyID for key.
func Verify(v any, signer domain.UserID, keyID string, key domain.Ed25519Public) error {
	obj, err := asObject(v)
	if err != nil {
		return err
	}
	sig, err := lookupSignature(obj, signer, keyID)
	if err != nil {
		return err
	}
	msg, err := Canonical(stripped(obj))
	if err != nil {
		return &cryptoerr.SignatureError{Kind: cryptoerr.CanonicalJSON, Err: err}
	}
	raw, err := crypto.UnB64(sig)
	if err != nil || !crypto.VerifyEd25519(key, msg, raw) {
		return cryptoerr.ErrVerification
	}
	return nil
}

// VerifyJSON is Verify over raw JSON bytes.
func VerifyJSON(raw []byte, signer domain.UserID, keyID string, key domain.Ed25519Public) error {
	return Verify(raw, signer, keyID, key)
}

// VerifyDeviceKeys verifies the self-signature on a device's published keys. Fields
// the struct does not model are lost; use VerifyDeviceKeysJSON on keys as received.
func VerifyDeviceKeys(keys domain.DeviceKeys) error {
	signingKey, err := keys.SigningKey()
	if err != nil {
		return &cryptoerr.SignatureError{Kind: cryptoerr.VerificationFailed, Err: err}
	}
	return Verify(keys, keys.UserID, domain.KeyID("ed25519", keys.DeviceID), signingKey)
}

// VerifyDeviceKeysJSON verifies the self-signature over the raw device keys object, so
// every signed field counts, and returns the parsed keys.
func VerifyDeviceKeysJSON(raw []byte) (domain.DeviceKeys, error) {
	var keys domain.DeviceKeys
	if err := json.Unmarshal(raw, &keys); err != nil {
		return domain.DeviceKeys{}, &cryptoerr.SignatureError{Kind: cryptoerr.SignatureNotAnObject, Err: err}
	}
	signingKey, err := keys.SigningKey()
	if err != nil {
		return domain.DeviceKeys{}, &cryptoerr.SignatureError{Kind: cryptoerr.VerificationFailed, Err: err}
	}
	if err := VerifyJSON(raw, keys.UserID, domain.KeyID("ed25519", keys.DeviceID), signingKey); err != nil {
		return domain.DeviceKeys{}, err
	}
	return keys, nil
}

// Sign signs v as signer/keyID and returns the decoded object with the signature added
// next to any existing ones. The returned signature is unpadded base64.
func Sign(
	v any,
	signer domain.UserID,
	keyID string,
	priv domain.Ed25519Private,
) (map[string]any, string, error) {
	obj, err := asObject(v)
	if err != nil {
		return nil, "", err
	}
	msg, err := Canonical(stripped(obj))
	if err != nil {
		return nil, "", &cryptoerr.SignatureError{Kind: cryptoerr.CanonicalJSON, Err: err}
	}
	sig := crypto.B64(crypto.SignEd25519(priv, msg))

	out := make(map[string]any, len(obj)+1)
	for k, val := range obj {
		out[k] = val
	}
	sigs := map[string]any{}
	if existing, ok := obj["signatures"].(map[string]any); ok {
		for u, m := range existing {
			sigs[u] = m
		}
	}
	userSigs := map[string]any{}
	if existing, ok := sigs[signer.String()].(map[string]any); ok {
		for k, s := range existing {
			userSigs[k] = s
		}
	}
	userSigs[keyID] = sig
	sigs[signer.String()] = userSigs
	out["signatures"] = sigs
	return out, sig, nil
}

func asObject(v any) (map[string]any, error) {
	norm, err := normalize(v, 0)
	if err != nil {
		// Go values that cannot even be marshalled are not JSON objects we can sign.
		return nil, &cryptoerr.SignatureError{Kind: cryptoerr.CanonicalJSON, Err: err}
	}
	obj, ok := norm.(map[string]any)
	if !ok {
		return nil, cryptoerr.ErrSignatureNotAnObject
	}
	return obj, nil
}

func lookupSignature(obj map[string]any, signer domain.UserID, keyID string) (string, error) {
	raw, ok := obj["signatures"]
	if !ok {
		return "", cryptoerr.ErrNoSignatureFound
	}
	all, ok := raw.(map[string]any)
	if !ok {
		return "", &cryptoerr.SignatureError{
			Kind: cryptoerr.NoSignatureFound,
			Err:  fmt.Errorf("signatures field is %T", raw),
		}
	}
	userSigs, ok := all[signer.String()].(map[string]any)
	if !ok {
		return "", cryptoerr.ErrNoSignatureFound
	}
	sig, ok := userSigs[keyID].(string)
	if !ok {
		return "", cryptoerr.ErrNoSignatureFound
	}
	return sig, nil
}

func stripped(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == "signatures" || k == "unsigned" {
			continue
		}
		out[k] = v
	}
	return out
}
