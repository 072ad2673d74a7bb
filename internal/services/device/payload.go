package device

import (
	"bytes"
	"encoding/json"

	"olmcore/internal/cryptoerr"
	"olmcore/internal/domain"
)

// payload is the plaintext of an Olm message.
type payload struct {
	Sender        domain.UserID     `json:"sender"`
	SenderDevice  domain.DeviceID   `json:"sender_device"`
	Keys          map[string]string `json:"keys"`
	Recipient     domain.UserID     `json:"recipient"`
	RecipientKeys map[string]string `json:"recipient_keys"`
	Type          string            `json:"type"`
	Content       json.RawMessage   `json:"content"`
}

// parsePayload decodes and checks that every required field is present.
func parsePayload(plaintext []byte) (*payload, error) {
	trimmed := bytes.TrimSpace(plaintext)
	if !json.Valid(trimmed) {
		return nil, cryptoerr.Olm(cryptoerr.OlmJSON, errInvalidJSON)
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, cryptoerr.OlmEventErr(cryptoerr.ErrNotAnObject)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, cryptoerr.Olm(cryptoerr.OlmJSON, err)
	}
	for _, field := range []string{"sender", "sender_device", "recipient", "recipient_keys", "type", "content"} {
		if v, ok := raw[field]; !ok || string(v) == "null" {
			return nil, cryptoerr.OlmEventErr(cryptoerr.NewMissingField(field))
		}
	}

	var p payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, cryptoerr.Olm(cryptoerr.OlmJSON, err)
	}
	if p.Keys["ed25519"] == "" {
		return nil, cryptoerr.OlmEventErr(cryptoerr.ErrMissingSigningKey)
	}
	if p.RecipientKeys["ed25519"] == "" {
		return nil, cryptoerr.OlmEventErr(cryptoerr.NewMissingField("recipient_keys.ed25519"))
	}
	if p.Sender == "" || p.SenderDevice == "" || p.Recipient == "" || p.Type == "" {
		return nil, cryptoerr.OlmEventErr(cryptoerr.ErrMissingField)
	}
	return &p, nil
}
