package group

import (
	"bytes"
	"encoding/json"
	"errors"

	"olmcore/internal/cryptoerr"
	"olmcore/internal/domain"
)

var errInvalidJSON = errors.New("decrypted payload is not valid JSON")

// payload is the plaintext of a Megolm message.
type payload struct {
	Type         string          `json:"type"`
	Content      json.RawMessage `json:"content"`
	RoomID       domain.RoomID   `json:"room_id"`
	Sender       domain.UserID   `json:"sender"`
	SenderDevice domain.DeviceID `json:"sender_device"`
}

func parsePayload(plaintext []byte) (*payload, error) {
	trimmed := bytes.TrimSpace(plaintext)
	if !json.Valid(trimmed) {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmJSON, errInvalidJSON)
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, cryptoerr.MegolmEventErr(cryptoerr.ErrNotAnObject)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmJSON, err)
	}
	for _, field := range []string{"type", "content", "room_id", "sender", "sender_device"} {
		if v, ok := raw[field]; !ok || string(v) == "null" {
			return nil, cryptoerr.MegolmEventErr(cryptoerr.NewMissingField(field))
		}
	}
	var p payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmJSON, err)
	}
	return &p, nil
}
