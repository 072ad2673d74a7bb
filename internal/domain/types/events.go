package types

import "encoding/json"

// Olm message types.
const (
	OlmPreKeyMessage = 0
	OlmNormalMessage = 1
)

// OlmCiphertext is the per-recipient body of an Olm encrypted event.
// Body is the base64 encoded Olm message.
type OlmCiphertext struct {
	Type int    `json:"type"`
	Body string `json:"body"`
}

// OlmEncryptedEvent is the content of an m.room.encrypted to-device event.
// Ciphertext is keyed by the recipient's Curve25519 identity key.
type OlmEncryptedEvent struct {
	Algorithm  string                   `json:"algorithm"`
	SenderKey  Curve25519Public         `json:"sender_key"`
	Ciphertext map[string]OlmCiphertext `json:"ciphertext"`
}

// MegolmEncryptedEvent is the content of an m.room.encrypted room event.
type MegolmEncryptedEvent struct {
	Algorithm  string           `json:"algorithm"`
	SenderKey  Curve25519Public `json:"sender_key"`
	DeviceID   DeviceID         `json:"device_id"`
	SessionID  SessionID        `json:"session_id"`
	Ciphertext string           `json:"ciphertext"`
}

// ToDeviceMessage is an encrypted event addressed to one device. Delivering it is the
// transport's job.
type ToDeviceMessage struct {
	UserID   UserID             `json:"user_id"`
	DeviceID DeviceID           `json:"device_id"`
	Type     string             `json:"type"`
	Content  *OlmEncryptedEvent `json:"content"`
}

// RoomKeyContent is the content of an m.room_key event.
type RoomKeyContent struct {
	Algorithm  string    `json:"algorithm"`
	RoomID     RoomID    `json:"room_id"`
	SessionID  SessionID `json:"session_id"`
	SessionKey string    `json:"session_key"`
}

// DecryptedEvent is a plaintext event released by either manager.
type DecryptedEvent struct {
	Type     string          `json:"type"`
	Content  json.RawMessage `json:"content"`
	Sender   UserID          `json:"sender"`
	DeviceID DeviceID        `json:"sender_device,omitempty"`
	RoomID   RoomID          `json:"room_id,omitempty"`

	// SenderKey is the Curve25519 key of the session the event was decrypted with.
	SenderKey Curve25519Public `json:"-"`
	// SigningKey is the Ed25519 key the sender claimed (Olm) or that is bound to the group session (Megolm).
	SigningKey Ed25519Public `json:"-"`
	// MessageIndex is the Megolm ratchet index; zero for Olm.
	MessageIndex uint32 `json:"-"`
}
