package types

import "time"

// AccountRecord persists the local account. Pickle is sealed.
type AccountRecord struct {
	UserID   UserID   `json:"user_id"`
	DeviceID DeviceID `json:"device_id"`
	Pickle   []byte   `json:"pickle"`
}

// DeviceSessionRecord persists one Olm session with a remote device.
type DeviceSessionRecord struct {
	SessionID SessionID        `json:"session_id"`
	SenderKey Curve25519Public `json:"sender_key"`
	CreatedAt time.Time        `json:"created_at"`
	LastUsed  time.Time        `json:"last_used"`
	Pickle    []byte           `json:"pickle"`
}

// InboundGroupSessionRecord persists a Megolm session received from another device.
type InboundGroupSessionRecord struct {
	RoomID          RoomID           `json:"room_id"`
	SenderKey       Curve25519Public `json:"sender_key"`
	SessionID       SessionID        `json:"session_id"`
	SigningKey      Ed25519Public    `json:"signing_key"`
	FirstKnownIndex uint32           `json:"first_known_index"`
	Pickle          []byte           `json:"pickle"`
}

// OutboundGroupSessionRecord persists this device's current Megolm session for a room.
// SharedWith maps DeviceRef to the Curve25519 key the session key was sent to.
type OutboundGroupSessionRecord struct {
	RoomID       RoomID                      `json:"room_id"`
	SessionID    SessionID                   `json:"session_id"`
	CreatedAt    time.Time                   `json:"created_at"`
	MessageCount uint32                      `json:"message_count"`
	SharedWith   map[string]Curve25519Public `json:"shared_with"`
	Pickle       []byte                      `json:"pickle"`
}
