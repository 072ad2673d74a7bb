package types

// UserID is a fully qualified user identifier, e.g. "@alice:example.org".
type UserID string

// String returns the string form of the user id.
func (u UserID) String() string { return string(u) }

// DeviceID identifies one device of a user.
type DeviceID string

// String returns the string form of the device id.
func (d DeviceID) String() string { return string(d) }

// RoomID identifies an encrypted room.
type RoomID string

// String returns the string form of the room id.
func (r RoomID) String() string { return string(r) }

// SessionID names a device or group session. Both parties derive the same value.
type SessionID string

// String returns the string form of the session id.
func (s SessionID) String() string { return string(s) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// Algorithm identifiers carried by encrypted events.
const (
	AlgorithmOlm    = "m.olm.v1.curve25519-aes-sha2"
	AlgorithmMegolm = "m.megolm.v1.aes-sha2"
)

// Event types produced and consumed by the managers.
const (
	EventTypeEncrypted = "m.room.encrypted"
	EventTypeRoomKey   = "m.room_key"
)
