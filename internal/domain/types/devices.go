package types

import "fmt"

// DeviceKeys is the published, self-signed identity of a device.
//
// Keys holds entries such as "curve25519:DEVICEID" and "ed25519:DEVICEID" mapped to
// unpadded base64 public keys. Remote copies are trusted only after their signature
// has been verified.
type DeviceKeys struct {
	UserID     UserID                       `json:"user_id"`
	DeviceID   DeviceID                     `json:"device_id"`
	Algorithms []string                     `json:"algorithms"`
	Keys       map[string]string            `json:"keys"`
	Signatures map[UserID]map[string]string `json:"signatures,omitempty"`
}

// KeyID returns "<algorithm>:<device id>".
func KeyID(algorithm string, device DeviceID) string {
	return algorithm + ":" + device.String()
}

// IdentityKey returns the device's Curve25519 identity key.
func (d DeviceKeys) IdentityKey() (Curve25519Public, error) {
	s, ok := d.Keys[KeyID("curve25519", d.DeviceID)]
	if !ok {
		return Curve25519Public{}, fmt.Errorf("device %s/%s has no curve25519 key", d.UserID, d.DeviceID)
	}
	return ParseCurve25519(s)
}

// SigningKey returns the device's Ed25519 signing key.
func (d DeviceKeys) SigningKey() (Ed25519Public, error) {
	s, ok := d.Keys[KeyID("ed25519", d.DeviceID)]
	if !ok {
		return Ed25519Public{}, fmt.Errorf("device %s/%s has no ed25519 key", d.UserID, d.DeviceID)
	}
	return ParseEd25519(s)
}

// DeviceRef is the "user|device" form used to index shared-with sets.
func DeviceRef(user UserID, device DeviceID) string {
	return user.String() + "|" + device.String()
}
