package domain

import (
	interfaces "olmcore/internal/domain/interfaces"
	types "olmcore/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID                     = types.UserID
	DeviceID                   = types.DeviceID
	RoomID                     = types.RoomID
	SessionID                  = types.SessionID
	Fingerprint                = types.Fingerprint
	Curve25519Public           = types.Curve25519Public
	Curve25519Private          = types.Curve25519Private
	Ed25519Public              = types.Ed25519Public
	Ed25519Private             = types.Ed25519Private
	DeviceKeys                 = types.DeviceKeys
	OlmCiphertext              = types.OlmCiphertext
	OlmEncryptedEvent          = types.OlmEncryptedEvent
	MegolmEncryptedEvent       = types.MegolmEncryptedEvent
	ToDeviceMessage            = types.ToDeviceMessage
	RoomKeyContent             = types.RoomKeyContent
	DecryptedEvent             = types.DecryptedEvent
	AccountRecord              = types.AccountRecord
	DeviceSessionRecord        = types.DeviceSessionRecord
	InboundGroupSessionRecord  = types.InboundGroupSessionRecord
	OutboundGroupSessionRecord = types.OutboundGroupSessionRecord
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	AccountStore       = interfaces.AccountStore
	DeviceSessionStore = interfaces.DeviceSessionStore
	GroupSessionStore  = interfaces.GroupSessionStore
	DeviceStore        = interfaces.DeviceStore
	CryptoStore        = interfaces.CryptoStore
)

// Constants re-exported from the types subpackage.
const (
	AlgorithmOlm       = types.AlgorithmOlm
	AlgorithmMegolm    = types.AlgorithmMegolm
	EventTypeEncrypted = types.EventTypeEncrypted
	EventTypeRoomKey   = types.EventTypeRoomKey
	OlmPreKeyMessage   = types.OlmPreKeyMessage
	OlmNormalMessage   = types.OlmNormalMessage
)

// Function re-exports.
var (
	ParseCurve25519 = types.ParseCurve25519
	ParseEd25519    = types.ParseEd25519
	KeyID           = types.KeyID
	DeviceRef       = types.DeviceRef
)
