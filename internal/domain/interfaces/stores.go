package interfaces

import (
	"context"

	domaintypes "olmcore/internal/domain/types"
)

// AccountStore persists the local account.
type AccountStore interface {
	// LoadAccount returns nil, nil when no account has been saved yet.
	LoadAccount(ctx context.Context) (*domaintypes.AccountRecord, error)
	SaveAccount(ctx context.Context, account domaintypes.AccountRecord) error
}

// DeviceSessionStore persists Olm sessions keyed by the remote Curve25519 key.
type DeviceSessionStore interface {
	// GetDeviceSessions returns every session for senderKey, most recently used first.
	GetDeviceSessions(
		ctx context.Context,
		senderKey domaintypes.Curve25519Public,
	) ([]domaintypes.DeviceSessionRecord, error)
	SaveDeviceSession(ctx context.Context, session domaintypes.DeviceSessionRecord) error
}

// GroupSessionStore persists inbound and outbound Megolm sessions.
type GroupSessionStore interface {
	// GetInboundGroupSession returns nil, nil when the session is unknown.
	GetInboundGroupSession(
		ctx context.Context,
		room domaintypes.RoomID,
		senderKey domaintypes.Curve25519Public,
		sessionID domaintypes.SessionID,
	) (*domaintypes.InboundGroupSessionRecord, error)
	SaveInboundGroupSession(ctx context.Context, session domaintypes.InboundGroupSessionRecord) error

	// GetOutboundGroupSession returns nil, nil when the room has no outbound session.
	GetOutboundGroupSession(
		ctx context.Context,
		room domaintypes.RoomID,
	) (*domaintypes.OutboundGroupSessionRecord, error)
	SaveOutboundGroupSession(ctx context.Context, session domaintypes.OutboundGroupSessionRecord) error
}

// DeviceStore caches verified identities of remote devices.
type DeviceStore interface {
	// GetDevice returns nil, nil for unknown devices.
	GetDevice(
		ctx context.Context,
		user domaintypes.UserID,
		device domaintypes.DeviceID,
	) (*domaintypes.DeviceKeys, error)
	SaveDevice(ctx context.Context, device domaintypes.DeviceKeys) error
}

// CryptoStore is the single source of truth shared by the session managers.
//
// Every write must be durable before the method returns; backends may live out of
// process, so callers never assume a failed write took effect.
type CryptoStore interface {
	AccountStore
	DeviceSessionStore
	GroupSessionStore
	DeviceStore
}
