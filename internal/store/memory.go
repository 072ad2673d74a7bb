package store

import (
	"context"
	"sync"

	"olmcore/internal/domain"
)

// Memory is an in-process CryptoStore.
type Memory struct {
	mu       sync.RWMutex
	account  *domain.AccountRecord
	sessions map[domain.Curve25519Public]map[domain.SessionID]domain.DeviceSessionRecord
	inbound  map[string]domain.InboundGroupSessionRecord
	outbound map[domain.RoomID]domain.OutboundGroupSessionRecord
	devices  map[string]domain.DeviceKeys
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[domain.Curve25519Public]map[domain.SessionID]domain.DeviceSessionRecord),
		inbound:  make(map[string]domain.InboundGroupSessionRecord),
		outbound: make(map[domain.RoomID]domain.OutboundGroupSessionRecord),
		devices:  make(map[string]domain.DeviceKeys),
	}
}

func (m *Memory) LoadAccount(ctx context.Context) (*domain.AccountRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.account == nil {
		return nil, nil
	}
	return cloneAccount(*m.account), nil
}

func (m *Memory) SaveAccount(ctx context.Context, account domain.AccountRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = cloneAccount(account)
	return nil
}

func (m *Memory) GetDeviceSessions(
	ctx context.Context,
	senderKey domain.Curve25519Public,
) ([]domain.DeviceSessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	byID := m.sessions[senderKey]
	out := make([]domain.DeviceSessionRecord, 0, len(byID))
	for _, r := range byID {
		out = append(out, cloneSession(r))
	}
	SortSessions(out)
	return out, nil
}

func (m *Memory) SaveDeviceSession(ctx context.Context, session domain.DeviceSessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.sessions[session.SenderKey]
	if !ok {
		byID = make(map[domain.SessionID]domain.DeviceSessionRecord)
		m.sessions[session.SenderKey] = byID
	}
	byID[session.SessionID] = cloneSession(session)
	return nil
}

func (m *Memory) GetInboundGroupSession(
	ctx context.Context,
	room domain.RoomID,
	senderKey domain.Curve25519Public,
	sessionID domain.SessionID,
) (*domain.InboundGroupSessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.inbound[InboundKey(room, senderKey, sessionID)]
	if !ok {
		return nil, nil
	}
	return cloneInbound(r), nil
}

func (m *Memory) SaveInboundGroupSession(ctx context.Context, session domain.InboundGroupSessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound[InboundKey(session.RoomID, session.SenderKey, session.SessionID)] = *cloneInbound(session)
	return nil
}

func (m *Memory) GetOutboundGroupSession(
	ctx context.Context,
	room domain.RoomID,
) (*domain.OutboundGroupSessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.outbound[room]
	if !ok {
		return nil, nil
	}
	return cloneOutbound(r), nil
}

func (m *Memory) SaveOutboundGroupSession(ctx context.Context, session domain.OutboundGroupSessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbound[session.RoomID] = *cloneOutbound(session)
	return nil
}

func (m *Memory) GetDevice(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
) (*domain.DeviceKeys, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[domain.DeviceRef(user, device)]
	if !ok {
		return nil, nil
	}
	return cloneDevice(d), nil
}

func (m *Memory) SaveDevice(ctx context.Context, device domain.DeviceKeys) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[domain.DeviceRef(device.UserID, device.DeviceID)] = *cloneDevice(device)
	return nil
}

// Compile-time assertion that Memory implements domain.CryptoStore.
var _ domain.CryptoStore = (*Memory)(nil)
