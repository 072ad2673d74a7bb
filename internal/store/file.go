package store

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"sync"

	"olmcore/internal/domain"
)

const (
	accountFile  = "account.json"
	devicesFile  = "devices.json"  // map[user|device]DeviceKeys
	inboundFile  = "inbound.json"  // map[room|sender|session]InboundGroupSessionRecord
	outboundFile = "outbound.json" // map[room]OutboundGroupSessionRecord
	sessionsDir  = "sessions"      // one file per remote curve key
)

// File stores records as JSON files under dir.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile returns a File store rooted at dir.
func NewFile(dir string) *File { return &File{dir: dir} }

func (s *File) path(name string) string { return filepath.Join(s.dir, name) }

func (s *File) sessionPath(senderKey domain.Curve25519Public) string {
	name := base64.RawURLEncoding.EncodeToString(senderKey[:]) + ".json"
	return filepath.Join(s.dir, sessionsDir, name)
}

// ---------- Account ----------

func (s *File) LoadAccount(ctx context.Context) (*domain.AccountRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec *domain.AccountRecord
	if err := readJSON(s.path(accountFile), &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *File) SaveAccount(ctx context.Context, account domain.AccountRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.path(accountFile), account, 0o600)
}

// ---------- Olm sessions ----------

func (s *File) GetDeviceSessions(
	ctx context.Context,
	senderKey domain.Curve25519Public,
) ([]domain.DeviceSessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := map[domain.SessionID]domain.DeviceSessionRecord{}
	if err := readJSON(s.sessionPath(senderKey), &byID); err != nil {
		return nil, err
	}
	out := make([]domain.DeviceSessionRecord, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	SortSessions(out)
	return out, nil
}

func (s *File) SaveDeviceSession(ctx context.Context, session domain.DeviceSessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.sessionPath(session.SenderKey)
	byID := map[domain.SessionID]domain.DeviceSessionRecord{}
	if err := readJSON(path, &byID); err != nil {
		return err
	}
	byID[session.SessionID] = session
	return writeJSON(path, byID, 0o600)
}

// ---------- Group sessions ----------

func (s *File) GetInboundGroupSession(
	ctx context.Context,
	room domain.RoomID,
	senderKey domain.Curve25519Public,
	sessionID domain.SessionID,
) (*domain.InboundGroupSessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[string]domain.InboundGroupSessionRecord{}
	if err := readJSON(s.path(inboundFile), &m); err != nil {
		return nil, err
	}
	r, ok := m[InboundKey(room, senderKey, sessionID)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *File) SaveInboundGroupSession(ctx context.Context, session domain.InboundGroupSessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[string]domain.InboundGroupSessionRecord{}
	if err := readJSON(s.path(inboundFile), &m); err != nil {
		return err
	}
	m[InboundKey(session.RoomID, session.SenderKey, session.SessionID)] = session
	return writeJSON(s.path(inboundFile), m, 0o600)
}

func (s *File) GetOutboundGroupSession(
	ctx context.Context,
	room domain.RoomID,
) (*domain.OutboundGroupSessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[domain.RoomID]domain.OutboundGroupSessionRecord{}
	if err := readJSON(s.path(outboundFile), &m); err != nil {
		return nil, err
	}
	r, ok := m[room]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *File) SaveOutboundGroupSession(ctx context.Context, session domain.OutboundGroupSessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[domain.RoomID]domain.OutboundGroupSessionRecord{}
	if err := readJSON(s.path(outboundFile), &m); err != nil {
		return err
	}
	m[session.RoomID] = session
	return writeJSON(s.path(outboundFile), m, 0o600)
}

// ---------- Devices ----------

func (s *File) GetDevice(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
) (*domain.DeviceKeys, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[string]domain.DeviceKeys{}
	if err := readJSON(s.path(devicesFile), &m); err != nil {
		return nil, err
	}
	d, ok := m[domain.DeviceRef(user, device)]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *File) SaveDevice(ctx context.Context, device domain.DeviceKeys) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[string]domain.DeviceKeys{}
	if err := readJSON(s.path(devicesFile), &m); err != nil {
		return err
	}
	m[domain.DeviceRef(device.UserID, device.DeviceID)] = device
	return writeJSON(s.path(devicesFile), m, 0o600)
}

// Compile-time assertion that File implements domain.CryptoStore.
var _ domain.CryptoStore = (*File)(nil)
