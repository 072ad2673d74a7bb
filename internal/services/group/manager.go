package group

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"olmcore/internal/cryptoerr"
	"olmcore/internal/domain"
	"olmcore/internal/logging"
	"olmcore/internal/metrics"
	"olmcore/internal/pickle"
	"olmcore/internal/protocol/megolm"
	"olmcore/internal/services/identity"
	"olmcore/internal/util/keylock"
)

// Rotation and distribution defaults.
const (
	DefaultRotationPeriod   = 7 * 24 * time.Hour
	DefaultRotationMessages = 100
	DefaultParallelism      = 8
)

var (
	errSessionIDMismatch = errors.New("room key session id does not match the session key")
	errNotRoomKey        = errors.New("event is not an m.room_key")
)

// Store is the subset of domain.CryptoStore the manager needs.
type Store interface {
	domain.GroupSessionStore
	domain.DeviceStore
}

// Encrypter encrypts a to-device event for one remote device. *device.Manager
// implements it.
type Encrypter interface {
	Encrypt(
		ctx context.Context,
		remote domain.DeviceKeys,
		eventType string,
		content any,
	) (*domain.OlmEncryptedEvent, error)
}

// Config tunes a Manager. The zero value is usable.
type Config struct {
	RotationPeriod   time.Duration
	RotationMessages uint32
	// Parallelism bounds concurrent per-device encryptions in Distribute.
	Parallelism int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Manager creates, shares and uses Megolm sessions.
type Manager struct {
	store    Store
	accounts *identity.Service
	devices  Encrypter
	key      pickle.Key

	rooms   *keylock.Map[domain.RoomID]
	inbound *keylock.Map[inboundKey]

	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New returns a group session manager. devices is used by Distribute to wrap room keys.
func New(store Store, accounts *identity.Service, devices Encrypter, key pickle.Key, cfg Config) *Manager {
	if cfg.RotationPeriod <= 0 {
		cfg.RotationPeriod = DefaultRotationPeriod
	}
	if cfg.RotationMessages == 0 {
		cfg.RotationMessages = DefaultRotationMessages
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:    store,
		accounts: accounts,
		devices:  devices,
		key:      key,
		rooms:    keylock.New[domain.RoomID](),
		inbound:  keylock.New[inboundKey](),
		cfg:      cfg,
		log:      logging.Component(cfg.Logger, "group"),
		metrics:  cfg.Metrics,
	}
}

// CreateOutbound returns the room's outbound session, creating one if there is none.
// It never rotates an existing session.
func (m *Manager) CreateOutbound(ctx context.Context, room domain.RoomID) (*OutboundInfo, error) {
	acc, err := m.account(ctx)
	if err != nil {
		return nil, err
	}
	unlock, err := m.rooms.Lock(ctx, room)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := m.getOutbound(ctx, room)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return outboundInfo(rec), nil
	}
	rec, err = m.newOutbound(ctx, acc, room)
	if err != nil {
		return nil, err
	}
	return outboundInfo(rec), nil
}

// RotateOutbound replaces the room's outbound session with a fresh one that has not
// been shared with anybody. The previous session stays decryptable through our own
// inbound copy.
func (m *Manager) RotateOutbound(ctx context.Context, room domain.RoomID) (*OutboundInfo, error) {
	acc, err := m.account(ctx)
	if err != nil {
		return nil, err
	}
	unlock, err := m.rooms.Lock(ctx, room)
	if err != nil {
		return nil, err
	}
	defer unlock()

	prev, err := m.getOutbound(ctx, room)
	if err != nil {
		return nil, err
	}
	rec, err := m.newOutbound(ctx, acc, room)
	if err != nil {
		return nil, err
	}
	m.metrics.Rotated()
	if prev != nil {
		m.log.Info("rotated outbound group session",
			"room_id", room, "previous", prev.SessionID, "session_id", rec.SessionID,
			"messages", prev.MessageCount)
	}
	return outboundInfo(rec), nil
}

// newOutbound creates and persists a session for room together with our own inbound
// copy. The caller holds the room lock. The inbound copy is written without the
// inbound lock: nobody else can know the fresh session id yet.
func (m *Manager) newOutbound(
	ctx context.Context,
	acc *identity.Account,
	room domain.RoomID,
) (*domain.OutboundGroupSessionRecord, error) {
	s, err := megolm.NewOutboundSession()
	if err != nil {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmGroupSession, err)
	}
	in, err := megolm.NewInboundSession(s.SessionKey())
	if err != nil {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmGroupSession, err)
	}
	inRec, err := inboundRecord(m.key, room, acc.IdentityPub, acc.SigningPub, in)
	if err != nil {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmGroupSession, err)
	}
	blob, err := pickle.Seal(m.key, outboundKind, s)
	if err != nil {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmGroupSession, err)
	}
	rec := domain.OutboundGroupSessionRecord{
		RoomID:     room,
		SessionID:  s.ID(),
		CreatedAt:  m.cfg.Now(),
		SharedWith: map[string]domain.Curve25519Public{},
		Pickle:     blob,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.store.SaveInboundGroupSession(ctx, inRec); err != nil {
		return nil, cryptoerr.MegolmStoreFailure(cryptoerr.Store("save inbound group session", err))
	}
	if err := m.store.SaveOutboundGroupSession(ctx, rec); err != nil {
		return nil, cryptoerr.MegolmStoreFailure(cryptoerr.Store("save outbound group session", err))
	}
	m.metrics.SessionCreated(metrics.FamilyMegolm, "outbound")
	m.log.Info("created outbound group session", "room_id", room, "session_id", rec.SessionID)
	return &rec, nil
}

// Encrypt encrypts an event for room with the current outbound session. The advanced
// session is persisted before the ciphertext is returned.
func (m *Manager) Encrypt(
	ctx context.Context,
	room domain.RoomID,
	eventType string,
	content any,
) (ev *domain.MegolmEncryptedEvent, err error) {
	defer func() { m.metrics.ObserveEncrypt(metrics.FamilyMegolm, err) }()

	acc, err := m.account(ctx)
	if err != nil {
		return nil, err
	}
	rawContent, err := json.Marshal(content)
	if err != nil {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmJSON, err)
	}
	plaintext, err := json.Marshal(payload{
		Type:         eventType,
		Content:      rawContent,
		RoomID:       room,
		Sender:       acc.UserID,
		SenderDevice: acc.DeviceID,
	})
	if err != nil {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmJSON, err)
	}

	unlock, err := m.rooms.Lock(ctx, room)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := m.getOutbound(ctx, room)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmMissingSession, nil)
	}
	s, err := openOutbound(m.key, rec)
	if err != nil {
		return nil, cryptoerr.MegolmStoreFailure(cryptoerr.Store("unpickle outbound group session", err))
	}
	ciphertext, err := s.Encrypt(plaintext)
	if err != nil {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmGroupSession, err)
	}
	next := *rec
	next.MessageCount++
	if next.Pickle, err = pickle.Seal(m.key, outboundKind, s); err != nil {
		return nil, cryptoerr.Megolm(cryptoerr.MegolmGroupSession, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.store.SaveOutboundGroupSession(ctx, next); err != nil {
		return nil, cryptoerr.MegolmStoreFailure(cryptoerr.Store("save outbound group session", err))
	}

	return &domain.MegolmEncryptedEvent{
		Algorithm:  domain.AlgorithmMegolm,
		SenderKey:  acc.IdentityPub,
		DeviceID:   acc.DeviceID,
		SessionID:  rec.SessionID,
		Ciphertext: ciphertext,
	}, nil
}

// NeedsRotation reports whether the room's outbound session has reached the configured
// message count or age. A room without a session does not need rotation.
func (m *Manager) NeedsRotation(ctx context.Context, room domain.RoomID) (bool, error) {
	rec, err := m.getOutbound(ctx, room)
	if err != nil || rec == nil {
		return false, err
	}
	if rec.MessageCount >= m.cfg.RotationMessages {
		return true, nil
	}
	return m.cfg.Now().Sub(rec.CreatedAt) >= m.cfg.RotationPeriod, nil
}

// ReceiveRoomKey imports an m.room_key event that arrived over Olm. The session is
// bound to the Olm sender key and the signing key claimed in the Olm payload.
func (m *Manager) ReceiveRoomKey(ctx context.Context, ev *domain.DecryptedEvent) error {
	if ev == nil {
		return cryptoerr.OlmEventErr(cryptoerr.ErrNotAnObject)
	}
	if ev.Type != domain.EventTypeRoomKey {
		return cryptoerr.Olm(cryptoerr.OlmGroupSession, errNotRoomKey)
	}
	var content domain.RoomKeyContent
	if err := json.Unmarshal(ev.Content, &content); err != nil {
		return cryptoerr.Olm(cryptoerr.OlmJSON, err)
	}
	if content.Algorithm != domain.AlgorithmMegolm {
		return cryptoerr.OlmEventErr(cryptoerr.ErrUnsupportedAlgorithm)
	}
	if content.RoomID == "" {
		return cryptoerr.OlmEventErr(cryptoerr.NewMissingField("room_id"))
	}
	s, err := megolm.NewInboundSession(content.SessionKey)
	if err != nil {
		return cryptoerr.Olm(cryptoerr.OlmGroupSession, err)
	}
	if s.ID() != content.SessionID {
		return cryptoerr.Olm(cryptoerr.OlmGroupSession, errSessionIDMismatch)
	}
	if err := m.addInbound(ctx, content.RoomID, ev.SenderKey, ev.SigningKey, s); err != nil {
		return cryptoerr.OlmStoreFailure(err)
	}
	return nil
}

// AddInboundSession imports an exported session obtained out of band, such as from a
// key backup.
func (m *Manager) AddInboundSession(
	ctx context.Context,
	room domain.RoomID,
	senderKey domain.Curve25519Public,
	signingKey domain.Ed25519Public,
	exportedKey string,
) error {
	s, err := megolm.ImportInboundSession(exportedKey)
	if err != nil {
		return cryptoerr.Megolm(cryptoerr.MegolmGroupSession, err)
	}
	if err := m.addInbound(ctx, room, senderKey, signingKey, s); err != nil {
		return cryptoerr.MegolmStoreFailure(err)
	}
	return nil
}

// ExportInboundSession exports a known inbound session from index onwards, for key
// backup or forwarding.
func (m *Manager) ExportInboundSession(
	ctx context.Context,
	room domain.RoomID,
	senderKey domain.Curve25519Public,
	sessionID domain.SessionID,
	index uint32,
) (string, error) {
	unlock, err := m.inbound.Lock(ctx, inboundKey{room, senderKey, sessionID})
	if err != nil {
		return "", err
	}
	defer unlock()

	rec, err := m.store.GetInboundGroupSession(ctx, room, senderKey, sessionID)
	if err != nil {
		return "", cryptoerr.MegolmStoreFailure(cryptoerr.Store("get inbound group session", err))
	}
	if rec == nil {
		return "", cryptoerr.Megolm(cryptoerr.MegolmMissingSession, nil)
	}
	s, err := openInbound(m.key, rec)
	if err != nil {
		return "", cryptoerr.MegolmStoreFailure(cryptoerr.Store("unpickle inbound group session", err))
	}
	exported, err := s.Export(index)
	if err != nil {
		return "", cryptoerr.Megolm(cryptoerr.MegolmGroupSession, err)
	}
	return exported, nil
}

// addInbound stores s unless a copy that reaches further back is already known.
func (m *Manager) addInbound(
	ctx context.Context,
	room domain.RoomID,
	senderKey domain.Curve25519Public,
	signingKey domain.Ed25519Public,
	s *megolm.InboundSession,
) error {
	unlock, err := m.inbound.Lock(ctx, inboundKey{room, senderKey, s.ID()})
	if err != nil {
		return err
	}
	defer unlock()

	existing, err := m.store.GetInboundGroupSession(ctx, room, senderKey, s.ID())
	if err != nil {
		return cryptoerr.Store("get inbound group session", err)
	}
	if existing != nil && existing.FirstKnownIndex <= s.FirstKnownIndex() {
		m.log.Debug("kept existing inbound group session",
			"room_id", room, "session_id", s.ID(), "first_known_index", existing.FirstKnownIndex)
		return nil
	}
	rec, err := inboundRecord(m.key, room, senderKey, signingKey, s)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.store.SaveInboundGroupSession(ctx, rec); err != nil {
		return cryptoerr.Store("save inbound group session", err)
	}
	m.metrics.SessionCreated(metrics.FamilyMegolm, "inbound")
	m.log.Info("added inbound group session",
		"room_id", room, "sender_key", senderKey.String(), "session_id", rec.SessionID,
		"first_known_index", rec.FirstKnownIndex)
	return nil
}

// Decrypt decrypts a room event sent by sender. Re-decrypting an index that was already
// seen succeeds; only the session's cached latest ratchet advances, and only to an
// index that decrypted.
func (m *Manager) Decrypt(
	ctx context.Context,
	room domain.RoomID,
	sender domain.UserID,
	ev *domain.MegolmEncryptedEvent,
) (out *domain.DecryptedEvent, err error) {
	defer func() {
		m.metrics.ObserveDecrypt(metrics.FamilyMegolm, err)
		if err != nil && ev != nil {
			m.log.Warn("megolm decryption failed",
				"room_id", room, "sender", sender, "session_id", ev.SessionID, "kind", cryptoerr.Kind(err))
		}
	}()

	if ev == nil {
		return nil, cryptoerr.MegolmEventErr(cryptoerr.ErrNotAnObject)
	}
	if ev.Algorithm != domain.AlgorithmMegolm {
		return nil, cryptoerr.MegolmEventErr(cryptoerr.ErrUnsupportedAlgorithm)
	}
	if ev.Ciphertext == "" {
		return nil, cryptoerr.MegolmEventErr(cryptoerr.ErrMissingCiphertext)
	}

	rec, plaintext, index, err := m.decrypt(ctx, room, ev)
	if err != nil {
		return nil, err
	}

	p, err := parsePayload(plaintext)
	if err != nil {
		return nil, err
	}
	if p.RoomID != room || p.Sender != sender || p.SenderDevice != ev.DeviceID {
		return nil, cryptoerr.MegolmEventErr(cryptoerr.ErrMissmatchedSender)
	}
	known, err := m.store.GetDevice(ctx, sender, ev.DeviceID)
	if err != nil {
		return nil, cryptoerr.MegolmStoreFailure(cryptoerr.Store("get device", err))
	}
	if known != nil {
		knownSigning, sErr := known.SigningKey()
		knownCurve, cErr := known.IdentityKey()
		if sErr != nil || cErr != nil || knownSigning != rec.SigningKey || knownCurve != ev.SenderKey {
			return nil, cryptoerr.MegolmEventErr(cryptoerr.ErrMissmatchedKeys)
		}
	}

	return &domain.DecryptedEvent{
		Type:         p.Type,
		Content:      p.Content,
		Sender:       sender,
		DeviceID:     ev.DeviceID,
		RoomID:       room,
		SenderKey:    ev.SenderKey,
		SigningKey:   rec.SigningKey,
		MessageIndex: index,
	}, nil
}

// decrypt opens the message under the inbound lock and persists the session when its
// latest ratchet moved.
func (m *Manager) decrypt(
	ctx context.Context,
	room domain.RoomID,
	ev *domain.MegolmEncryptedEvent,
) (*domain.InboundGroupSessionRecord, []byte, uint32, error) {
	unlock, err := m.inbound.Lock(ctx, inboundKey{room, ev.SenderKey, ev.SessionID})
	if err != nil {
		return nil, nil, 0, err
	}
	defer unlock()

	rec, err := m.store.GetInboundGroupSession(ctx, room, ev.SenderKey, ev.SessionID)
	if err != nil {
		return nil, nil, 0, cryptoerr.MegolmStoreFailure(cryptoerr.Store("get inbound group session", err))
	}
	if rec == nil {
		return nil, nil, 0, cryptoerr.Megolm(cryptoerr.MegolmMissingSession, nil)
	}
	s, err := openInbound(m.key, rec)
	if err != nil {
		return nil, nil, 0, cryptoerr.MegolmStoreFailure(cryptoerr.Store("unpickle inbound group session", err))
	}

	work := *s
	plaintext, index, err := work.Decrypt(ev.Ciphertext)
	if err != nil {
		return nil, nil, 0, cryptoerr.Megolm(cryptoerr.MegolmGroupSession, err)
	}
	if work.Latest == s.Latest {
		return rec, plaintext, index, nil
	}

	next, err := inboundRecord(m.key, rec.RoomID, rec.SenderKey, rec.SigningKey, &work)
	if err != nil {
		return nil, nil, 0, cryptoerr.Megolm(cryptoerr.MegolmGroupSession, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, 0, err
	}
	if err := m.store.SaveInboundGroupSession(ctx, next); err != nil {
		return nil, nil, 0, cryptoerr.MegolmStoreFailure(cryptoerr.Store("save inbound group session", err))
	}
	return &next, plaintext, index, nil
}

func (m *Manager) account(ctx context.Context) (*identity.Account, error) {
	acc, err := m.accounts.Account(ctx)
	if err != nil {
		return nil, cryptoerr.MegolmStoreFailure(err)
	}
	return acc, nil
}

func (m *Manager) getOutbound(ctx context.Context, room domain.RoomID) (*domain.OutboundGroupSessionRecord, error) {
	rec, err := m.store.GetOutboundGroupSession(ctx, room)
	if err != nil {
		return nil, cryptoerr.MegolmStoreFailure(cryptoerr.Store(fmt.Sprintf("get outbound group session %s", room), err))
	}
	return rec, nil
}
