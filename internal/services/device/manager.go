package device

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"olmcore/internal/crypto"
	"olmcore/internal/cryptoerr"
	"olmcore/internal/domain"
	"olmcore/internal/logging"
	"olmcore/internal/metrics"
	"olmcore/internal/pickle"
	"olmcore/internal/protocol/ratchet"
	"olmcore/internal/protocol/tripledh"
	"olmcore/internal/services/identity"
	"olmcore/internal/signatures"
	"olmcore/internal/util/keylock"
)

// DefaultWedgeThreshold is the number of consecutive failures after which a device's
// only session is reported as wedged.
const DefaultWedgeThreshold = 3

var (
	errInvalidJSON   = errors.New("decrypted payload is not valid JSON")
	errNoSession     = errors.New("no session with the sending device")
	errBadSessionKey = errors.New("pre-key message identity key does not match the event sender key")
)

// Store is the subset of domain.CryptoStore the manager needs.
type Store interface {
	domain.DeviceSessionStore
	domain.DeviceStore
}

// Config tunes a Manager. The zero value is usable.
type Config struct {
	WedgeThreshold int
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager establishes, advances and persists Olm sessions.
type Manager struct {
	store    Store
	accounts *identity.Service
	key      pickle.Key

	locks     *keylock.Map[domain.Curve25519Public]
	wedge     *wedgeTracker
	threshold int

	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New returns a device session manager.
func New(store Store, accounts *identity.Service, key pickle.Key, cfg Config) *Manager {
	if cfg.WedgeThreshold <= 0 {
		cfg.WedgeThreshold = DefaultWedgeThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:     store,
		accounts:  accounts,
		key:       key,
		locks:     keylock.New[domain.Curve25519Public](),
		wedge:     newWedgeTracker(),
		threshold: cfg.WedgeThreshold,
		log:       logging.Component(cfg.Logger, "device"),
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}
}

// TrustDevice verifies the self-signature on keys and caches the device. Signing keys
// of cached devices are checked against the keys claimed in decrypted payloads.
func (m *Manager) TrustDevice(ctx context.Context, keys domain.DeviceKeys) error {
	if err := signatures.VerifyDeviceKeys(keys); err != nil {
		return err
	}
	if err := m.store.SaveDevice(ctx, keys); err != nil {
		return cryptoerr.OlmStoreFailure(cryptoerr.Store("save device", err))
	}
	return nil
}

// CreateOutboundSession starts a session with remote using a one-time key claimed from
// it. The device keys must carry a valid self-signature.
func (m *Manager) CreateOutboundSession(
	ctx context.Context,
	remote domain.DeviceKeys,
	oneTimeKey domain.Curve25519Public,
) (*SessionInfo, error) {
	if err := m.TrustDevice(ctx, remote); err != nil {
		return nil, err
	}
	curve, err := remote.IdentityKey()
	if err != nil {
		return nil, cryptoerr.OlmEventErr(cryptoerr.NewMissingField("keys.curve25519"))
	}
	acc, err := m.account(ctx)
	if err != nil {
		return nil, err
	}

	unlock, err := m.locks.Lock(ctx, curve)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := newOutboundSession(acc, curve, oneTimeKey)
	if err != nil {
		return nil, cryptoerr.Olm(cryptoerr.OlmSession, err)
	}
	now := m.now()
	s.CreatedAt, s.LastUsed = now, now
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	m.wedge.reset(curve)
	m.metrics.SessionCreated(metrics.FamilyOlm, "outbound")
	m.log.Info("created outbound olm session", "sender_key", curve.String(), "session_id", s.ID)

	info := s.info()
	return &info, nil
}

// Encrypt encrypts an event for remote with its most recently used session.
func (m *Manager) Encrypt(
	ctx context.Context,
	remote domain.DeviceKeys,
	eventType string,
	content any,
) (ev *domain.OlmEncryptedEvent, err error) {
	defer func() { m.metrics.ObserveEncrypt(metrics.FamilyOlm, err) }()

	curve, err := remote.IdentityKey()
	if err != nil {
		return nil, cryptoerr.OlmEventErr(cryptoerr.NewMissingField("keys.curve25519"))
	}
	remoteSigning, err := remote.SigningKey()
	if err != nil {
		return nil, cryptoerr.OlmEventErr(cryptoerr.ErrMissingSigningKey)
	}
	acc, err := m.account(ctx)
	if err != nil {
		return nil, err
	}
	rawContent, err := json.Marshal(content)
	if err != nil {
		return nil, cryptoerr.Olm(cryptoerr.OlmJSON, err)
	}
	plaintext, err := json.Marshal(payload{
		Sender:        acc.UserID,
		SenderDevice:  acc.DeviceID,
		Keys:          map[string]string{"ed25519": acc.SigningPub.String()},
		Recipient:     remote.UserID,
		RecipientKeys: map[string]string{"ed25519": remoteSigning.String()},
		Type:          eventType,
		Content:       rawContent,
	})
	if err != nil {
		return nil, cryptoerr.Olm(cryptoerr.OlmJSON, err)
	}

	unlock, err := m.locks.Lock(ctx, curve)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sessions, err := m.load(ctx, curve)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, cryptoerr.Olm(cryptoerr.OlmMissingSession, nil)
	}

	s := sessions[0].clone()
	msgType, body, err := s.encrypt(plaintext)
	if err != nil {
		return nil, cryptoerr.Olm(cryptoerr.OlmSession, err)
	}
	s.LastUsed = m.now()
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}

	return &domain.OlmEncryptedEvent{
		Algorithm: domain.AlgorithmOlm,
		SenderKey: acc.IdentityPub,
		Ciphertext: map[string]domain.OlmCiphertext{
			curve.String(): {Type: msgType, Body: body},
		},
	}, nil
}

// Decrypt decrypts an Olm event sent by sender. The advanced session (and the account,
// when a one-time key was consumed) is persisted before the plaintext is returned. The
// payload is checked after persisting: a message that decrypted has used up its
// message key even when its claims are rejected.
func (m *Manager) Decrypt(
	ctx context.Context,
	sender domain.UserID,
	ev *domain.OlmEncryptedEvent,
) (out *domain.DecryptedEvent, err error) {
	defer func() {
		m.metrics.ObserveDecrypt(metrics.FamilyOlm, err)
		if err != nil && ev != nil {
			m.log.Warn("olm decryption failed",
				"sender", sender, "sender_key", ev.SenderKey.String(), "kind", cryptoerr.Kind(err))
		}
	}()

	if ev == nil {
		return nil, cryptoerr.OlmEventErr(cryptoerr.ErrNotAnObject)
	}
	if ev.Algorithm != domain.AlgorithmOlm {
		return nil, cryptoerr.OlmEventErr(cryptoerr.ErrUnsupportedAlgorithm)
	}
	acc, err := m.account(ctx)
	if err != nil {
		return nil, err
	}
	ct, ok := ev.Ciphertext[acc.IdentityPub.String()]
	if !ok {
		return nil, cryptoerr.OlmEventErr(cryptoerr.ErrMissingCiphertext)
	}
	if ct.Type != domain.OlmPreKeyMessage && ct.Type != domain.OlmNormalMessage {
		return nil, cryptoerr.OlmEventErr(cryptoerr.ErrUnsupportedOlmType)
	}
	body, err := crypto.UnB64(ct.Body)
	if err != nil {
		return nil, cryptoerr.Olm(cryptoerr.OlmJSON, err)
	}

	unlock, err := m.locks.Lock(ctx, ev.SenderKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		s         *Session
		plaintext []byte
		consumed  *domain.Curve25519Public
	)
	if ct.Type == domain.OlmPreKeyMessage {
		msg, err := decodePreKey(body)
		if err != nil {
			return nil, cryptoerr.Olm(cryptoerr.OlmJSON, err)
		}
		if msg.IdentityKey != ev.SenderKey {
			return nil, cryptoerr.Olm(cryptoerr.OlmSession, errBadSessionKey)
		}
		s, plaintext, consumed, err = m.decryptPreKey(ctx, acc, ev.SenderKey, msg)
		if err != nil {
			return nil, err
		}
	} else {
		msg, err := decodeNormal(body)
		if err != nil {
			return nil, cryptoerr.Olm(cryptoerr.OlmJSON, err)
		}
		s, plaintext, err = m.decryptNormal(ctx, ev.SenderKey, msg)
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.LastUsed = m.now()
	persistCtx := ctx
	if consumed != nil {
		s.CreatedAt = s.LastUsed
		if err := m.accounts.ConsumeOneTimeKey(ctx, *consumed); err != nil {
			if errors.Is(err, identity.ErrUnknownOneTimeKey) {
				return nil, cryptoerr.Olm(cryptoerr.OlmSession, err)
			}
			return nil, cryptoerr.OlmStoreFailure(err)
		}
		// The one-time key is gone, so the session it produced must be stored even if
		// the caller gives up now.
		persistCtx = context.WithoutCancel(ctx)
	}
	if err := m.save(persistCtx, s); err != nil {
		return nil, err
	}
	if consumed != nil {
		m.metrics.SessionCreated(metrics.FamilyOlm, "inbound")
		m.log.Info("created inbound olm session", "sender_key", ev.SenderKey.String(), "session_id", s.ID)
	}
	m.wedge.reset(ev.SenderKey)

	return m.checkPayload(ctx, acc, sender, ev.SenderKey, plaintext)
}

// decryptPreKey tries the session the message belongs to, or creates it from the
// one-time key the message names.
func (m *Manager) decryptPreKey(
	ctx context.Context,
	acc *identity.Account,
	senderKey domain.Curve25519Public,
	msg preKeyMessage,
) (*Session, []byte, *domain.Curve25519Public, error) {
	sessions, err := m.load(ctx, senderKey)
	if err != nil {
		return nil, nil, nil, err
	}
	id := sessionIDFor(msg)
	for _, existing := range sessions {
		if existing.ID != id {
			continue
		}
		work := existing.clone()
		pt, err := work.decrypt(msg.Inner)
		if err != nil {
			return nil, nil, nil, m.failed(senderKey, len(sessions), err)
		}
		return work, pt, nil, nil
	}

	otk, err := acc.OneTimeKey(msg.OneTimeKey)
	if err != nil {
		return nil, nil, nil, cryptoerr.Olm(cryptoerr.OlmSession, err)
	}
	s, err := newInboundSession(acc, otk, msg)
	if err != nil {
		return nil, nil, nil, cryptoerr.Olm(cryptoerr.OlmSession, err)
	}
	pt, err := s.decrypt(msg.Inner)
	if err != nil {
		return nil, nil, nil, cryptoerr.Olm(cryptoerr.OlmSession, err)
	}
	return s, pt, &msg.OneTimeKey, nil
}

// decryptNormal tries every session for senderKey, most recently used first.
func (m *Manager) decryptNormal(
	ctx context.Context,
	senderKey domain.Curve25519Public,
	msg normalMessage,
) (*Session, []byte, error) {
	sessions, err := m.load(ctx, senderKey)
	if err != nil {
		return nil, nil, err
	}
	if len(sessions) == 0 {
		m.wedge.markWedged(senderKey)
		m.log.Error("olm message from device without a session", "sender_key", senderKey.String())
		return nil, nil, cryptoerr.Olm(cryptoerr.OlmSessionWedged, errNoSession)
	}

	var lastErr error
	for _, existing := range sessions {
		work := existing.clone()
		pt, err := work.decrypt(msg)
		if err == nil {
			return work, pt, nil
		}
		if lastErr == nil || errors.Is(err, ratchet.ErrMessageKeyNotFound) {
			lastErr = err
		}
	}
	return nil, nil, m.failed(senderKey, len(sessions), lastErr)
}

// failed records a decryption failure and decides between wedged and a plain session
// error. A message whose key was already used is a duplicate delivery and says nothing
// about the session's health.
func (m *Manager) failed(senderKey domain.Curve25519Public, sessions int, cause error) error {
	if errors.Is(cause, ratchet.ErrMessageKeyNotFound) {
		m.log.Debug("duplicate olm message", "sender_key", senderKey.String())
		return cryptoerr.Olm(cryptoerr.OlmSession, cause)
	}
	n := m.wedge.fail(senderKey)
	if sessions == 1 && n >= m.threshold {
		m.wedge.markWedged(senderKey)
		m.log.Error("olm session wedged", "sender_key", senderKey.String(), "failures", n)
		return cryptoerr.Olm(cryptoerr.OlmSessionWedged, cause)
	}
	return cryptoerr.Olm(cryptoerr.OlmSession, cause)
}

func (m *Manager) checkPayload(
	ctx context.Context,
	acc *identity.Account,
	sender domain.UserID,
	senderKey domain.Curve25519Public,
	plaintext []byte,
) (*domain.DecryptedEvent, error) {
	p, err := parsePayload(plaintext)
	if err != nil {
		return nil, err
	}
	if p.Sender != sender || p.Recipient != acc.UserID {
		return nil, cryptoerr.OlmEventErr(cryptoerr.ErrMissmatchedSender)
	}
	if p.RecipientKeys["ed25519"] != acc.SigningPub.String() {
		return nil, cryptoerr.OlmEventErr(cryptoerr.ErrMissmatchedKeys)
	}
	signingKey, err := domain.ParseEd25519(p.Keys["ed25519"])
	if err != nil {
		return nil, cryptoerr.OlmEventErr(cryptoerr.ErrMissingSigningKey)
	}

	known, err := m.store.GetDevice(ctx, p.Sender, p.SenderDevice)
	if err != nil {
		return nil, cryptoerr.OlmStoreFailure(cryptoerr.Store("get device", err))
	}
	if known != nil {
		knownSigning, sErr := known.SigningKey()
		knownCurve, cErr := known.IdentityKey()
		if sErr != nil || cErr != nil || knownSigning != signingKey || knownCurve != senderKey {
			return nil, cryptoerr.OlmEventErr(cryptoerr.ErrMissmatchedKeys)
		}
	}

	return &domain.DecryptedEvent{
		Type:       p.Type,
		Content:    p.Content,
		Sender:     p.Sender,
		DeviceID:   p.SenderDevice,
		SenderKey:  senderKey,
		SigningKey: signingKey,
	}, nil
}

// Health reports the state of the sessions with curveKey.
func (m *Manager) Health(ctx context.Context, curveKey domain.Curve25519Public) (Health, error) {
	recs, err := m.store.GetDeviceSessions(ctx, curveKey)
	if err != nil {
		return HealthNoSession, cryptoerr.OlmStoreFailure(cryptoerr.Store("get device sessions", err))
	}
	switch {
	case len(recs) == 0:
		return HealthNoSession, nil
	case m.wedge.isWedged(curveKey):
		return HealthWedged, nil
	default:
		return HealthHealthy, nil
	}
}

// Sessions lists the sessions with curveKey, most recently used first.
func (m *Manager) Sessions(ctx context.Context, curveKey domain.Curve25519Public) ([]SessionInfo, error) {
	recs, err := m.store.GetDeviceSessions(ctx, curveKey)
	if err != nil {
		return nil, cryptoerr.OlmStoreFailure(cryptoerr.Store("get device sessions", err))
	}
	out := make([]SessionInfo, 0, len(recs))
	for _, r := range recs {
		out = append(out, SessionInfo{ID: r.SessionID, SenderKey: r.SenderKey, CreatedAt: r.CreatedAt, LastUsed: r.LastUsed})
	}
	return out, nil
}

func (m *Manager) account(ctx context.Context) (*identity.Account, error) {
	acc, err := m.accounts.Account(ctx)
	if err != nil {
		return nil, cryptoerr.OlmStoreFailure(err)
	}
	return acc, nil
}

func (m *Manager) load(ctx context.Context, curveKey domain.Curve25519Public) ([]*Session, error) {
	recs, err := m.store.GetDeviceSessions(ctx, curveKey)
	if err != nil {
		return nil, cryptoerr.OlmStoreFailure(cryptoerr.Store("get device sessions", err))
	}
	out := make([]*Session, 0, len(recs))
	for _, r := range recs {
		s, err := sessionFromRecord(m.key, r)
		if err != nil {
			return nil, cryptoerr.OlmStoreFailure(cryptoerr.Store("unpickle session "+r.SessionID.String(), err))
		}
		out = append(out, s)
	}
	return out, nil
}

// save persists s unless ctx is already done, so a cancelled call never leaves a
// half-applied advance behind.
func (m *Manager) save(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := s.record(m.key)
	if err != nil {
		return cryptoerr.Olm(cryptoerr.OlmSession, err)
	}
	if err := m.store.SaveDeviceSession(ctx, rec); err != nil {
		return cryptoerr.OlmStoreFailure(cryptoerr.Store("save device session", err))
	}
	return nil
}

func sessionIDFor(msg preKeyMessage) domain.SessionID {
	return tripledh.SessionID(msg.IdentityKey, msg.BaseKey, msg.OneTimeKey)
}
