package device

import (
	"time"

	"olmcore/internal/crypto"
	"olmcore/internal/domain"
	"olmcore/internal/pickle"
	"olmcore/internal/protocol/ratchet"
	"olmcore/internal/protocol/tripledh"
	"olmcore/internal/services/identity"
	"olmcore/internal/util/memzero"
)

const sessionPickleKind = "olm.session"

// preKeyHeader is what every message of an unanswered outbound session repeats.
type preKeyHeader struct {
	IdentityKey domain.Curve25519Public `json:"identity_key"`
	BaseKey     domain.Curve25519Public `json:"base_key"`
	OneTimeKey  domain.Curve25519Public `json:"one_time_key"`
}

// Session is one Olm session with a remote device.
type Session struct {
	ID            domain.SessionID        `json:"id"`
	TheirIdentity domain.Curve25519Public `json:"their_identity"`
	// PreKey is set on sessions we initiated until the first message from the peer
	// decrypts.
	PreKey  *preKeyHeader  `json:"pre_key,omitempty"`
	Ratchet *ratchet.State `json:"ratchet"`

	CreatedAt time.Time `json:"-"`
	LastUsed  time.Time `json:"-"`
}

// SessionInfo is the public view of a session.
type SessionInfo struct {
	ID        domain.SessionID
	SenderKey domain.Curve25519Public
	CreatedAt time.Time
	LastUsed  time.Time
}

func newOutboundSession(
	acc *identity.Account,
	theirIdentity domain.Curve25519Public,
	theirOneTime domain.Curve25519Public,
) (*Session, error) {
	basePriv, basePub, err := crypto.GenerateCurve25519()
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(basePriv[:])

	sec, err := tripledh.Initiator(acc.IdentityPriv, basePriv, theirIdentity, theirOneTime)
	if err != nil {
		return nil, err
	}
	st, err := ratchet.InitAsInitiator(sec.RootKey, sec.ChainKey)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:            tripledh.SessionID(acc.IdentityPub, basePub, theirOneTime),
		TheirIdentity: theirIdentity,
		PreKey: &preKeyHeader{
			IdentityKey: acc.IdentityPub,
			BaseKey:     basePub,
			OneTimeKey:  theirOneTime,
		},
		Ratchet: st,
	}, nil
}

func newInboundSession(
	acc *identity.Account,
	oneTimePriv domain.Curve25519Private,
	msg preKeyMessage,
) (*Session, error) {
	sec, err := tripledh.Responder(acc.IdentityPriv, oneTimePriv, msg.IdentityKey, msg.BaseKey)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:            tripledh.SessionID(msg.IdentityKey, msg.BaseKey, msg.OneTimeKey),
		TheirIdentity: msg.IdentityKey,
		Ratchet:       ratchet.InitAsResponder(sec.RootKey, sec.ChainKey, msg.Inner.Header.RatchetKey),
	}, nil
}

func (s *Session) clone() *Session {
	out := *s
	out.Ratchet = s.Ratchet.Clone()
	if s.PreKey != nil {
		pk := *s.PreKey
		out.PreKey = &pk
	}
	return &out
}

func (s *Session) info() SessionInfo {
	return SessionInfo{ID: s.ID, SenderKey: s.TheirIdentity, CreatedAt: s.CreatedAt, LastUsed: s.LastUsed}
}

// encrypt returns the Olm message type and the base64 body.
func (s *Session) encrypt(plaintext []byte) (int, string, error) {
	h, ct, err := ratchet.Encrypt(s.Ratchet, []byte(s.ID), plaintext)
	if err != nil {
		return 0, "", err
	}
	inner := normalMessage{Header: h, Ciphertext: ct}
	if s.PreKey == nil {
		return domain.OlmNormalMessage, crypto.B64(inner.encode()), nil
	}
	msg := preKeyMessage{
		OneTimeKey:  s.PreKey.OneTimeKey,
		BaseKey:     s.PreKey.BaseKey,
		IdentityKey: s.PreKey.IdentityKey,
		Inner:       inner,
	}
	return domain.OlmPreKeyMessage, crypto.B64(msg.encode()), nil
}

func (s *Session) decrypt(msg normalMessage) ([]byte, error) {
	pt, err := ratchet.Decrypt(s.Ratchet, []byte(s.ID), msg.Header, msg.Ciphertext)
	if err != nil {
		return nil, err
	}
	s.PreKey = nil
	return pt, nil
}

func (s *Session) record(key pickle.Key) (domain.DeviceSessionRecord, error) {
	blob, err := pickle.Seal(key, sessionPickleKind, s)
	if err != nil {
		return domain.DeviceSessionRecord{}, err
	}
	return domain.DeviceSessionRecord{
		SessionID: s.ID,
		SenderKey: s.TheirIdentity,
		CreatedAt: s.CreatedAt,
		LastUsed:  s.LastUsed,
		Pickle:    blob,
	}, nil
}

func sessionFromRecord(key pickle.Key, rec domain.DeviceSessionRecord) (*Session, error) {
	var s Session
	if err := pickle.Open(key, sessionPickleKind, rec.Pickle, &s); err != nil {
		return nil, err
	}
	s.CreatedAt = rec.CreatedAt
	s.LastUsed = rec.LastUsed
	return &s, nil
}
