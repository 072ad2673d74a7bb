package group

import (
	"time"

	"olmcore/internal/domain"
	"olmcore/internal/pickle"
	"olmcore/internal/protocol/megolm"
)

const (
	outboundKind = "megolm.outbound"
	inboundKind  = "megolm.inbound"
)

// OutboundInfo describes the current outbound session of a room.
type OutboundInfo struct {
	RoomID       domain.RoomID
	SessionID    domain.SessionID
	CreatedAt    time.Time
	MessageCount uint32
	SharedWith   int
}

func outboundInfo(rec *domain.OutboundGroupSessionRecord) *OutboundInfo {
	return &OutboundInfo{
		RoomID:       rec.RoomID,
		SessionID:    rec.SessionID,
		CreatedAt:    rec.CreatedAt,
		MessageCount: rec.MessageCount,
		SharedWith:   len(rec.SharedWith),
	}
}

func openOutbound(key pickle.Key, rec *domain.OutboundGroupSessionRecord) (*megolm.OutboundSession, error) {
	var s megolm.OutboundSession
	if err := pickle.Open(key, outboundKind, rec.Pickle, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func openInbound(key pickle.Key, rec *domain.InboundGroupSessionRecord) (*megolm.InboundSession, error) {
	var s megolm.InboundSession
	if err := pickle.Open(key, inboundKind, rec.Pickle, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func inboundRecord(
	key pickle.Key,
	room domain.RoomID,
	senderKey domain.Curve25519Public,
	signingKey domain.Ed25519Public,
	s *megolm.InboundSession,
) (domain.InboundGroupSessionRecord, error) {
	blob, err := pickle.Seal(key, inboundKind, s)
	if err != nil {
		return domain.InboundGroupSessionRecord{}, err
	}
	return domain.InboundGroupSessionRecord{
		RoomID:          room,
		SenderKey:       senderKey,
		SessionID:       s.ID(),
		SigningKey:      signingKey,
		FirstKnownIndex: s.FirstKnownIndex(),
		Pickle:          blob,
	}, nil
}

// inboundKey identifies an inbound session for locking.
type inboundKey struct {
	room      domain.RoomID
	senderKey domain.Curve25519Public
	sessionID domain.SessionID
}
