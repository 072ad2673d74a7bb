// Package redisstore implements domain.CryptoStore on Redis with go-redis. Records are
// JSON values; the Olm sessions of one remote device share a hash.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"olmcore/internal/domain"
	"olmcore/internal/store"
)

// DefaultPrefix namespaces keys when none is configured.
const DefaultPrefix = "olmcore:"

const (
	accountKey     = "account"
	sessionsPrefix = "sessions:" // sessions:{curve key} - hash of session id to record
	inboundPrefix  = "inbound:"  // inbound:{room|sender|session}
	outboundPrefix = "outbound:" // outbound:{room}
	devicePrefix   = "device:"   // device:{user|device}
)

var _ domain.CryptoStore = (*Store)(nil)

// Store is a Redis backed crypto store.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// New returns a store using rdb with every key under prefix.
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, prefix string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(rdb, prefix), nil
}

// Close closes the client.
func (s *Store) Close() error { return s.rdb.Close() }

// Reset deletes every key under the store's prefix.
func (s *Store) Reset(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += p
	}
	return k
}

func (s *Store) get(ctx context.Context, key string, out any) (bool, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) set(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, 0).Err()
}

// ---------- Account ----------

func (s *Store) LoadAccount(ctx context.Context) (*domain.AccountRecord, error) {
	var rec domain.AccountRecord
	ok, err := s.get(ctx, s.key(accountKey), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveAccount(ctx context.Context, account domain.AccountRecord) error {
	return s.set(ctx, s.key(accountKey), account)
}

// ---------- Olm sessions ----------

func (s *Store) GetDeviceSessions(
	ctx context.Context,
	senderKey domain.Curve25519Public,
) ([]domain.DeviceSessionRecord, error) {
	all, err := s.rdb.HGetAll(ctx, s.key(sessionsPrefix, senderKey.String())).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.DeviceSessionRecord, 0, len(all))
	for id, raw := range all {
		var rec domain.DeviceSessionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", id, err)
		}
		out = append(out, rec)
	}
	store.SortSessions(out)
	return out, nil
}

func (s *Store) SaveDeviceSession(ctx context.Context, session domain.DeviceSessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.key(sessionsPrefix, session.SenderKey.String()), session.SessionID.String(), raw).Err()
}

// ---------- Megolm sessions ----------

func (s *Store) GetInboundGroupSession(
	ctx context.Context,
	room domain.RoomID,
	senderKey domain.Curve25519Public,
	sessionID domain.SessionID,
) (*domain.InboundGroupSessionRecord, error) {
	var rec domain.InboundGroupSessionRecord
	ok, err := s.get(ctx, s.key(inboundPrefix, store.InboundKey(room, senderKey, sessionID)), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveInboundGroupSession(ctx context.Context, session domain.InboundGroupSessionRecord) error {
	k := store.InboundKey(session.RoomID, session.SenderKey, session.SessionID)
	return s.set(ctx, s.key(inboundPrefix, k), session)
}

func (s *Store) GetOutboundGroupSession(
	ctx context.Context,
	room domain.RoomID,
) (*domain.OutboundGroupSessionRecord, error) {
	var rec domain.OutboundGroupSessionRecord
	ok, err := s.get(ctx, s.key(outboundPrefix, room.String()), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveOutboundGroupSession(ctx context.Context, session domain.OutboundGroupSessionRecord) error {
	return s.set(ctx, s.key(outboundPrefix, session.RoomID.String()), session)
}

// ---------- Devices ----------

func (s *Store) GetDevice(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
) (*domain.DeviceKeys, error) {
	var keys domain.DeviceKeys
	ok, err := s.get(ctx, s.key(devicePrefix, domain.DeviceRef(user, device)), &keys)
	if err != nil || !ok {
		return nil, err
	}
	return &keys, nil
}

func (s *Store) SaveDevice(ctx context.Context, device domain.DeviceKeys) error {
	return s.set(ctx, s.key(devicePrefix, domain.DeviceRef(device.UserID, device.DeviceID)), device)
}
