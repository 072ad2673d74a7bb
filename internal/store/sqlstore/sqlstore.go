// Package sqlstore implements domain.CryptoStore on SQLite (mattn/go-sqlite3) or
// PostgreSQL (lib/pq). Every write is a single committed statement.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"olmcore/internal/domain"
	"olmcore/internal/store"
)

var _ domain.CryptoStore = (*Store)(nil)

// Store is a SQL backed crypto store.
type Store struct {
	db *sql.DB
	d  dialect
}

// Open connects with driver (DriverSQLite or DriverPostgres) and creates missing tables.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer at a time avoids SQLITE_BUSY under concurrent managers.
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db, d: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Reset deletes every record.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{
		"account", "device_sessions", "inbound_group_sessions", "outbound_group_sessions", "devices",
	} {
		if err := s.exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, s.d.rebind(query), args...)
	return err
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.d.rebind(query), args...)
}

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// ---------- Account ----------

func (s *Store) LoadAccount(ctx context.Context) (*domain.AccountRecord, error) {
	var rec domain.AccountRecord
	err := s.queryRow(ctx, `SELECT user_id, device_id, pickle FROM account WHERE id = 1`).
		Scan(&rec.UserID, &rec.DeviceID, &rec.Pickle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveAccount(ctx context.Context, account domain.AccountRecord) error {
	return s.exec(ctx, `
		INSERT INTO account (id, user_id, device_id, pickle) VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET user_id = excluded.user_id, device_id = excluded.device_id, pickle = excluded.pickle`,
		account.UserID.String(), account.DeviceID.String(), account.Pickle)
}

// ---------- Olm sessions ----------

func (s *Store) GetDeviceSessions(
	ctx context.Context,
	senderKey domain.Curve25519Public,
) ([]domain.DeviceSessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT session_id, created_at, last_used, pickle FROM device_sessions
		WHERE sender_key = ?`), senderKey.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DeviceSessionRecord
	for rows.Next() {
		var (
			rec              domain.DeviceSessionRecord
			created, lastUse int64
		)
		if err := rows.Scan(&rec.SessionID, &created, &lastUse, &rec.Pickle); err != nil {
			return nil, err
		}
		rec.SenderKey = senderKey
		rec.CreatedAt, rec.LastUsed = fromNanos(created), fromNanos(lastUse)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	store.SortSessions(out)
	return out, nil
}

func (s *Store) SaveDeviceSession(ctx context.Context, session domain.DeviceSessionRecord) error {
	return s.exec(ctx, `
		INSERT INTO device_sessions (sender_key, session_id, created_at, last_used, pickle)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (sender_key, session_id) DO UPDATE
		SET created_at = excluded.created_at, last_used = excluded.last_used, pickle = excluded.pickle`,
		session.SenderKey.String(), session.SessionID.String(),
		nanos(session.CreatedAt), nanos(session.LastUsed), session.Pickle)
}

// ---------- Megolm sessions ----------

func (s *Store) GetInboundGroupSession(
	ctx context.Context,
	room domain.RoomID,
	senderKey domain.Curve25519Public,
	sessionID domain.SessionID,
) (*domain.InboundGroupSessionRecord, error) {
	var (
		signing string
		first   int64
		pickle  []byte
	)
	err := s.queryRow(ctx, `
		SELECT signing_key, first_known_index, pickle FROM inbound_group_sessions
		WHERE room_id = ? AND sender_key = ? AND session_id = ?`,
		room.String(), senderKey.String(), sessionID.String()).Scan(&signing, &first, &pickle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	signingKey, err := domain.ParseEd25519(signing)
	if err != nil {
		return nil, fmt.Errorf("inbound group session %s: %w", sessionID, err)
	}
	return &domain.InboundGroupSessionRecord{
		RoomID:          room,
		SenderKey:       senderKey,
		SessionID:       sessionID,
		SigningKey:      signingKey,
		FirstKnownIndex: uint32(first),
		Pickle:          pickle,
	}, nil
}

func (s *Store) SaveInboundGroupSession(ctx context.Context, session domain.InboundGroupSessionRecord) error {
	return s.exec(ctx, `
		INSERT INTO inbound_group_sessions
			(room_id, sender_key, session_id, signing_key, first_known_index, pickle)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (room_id, sender_key, session_id) DO UPDATE
		SET signing_key = excluded.signing_key,
			first_known_index = excluded.first_known_index,
			pickle = excluded.pickle`,
		session.RoomID.String(), session.SenderKey.String(), session.SessionID.String(),
		session.SigningKey.String(), int64(session.FirstKnownIndex), session.Pickle)
}

func (s *Store) GetOutboundGroupSession(
	ctx context.Context,
	room domain.RoomID,
) (*domain.OutboundGroupSessionRecord, error) {
	var (
		rec     domain.OutboundGroupSessionRecord
		created int64
		count   int64
		shared  string
	)
	err := s.queryRow(ctx, `
		SELECT session_id, created_at, message_count, shared_with, pickle
		FROM outbound_group_sessions WHERE room_id = ?`, room.String()).
		Scan(&rec.SessionID, &created, &count, &shared, &rec.Pickle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(shared), &rec.SharedWith); err != nil {
		return nil, fmt.Errorf("outbound group session %s: %w", rec.SessionID, err)
	}
	rec.RoomID = room
	rec.CreatedAt = fromNanos(created)
	rec.MessageCount = uint32(count)
	return &rec, nil
}

func (s *Store) SaveOutboundGroupSession(ctx context.Context, session domain.OutboundGroupSessionRecord) error {
	shared, err := json.Marshal(session.SharedWith)
	if err != nil {
		return err
	}
	return s.exec(ctx, `
		INSERT INTO outbound_group_sessions
			(room_id, session_id, created_at, message_count, shared_with, pickle)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (room_id) DO UPDATE
		SET session_id = excluded.session_id,
			created_at = excluded.created_at,
			message_count = excluded.message_count,
			shared_with = excluded.shared_with,
			pickle = excluded.pickle`,
		session.RoomID.String(), session.SessionID.String(), nanos(session.CreatedAt),
		int64(session.MessageCount), string(shared), session.Pickle)
}

// ---------- Devices ----------

func (s *Store) GetDevice(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
) (*domain.DeviceKeys, error) {
	var raw string
	err := s.queryRow(ctx, `SELECT keys FROM devices WHERE user_id = ? AND device_id = ?`,
		user.String(), device.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys domain.DeviceKeys
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("device %s: %w", domain.DeviceRef(user, device), err)
	}
	return &keys, nil
}

func (s *Store) SaveDevice(ctx context.Context, device domain.DeviceKeys) error {
	raw, err := json.Marshal(device)
	if err != nil {
		return err
	}
	return s.exec(ctx, `
		INSERT INTO devices (user_id, device_id, keys) VALUES (?, ?, ?)
		ON CONFLICT (user_id, device_id) DO UPDATE SET keys = excluded.keys`,
		device.UserID.String(), device.DeviceID.String(), string(raw))
}
