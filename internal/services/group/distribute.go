package group

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"olmcore/internal/cryptoerr"
	"olmcore/internal/domain"
)

type shareResult struct {
	dev   domain.DeviceKeys
	ref   string
	curve domain.Curve25519Public
	msg   domain.ToDeviceMessage
	err   error
}

// Distribute wraps the room's current session key in an Olm encrypted m.room_key event
// for every device that has not received it yet. Devices already covered are skipped.
// A device is marked as covered only if the session that was shared is still the
// room's outbound session afterwards. Per-device failures are joined into the returned
// error alongside the messages that did succeed. If the covered devices cannot be
// recorded no messages are returned.
func (m *Manager) Distribute(
	ctx context.Context,
	room domain.RoomID,
	devices []domain.DeviceKeys,
) ([]domain.ToDeviceMessage, error) {
	sessionID, content, shared, err := m.snapshot(ctx, room)
	if err != nil {
		return nil, err
	}

	results := make([]shareResult, 0, len(devices))
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		ref := domain.DeviceRef(d.UserID, d.DeviceID)
		curve, err := d.IdentityKey()
		if err != nil {
			results = append(results, shareResult{ref: ref, err: err})
			continue
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		if prev, ok := shared[ref]; ok && prev == curve {
			continue
		}
		results = append(results, shareResult{dev: d, ref: ref, curve: curve})
	}

	var g errgroup.Group
	g.SetLimit(m.cfg.Parallelism)
	for i := range results {
		if results[i].err != nil {
			continue
		}
		r := &results[i]
		d := r.dev
		g.Go(func() error {
			ev, err := m.devices.Encrypt(ctx, d, domain.EventTypeRoomKey, content)
			m.metrics.KeyShared(err)
			if err != nil {
				r.err = err
				return nil
			}
			r.msg = domain.ToDeviceMessage{
				UserID:   d.UserID,
				DeviceID: d.DeviceID,
				Type:     domain.EventTypeEncrypted,
				Content:  ev,
			}
			return nil
		})
	}
	_ = g.Wait()

	var (
		msgs []domain.ToDeviceMessage
		errs []error
	)
	covered := map[string]domain.Curve25519Public{}
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("share room key with %s: %w", r.ref, r.err))
			continue
		}
		msgs = append(msgs, r.msg)
		covered[r.ref] = r.curve
	}
	if len(covered) > 0 {
		if err := m.markShared(ctx, room, sessionID, covered); err != nil {
			// Unrecorded shares are redone by the next call.
			return nil, errors.Join(append(errs, err)...)
		}
	}
	return msgs, errors.Join(errs...)
}

// snapshot reads what Distribute needs under the room lock.
func (m *Manager) snapshot(
	ctx context.Context,
	room domain.RoomID,
) (domain.SessionID, domain.RoomKeyContent, map[string]domain.Curve25519Public, error) {
	unlock, err := m.rooms.Lock(ctx, room)
	if err != nil {
		return "", domain.RoomKeyContent{}, nil, err
	}
	defer unlock()

	rec, err := m.getOutbound(ctx, room)
	if err != nil {
		return "", domain.RoomKeyContent{}, nil, err
	}
	if rec == nil {
		return "", domain.RoomKeyContent{}, nil, cryptoerr.Megolm(cryptoerr.MegolmMissingSession, nil)
	}
	s, err := openOutbound(m.key, rec)
	if err != nil {
		return "", domain.RoomKeyContent{}, nil, cryptoerr.MegolmStoreFailure(cryptoerr.Store("unpickle outbound group session", err))
	}
	shared := make(map[string]domain.Curve25519Public, len(rec.SharedWith))
	for k, v := range rec.SharedWith {
		shared[k] = v
	}
	return rec.SessionID, domain.RoomKeyContent{
		Algorithm:  domain.AlgorithmMegolm,
		RoomID:     room,
		SessionID:  rec.SessionID,
		SessionKey: s.SessionKey(),
	}, shared, nil
}

// markShared records covered devices if sessionID is still the room's outbound session.
func (m *Manager) markShared(
	ctx context.Context,
	room domain.RoomID,
	sessionID domain.SessionID,
	covered map[string]domain.Curve25519Public,
) error {
	unlock, err := m.rooms.Lock(ctx, room)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := m.getOutbound(ctx, room)
	if err != nil {
		return err
	}
	if rec == nil || rec.SessionID != sessionID {
		m.log.Warn("outbound group session rotated during distribution",
			"room_id", room, "session_id", sessionID)
		return nil
	}
	next := *rec
	next.SharedWith = make(map[string]domain.Curve25519Public, len(rec.SharedWith)+len(covered))
	for k, v := range rec.SharedWith {
		next.SharedWith[k] = v
	}
	for k, v := range covered {
		next.SharedWith[k] = v
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.store.SaveOutboundGroupSession(ctx, next); err != nil {
		return cryptoerr.MegolmStoreFailure(cryptoerr.Store("save outbound group session", err))
	}
	m.log.Info("shared room key", "room_id", room, "session_id", sessionID, "devices", len(covered))
	return nil
}
