// Package storetest is the behavioural contract every domain.CryptoStore backend must
// satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olmcore/internal/domain"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) domain.CryptoStore

// Run executes the contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Account", func(t *testing.T) { testAccount(t, newStore(t)) })
	t.Run("DeviceSessions", func(t *testing.T) { testDeviceSessions(t, newStore(t)) })
	t.Run("InboundGroupSessions", func(t *testing.T) { testInbound(t, newStore(t)) })
	t.Run("OutboundGroupSessions", func(t *testing.T) { testOutbound(t, newStore(t)) })
	t.Run("Devices", func(t *testing.T) { testDevices(t, newStore(t)) })
	t.Run("Cancelled", func(t *testing.T) { testCancelled(t, newStore(t)) })
}

func key(b byte) domain.Curve25519Public { return domain.Curve25519Public{b, 0xaa, b} }

func testAccount(t *testing.T, s domain.CryptoStore) {
	ctx := context.Background()

	got, err := s.LoadAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := domain.AccountRecord{UserID: "@a:x", DeviceID: "DEV", Pickle: []byte("sealed-1")}
	require.NoError(t, s.SaveAccount(ctx, rec))
	rec.Pickle = []byte("sealed-2")
	require.NoError(t, s.SaveAccount(ctx, rec))

	got, err = s.LoadAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.UserID, got.UserID)
	assert.Equal(t, rec.DeviceID, got.DeviceID)
	assert.Equal(t, []byte("sealed-2"), got.Pickle)
}

func testDeviceSessions(t *testing.T, s domain.CryptoStore) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	empty, err := s.GetDeviceSessions(ctx, key(1))
	require.NoError(t, err)
	assert.Empty(t, empty)

	older := domain.DeviceSessionRecord{
		SessionID: "old", SenderKey: key(1), CreatedAt: base, LastUsed: base, Pickle: []byte("p-old"),
	}
	newer := domain.DeviceSessionRecord{
		SessionID: "new", SenderKey: key(1), CreatedAt: base, LastUsed: base.Add(time.Minute), Pickle: []byte("p-new"),
	}
	other := domain.DeviceSessionRecord{
		SessionID: "other", SenderKey: key(2), CreatedAt: base, LastUsed: base, Pickle: []byte("p-other"),
	}
	require.NoError(t, s.SaveDeviceSession(ctx, older))
	require.NoError(t, s.SaveDeviceSession(ctx, newer))
	require.NoError(t, s.SaveDeviceSession(ctx, other))

	got, err := s.GetDeviceSessions(ctx, key(1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.SessionID("new"), got[0].SessionID)
	assert.Equal(t, domain.SessionID("old"), got[1].SessionID)
	assert.True(t, got[0].LastUsed.Equal(newer.LastUsed))
	assert.Equal(t, []byte("p-new"), got[0].Pickle)

	// Saving again replaces by session id and re-orders by last use.
	older.LastUsed = base.Add(time.Hour)
	older.Pickle = []byte("p-old-2")
	require.NoError(t, s.SaveDeviceSession(ctx, older))

	got, err = s.GetDeviceSessions(ctx, key(1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.SessionID("old"), got[0].SessionID)
	assert.Equal(t, []byte("p-old-2"), got[0].Pickle)

	// Returned records are copies.
	got[0].Pickle[0] = 'X'
	again, err := s.GetDeviceSessions(ctx, key(1))
	require.NoError(t, err)
	assert.Equal(t, []byte("p-old-2"), again[0].Pickle)
}

func testInbound(t *testing.T, s domain.CryptoStore) {
	ctx := context.Background()

	got, err := s.GetInboundGroupSession(ctx, "!room:x", key(1), "sid")
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := domain.InboundGroupSessionRecord{
		RoomID:          "!room:x",
		SenderKey:       key(1),
		SessionID:       "sid",
		SigningKey:      domain.Ed25519Public{9},
		FirstKnownIndex: 4,
		Pickle:          []byte("sealed"),
	}
	require.NoError(t, s.SaveInboundGroupSession(ctx, rec))

	got, err = s.GetInboundGroupSession(ctx, "!room:x", key(1), "sid")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	// Every part of the composite key matters.
	for _, lookup := range []struct {
		room domain.RoomID
		key  domain.Curve25519Public
		id   domain.SessionID
	}{
		{"!other:x", key(1), "sid"},
		{"!room:x", key(2), "sid"},
		{"!room:x", key(1), "other"},
	} {
		miss, err := s.GetInboundGroupSession(ctx, lookup.room, lookup.key, lookup.id)
		require.NoError(t, err)
		assert.Nil(t, miss)
	}
}

func testOutbound(t *testing.T, s domain.CryptoStore) {
	ctx := context.Background()
	created := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

	got, err := s.GetOutboundGroupSession(ctx, "!room:x")
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := domain.OutboundGroupSessionRecord{
		RoomID:       "!room:x",
		SessionID:    "sid-1",
		CreatedAt:    created,
		MessageCount: 3,
		SharedWith:   map[string]domain.Curve25519Public{"@b:x|DEV": key(3)},
		Pickle:       []byte("sealed"),
	}
	require.NoError(t, s.SaveOutboundGroupSession(ctx, rec))

	got, err = s.GetOutboundGroupSession(ctx, "!room:x")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, rec.MessageCount, got.MessageCount)
	assert.Equal(t, rec.SharedWith, got.SharedWith)
	assert.Equal(t, rec.Pickle, got.Pickle)

	rec.SessionID = "sid-2"
	rec.SharedWith = nil
	require.NoError(t, s.SaveOutboundGroupSession(ctx, rec))
	got, err = s.GetOutboundGroupSession(ctx, "!room:x")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("sid-2"), got.SessionID)
	assert.Empty(t, got.SharedWith)
}

func testDevices(t *testing.T, s domain.CryptoStore) {
	ctx := context.Background()

	got, err := s.GetDevice(ctx, "@b:x", "DEV")
	require.NoError(t, err)
	assert.Nil(t, got)

	dev := domain.DeviceKeys{
		UserID:     "@b:x",
		DeviceID:   "DEV",
		Algorithms: []string{domain.AlgorithmOlm},
		Keys:       map[string]string{"curve25519:DEV": key(1).String(), "ed25519:DEV": "ed"},
		Signatures: map[domain.UserID]map[string]string{"@b:x": {"ed25519:DEV": "sig"}},
	}
	require.NoError(t, s.SaveDevice(ctx, dev))

	got, err = s.GetDevice(ctx, "@b:x", "DEV")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, dev, *got)

	miss, err := s.GetDevice(ctx, "@b:x", "OTHER")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func testCancelled(t *testing.T, s domain.CryptoStore) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SaveAccount(ctx, domain.AccountRecord{UserID: "@a:x", Pickle: []byte("p")})
	assert.Error(t, err)

	got, err := s.LoadAccount(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got, "a write with a cancelled context must not take effect")
}
