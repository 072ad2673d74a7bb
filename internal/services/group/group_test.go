package group_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olmcore/internal/cryptoerr"
	"olmcore/internal/domain"
	"olmcore/internal/pickle"
	"olmcore/internal/protocol/megolm"
	"olmcore/internal/services/device"
	"olmcore/internal/services/group"
	"olmcore/internal/services/identity"
	"olmcore/internal/store"
)

const room = domain.RoomID("!room:x")

type party struct {
	user    domain.UserID
	store   *store.Memory
	ids     *identity.Service
	devices *device.Manager
	groups  *group.Manager
	acc     *identity.Account
	keys    domain.DeviceKeys
	key     pickle.Key
}

func newParty(t *testing.T, user domain.UserID, dev domain.DeviceID, cfg group.Config) *party {
	t.Helper()
	ctx := context.Background()
	key, err := pickle.NewKey()
	require.NoError(t, err)
	mem := store.NewMemory()
	ids := identity.New(mem, key)
	acc, _, err := ids.Create(ctx, user, dev, 3)
	require.NoError(t, err)
	keys, err := acc.DeviceKeys()
	require.NoError(t, err)
	devices := device.New(mem, ids, key, device.Config{})
	return &party{
		user:    user,
		store:   mem,
		ids:     ids,
		devices: devices,
		groups:  group.New(mem, ids, devices, key, cfg),
		acc:     acc,
		keys:    keys,
		key:     key,
	}
}

type body struct {
	Body string `json:"body"`
}

func encrypt(t *testing.T, p *party, text string) *domain.MegolmEncryptedEvent {
	t.Helper()
	ev, err := p.groups.Encrypt(context.Background(), room, "m.room.message", body{Body: text})
	require.NoError(t, err)
	return ev
}

func decrypt(t *testing.T, p *party, sender domain.UserID, ev *domain.MegolmEncryptedEvent) (string, uint32) {
	t.Helper()
	out, err := p.groups.Decrypt(context.Background(), room, sender, ev)
	require.NoError(t, err)
	var b body
	require.NoError(t, json.Unmarshal(out.Content, &b))
	return b.Body, out.MessageIndex
}

// shareWith establishes an Olm session from a to b and delivers a's room key.
func shareWith(t *testing.T, a, b *party) {
	t.Helper()
	ctx := context.Background()
	acc, err := b.ids.Account(ctx)
	require.NoError(t, err)
	_, err = a.devices.CreateOutboundSession(ctx, b.keys, acc.OneTimeKeys[0].Pub)
	require.NoError(t, err)

	msgs, err := a.groups.Distribute(ctx, room, []domain.DeviceKeys{b.keys})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, b.user, msgs[0].UserID)
	assert.Equal(t, domain.EventTypeEncrypted, msgs[0].Type)

	roomKey, err := b.devices.Decrypt(ctx, a.user, msgs[0].Content)
	require.NoError(t, err)
	require.NoError(t, b.groups.ReceiveRoomKey(ctx, roomKey))
}

func TestOwnMessagesIndices(t *testing.T) {
	alice := newParty(t, "@alice:x", "ALICE", group.Config{})
	_, err := alice.groups.CreateOutbound(context.Background(), room)
	require.NoError(t, err)

	first := encrypt(t, alice, "first")
	second := encrypt(t, alice, "second")
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, domain.AlgorithmMegolm, first.Algorithm)

	text, idx := decrypt(t, alice, alice.user, first)
	assert.Equal(t, "first", text)
	assert.EqualValues(t, 0, idx)

	text, idx = decrypt(t, alice, alice.user, second)
	assert.Equal(t, "second", text)
	assert.EqualValues(t, 1, idx)

	text, idx = decrypt(t, alice, alice.user, first)
	assert.Equal(t, "first", text, "an index already seen decrypts again")
	assert.EqualValues(t, 0, idx)
}

func TestEncryptWithoutSession(t *testing.T) {
	alice := newParty(t, "@alice:x", "ALICE", group.Config{})
	_, err := alice.groups.Encrypt(context.Background(), room, "m.room.message", body{Body: "x"})
	assert.ErrorIs(t, err, cryptoerr.ErrMegolmMissingSession)

	_, err = alice.groups.Distribute(context.Background(), room, nil)
	assert.ErrorIs(t, err, cryptoerr.ErrMegolmMissingSession)
}

func TestCreateOutboundReturnsExisting(t *testing.T) {
	ctx := context.Background()
	alice := newParty(t, "@alice:x", "ALICE", group.Config{})
	a, err := alice.groups.CreateOutbound(ctx, room)
	require.NoError(t, err)
	encrypt(t, alice, "x")
	b, err := alice.groups.CreateOutbound(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, a.SessionID, b.SessionID)
	assert.EqualValues(t, 1, b.MessageCount)
}

func TestDistributeAndDecrypt(t *testing.T) {
	ctx := context.Background()
	alice := newParty(t, "@alice:x", "ALICE", group.Config{})
	bob := newParty(t, "@bob:x", "BOB", group.Config{})
	_, err := alice.groups.CreateOutbound(ctx, room)
	require.NoError(t, err)
	shareWith(t, alice, bob)

	// Already covered devices are skipped.
	msgs, err := alice.groups.Distribute(ctx, room, []domain.DeviceKeys{bob.keys})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	ev := encrypt(t, alice, "hello room")
	out, err := bob.groups.Decrypt(ctx, room, alice.user, ev)
	require.NoError(t, err)
	assert.Equal(t, "m.room.message", out.Type)
	assert.Equal(t, room, out.RoomID)
	assert.Equal(t, domain.DeviceID("ALICE"), out.DeviceID)
	assert.Equal(t, alice.acc.SigningPub, out.SigningKey)

	_, err = bob.groups.Decrypt(ctx, room, "@mallory:x", ev)
	assert.ErrorIs(t, err, cryptoerr.ErrMissmatchedSender)

	_, err = bob.groups.Decrypt(ctx, "!other:x", alice.user, ev)
	assert.ErrorIs(t, err, cryptoerr.ErrMegolmMissingSession)
}

func TestDecryptChecksKnownDevice(t *testing.T) {
	ctx := context.Background()
	alice := newParty(t, "@alice:x", "ALICE", group.Config{})
	bob := newParty(t, "@bob:x", "BOB", group.Config{})
	_, err := alice.groups.CreateOutbound(ctx, room)
	require.NoError(t, err)
	ev := encrypt(t, alice, "x")

	// Bob imports the session but binds it to the wrong signing key.
	exported, err := alice.groups.ExportInboundSession(ctx, room, alice.acc.IdentityPub, ev.SessionID, 0)
	require.NoError(t, err)
	require.NoError(t, bob.groups.AddInboundSession(ctx, room, alice.acc.IdentityPub, bob.acc.SigningPub, exported))
	require.NoError(t, bob.devices.TrustDevice(ctx, alice.keys))

	_, err = bob.groups.Decrypt(ctx, room, alice.user, ev)
	assert.ErrorIs(t, err, cryptoerr.ErrMissmatchedKeys)
}

func TestMissingSessionThenImport(t *testing.T) {
	ctx := context.Background()
	alice := newParty(t, "@alice:x", "ALICE", group.Config{})
	bob := newParty(t, "@bob:x", "BOB", group.Config{})
	_, err := alice.groups.CreateOutbound(ctx, room)
	require.NoError(t, err)
	first := encrypt(t, alice, "zero")
	second := encrypt(t, alice, "one")

	_, err = bob.groups.Decrypt(ctx, room, alice.user, second)
	require.ErrorIs(t, err, cryptoerr.ErrMegolmMissingSession)

	// An export from index 1 cannot read index 0.
	late, err := alice.groups.ExportInboundSession(ctx, room, alice.acc.IdentityPub, first.SessionID, 1)
	require.NoError(t, err)
	require.NoError(t, bob.groups.AddInboundSession(ctx, room, alice.acc.IdentityPub, alice.acc.SigningPub, late))

	text, idx := decrypt(t, bob, alice.user, second)
	assert.Equal(t, "one", text)
	assert.EqualValues(t, 1, idx)

	_, err = bob.groups.Decrypt(ctx, room, alice.user, first)
	assert.ErrorIs(t, err, cryptoerr.ErrMegolmGroupSession)
	assert.ErrorIs(t, err, megolm.ErrUnknownMessageIndex)

	// A copy reaching further back replaces it; a later one never does.
	early, err := alice.groups.ExportInboundSession(ctx, room, alice.acc.IdentityPub, first.SessionID, 0)
	require.NoError(t, err)
	require.NoError(t, bob.groups.AddInboundSession(ctx, room, alice.acc.IdentityPub, alice.acc.SigningPub, early))
	require.NoError(t, bob.groups.AddInboundSession(ctx, room, alice.acc.IdentityPub, alice.acc.SigningPub, late))

	text, idx = decrypt(t, bob, alice.user, first)
	assert.Equal(t, "zero", text)
	assert.EqualValues(t, 0, idx)

	rec, err := bob.store.GetInboundGroupSession(ctx, room, alice.acc.IdentityPub, first.SessionID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.EqualValues(t, 0, rec.FirstKnownIndex)
}

func TestRotation(t *testing.T) {
	ctx := context.Background()
	alice := newParty(t, "@alice:x", "ALICE", group.Config{RotationMessages: 2})
	before, err := alice.groups.CreateOutbound(ctx, room)
	require.NoError(t, err)

	old := encrypt(t, alice, "old")
	needs, err := alice.groups.NeedsRotation(ctx, room)
	require.NoError(t, err)
	assert.False(t, needs)
	encrypt(t, alice, "old too")
	needs, err = alice.groups.NeedsRotation(ctx, room)
	require.NoError(t, err)
	assert.True(t, needs)

	after, err := alice.groups.RotateOutbound(ctx, room)
	require.NoError(t, err)
	assert.NotEqual(t, before.SessionID, after.SessionID)
	assert.Zero(t, after.SharedWith)

	fresh := encrypt(t, alice, "new")
	assert.Equal(t, after.SessionID, fresh.SessionID)

	text, _ := decrypt(t, alice, alice.user, old)
	assert.Equal(t, "old", text)
	text, _ = decrypt(t, alice, alice.user, fresh)
	assert.Equal(t, "new", text)
}

func TestNeedsRotationByAge(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	alice := newParty(t, "@alice:x", "ALICE", group.Config{RotationPeriod: time.Hour, Now: clock})

	needs, err := alice.groups.NeedsRotation(ctx, room)
	require.NoError(t, err)
	assert.False(t, needs, "no session")

	_, err = alice.groups.CreateOutbound(ctx, room)
	require.NoError(t, err)
	needs, err = alice.groups.NeedsRotation(ctx, room)
	require.NoError(t, err)
	assert.False(t, needs)

	now = now.Add(time.Hour)
	needs, err = alice.groups.NeedsRotation(ctx, room)
	require.NoError(t, err)
	assert.True(t, needs)
}

// fakeEncrypter stands in for the device manager.
type fakeEncrypter struct {
	mu     sync.Mutex
	calls  map[domain.DeviceID]int
	fail   map[domain.DeviceID]error
	during func()
}

func (f *fakeEncrypter) Encrypt(
	_ context.Context,
	remote domain.DeviceKeys,
	_ string,
	_ any,
) (*domain.OlmEncryptedEvent, error) {
	f.mu.Lock()
	f.calls[remote.DeviceID]++
	during := f.during
	f.during = nil
	err := f.fail[remote.DeviceID]
	f.mu.Unlock()
	if during != nil {
		during()
	}
	if err != nil {
		return nil, err
	}
	return &domain.OlmEncryptedEvent{Algorithm: domain.AlgorithmOlm}, nil
}

func newFakeParty(t *testing.T, enc *fakeEncrypter) (*group.Manager, []domain.DeviceKeys) {
	t.Helper()
	ctx := context.Background()
	key, err := pickle.NewKey()
	require.NoError(t, err)
	mem := store.NewMemory()
	ids := identity.New(mem, key)
	_, _, err = ids.Create(ctx, "@alice:x", "ALICE", 0)
	require.NoError(t, err)

	var devices []domain.DeviceKeys
	for _, id := range []domain.DeviceID{"ONE", "TWO", "THREE"} {
		peer := identity.New(store.NewMemory(), key)
		acc, _, err := peer.Create(ctx, "@bob:x", id, 0)
		require.NoError(t, err)
		keys, err := acc.DeviceKeys()
		require.NoError(t, err)
		devices = append(devices, keys)
	}
	return group.New(mem, ids, enc, key, group.Config{Parallelism: 2}), devices
}

func TestDistributeJoinsPerDeviceErrors(t *testing.T) {
	ctx := context.Background()
	errOffline := errors.New("no olm session")
	enc := &fakeEncrypter{
		calls: map[domain.DeviceID]int{},
		fail:  map[domain.DeviceID]error{"TWO": errOffline},
	}
	groups, devices := newFakeParty(t, enc)
	_, err := groups.CreateOutbound(ctx, room)
	require.NoError(t, err)

	msgs, err := groups.Distribute(ctx, room, devices)
	assert.ErrorIs(t, err, errOffline)
	assert.Len(t, msgs, 2)

	enc.mu.Lock()
	delete(enc.fail, "TWO")
	enc.mu.Unlock()
	msgs, err = groups.Distribute(ctx, room, devices)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.DeviceID("TWO"), msgs[0].DeviceID)

	msgs, err = groups.Distribute(ctx, room, devices)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, map[domain.DeviceID]int{"ONE": 1, "TWO": 2, "THREE": 1}, enc.calls)
}

func TestDistributeDuringRotationDoesNotMarkNewSession(t *testing.T) {
	ctx := context.Background()
	enc := &fakeEncrypter{calls: map[domain.DeviceID]int{}}
	groups, devices := newFakeParty(t, enc)
	_, err := groups.CreateOutbound(ctx, room)
	require.NoError(t, err)

	enc.during = func() {
		_, err := groups.RotateOutbound(ctx, room)
		assert.NoError(t, err)
	}
	msgs, err := groups.Distribute(ctx, room, devices[:1])
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	// The rotated session was never shared, so the device is covered again.
	msgs, err = groups.Distribute(ctx, room, devices[:1])
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, 2, enc.calls["ONE"])
}

func TestDecryptRejectsMalformedEvents(t *testing.T) {
	ctx := context.Background()
	alice := newParty(t, "@alice:x", "ALICE", group.Config{})
	_, err := alice.groups.CreateOutbound(ctx, room)
	require.NoError(t, err)
	ev := encrypt(t, alice, "x")

	wrong := *ev
	wrong.Algorithm = domain.AlgorithmOlm
	_, err = alice.groups.Decrypt(ctx, room, alice.user, &wrong)
	assert.ErrorIs(t, err, cryptoerr.ErrUnsupportedAlgorithm)

	empty := *ev
	empty.Ciphertext = ""
	_, err = alice.groups.Decrypt(ctx, room, alice.user, &empty)
	assert.ErrorIs(t, err, cryptoerr.ErrMissingCiphertext)

	garbled := *ev
	garbled.Ciphertext = ev.Ciphertext[:len(ev.Ciphertext)-4] + "AAAA"
	_, err = alice.groups.Decrypt(ctx, room, alice.user, &garbled)
	assert.ErrorIs(t, err, cryptoerr.ErrMegolmGroupSession)
}

func TestReceiveRoomKeyRejectsOtherEvents(t *testing.T) {
	bob := newParty(t, "@bob:x", "BOB", group.Config{})
	err := bob.groups.ReceiveRoomKey(context.Background(), &domain.DecryptedEvent{
		Type:    domain.EventTypeRoomKey,
		Content: json.RawMessage(`{"algorithm":"m.olm.v1.curve25519-aes-sha2","room_id":"!r","session_id":"s","session_key":"k"}`),
	})
	assert.ErrorIs(t, err, cryptoerr.ErrUnsupportedAlgorithm)

	err = bob.groups.ReceiveRoomKey(context.Background(), &domain.DecryptedEvent{
		Type:    domain.EventTypeRoomKey,
		Content: json.RawMessage(`{"algorithm":"m.megolm.v1.aes-sha2","room_id":"!r","session_id":"s","session_key":"AAAA"}`),
	})
	assert.ErrorIs(t, err, cryptoerr.ErrOlmGroupSession)
}

var errDiskFull = errors.New("disk full")

// failingStore rejects every group session write.
type failingStore struct {
	*store.Memory
}

func (failingStore) SaveOutboundGroupSession(context.Context, domain.OutboundGroupSessionRecord) error {
	return errDiskFull
}

func (failingStore) SaveInboundGroupSession(context.Context, domain.InboundGroupSessionRecord) error {
	return errDiskFull
}

// broken returns a manager for p whose group session writes fail.
func (p *party) broken() *group.Manager {
	return group.New(failingStore{p.store}, p.ids, p.devices, p.key, group.Config{})
}

func outbound(t *testing.T, p *party) *domain.OutboundGroupSessionRecord {
	t.Helper()
	rec, err := p.store.GetOutboundGroupSession(context.Background(), room)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func TestEncryptStoreFailure(t *testing.T) {
	ctx := context.Background()
	alice := newParty(t, "@alice:x", "ALICE", group.Config{})
	_, err := alice.groups.CreateOutbound(ctx, room)
	require.NoError(t, err)
	before := outbound(t, alice)

	ev, err := alice.broken().Encrypt(ctx, room, "m.room.message", body{Body: "lost"})
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, cryptoerr.ErrMegolmStore)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, before, outbound(t, alice))

	// The index was not used up.
	_, idx := decrypt(t, alice, alice.user, encrypt(t, alice, "kept"))
	assert.EqualValues(t, 0, idx)
}

func TestDecryptStoreFailure(t *testing.T) {
	ctx := context.Background()
	alice := newParty(t, "@alice:x", "ALICE", group.Config{})
	bob := newParty(t, "@bob:x", "BOB", group.Config{})
	_, err := alice.groups.CreateOutbound(ctx, room)
	require.NoError(t, err)
	shareWith(t, alice, bob)
	encrypt(t, alice, "zero")
	ev := encrypt(t, alice, "one")

	before, err := bob.store.GetInboundGroupSession(ctx, room, alice.acc.IdentityPub, ev.SessionID)
	require.NoError(t, err)
	out, err := bob.broken().Decrypt(ctx, room, alice.user, ev)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, cryptoerr.ErrMegolmStore)
	after, err := bob.store.GetInboundGroupSession(ctx, room, alice.acc.IdentityPub, ev.SessionID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	text, idx := decrypt(t, bob, alice.user, ev)
	assert.Equal(t, "one", text)
	assert.EqualValues(t, 1, idx)
}

func TestDistributeStoreFailure(t *testing.T) {
	ctx := context.Background()
	alice := newParty(t, "@alice:x", "ALICE", group.Config{})
	bob := newParty(t, "@bob:x", "BOB", group.Config{})
	_, err := alice.groups.CreateOutbound(ctx, room)
	require.NoError(t, err)
	acc, err := bob.ids.Account(ctx)
	require.NoError(t, err)
	_, err = alice.devices.CreateOutboundSession(ctx, bob.keys, acc.OneTimeKeys[0].Pub)
	require.NoError(t, err)

	msgs, err := alice.broken().Distribute(ctx, room, []domain.DeviceKeys{bob.keys})
	assert.Nil(t, msgs)
	assert.ErrorIs(t, err, cryptoerr.ErrMegolmStore)
	assert.Empty(t, outbound(t, alice).SharedWith)

	// The device was not recorded as covered, so it is offered the key again.
	msgs, err = alice.groups.Distribute(ctx, room, []domain.DeviceKeys{bob.keys})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestCancelledImportIsNotAStoreError(t *testing.T) {
	alice := newParty(t, "@alice:x", "ALICE", group.Config{})
	bob := newParty(t, "@bob:x", "BOB", group.Config{})
	_, err := alice.groups.CreateOutbound(context.Background(), room)
	require.NoError(t, err)
	ev := encrypt(t, alice, "x")
	exported, err := alice.groups.ExportInboundSession(
		context.Background(), room, alice.acc.IdentityPub, ev.SessionID, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = bob.groups.AddInboundSession(ctx, room, alice.acc.IdentityPub, alice.acc.SigningPub, exported)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, cryptoerr.ErrMegolmStore)

	fresh, err := megolm.NewOutboundSession()
	require.NoError(t, err)
	content, err := json.Marshal(domain.RoomKeyContent{
		Algorithm:  domain.AlgorithmMegolm,
		RoomID:     room,
		SessionID:  fresh.ID(),
		SessionKey: fresh.SessionKey(),
	})
	require.NoError(t, err)
	err = bob.groups.ReceiveRoomKey(ctx, &domain.DecryptedEvent{
		Type:       domain.EventTypeRoomKey,
		Content:    content,
		SenderKey:  alice.acc.IdentityPub,
		SigningKey: alice.acc.SigningPub,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, cryptoerr.ErrOlmStore)
}
