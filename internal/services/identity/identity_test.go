package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olmcore/internal/domain"
	"olmcore/internal/pickle"
	"olmcore/internal/services/identity"
	"olmcore/internal/signatures"
	"olmcore/internal/store"
)

func newService(t *testing.T) (*identity.Service, *store.Memory, pickle.Key) {
	t.Helper()
	key, err := pickle.NewKey()
	require.NoError(t, err)
	mem := store.NewMemory()
	return identity.New(mem, key), mem, key
}

func TestCreateAndReload(t *testing.T) {
	ctx := context.Background()
	svc, mem, key := newService(t)

	acc, fp, err := svc.Create(ctx, "@alice:x", "ALICE", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, fp)
	assert.Len(t, acc.UnpublishedOneTimeKeys(), 5)

	_, _, err = svc.Create(ctx, "@alice:x", "ALICE", 5)
	assert.ErrorIs(t, err, identity.ErrAccountExists)

	rec, err := mem.LoadAccount(ctx)
	require.NoError(t, err)
	assert.NotContains(t, string(rec.Pickle), acc.IdentityPub.String(), "pickle must be sealed")

	reloaded, err := identity.New(mem, key).Account(ctx)
	require.NoError(t, err)
	assert.Equal(t, acc.IdentityPub, reloaded.IdentityPub)
	assert.Equal(t, acc.SigningPub, reloaded.SigningPub)
	assert.Len(t, reloaded.OneTimeKeys, 5)
}

func TestAccountMissing(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Account(context.Background())
	assert.ErrorIs(t, err, identity.ErrNoAccount)
}

func TestDeviceKeysAreSelfSigned(t *testing.T) {
	acc, err := identity.NewAccount("@alice:x", "ALICE")
	require.NoError(t, err)

	keys, err := acc.DeviceKeys()
	require.NoError(t, err)
	require.NoError(t, signatures.VerifyDeviceKeys(keys))

	curve, err := keys.IdentityKey()
	require.NoError(t, err)
	assert.Equal(t, acc.IdentityPub, curve)
}

func TestSignedOneTimeKeys(t *testing.T) {
	acc, err := identity.NewAccount("@alice:x", "ALICE")
	require.NoError(t, err)
	require.NoError(t, acc.GenerateOneTimeKeys(2))

	signed, err := acc.SignedOneTimeKeys()
	require.NoError(t, err)
	require.Len(t, signed, 2)
	for _, v := range signed {
		require.NoError(t, signatures.Verify(v, acc.UserID, domain.KeyID("ed25519", acc.DeviceID), acc.SigningPub))
	}

	acc.MarkKeysAsPublished()
	assert.Empty(t, acc.UnpublishedOneTimeKeys())
	assert.Len(t, acc.OneTimeKeys, 2)
}

func TestOneTimeKeyPoolIsBounded(t *testing.T) {
	acc, err := identity.NewAccount("@alice:x", "ALICE")
	require.NoError(t, err)
	require.NoError(t, acc.GenerateOneTimeKeys(identity.MaxOneTimeKeys))
	first := acc.OneTimeKeys[0].Pub
	require.NoError(t, acc.GenerateOneTimeKeys(1))

	assert.Len(t, acc.OneTimeKeys, identity.MaxOneTimeKeys)
	_, err = acc.OneTimeKey(first)
	assert.ErrorIs(t, err, identity.ErrUnknownOneTimeKey)
}

func TestConsumeOneTimeKey(t *testing.T) {
	ctx := context.Background()
	svc, mem, key := newService(t)
	acc, _, err := svc.Create(ctx, "@alice:x", "ALICE", 1)
	require.NoError(t, err)
	pub := acc.OneTimeKeys[0].Pub

	priv, err := svc.OneTimeKey(ctx, pub)
	require.NoError(t, err)
	assert.Equal(t, acc.OneTimeKeys[0].Priv, priv)

	require.NoError(t, svc.ConsumeOneTimeKey(ctx, pub))
	_, err = svc.OneTimeKey(ctx, pub)
	assert.ErrorIs(t, err, identity.ErrUnknownOneTimeKey)
	assert.ErrorIs(t, svc.ConsumeOneTimeKey(ctx, pub), identity.ErrUnknownOneTimeKey)

	// Consumption is durable.
	_, err = identity.New(mem, key).OneTimeKey(ctx, pub)
	assert.ErrorIs(t, err, identity.ErrUnknownOneTimeKey)
}

func TestCheckPassphrase(t *testing.T) {
	assert.ErrorIs(t, identity.CheckPassphrase("short"), identity.ErrWeakPassphrase)
	assert.ErrorIs(t, identity.CheckPassphrase("alllowercaseletters"), identity.ErrWeakPassphrase)
	assert.NoError(t, identity.CheckPassphrase("Correct-Horse-42"))
}
