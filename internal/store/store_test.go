package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olmcore/internal/domain"
	"olmcore/internal/store"
	"olmcore/internal/store/storetest"
)

func TestMemoryContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.CryptoStore { return store.NewMemory() })
}

func TestFileContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.CryptoStore { return store.NewFile(t.TempDir()) })
}

func TestFileSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := store.NewFile(dir)
	rec := domain.DeviceSessionRecord{SessionID: "sid", SenderKey: domain.Curve25519Public{1}, Pickle: []byte("p")}
	require.NoError(t, first.SaveDeviceSession(ctx, rec))

	second := store.NewFile(dir)
	got, err := second.GetDeviceSessions(ctx, rec.SenderKey)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.Pickle, got[0].Pickle)

	entries, err := os.ReadDir(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files may be left behind")

	info, err := os.Stat(filepath.Join(dir, "sessions", entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileRejectsCorruptData(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "account.json"), []byte("{not json"), 0o600))

	_, err := store.NewFile(dir).LoadAccount(context.Background())
	assert.Error(t, err)
}
