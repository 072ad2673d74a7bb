package pickle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olmcore/internal/pickle"
)

type state struct {
	Counter uint32 `json:"counter"`
	Secret  []byte `json:"secret"`
}

func TestSealOpen(t *testing.T) {
	key, err := pickle.NewKey()
	require.NoError(t, err)

	in := state{Counter: 7, Secret: []byte("ratchet")}
	blob, err := pickle.Seal(key, "test.state", in)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "ratchet")

	var out state
	require.NoError(t, pickle.Open(key, "test.state", blob, &out))
	assert.Equal(t, in, out)
}

func TestOpenRejectsWrongKeyOrKind(t *testing.T) {
	key, err := pickle.NewKey()
	require.NoError(t, err)
	other, err := pickle.NewKey()
	require.NoError(t, err)

	blob, err := pickle.Seal(key, "a", state{Counter: 1})
	require.NoError(t, err)

	var out state
	assert.ErrorIs(t, pickle.Open(other, "a", blob, &out), pickle.ErrCorrupt)
	assert.ErrorIs(t, pickle.Open(key, "b", blob, &out), pickle.ErrCorrupt)
	assert.ErrorIs(t, pickle.Open(key, "a", []byte("garbage"), &out), pickle.ErrCorrupt)
}

func TestWrapUnwrapKey(t *testing.T) {
	params := pickle.ScryptParams{N: 1 << 10, R: 8, P: 1}
	key, err := pickle.NewKey()
	require.NoError(t, err)

	blob, err := pickle.WrapKey("correct horse", key, params)
	require.NoError(t, err)

	got, err := pickle.UnwrapKey("correct horse", blob)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = pickle.UnwrapKey("battery staple", blob)
	assert.ErrorIs(t, err, pickle.ErrWrongPassphrase)
}
