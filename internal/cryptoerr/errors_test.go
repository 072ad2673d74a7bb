package cryptoerr_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olmcore/internal/cryptoerr"
)

func TestEventErrorIsMatchesByKind(t *testing.T) {
	err := cryptoerr.OlmEventErr(cryptoerr.NewMissingField("sender"))

	assert.True(t, errors.Is(err, cryptoerr.ErrMissingField))
	assert.True(t, errors.Is(err, cryptoerr.NewMissingField("sender")))
	assert.False(t, errors.Is(err, cryptoerr.NewMissingField("recipient")))
	assert.False(t, errors.Is(err, cryptoerr.ErrMissmatchedSender))
	assert.Contains(t, err.Error(), "sender")
}

func TestOlmErrorKeepsCauseChain(t *testing.T) {
	cause := errors.New("bad mac")
	err := fmt.Errorf("decrypt: %w", cryptoerr.Olm(cryptoerr.OlmSession, cause))

	assert.True(t, errors.Is(err, cryptoerr.ErrOlmSession))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, cryptoerr.ErrSessionWedged))

	var olmErr *cryptoerr.OlmError
	require.True(t, errors.As(err, &olmErr))
	assert.Equal(t, cryptoerr.OlmSession, olmErr.Kind)
}

func TestStoreErrorWrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := cryptoerr.Megolm(cryptoerr.MegolmStore, cryptoerr.Store("save outbound", cause))

	assert.True(t, errors.Is(err, cryptoerr.ErrMegolmStore))
	assert.True(t, errors.Is(err, cause))

	var storeErr *cryptoerr.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "save outbound", storeErr.Op)
	assert.Nil(t, cryptoerr.Store("noop", nil))
}

func TestKindLabels(t *testing.T) {
	cases := map[string]error{
		"missing_session":       cryptoerr.ErrMegolmMissingSession,
		"session_wedged":        cryptoerr.ErrSessionWedged,
		"missmatched_sender":    cryptoerr.MegolmEventErr(cryptoerr.ErrMissmatchedSender),
		"unsupported_algorithm": cryptoerr.OlmEventErr(cryptoerr.ErrUnsupportedAlgorithm),
		"store":                 cryptoerr.Olm(cryptoerr.OlmStore, errors.New("x")),
		"cancelled":             fmt.Errorf("lock: %w", context.Canceled),
		"none":                  nil,
	}
	for want, err := range cases {
		assert.Equal(t, want, cryptoerr.Kind(err))
	}
}

func TestStoreFailureKeepsCancellationUntyped(t *testing.T) {
	cause := errors.New("disk full")
	err := cryptoerr.OlmStoreFailure(cryptoerr.Store("save session", cause))
	assert.ErrorIs(t, err, cryptoerr.ErrOlmStore)
	assert.ErrorIs(t, err, cause)

	err = cryptoerr.MegolmStoreFailure(cryptoerr.Store("load", cause))
	assert.ErrorIs(t, err, cryptoerr.ErrMegolmStore)

	for _, ctxErr := range []error{context.Canceled, context.DeadlineExceeded} {
		err = cryptoerr.OlmStoreFailure(cryptoerr.Store("load", ctxErr))
		assert.ErrorIs(t, err, ctxErr)
		assert.NotErrorIs(t, err, cryptoerr.ErrOlmStore)

		err = cryptoerr.MegolmStoreFailure(ctxErr)
		assert.ErrorIs(t, err, ctxErr)
		assert.NotErrorIs(t, err, cryptoerr.ErrMegolmStore)
	}
}
