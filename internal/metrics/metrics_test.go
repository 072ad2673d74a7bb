package metrics_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"olmcore/internal/cryptoerr"
	"olmcore/internal/metrics"
)

func TestObserveDecrypt(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveDecrypt(metrics.FamilyOlm, nil)
	m.ObserveDecrypt(metrics.FamilyOlm, cryptoerr.ErrSessionWedged)
	m.ObserveDecrypt(metrics.FamilyMegolm, cryptoerr.ErrMegolmMissingSession)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decrypted.WithLabelValues("olm", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decrypted.WithLabelValues("olm", "session_wedged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decrypted.WithLabelValues("megolm", "missing_session")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Wedged))
}

func TestRegistryCollects(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Rotated()
	m.KeyShared(errors.New("boom"))
	m.SessionCreated(metrics.FamilyMegolm, "outbound")

	n, err := testutil.GatherAndCount(reg, "olmcore_megolm_rotations_total", "olmcore_megolm_keys_shared_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KeysShared.WithLabelValues("other")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCreated.WithLabelValues("megolm", "outbound")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveEncrypt(metrics.FamilyOlm, nil)
		m.ObserveDecrypt(metrics.FamilyOlm, nil)
		m.Rotated()
		m.KeyShared(nil)
		m.SessionCreated(metrics.FamilyOlm, "inbound")
	})
}
