// Package metrics exposes Prometheus counters for session manager outcomes.
//
// A nil *Metrics is valid and records nothing, so managers built without metrics need no
// special casing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"olmcore/internal/cryptoerr"
)

// Families used as the "family" label.
const (
	FamilyOlm    = "olm"
	FamilyMegolm = "megolm"
)

// Metrics holds the collectors for one olmcore instance.
type Metrics struct {
	Encrypted       *prometheus.CounterVec
	Decrypted       *prometheus.CounterVec
	SessionsCreated *prometheus.CounterVec
	Wedged          prometheus.Counter
	Rotations       prometheus.Counter
	KeysShared      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Encrypted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olmcore",
			Name:      "encrypt_total",
			Help:      "Encryption attempts by family and result.",
		}, []string{"family", "result"}),
		Decrypted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olmcore",
			Name:      "decrypt_total",
			Help:      "Decryption attempts by family and result.",
		}, []string{"family", "result"}),
		SessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olmcore",
			Name:      "sessions_created_total",
			Help:      "Sessions created by family and direction.",
		}, []string{"family", "direction"}),
		Wedged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "olmcore",
			Name:      "olm_sessions_wedged_total",
			Help:      "Olm decryptions that reported a wedged session.",
		}),
		Rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "olmcore",
			Name:      "megolm_rotations_total",
			Help:      "Outbound group sessions replaced by rotation.",
		}),
		KeysShared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olmcore",
			Name:      "megolm_keys_shared_total",
			Help:      "Room key distribution results per device.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Encrypted, m.Decrypted, m.SessionsCreated, m.Wedged, m.Rotations, m.KeysShared)
	}
	return m
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return cryptoerr.Kind(err)
}

// ObserveEncrypt records the outcome of an encryption.
func (m *Metrics) ObserveEncrypt(family string, err error) {
	if m == nil {
		return
	}
	m.Encrypted.WithLabelValues(family, result(err)).Inc()
}

// ObserveDecrypt records the outcome of a decryption.
func (m *Metrics) ObserveDecrypt(family string, err error) {
	if m == nil {
		return
	}
	m.Decrypted.WithLabelValues(family, result(err)).Inc()
	if err != nil && cryptoerr.Kind(err) == "session_wedged" {
		m.Wedged.Inc()
	}
}

// SessionCreated records a new session; direction is "inbound" or "outbound".
func (m *Metrics) SessionCreated(family, direction string) {
	if m == nil {
		return
	}
	m.SessionsCreated.WithLabelValues(family, direction).Inc()
}

// Rotated records an outbound group session rotation.
func (m *Metrics) Rotated() {
	if m == nil {
		return
	}
	m.Rotations.Inc()
}

// KeyShared records one device's room key distribution result.
func (m *Metrics) KeyShared(err error) {
	if m == nil {
		return
	}
	m.KeysShared.WithLabelValues(result(err)).Inc()
}
