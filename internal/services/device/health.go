package device

import (
	"sync"

	"olmcore/internal/domain"
)

// Health summarises the state of the sessions with one remote curve key.
type Health int

const (
	HealthNoSession Health = iota
	HealthHealthy
	HealthWedged
)

func (h Health) String() string {
	switch h {
	case HealthNoSession:
		return "no_session"
	case HealthHealthy:
		return "healthy"
	case HealthWedged:
		return "wedged"
	default:
		return "unknown"
	}
}

// wedgeTracker counts consecutive decryption failures per remote curve key.
type wedgeTracker struct {
	mu       sync.Mutex
	failures map[domain.Curve25519Public]int
	wedged   map[domain.Curve25519Public]bool
}

func newWedgeTracker() *wedgeTracker {
	return &wedgeTracker{
		failures: make(map[domain.Curve25519Public]int),
		wedged:   make(map[domain.Curve25519Public]bool),
	}
}

// fail records a failure and returns the consecutive failure count.
func (w *wedgeTracker) fail(key domain.Curve25519Public) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[key]++
	return w.failures[key]
}

func (w *wedgeTracker) markWedged(key domain.Curve25519Public) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wedged[key] = true
}

// reset clears both the failure count and the wedged flag.
func (w *wedgeTracker) reset(key domain.Curve25519Public) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.failures, key)
	delete(w.wedged, key)
}

func (w *wedgeTracker) isWedged(key domain.Curve25519Public) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wedged[key]
}
