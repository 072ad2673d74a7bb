package store

import (
	"sort"

	"olmcore/internal/domain"
)

// SortSessions orders Olm session records most recently used first. Ties fall back to
// creation time and then session id so the order is stable across backends.
func SortSessions(recs []domain.DeviceSessionRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.LastUsed.Equal(b.LastUsed) {
			return a.LastUsed.After(b.LastUsed)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.SessionID < b.SessionID
	})
}

// InboundKey is the composite key of an inbound group session.
func InboundKey(room domain.RoomID, senderKey domain.Curve25519Public, id domain.SessionID) string {
	return room.String() + "|" + senderKey.String() + "|" + id.String()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneAccount(r domain.AccountRecord) *domain.AccountRecord {
	r.Pickle = cloneBytes(r.Pickle)
	return &r
}

func cloneSession(r domain.DeviceSessionRecord) domain.DeviceSessionRecord {
	r.Pickle = cloneBytes(r.Pickle)
	return r
}

func cloneInbound(r domain.InboundGroupSessionRecord) *domain.InboundGroupSessionRecord {
	r.Pickle = cloneBytes(r.Pickle)
	return &r
}

func cloneOutbound(r domain.OutboundGroupSessionRecord) *domain.OutboundGroupSessionRecord {
	r.Pickle = cloneBytes(r.Pickle)
	if r.SharedWith != nil {
		shared := make(map[string]domain.Curve25519Public, len(r.SharedWith))
		for k, v := range r.SharedWith {
			shared[k] = v
		}
		r.SharedWith = shared
	}
	return &r
}

func cloneDevice(d domain.DeviceKeys) *domain.DeviceKeys {
	d.Algorithms = append([]string(nil), d.Algorithms...)
	keys := make(map[string]string, len(d.Keys))
	for k, v := range d.Keys {
		keys[k] = v
	}
	d.Keys = keys
	if d.Signatures != nil {
		sigs := make(map[domain.UserID]map[string]string, len(d.Signatures))
		for u, m := range d.Signatures {
			inner := make(map[string]string, len(m))
			for k, v := range m {
				inner[k] = v
			}
			sigs[u] = inner
		}
		d.Signatures = sigs
	}
	return &d
}
