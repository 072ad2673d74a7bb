package megolm

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"olmcore/internal/crypto"
)

const (
	partSize   = 32
	parts      = 4
	ratchetLen = partSize * parts
)

// Ratchet is the Megolm hash ratchet at Counter.
type Ratchet struct {
	Data    [parts][partSize]byte
	Counter uint32
}

// NewRatchet returns a ratchet with random parts at index zero.
func NewRatchet() (Ratchet, error) {
	var r Ratchet
	for i := range r.Data {
		if _, err := rand.Read(r.Data[i][:]); err != nil {
			return Ratchet{}, err
		}
	}
	return r, nil
}

// rehash derives part to from part from.
func (r *Ratchet) rehash(from, to int) {
	m := hmac.New(sha256.New, r.Data[from][:])
	m.Write([]byte{byte(to)})
	copy(r.Data[to][:], m.Sum(nil))
}

// Advance moves the ratchet forward by one.
func (r *Ratchet) Advance() {
	mask := uint32(0x00FFFFFF)
	h := 0
	r.Counter++
	// Find the most significant byte of the counter that changed.
	for h < parts {
		if r.Counter&mask == 0 {
			break
		}
		h++
		mask >>= 8
	}
	for i := parts - 1; i >= h; i-- {
		r.rehash(h, i)
	}
}

// AdvanceTo moves the ratchet forward to index n. It returns an error if n is behind
// the current counter.
func (r *Ratchet) AdvanceTo(n uint32) error {
	if n < r.Counter {
		return fmt.Errorf("megolm: cannot advance ratchet backwards from %d to %d", r.Counter, n)
	}
	for j := 0; j < parts; j++ {
		shift := uint((parts - 1 - j) * 8)
		mask := ^uint32(0) << shift

		steps := ((n >> shift) - (r.Counter >> shift)) & 0xff
		if steps == 0 {
			continue
		}
		// Rolling R(j) over the intermediate values only needs R(j) itself; the
		// lower parts are recomputed from the final value.
		for ; steps > 1; steps-- {
			r.rehash(j, j)
		}
		for k := parts - 1; k >= j; k-- {
			r.rehash(j, k)
		}
		r.Counter = n & mask
	}
	return nil
}

// MarshalBinary encodes the ratchet as index(4) | parts(128).
func (r Ratchet) MarshalBinary() ([]byte, error) {
	out := make([]byte, 4, 4+ratchetLen)
	binary.BigEndian.PutUint32(out, r.Counter)
	for i := range r.Data {
		out = append(out, r.Data[i][:]...)
	}
	return out, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (r *Ratchet) UnmarshalBinary(b []byte) error {
	if len(b) != 4+ratchetLen {
		return fmt.Errorf("megolm: ratchet is %d bytes, want %d", len(b), 4+ratchetLen)
	}
	r.Counter = binary.BigEndian.Uint32(b)
	for i := range r.Data {
		copy(r.Data[i][:], b[4+i*partSize:])
	}
	return nil
}

// MarshalText encodes the ratchet as unpadded base64 for pickles.
func (r Ratchet) MarshalText() ([]byte, error) {
	b, _ := r.MarshalBinary()
	return []byte(crypto.B64(b)), nil
}

// UnmarshalText is the inverse of MarshalText.
func (r *Ratchet) UnmarshalText(text []byte) error {
	b, err := crypto.UnB64(string(text))
	if err != nil {
		return fmt.Errorf("megolm: ratchet: %w", err)
	}
	return r.UnmarshalBinary(b)
}
