package ratchet_test

import (
	"bytes"
	"errors"
	"testing"

	"olmcore/internal/protocol/ratchet"
)

type sealed struct {
	h  ratchet.Header
	ct []byte
}

// newPair returns initiator and responder states that share a handshake secret. The
// responder learns the initiator's ratchet key from the first header, as in a pre-key
// message.
func newPair(t *testing.T) (a, b *ratchet.State) {
	t.Helper()
	rk := bytes.Repeat([]byte{0x42}, 32)
	ck := bytes.Repeat([]byte{0x24}, 32)

	a, err := ratchet.InitAsInitiator(rk, ck)
	if err != nil {
		t.Fatalf("InitAsInitiator: %v", err)
	}
	b = ratchet.InitAsResponder(rk, ck, a.SelfPub)
	return a, b
}

func encrypt(t *testing.T, st *ratchet.State, msg string) sealed {
	t.Helper()
	h, ct, err := ratchet.Encrypt(st, []byte("ad"), []byte(msg))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return sealed{h: h, ct: ct}
}

func decrypt(t *testing.T, st *ratchet.State, m sealed, want string) {
	t.Helper()
	pt, err := ratchet.Decrypt(st, []byte("ad"), m.h, m.ct)
	if err != nil {
		t.Fatalf("Decrypt(%q): %v", want, err)
	}
	if string(pt) != want {
		t.Fatalf("got %q, want %q", pt, want)
	}
}

func TestConversation(t *testing.T) {
	a, b := newPair(t)

	decrypt(t, b, encrypt(t, a, "a1"), "a1")
	decrypt(t, b, encrypt(t, a, "a2"), "a2")

	reply := encrypt(t, b, "b1")
	if reply.h.RatchetKey == a.SelfPub {
		t.Fatal("responder must send with its own ratchet key")
	}
	decrypt(t, a, reply, "b1")

	next := encrypt(t, a, "a3")
	if next.h.PrevCount != 2 {
		t.Fatalf("want PrevCount 2, got %d", next.h.PrevCount)
	}
	decrypt(t, b, next, "a3")
	decrypt(t, a, encrypt(t, b, "b2"), "b2")
}

func TestOutOfOrderAcrossRatchetSteps(t *testing.T) {
	a, b := newPair(t)

	m1 := encrypt(t, a, "one")
	m2 := encrypt(t, a, "two")
	m3 := encrypt(t, a, "three")

	decrypt(t, b, m3, "three")
	decrypt(t, a, encrypt(t, b, "reply"), "reply")
	m4 := encrypt(t, a, "four")

	decrypt(t, b, m4, "four")
	decrypt(t, b, m1, "one")
	decrypt(t, b, m2, "two")
}

func TestReplayRejectedAndStateUntouched(t *testing.T) {
	a, b := newPair(t)

	m := encrypt(t, a, "once")
	decrypt(t, b, m, "once")

	before := b.Clone()
	if _, err := ratchet.Decrypt(b, []byte("ad"), m.h, m.ct); !errors.Is(err, ratchet.ErrMessageKeyNotFound) {
		t.Fatalf("want ErrMessageKeyNotFound, got %v", err)
	}
	if b.RecvIndex != before.RecvIndex || !bytes.Equal(b.RecvChain, before.RecvChain) {
		t.Fatal("failed decrypt changed state")
	}
}

func TestReplayFromClosedChainIsKeyNotFound(t *testing.T) {
	a, b := newPair(t)

	old := encrypt(t, a, "first")
	decrypt(t, b, old, "first")
	decrypt(t, a, encrypt(t, b, "reply"), "reply")
	decrypt(t, b, encrypt(t, a, "second"), "second")

	if _, err := ratchet.Decrypt(b, []byte("ad"), old.h, old.ct); !errors.Is(err, ratchet.ErrMessageKeyNotFound) {
		t.Fatalf("want ErrMessageKeyNotFound, got %v", err)
	}
	decrypt(t, b, encrypt(t, a, "third"), "third")
}

func TestTamperedMessageLeavesStateUntouched(t *testing.T) {
	a, b := newPair(t)

	encrypt(t, a, "skipped")
	m := encrypt(t, a, "real")
	bad := append([]byte(nil), m.ct...)
	bad[0] ^= 0xff

	before := b.Clone()
	if _, err := ratchet.Decrypt(b, []byte("ad"), m.h, bad); err != ratchet.ErrDecrypt {
		t.Fatalf("want ErrDecrypt, got %v", err)
	}
	if len(b.Skipped) != len(before.Skipped) || b.RecvIndex != before.RecvIndex {
		t.Fatal("failed decrypt changed state")
	}
	decrypt(t, b, m, "real")
}

func TestTooFarAhead(t *testing.T) {
	a, b := newPair(t)
	m := encrypt(t, a, "x")
	m.h.Index = ratchet.MaxSkip + 5
	if _, err := ratchet.Decrypt(b, []byte("ad"), m.h, m.ct); err == nil {
		t.Fatal("want error for message too far ahead")
	}
}

func TestCloneIsDeep(t *testing.T) {
	a, _ := newPair(t)
	c := a.Clone()
	encrypt(t, c, "x")
	if a.SendIndex != 0 || bytes.Equal(a.SendChain, c.SendChain) {
		t.Fatal("clone shares state with original")
	}
}
