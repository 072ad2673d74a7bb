package tripledh_test

import (
	"bytes"
	"testing"

	"olmcore/internal/crypto"
	"olmcore/internal/domain"
	"olmcore/internal/protocol/tripledh"
)

type pair struct {
	priv domain.Curve25519Private
	pub  domain.Curve25519Public
}

func newPair(t *testing.T) pair {
	t.Helper()
	priv, pub, err := crypto.GenerateCurve25519()
	if err != nil {
		t.Fatalf("GenerateCurve25519: %v", err)
	}
	return pair{priv: priv, pub: pub}
}

func TestInitiatorAndResponderAgree(t *testing.T) {
	alice := newPair(t)
	base := newPair(t)
	bob := newPair(t)
	oneTime := newPair(t)

	a, err := tripledh.Initiator(alice.priv, base.priv, bob.pub, oneTime.pub)
	if err != nil {
		t.Fatalf("Initiator: %v", err)
	}
	b, err := tripledh.Responder(bob.priv, oneTime.priv, alice.pub, base.pub)
	if err != nil {
		t.Fatalf("Responder: %v", err)
	}
	if !bytes.Equal(a.RootKey, b.RootKey) || !bytes.Equal(a.ChainKey, b.ChainKey) {
		t.Fatal("handshake secrets differ")
	}
	if bytes.Equal(a.RootKey, a.ChainKey) {
		t.Fatal("root and chain key must differ")
	}
}

func TestDifferentOneTimeKeyDiverges(t *testing.T) {
	alice := newPair(t)
	base := newPair(t)
	bob := newPair(t)
	otk1 := newPair(t)
	otk2 := newPair(t)

	a, err := tripledh.Initiator(alice.priv, base.priv, bob.pub, otk1.pub)
	if err != nil {
		t.Fatalf("Initiator: %v", err)
	}
	b, err := tripledh.Responder(bob.priv, otk2.priv, alice.pub, base.pub)
	if err != nil {
		t.Fatalf("Responder: %v", err)
	}
	if bytes.Equal(a.RootKey, b.RootKey) {
		t.Fatal("secrets must differ for a different one-time key")
	}
}

func TestSessionIDDependsOnAllKeys(t *testing.T) {
	i, b, o := newPair(t).pub, newPair(t).pub, newPair(t).pub
	id := tripledh.SessionID(i, b, o)
	if id != tripledh.SessionID(i, b, o) {
		t.Fatal("session id not deterministic")
	}
	if id == tripledh.SessionID(b, i, o) || id == tripledh.SessionID(i, o, b) {
		t.Fatal("session id must depend on key order")
	}
	if len(id) != 43 {
		t.Fatalf("want 43 char unpadded base64, got %d", len(id))
	}
}
