package crypto_test

import (
	"strings"
	"testing"

	"olmcore/internal/crypto"
)

func TestDHAgreement(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateCurve25519()
	if err != nil {
		t.Fatalf("GenerateCurve25519: %v", err)
	}
	bPriv, bPub, err := crypto.GenerateCurve25519()
	if err != nil {
		t.Fatalf("GenerateCurve25519: %v", err)
	}
	ab, err := crypto.DH(aPriv, bPub)
	if err != nil {
		t.Fatalf("DH: %v", err)
	}
	ba, err := crypto.DH(bPriv, aPub)
	if err != nil {
		t.Fatalf("DH: %v", err)
	}
	if ab != ba {
		t.Fatal("shared secrets differ")
	}
}

func TestEd25519SignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	if crypto.Ed25519PublicFromPrivate(priv) != pub {
		t.Fatal("public key not embedded in private key")
	}
	sig := crypto.SignEd25519(priv, []byte("payload"))
	if !crypto.VerifyEd25519(pub, []byte("payload"), sig) {
		t.Fatal("valid signature rejected")
	}
	if crypto.VerifyEd25519(pub, []byte("payload!"), sig) {
		t.Fatal("signature over different message accepted")
	}
	if crypto.VerifyEd25519(pub, []byte("payload"), sig[:10]) {
		t.Fatal("truncated signature accepted")
	}
}

func TestB64RoundTrip(t *testing.T) {
	in := []byte{0xff, 0x00, 0x10}
	s := crypto.B64(in)
	if s != "/wAQ" {
		t.Fatalf("got %q", s)
	}
	out, err := crypto.UnB64(s)
	if err != nil || string(out) != string(in) {
		t.Fatalf("UnB64(%q) = %x, %v", s, out, err)
	}
	if _, err := crypto.UnB64("/wA="); err != nil {
		t.Fatalf("padded input rejected: %v", err)
	}
}

func TestFingerprintGroups(t *testing.T) {
	_, pub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	groups := strings.Split(crypto.Fingerprint(pub), " ")
	if len(groups) != 11 { // 43 base64 characters
		t.Fatalf("got %d groups, want 11", len(groups))
	}
	for _, g := range groups[:10] {
		if len(g) != 4 {
			t.Fatalf("group %q is not four characters", g)
		}
	}
	if got := strings.Join(groups, ""); got != pub.String() {
		t.Fatalf("fingerprint does not spell the key: %s", got)
	}
}
