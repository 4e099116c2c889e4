package keys

import "testing"

func TestGenerateSignVerify(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	msg := []byte("hoist-property host=address target=city")
	sig := kp.Sign(msg)
	if !Verify(kp.Peer(), msg, sig) {
		t.Fatal("expected signature to verify")
	}
	if Verify(kp.Peer(), []byte("tampered"), sig) {
		t.Fatal("expected tampered message to fail verification")
	}
}

func TestFromSeedDeterministic(t *testing.T) {
	var seed [32]byte
	for i := range seed {
		seed[i] = byte(i)
	}
	a := FromSeed(seed)
	b := FromSeed(seed)
	if a.Peer() != b.Peer() {
		t.Fatal("same seed must derive the same peer id")
	}
	sig := a.Sign([]byte("x"))
	if !Verify(b.Peer(), []byte("x"), sig) {
		t.Fatal("expected cross-instance verification to succeed")
	}
}
