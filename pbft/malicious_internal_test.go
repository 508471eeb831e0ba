package pbft

import "testing"

func TestWrongDigestIsDeterministicAndDiffers(t *testing.T) {
	d := Digest("x", "y", 1)
	w1 := wrongDigest(d)
	w2 := wrongDigest(d)

	if w1 != w2 {
		t.Fatalf("wrongDigest not deterministic: %q vs %q", w1, w2)
	}
	if w1 == d {
		t.Fatalf("wrongDigest returned the correct digest unchanged")
	}
	if len(w1) != len(d) {
		t.Fatalf("wrongDigest changed digest length: %d vs %d", len(w1), len(d))
	}
}

func TestWrongDigestEmptyInput(t *testing.T) {
	if got := wrongDigest(""); got != "" {
		t.Fatalf("wrongDigest(\"\") = %q, want empty", got)
	}
}
