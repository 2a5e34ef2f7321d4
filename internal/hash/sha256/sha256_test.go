package sha256

import "testing"

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New("")
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	again, _ := h.Hash([]byte("hello world"))
	if again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}

func TestHasherSaltChangesDigest(t *testing.T) {
	t.Parallel()

	plain, _ := New("").Hash([]byte("ip:1.2.3.4|ua:TestAgent/1.0"))
	salted, _ := New("pepper").Hash([]byte("ip:1.2.3.4|ua:TestAgent/1.0"))
	other, _ := New("other").Hash([]byte("ip:1.2.3.4|ua:TestAgent/1.0"))
	if salted == plain || salted == other {
		t.Fatalf("expected salt to change the digest: plain=%s salted=%s other=%s", plain, salted, other)
	}
	if len(salted) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(salted))
	}
}
