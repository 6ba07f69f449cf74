package crypto

import "testing"

func TestEAXRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i * 7)
	}
	nonce := []byte("0123456789ab")
	header := []byte("packet-header")
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	ciphertext, tag, err := Seal(key, nonce, header, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(ciphertext) != len(plaintext) {
		t.Fatalf("ciphertext length = %d, want %d", len(ciphertext), len(plaintext))
	}

	got, err := Open(key, nonce, header, ciphertext, tag)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("Open = %q, want %q", got, plaintext)
	}
}

func TestEAXEmptyPlaintext(t *testing.T) {
	key := make([]byte, 16)
	nonce := []byte("nonce-12-bytes")
	header := []byte("hdr")

	ciphertext, tag, err := Seal(key, nonce, header, nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(ciphertext) != 0 {
		t.Fatalf("ciphertext length = %d, want 0", len(ciphertext))
	}
	got, err := Open(key, nonce, header, ciphertext, tag)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("plaintext length = %d, want 0", len(got))
	}
}

func TestEAXTagDetectsCiphertextTamper(t *testing.T) {
	key := make([]byte, 16)
	nonce := []byte("nonce-12-bytes")
	header := []byte("hdr")
	plaintext := []byte("authenticate me")

	ciphertext, tag, err := Seal(key, nonce, header, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	ciphertext[0] ^= 0x01

	if _, err := Open(key, nonce, header, ciphertext, tag); err != ErrAuthFailed {
		t.Fatalf("Open after ciphertext tamper = %v, want ErrAuthFailed", err)
	}
}

func TestEAXTagDetectsHeaderTamper(t *testing.T) {
	key := make([]byte, 16)
	nonce := []byte("nonce-12-bytes")
	header := []byte("hdr")
	plaintext := []byte("authenticate me")

	ciphertext, tag, err := Seal(key, nonce, header, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tamperedHeader := []byte("HDR")
	if _, err := Open(key, nonce, tamperedHeader, ciphertext, tag); err != ErrAuthFailed {
		t.Fatalf("Open after header tamper = %v, want ErrAuthFailed", err)
	}
}

func TestEAXTagDetectsNonceTamper(t *testing.T) {
	key := make([]byte, 16)
	nonce := []byte("nonce-12-bytes")
	header := []byte("hdr")
	plaintext := []byte("authenticate me")

	ciphertext, tag, err := Seal(key, nonce, header, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	otherNonce := []byte("nonce-ab-bytes")
	if _, err := Open(key, otherNonce, header, ciphertext, tag); err != ErrAuthFailed {
		t.Fatalf("Open after nonce tamper = %v, want ErrAuthFailed", err)
	}
}

func TestEAXDifferentNoncesDifferentCiphertext(t *testing.T) {
	key := make([]byte, 16)
	header := []byte("hdr")
	plaintext := []byte("same plaintext, different nonce")

	c1, _, err := Seal(key, []byte("nonce-one-12"), header, plaintext)
	if err != nil {
		t.Fatalf("Seal 1: %v", err)
	}
	c2, _, err := Seal(key, []byte("nonce-two-12"), header, plaintext)
	if err != nil {
		t.Fatalf("Seal 2: %v", err)
	}
	if string(c1) == string(c2) {
		t.Fatalf("ciphertexts under distinct nonces collided")
	}
}
