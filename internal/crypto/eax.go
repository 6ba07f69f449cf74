package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"errors"
)

// TagSize is the truncated EAX tag length the TS3 wire format uses for the
// packet MAC field (§4.1 "Per-packet encryption").
const TagSize = 8

// ErrAuthFailed is returned by Open when the truncated tag does not verify.
// Per §4.1 a failed tag means the packet must be silently discarded: it is
// the caller's job to drop the packet rather than propagate this as a fatal
// error, except where §7 promotes it to a fatal Crypto error (post-auth MAC
// failure on a non-droppable path).
var ErrAuthFailed = errors.New("crypto: eax authentication failed")

// Seal encrypts plaintext with AES-128 in EAX mode under key and nonce,
// authenticating header as associated data. The TS3 wire format carries the
// truncated tag in a separate MAC field rather than appended to the
// ciphertext, so Seal returns them separately.
func Seal(key, nonce, header, plaintext []byte) (ciphertext []byte, tag [TagSize]byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, tag, err
	}

	n := omac1(block, 0, nonce)
	h := omac1(block, 1, header)

	ciphertext = make([]byte, len(plaintext))
	ctr := cipher.NewCTR(block, n[:])
	ctr.XORKeyStream(ciphertext, plaintext)

	c := omac1(block, 2, ciphertext)

	var full [blockSize]byte
	for i := range full {
		full[i] = n[i] ^ h[i] ^ c[i]
	}
	copy(tag[:], full[:TagSize])
	return ciphertext, tag, nil
}

// Open verifies the truncated EAX tag in constant time and, on success,
// decrypts ciphertext into a freshly allocated buffer. It returns
// ErrAuthFailed on a tag mismatch without touching the ciphertext.
func Open(key, nonce, header, ciphertext []byte, tag [TagSize]byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	n := omac1(block, 0, nonce)
	h := omac1(block, 1, header)
	c := omac1(block, 2, ciphertext)

	var full [blockSize]byte
	for i := range full {
		full[i] = n[i] ^ h[i] ^ c[i]
	}

	if subtle.ConstantTimeCompare(full[:TagSize], tag[:]) != 1 {
		return nil, ErrAuthFailed
	}

	plaintext := make([]byte, len(ciphertext))
	ctr := cipher.NewCTR(block, n[:])
	ctr.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}
