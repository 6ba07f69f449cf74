package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/sha512"
	"errors"

	"filippo.io/edwards25519"
)

// ErrInvalidPoint is returned when a 32-byte value does not decode to a
// point on the Ed25519 curve.
var ErrInvalidPoint = errors.New("crypto: invalid ed25519 point")

// ClampEd25519Scalar applies the standard Ed25519 private-scalar clamp to
// the first 32 bytes of h in place: h[0] &= 0xF8; h[31] &= 0x3F; h[31] |= 0x40.
// h must be at least 32 bytes long.
func ClampEd25519Scalar(h []byte) {
	h[0] &= 0xF8
	h[31] &= 0x3F
	h[31] |= 0x40
}

// ScalarFromClamped reduces a clamped 32-byte little-endian value modulo the
// Ed25519 group order. A zero scalar is not usable as a DH exponent, so per
// §4.3.2 it is replaced with 1.
func ScalarFromClamped(clamped []byte) (*edwards25519.Scalar, error) {
	s, err := edwards25519.NewScalar().SetBytesWithClamping(clamped)
	if err != nil {
		return nil, err
	}
	if scalarIsZero(s) {
		return edwards25519.NewScalar().SetCanonicalBytes(oneScalarBytes())
	}
	return s, nil
}

// GenerateEphemeralScalar returns a fresh random clamped Ed25519 scalar and
// its corresponding public point, for use as the client's ephemeral DH
// keypair in the `clientek` handshake leg.
func GenerateEphemeralScalar() (priv *edwards25519.Scalar, pub [32]byte, err error) {
	var seed [32]byte
	if _, err = rand.Read(seed[:]); err != nil {
		return nil, pub, err
	}
	priv, err = edwards25519.NewScalar().SetBytesWithClamping(seed[:])
	if err != nil {
		return nil, pub, err
	}
	p := new(edwards25519.Point).ScalarBaseMult(priv)
	copy(pub[:], p.Bytes())
	return priv, pub, nil
}

// EdDH computes the Ed25519 Diffie-Hellman product: priv scalar-multiplied
// by the decompression of peerPub. Per §4.3.3 this is not X25519 -- the
// curve is Ed25519 and the encoding is Ed25519-compressed. An invalid peer
// point falls back to a random 32-byte value so the handshake fails later
// at the clientek proof step rather than surfacing a distinguishable error.
func EdDH(priv *edwards25519.Scalar, peerPub [32]byte) [32]byte {
	var out [32]byte
	p, err := new(edwards25519.Point).SetBytes(peerPub[:])
	if err != nil {
		_, _ = rand.Read(out[:])
		return out
	}
	shared := new(edwards25519.Point).ScalarMult(priv, p)
	copy(out[:], shared.Bytes())
	return out
}

// AddPoint decodes and adds peerPub (scaled by scalar) onto acc, returning
// the updated accumulator. Used by the license-key point-chain derivation
// (§4.3.2). Invalid public keys, including non-canonical encodings, are
// skipped (not fatal): acc is returned unchanged together with ok=false.
func AddPoint(acc *edwards25519.Point, scalar *edwards25519.Scalar, pubBytes []byte) (result *edwards25519.Point, ok bool) {
	q, err := new(edwards25519.Point).SetBytes(pubBytes)
	if err != nil || !bytes.Equal(q.Bytes(), pubBytes) {
		return acc, false
	}
	term := new(edwards25519.Point).ScalarMult(scalar, q)
	return new(edwards25519.Point).Add(acc, term), true
}

// ScalarFromSHA512 hashes msg with SHA-512, clamps the low 32 bytes per
// Ed25519, and reduces modulo the group order per §4.3.2.
func ScalarFromSHA512(msg []byte) (*edwards25519.Scalar, error) {
	sum := sha512.Sum512(msg)
	clamped := append([]byte(nil), sum[:32]...)
	ClampEd25519Scalar(clamped)
	return ScalarFromClamped(clamped)
}

func scalarIsZero(s *edwards25519.Scalar) bool {
	b := s.Bytes()
	var v byte
	for _, x := range b {
		v |= x
	}
	return v == 0
}

func oneScalarBytes() []byte {
	b := make([]byte, 32)
	b[0] = 1
	return b
}
