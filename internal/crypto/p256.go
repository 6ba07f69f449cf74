package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/x509"
	"errors"
)

var errUnsupportedKeyType = errors.New("crypto: omega key is not a P-256 public key")

// GenerateP256Identity creates the ephemeral NIST P-256 keypair carried in
// the historical `omega` handshake field (§3, §4.1 Init4). Modern TS3
// servers do not rely on this leg for confidentiality -- the session key
// comes from the Ed25519 DH in initivexpand2/clientek -- so this is
// verify-optional per §4.1's `initivexpand2` notes.
func GenerateP256Identity() (*ecdh.PrivateKey, error) {
	return ecdh.P256().GenerateKey(rand.Reader)
}

// MarshalP256PublicKeyDER returns the base64-ready DER encoding of pub, the
// form the `omega` parameter expects.
func MarshalP256PublicKeyDER(pub *ecdh.PublicKey) ([]byte, error) {
	return x509.MarshalPKIXPublicKey(pub)
}

// ParseP256PublicKeyDER parses a DER-encoded SubjectPublicKeyInfo carrying a
// P-256 public key, as received in a server's `omega` field.
func ParseP256PublicKeyDER(der []byte) (*ecdh.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	// crypto/x509 returns an *ecdsa.PublicKey for EC keys; convert via the
	// ECDH bridge so callers get a usable crypto/ecdh key.
	type ecdhConvertible interface {
		ECDH() (*ecdh.PublicKey, error)
	}
	if conv, ok := key.(ecdhConvertible); ok {
		return conv.ECDH()
	}
	return nil, errUnsupportedKeyType
}
