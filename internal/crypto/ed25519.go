package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
)

// GenerateEd25519Identity returns a new random Ed25519 signing key pair.
// The engine does not call it: the clientek leg builds its ephemeral key
// from a seed with crypto/ed25519 directly.
func GenerateEd25519Identity() (priv ed25519.PrivateKey, pub ed25519.PublicKey, err error) {
	pub, priv, err = ed25519.GenerateKey(rand.Reader)
	return priv, pub, err
}

// SignEd25519 signs msg with priv and returns the signature. Used to sign
// the derived shared IV with the ephemeral DH private key in the
// `clientek` handshake step (§4.1).
func SignEd25519(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// VerifyEd25519 verifies sig over msg with pub. The engine does not call
// it: the handshake does not check the server's `proof` field.
func VerifyEd25519(pub ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pub, msg, sig)
}
