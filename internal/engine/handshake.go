package engine

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"ts3cli/internal/crypto"
)

// clientVersionOffset is the compile-time client-version offset sent in
// Init0/Init2/Init4: the number of seconds between the client build's
// version epoch and 2013-01-01 00:00:00 UTC (§4.1 Init0). It only has to
// be a value the target server's release accepts; it is not itself secret.
const clientVersionOffset uint32 = 1628842984

// handshakeState carries the values threaded across the Init0..Init4 and
// initivexpand2/clientek legs (§4.1 "Handshake — state machine").
type handshakeState struct {
	random0   [4]byte
	random1   [16]byte
	random0r  [4]byte

	x       [64]byte
	n       [64]byte
	level   uint32
	random2 [100]byte
	y       [64]byte

	alpha [10]byte

	p256Priv *ecdh.PrivateKey

	edPriv ed25519.PrivateKey
	edPub  [32]byte

	serverEdPub [32]byte
	beta        []byte
}

// buildInit0 returns the 21-byte Init0 payload (§4.1 Init0): version offset,
// step tag, timestamp and random0 account for 13 bytes; the remaining 8 are
// reserved and sent zeroed, matching the wire server's expected total size.
func buildInit0(hs *handshakeState) ([]byte, error) {
	if _, err := rand.Read(hs.random0[:]); err != nil {
		return nil, err
	}

	payload := make([]byte, 21)
	binary.BigEndian.PutUint32(payload[0:4], clientVersionOffset)
	payload[4] = 0x00 // step tag
	binary.BigEndian.PutUint32(payload[5:9], uint32(time.Now().Unix()))
	copy(payload[9:13], hs.random0[:])
	return payload, nil
}

// parseInit1 validates and extracts Init1's 21-byte payload (§4.1 Init1).
func parseInit1(hs *handshakeState, payload []byte) error {
	if len(payload) != 21 {
		return fmt.Errorf("engine: init1 payload must be 21 bytes, got %d", len(payload))
	}
	if payload[0] != 0x01 {
		return fmt.Errorf("engine: init1 step byte = 0x%02x, want 0x01", payload[0])
	}
	copy(hs.random1[:], payload[1:17])
	copy(hs.random0r[:], payload[17:21])

	if hs.random0r != hs.random0 {
		return fmt.Errorf("engine: init1 random0_r does not match sent random0")
	}
	return nil
}

// buildInit2 returns the 25-byte Init2 payload (§4.1 Init2).
func buildInit2(hs *handshakeState) []byte {
	payload := make([]byte, 0, 25)
	var vb [4]byte
	binary.BigEndian.PutUint32(vb[:], clientVersionOffset)
	payload = append(payload, vb[:]...)
	payload = append(payload, 0x02)
	payload = append(payload, hs.random1[:]...)
	payload = append(payload, hs.random0r[:]...)
	return payload
}

// parseInit3 validates and extracts Init3's 233-byte payload (§4.1 Init3).
func parseInit3(hs *handshakeState, payload []byte) error {
	if len(payload) != 233 {
		return fmt.Errorf("engine: init3 payload must be 233 bytes, got %d", len(payload))
	}
	if payload[0] != 0x03 {
		return fmt.Errorf("engine: init3 step byte = 0x%02x, want 0x03", payload[0])
	}
	copy(hs.x[:], payload[1:65])
	copy(hs.n[:], payload[65:129])
	hs.level = binary.BigEndian.Uint32(payload[129:133])
	copy(hs.random2[:], payload[133:233])
	return nil
}

// buildInit4 solves the puzzle and returns the Init4 payload, including the
// trailing clientinitiv command (§4.1 Init4).
func buildInit4(hs *handshakeState) ([]byte, error) {
	if hs.level > crypto.MaxPuzzleLevel {
		return nil, fmt.Errorf("engine: init3 puzzle level %d exceeds safety ceiling", hs.level)
	}

	y, err := crypto.SolvePuzzle(hs.x, hs.n, hs.level)
	if err != nil {
		return nil, err
	}
	hs.y = y

	if _, err := rand.Read(hs.alpha[:]); err != nil {
		return nil, err
	}

	p256Priv, err := crypto.GenerateP256Identity()
	if err != nil {
		return nil, err
	}
	hs.p256Priv = p256Priv
	omegaDER, err := crypto.MarshalP256PublicKeyDER(p256Priv.PublicKey())
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, 4+1+64+64+4+100+64+128)
	var vb [4]byte
	binary.BigEndian.PutUint32(vb[:], clientVersionOffset)
	payload = append(payload, vb[:]...)
	payload = append(payload, 0x04)
	payload = append(payload, hs.x[:]...)
	payload = append(payload, hs.n[:]...)

	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], hs.level)
	payload = append(payload, lb[:]...)
	payload = append(payload, hs.random2[:]...)
	payload = append(payload, hs.y[:]...)

	cmd := fmt.Sprintf("clientinitiv alpha=%s omega=%s ot=1 ip=",
		base64.StdEncoding.EncodeToString(hs.alpha[:]),
		base64.StdEncoding.EncodeToString(omegaDER))
	payload = append(payload, []byte(cmd)...)

	return payload, nil
}

// deriveSessionKeys processes initivexpand2's parameters: derives the
// server's Ed25519 public key from the license chain, generates the
// client's ephemeral Ed25519 keypair, computes the shared secret/IV/MAC,
// and returns the clientek command to send (§4.1 "On initivexpand2").
//
// When license derivation fails and strictLicense is false, per §9's open
// question the handshake is allowed to continue with a random fallback
// point (it will fail later at the clientek proof step); warn reports that
// condition to the caller instead of raising it as an error.
func deriveSessionKeys(hs *handshakeState, licenseB64, betaB64 string, strictLicense bool, warn func(string)) (clientekCmd string, sharedIV [64]byte, sharedMAC [8]byte, err error) {
	license, err := base64.StdEncoding.DecodeString(licenseB64)
	if err != nil {
		return "", sharedIV, sharedMAC, fmt.Errorf("engine: decode license: %w", err)
	}
	beta, err := base64.StdEncoding.DecodeString(betaB64)
	if err != nil {
		return "", sharedIV, sharedMAC, fmt.Errorf("engine: decode beta: %w", err)
	}
	if len(beta) > 54 {
		return "", sharedIV, sharedMAC, fmt.Errorf("engine: beta exceeds 54 bytes")
	}
	hs.beta = beta

	serverPub, derivErr := crypto.DeriveLicensePublicKey(license)
	if derivErr != nil {
		if strictLicense {
			return "", sharedIV, sharedMAC, fmt.Errorf("engine: license derivation: %w", derivErr)
		}
		warn(fmt.Sprintf("license derivation failed, continuing with a random key: %v", derivErr))
		if _, err := rand.Read(serverPub[:]); err != nil {
			return "", sharedIV, sharedMAC, err
		}
	}
	hs.serverEdPub = serverPub

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return "", sharedIV, sharedMAC, err
	}
	edPriv := ed25519.NewKeyFromSeed(seed)
	hs.edPriv = edPriv
	var pub [32]byte
	copy(pub[:], edPriv.Public().(ed25519.PublicKey))
	hs.edPub = pub

	expanded := sha512.Sum512(seed)
	clamped := append([]byte(nil), expanded[:32]...)
	crypto.ClampEd25519Scalar(clamped)
	scalar, err := crypto.ScalarFromClamped(clamped)
	if err != nil {
		return "", sharedIV, sharedMAC, err
	}

	shared := crypto.EdDH(scalar, serverPub)

	sharedIV = sha512.Sum512(shared[:])
	copy(sharedIV[0:10], xorBytes(sharedIV[0:10], hs.alpha[:]))
	copy(sharedIV[10:10+len(beta)], xorBytes(sharedIV[10:10+len(beta)], beta))

	macSum := sha1.Sum(sharedIV[:])
	copy(sharedMAC[:], macSum[:8])

	sig := crypto.SignEd25519(edPriv, sharedIV[:])

	cmd := fmt.Sprintf("clientek ek=%s proof=%s",
		base64.StdEncoding.EncodeToString(pub[:]),
		base64.StdEncoding.EncodeToString(sig))
	return cmd, sharedIV, sharedMAC, nil
}

func xorBytes(dst, src []byte) []byte {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	out := make([]byte, len(dst))
	copy(out, dst)
	for i := 0; i < n; i++ {
		out[i] ^= src[i]
	}
	return out
}
