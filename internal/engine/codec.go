package engine

import (
	"crypto/sha256"

	"ts3cli/internal/crypto"
)

// fakeKey and fakeNonce are TS3's fixed pre-handshake constants: every
// packet before clientek is encrypted under this key instead of the
// session's derived key schedule (§4.1 "the first such command is
// initivexpand2... encrypted under the fake key").
var (
	fakeKey   = []byte("c:\\windows\\syste")
	fakeNonce = []byte("m\\firewall32.cpl")
)

// packetKDF derives the per-packet EAX (key, nonce) pair per §4.1
// "Per-packet encryption". fromClient selects the 0x31/0x30 discriminator
// byte; generation and packetID select which per-type counter epoch this
// packet belongs to.
func packetKDF(fromClient bool, ptype PacketType, generation uint32, packetID uint16, sharedIV [64]byte) (key, nonce [16]byte) {
	var buf [70]byte
	if fromClient {
		buf[0] = 0x31
	} else {
		buf[0] = 0x30
	}
	buf[1] = byte(ptype)
	buf[2] = byte(generation >> 24)
	buf[3] = byte(generation >> 16)
	buf[4] = byte(generation >> 8)
	buf[5] = byte(generation)
	copy(buf[6:], sharedIV[:])

	sum := sha256.Sum256(buf[:])
	copy(key[:], sum[:16])
	copy(nonce[:], sum[16:32])

	key[0] ^= byte(packetID >> 8)
	key[1] ^= byte(packetID)
	return key, nonce
}

// sealPacket encrypts payload for the given header using the session's
// shared IV (post-clientek) or the fake key (pre-clientek, useFakeKey).
// header.headerBytes() is the EAX associated data.
func sealPacket(header Header, fromClient bool, generation uint32, sharedIV [64]byte, useFakeKey bool, payload []byte) (ciphertext []byte, tag [crypto.TagSize]byte, err error) {
	meta := header.headerBytes()
	if useFakeKey {
		return crypto.Seal(fakeKey, fakeNonce, meta, payload)
	}
	key, nonce := packetKDF(fromClient, header.Type, generation, header.PacketID, sharedIV)
	return crypto.Seal(key[:], nonce[:], meta, payload)
}

// openPacket is sealPacket's inverse. fromClient describes who *sent* the
// packet being opened (the sender's discriminator byte), which for a
// server->client packet the client is decoding is false.
func openPacket(header Header, fromClient bool, generation uint32, sharedIV [64]byte, useFakeKey bool, ciphertext []byte, tag [crypto.TagSize]byte) ([]byte, error) {
	meta := header.headerBytes()
	if useFakeKey {
		return crypto.Open(fakeKey, fakeNonce, meta, ciphertext, tag)
	}
	key, nonce := packetKDF(fromClient, header.Type, generation, header.PacketID, sharedIV)
	return crypto.Open(key[:], nonce[:], meta, ciphertext, tag)
}
