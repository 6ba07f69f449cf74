package engine

import (
	"encoding/binary"
	"fmt"

	"ts3cli/internal/crypto"
)

// initMagic is the literal ASCII marker replacing the MAC field on Init
// packets (§4.1 "Wire framing").
var initMagic = []byte("TS3INIT1")

const (
	initPacketID  uint16 = 0x0065
	initTypeByte  byte   = 0x88 // UNENCRYPTED | Init
)

// buildInitPacket frames an Init-state payload with the fixed TS3INIT1
// header.
func buildInitPacket(payload []byte) []byte {
	out := make([]byte, 0, 8+2+2+1+len(payload))
	out = append(out, initMagic...)
	out = append(out, byte(initPacketID>>8), byte(initPacketID))
	out = append(out, 0x00, 0x00) // client id, always 0 for Init
	out = append(out, initTypeByte)
	out = append(out, payload...)
	return out
}

// parseInitPacket validates the TS3INIT1 framing and returns the payload.
func parseInitPacket(raw []byte) ([]byte, error) {
	if len(raw) < 13 {
		return nil, fmt.Errorf("engine: init packet too short")
	}
	if string(raw[:8]) != string(initMagic) {
		return nil, fmt.Errorf("engine: init packet missing TS3INIT1 magic")
	}
	return raw[13:], nil
}

// buildDataPacket frames a non-Init packet: MAC, packet id, optional
// client id (C->S only), type/flags byte, then the (already encrypted,
// where applicable) payload.
func buildDataPacket(header Header, mac [crypto.TagSize]byte, payload []byte) []byte {
	headerLen := 11
	if header.FromClient {
		headerLen = 13
	}
	out := make([]byte, 0, headerLen+len(payload))
	out = append(out, mac[:]...)
	out = append(out, byte(header.PacketID>>8), byte(header.PacketID))
	if header.FromClient {
		out = append(out, byte(header.ClientID>>8), byte(header.ClientID))
	}
	out = append(out, byte(header.Type)|byte(header.Flags))
	out = append(out, payload...)
	return out
}

// parseDataPacket splits raw into (header, mac, ciphertext). fromClient
// describes the direction of raw (true if this packet was sent C->S, i.e.
// it carries the 2-byte client id field); the client parses fromClient=false
// packets (server->client) and builds fromClient=true ones.
func parseDataPacket(raw []byte, fromClient bool) (Header, [crypto.TagSize]byte, []byte, error) {
	headerLen := 11
	if fromClient {
		headerLen = 13
	}
	if len(raw) < headerLen {
		return Header{}, [crypto.TagSize]byte{}, nil, fmt.Errorf("engine: packet shorter than header")
	}

	var mac [crypto.TagSize]byte
	copy(mac[:], raw[:8])

	h := Header{FromClient: fromClient}
	h.PacketID = binary.BigEndian.Uint16(raw[8:10])
	off := 10
	if fromClient {
		h.ClientID = ClientID(binary.BigEndian.Uint16(raw[10:12]))
		off = 12
	}
	typeFlags := raw[off]
	h.Type = PacketType(typeFlags & 0x0F)
	h.Flags = Flags(typeFlags & 0xF0)

	return h, mac, raw[headerLen:], nil
}
