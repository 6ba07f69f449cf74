package engine

import (
	"encoding/binary"
	"testing"
)

func TestBuildInit0Layout(t *testing.T) {
	hs := &handshakeState{}
	payload, err := buildInit0(hs)
	if err != nil {
		t.Fatalf("buildInit0: %v", err)
	}
	if len(payload) != 21 {
		t.Fatalf("len(payload) = %d, want 21", len(payload))
	}
	if payload[4] != 0x00 {
		t.Fatalf("step byte = 0x%02x, want 0x00", payload[4])
	}
	if got := binary.BigEndian.Uint32(payload[0:4]); got != clientVersionOffset {
		t.Fatalf("version offset = %d, want %d", got, clientVersionOffset)
	}
	var zero [4]byte
	if hs.random0 == zero {
		t.Fatal("random0 was not populated")
	}
	if [4]byte(payload[9:13]) != hs.random0 {
		t.Fatalf("random0 in payload does not match hs.random0")
	}
}

func TestParseInit1AcceptsMatchingRandom0(t *testing.T) {
	hs := &handshakeState{random0: [4]byte{1, 2, 3, 4}}
	payload := make([]byte, 21)
	payload[0] = 0x01
	copy(payload[17:21], hs.random0[:])

	if err := parseInit1(hs, payload); err != nil {
		t.Fatalf("parseInit1: %v", err)
	}
}

func TestParseInit1RejectsMismatchedRandom0(t *testing.T) {
	hs := &handshakeState{random0: [4]byte{1, 2, 3, 4}}
	payload := make([]byte, 21)
	payload[0] = 0x01
	copy(payload[17:21], []byte{9, 9, 9, 9})

	if err := parseInit1(hs, payload); err == nil {
		t.Fatal("expected error for mismatched random0_r")
	}
}

func TestParseInit1RejectsWrongLength(t *testing.T) {
	hs := &handshakeState{}
	if err := parseInit1(hs, make([]byte, 20)); err == nil {
		t.Fatal("expected error for wrong-length init1 payload")
	}
}

func TestBuildInit2CarriesRandom1AndRandom0r(t *testing.T) {
	hs := &handshakeState{
		random1:  [16]byte{1, 2, 3},
		random0r: [4]byte{4, 5, 6, 7},
	}
	payload := buildInit2(hs)
	if len(payload) != 25 {
		t.Fatalf("len(payload) = %d, want 25", len(payload))
	}
	if payload[4] != 0x02 {
		t.Fatalf("step byte = 0x%02x, want 0x02", payload[4])
	}
	if [16]byte(payload[5:21]) != hs.random1 {
		t.Fatal("random1 mismatch in init2 payload")
	}
	if [4]byte(payload[21:25]) != hs.random0r {
		t.Fatal("random0_r mismatch in init2 payload")
	}
}

func TestParseInit3ExtractsPuzzleParameters(t *testing.T) {
	hs := &handshakeState{}
	payload := make([]byte, 233)
	payload[0] = 0x03
	for i := 0; i < 64; i++ {
		payload[1+i] = byte(i + 1) // x
	}
	for i := 0; i < 64; i++ {
		payload[65+i] = byte(i + 2) // n
	}
	binary.BigEndian.PutUint32(payload[129:133], 5) // level

	if err := parseInit3(hs, payload); err != nil {
		t.Fatalf("parseInit3: %v", err)
	}
	if hs.level != 5 {
		t.Fatalf("level = %d, want 5", hs.level)
	}
	if hs.x[0] != 1 || hs.n[0] != 2 {
		t.Fatalf("x/n not extracted correctly: x[0]=%d n[0]=%d", hs.x[0], hs.n[0])
	}
}

func TestBuildInit4RejectsLevelAboveCeiling(t *testing.T) {
	hs := &handshakeState{level: 20_000_000}
	hs.n[63] = 1
	hs.x[63] = 1
	if _, err := buildInit4(hs); err == nil {
		t.Fatal("expected error for level above safety ceiling")
	}
}

func TestBuildInit4ProducesClientinitivCommand(t *testing.T) {
	hs := &handshakeState{level: 1}
	hs.n[63] = 97
	hs.x[63] = 5

	payload, err := buildInit4(hs)
	if err != nil {
		t.Fatalf("buildInit4: %v", err)
	}
	if payload[4] != 0x04 {
		t.Fatalf("step byte = 0x%02x, want 0x04", payload[4])
	}

	tail := string(payload[4+1+64+64+4+100+64:])
	if len(tail) == 0 {
		t.Fatal("expected trailing clientinitiv command text")
	}
	if tail[:12] != "clientinitiv" {
		t.Fatalf("trailing command = %q, want prefix clientinitiv", tail)
	}
}
