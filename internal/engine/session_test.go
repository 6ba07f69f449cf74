package engine

import "testing"

func TestCounterStateMonotonicAndWrap(t *testing.T) {
	var c counterState
	id, gen := c.next()
	if id != 0 || gen != 0 {
		t.Fatalf("first next() = (%d,%d), want (0,0)", id, gen)
	}

	c.id = 0xFFFF
	id, gen = c.next()
	if id != 0xFFFF || gen != 0 {
		t.Fatalf("next() before wrap = (%d,%d), want (0xFFFF,0)", id, gen)
	}
	id, gen = c.next()
	if id != 0 || gen != 1 {
		t.Fatalf("next() after wrap = (%d,%d), want (0,1)", id, gen)
	}
}

func TestCounterStateObserveTracksWrap(t *testing.T) {
	var c counterState
	if gen := c.observe(0); gen != 0 {
		t.Fatalf("observe(0) gen = %d, want 0", gen)
	}
	if gen := c.observe(1); gen != 0 {
		t.Fatalf("observe(1) gen = %d, want 0", gen)
	}
	// A smaller id than last observed+1 implies the 16-bit counter wrapped.
	if gen := c.observe(0); gen != 1 {
		t.Fatalf("observe(0) after observe(1) gen = %d, want 1", gen)
	}
}

func TestAssembleFragmentUnfragmentedPassesThrough(t *testing.T) {
	s := newSession()
	out, complete, err := s.assembleFragment(PacketCommand, 1, []byte("hello"), false)
	if err != nil {
		t.Fatalf("assembleFragment: %v", err)
	}
	if !complete || string(out) != "hello" {
		t.Fatalf("out=%q complete=%v, want hello/true", out, complete)
	}
}

func TestAssembleFragmentReassembly(t *testing.T) {
	s := newSession()
	parts := [][]byte{[]byte("AAA"), []byte("BBB"), []byte("CCC")}

	for i, p := range parts[:len(parts)-1] {
		out, complete, err := s.assembleFragment(PacketCommand, uint16(i), p, true)
		if err != nil {
			t.Fatalf("assembleFragment fragment %d: %v", i, err)
		}
		if complete || out != nil {
			t.Fatalf("fragment %d: complete=%v out=%v, want incomplete/nil", i, complete, out)
		}
	}

	last := len(parts) - 1
	out, complete, err := s.assembleFragment(PacketCommand, uint16(last), parts[last], false)
	if err != nil {
		t.Fatalf("assembleFragment final: %v", err)
	}
	if !complete {
		t.Fatal("expected complete=true on final fragment")
	}
	want := "AAABBBCCC"
	if string(out) != want {
		t.Fatalf("assembled = %q, want %q", out, want)
	}
}

func TestAssembleFragmentRejectsInterleaving(t *testing.T) {
	s := newSession()
	if _, complete, err := s.assembleFragment(PacketCommand, 0, []byte("A"), true); err != nil || complete {
		t.Fatalf("setup fragment: complete=%v err=%v", complete, err)
	}

	// A fragment with a non-contiguous id is a distinct, interleaved
	// message for the same packet type and must be rejected (§5).
	_, _, err := s.assembleFragment(PacketCommand, 5, []byte("B"), true)
	if err == nil {
		t.Fatal("expected error for interleaved fragment stream")
	}
}

func TestAssembleFragmentGuardsBufferSize(t *testing.T) {
	s := newSession()
	big := make([]byte, maxFragmentBuffer+1)
	_, _, err := s.assembleFragment(PacketCommand, 0, big, true)
	if err == nil {
		t.Fatal("expected error for fragment buffer exceeding guard")
	}
}

func TestChannelByNameCaseInsensitive(t *testing.T) {
	s := newSession()
	s.channels[ChannelID(7)] = "Lobby"
	id, ok := s.channelByName("lobby")
	if !ok || id != 7 {
		t.Fatalf("channelByName(\"lobby\") = (%d,%v), want (7,true)", id, ok)
	}
	if _, ok := s.channelByName("nope"); ok {
		t.Fatal("expected ok=false for unknown channel name")
	}
}
