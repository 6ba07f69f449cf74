package engine

import (
	"fmt"
	"strings"
	"sync"
)

// maxFragmentBuffer guards a fragment accumulator against unbounded growth
// from a misbehaving or hostile peer (§4.1 "Failure semantics": "Fragment
// buffer growing beyond a guard (e.g., 1 MiB): fail Protocol").
const maxFragmentBuffer = 1 << 20

// counterState is one packet type's independent send or receive counter:
// a 16-bit per-type id plus the generation that disambiguates it after
// wraparound (§3 "Packet identity").
type counterState struct {
	id  uint16
	gen uint32
}

// next returns the id to stamp on the next outgoing packet of this type
// and advances the counter, incrementing the generation on wrap.
func (c *counterState) next() (id uint16, gen uint32) {
	id, gen = c.id, c.gen
	c.id++
	if c.id == 0 {
		c.gen++
	}
	return id, gen
}

// observe records an inbound packet id for this type, advancing the
// generation on wrap the same way next() does for outbound ids.
func (c *counterState) observe(id uint16) (gen uint32) {
	if id < c.id {
		c.gen++
	}
	gen = c.gen
	c.id = id + 1
	if c.id == 0 {
		c.gen++
	}
	return gen
}

// fragmentBuffer accumulates Command/CommandLow payloads carrying the
// FRAGMENTED flag (§3 "Fragment assembly buffer", §4.1 "Fragmentation").
// lastID tracks the packet id of the most recently appended fragment so a
// second, interleaved fragmented stream of the same type can be detected
// and rejected instead of silently corrupting the buffer.
type fragmentBuffer struct {
	active bool
	buf    []byte
	lastID uint16
}

// session holds everything exclusively owned by one connection: key
// material, per-type counters, fragment buffers, and the channel/peer
// directories (§3 "Ownership"). Grounded on ratchet.RatchetState's shape
// (a flat struct of long-lived per-connection crypto state) and
// session.Service's lifecycle.
type session struct {
	mu sync.Mutex

	state State

	ownClientID       ClientID
	currentChannel    ChannelID
	virtualServerName string

	channels map[ChannelID]string
	peers    map[ClientID]string

	sharedIV       [64]byte
	sharedMAC      [8]byte
	serverEdPub    [32]byte
	encryptionLive bool // false until clientek has been sent (§4.1)

	sendCounters map[PacketType]*counterState
	recvCounters map[PacketType]*counterState
	fragments    map[PacketType]*fragmentBuffer
}

// State is the handshake/session state machine (§4.1 "Handshake — state
// machine").
type State byte

const (
	StateInit0Sent State = iota
	StateInit2Sent
	StateInit4Sent
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

func newSession() *session {
	return &session{
		state:        StateInit0Sent,
		channels:     make(map[ChannelID]string),
		peers:        make(map[ClientID]string),
		sendCounters: make(map[PacketType]*counterState),
		recvCounters: make(map[PacketType]*counterState),
		fragments:    make(map[PacketType]*fragmentBuffer),
	}
}

func (s *session) sendCounter(t PacketType) *counterState {
	c, ok := s.sendCounters[t]
	if !ok {
		c = &counterState{}
		s.sendCounters[t] = c
	}
	return c
}

func (s *session) recvCounter(t PacketType) *counterState {
	c, ok := s.recvCounters[t]
	if !ok {
		c = &counterState{}
		s.recvCounters[t] = c
	}
	return c
}

// assembleFragment appends payload (carried by packet id) to the buffer for
// t. If fragmented is false, the buffer is complete; assembleFragment
// returns it and clears the slot. A fragment arriving for a type with no
// in-progress buffer starts a new one; a non-fragment arriving with no
// buffer is returned as-is (the common unfragmented case). A fragment
// whose id does not immediately follow the last one accumulated for this
// type indicates a second, interleaved fragmented stream (§5 "the engine
// must not interleave fragments of two distinct messages of the same
// type") and is rejected.
func (s *session) assembleFragment(t PacketType, id uint16, payload []byte, fragmented bool) ([]byte, bool, error) {
	fb, active := s.fragments[t]

	if !fragmented && !active {
		return payload, true, nil
	}

	if !active {
		fb = &fragmentBuffer{active: true, lastID: id}
		s.fragments[t] = fb
	} else {
		if id != fb.lastID+1 {
			delete(s.fragments, t)
			return nil, false, fmt.Errorf("engine: interleaved fragment for %s: got id %d, want %d", t, id, fb.lastID+1)
		}
		fb.lastID = id
	}

	fb.buf = append(fb.buf, payload...)
	if len(fb.buf) > maxFragmentBuffer {
		delete(s.fragments, t)
		return nil, false, fmt.Errorf("engine: fragment buffer for %s exceeds guard", t)
	}

	if fragmented {
		return nil, false, nil
	}

	out := fb.buf
	delete(s.fragments, t)
	return out, true, nil
}

// fragmentBytesBuffered sums the bytes currently held across all in-progress
// fragment buffers, for Engine.Metrics.
func (s *session) fragmentBytesBuffered() int {
	n := 0
	for _, fb := range s.fragments {
		n += len(fb.buf)
	}
	return n
}

func (s *session) channelByName(name string) (ChannelID, bool) {
	for id, n := range s.channels {
		if strings.EqualFold(n, name) {
			return id, true
		}
	}
	return 0, false
}
