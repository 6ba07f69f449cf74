package engine

import (
	"sync"
	"time"
)

// retransmitBaseDelay and retransmitMaxDelay bound the exponential backoff
// applied to unacked Command/CommandLow sends (§4.1 "Reliability": "The
// source is best-effort and omits retransmission; a conformant rewrite
// should add it because the transport is UDP.").
const (
	retransmitBaseDelay = 200 * time.Millisecond
	retransmitMaxDelay  = 5 * time.Second
	retransmitMaxTries  = 8
)

// pendingSend is one outstanding Command/CommandLow send awaiting an Ack.
type pendingSend struct {
	raw       []byte
	attempt   int
	nextRetry time.Time
}

// retransmitter tracks outstanding acks per packet type, keyed by packet id
// within that type's current generation. It does not itself own a timer;
// the engine's read/write loop calls due() on each tick of its own timer.
type retransmitter struct {
	mu      sync.Mutex
	pending map[PacketType]map[uint16]*pendingSend
}

func newRetransmitter() *retransmitter {
	return &retransmitter{pending: make(map[PacketType]map[uint16]*pendingSend)}
}

// track registers raw (an already-framed packet) as awaiting an Ack for
// (t, id), scheduling its first retransmit attempt.
func (r *retransmitter) track(t PacketType, id uint16, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.pending[t]
	if !ok {
		bucket = make(map[uint16]*pendingSend)
		r.pending[t] = bucket
	}
	bucket[id] = &pendingSend{raw: raw, nextRetry: time.Now().Add(retransmitBaseDelay)}
}

// ack clears the pending send for (t, id), if any. Reports whether an entry
// was found (a stray Ack for an id never sent, or already acked, is not an
// error -- it is simply ignored).
func (r *retransmitter) ack(t PacketType, id uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.pending[t]
	if !ok {
		return false
	}
	if _, ok := bucket[id]; !ok {
		return false
	}
	delete(bucket, id)
	return true
}

// due returns the raw bytes of every pending send whose retry deadline has
// elapsed, bumping its attempt counter and rescheduling with doubled
// backoff (capped at retransmitMaxDelay). Entries that have already hit
// retransmitMaxTries are instead returned via expired, and removed from
// tracking -- the caller should fail the session with Timeout.
func (r *retransmitter) due(now time.Time) (resend [][]byte, expired bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, bucket := range r.pending {
		for id, p := range bucket {
			if p.nextRetry.After(now) {
				continue
			}
			if p.attempt >= retransmitMaxTries {
				delete(bucket, id)
				expired = true
				continue
			}
			p.attempt++
			delay := retransmitBaseDelay << uint(p.attempt)
			if delay > retransmitMaxDelay {
				delay = retransmitMaxDelay
			}
			p.nextRetry = now.Add(delay)
			resend = append(resend, p.raw)
		}
	}
	return resend, expired
}

// outstanding returns the total number of sends awaiting an Ack across all
// packet types, for Engine.Metrics.
func (r *retransmitter) outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, bucket := range r.pending {
		n += len(bucket)
	}
	return n
}

// reset discards all pending sends, e.g. on disconnect.
func (r *retransmitter) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = make(map[PacketType]map[uint16]*pendingSend)
}
