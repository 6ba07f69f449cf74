package engine

import "sync/atomic"

// metrics is a small set of atomically-updated counters exposed as a
// read-only snapshot, in the spirit of a metrics package built on
// sync/atomic rather than a Prometheus client: packets sent/received per
// direction, acks outstanding, and fragment bytes currently buffered.
type metrics struct {
	packetsSent atomic.Uint64
	packetsRecv atomic.Uint64
}

// Metrics is a point-in-time snapshot returned by Engine.Metrics.
type Metrics struct {
	PacketsSent           uint64
	PacketsRecv           uint64
	AcksOutstanding       int
	FragmentBytesBuffered int
}

// Metrics returns a snapshot of the session's traffic counters.
func (e *Engine) Metrics() Metrics {
	return Metrics{
		PacketsSent:           e.m.packetsSent.Load(),
		PacketsRecv:           e.m.packetsRecv.Load(),
		AcksOutstanding:       e.retx.outstanding(),
		FragmentBytesBuffered: e.sess.fragmentBytesBuffered(),
	}
}
