// Package engine implements a from-scratch client for the TeamSpeak 3
// UDP voice protocol: handshake, per-packet encryption, framing,
// reliability, fragmentation, heartbeat, the command sublanguage, and a
// high-level connect/move/send API.
//
// An Engine owns exactly one session's key material, counters, fragment
// buffers, and channel/client directories; nothing is shared across
// sessions. Events (connection state changes, text messages, errors) are
// delivered on a channel rather than via callbacks.
package engine
