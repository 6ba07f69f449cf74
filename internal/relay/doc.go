// Package relay implements the UDP relay gateway and the client dialer that
// reaches it.
//
// The gateway (Server) terminates an RFC 6455 WebSocket upgrade per
// connection, opens a dedicated UDP socket toward the host/port requested in
// the upgrade query string, and bridges binary frames to datagrams in both
// directions. It is deliberately a dumb wire: payloads are never inspected.
//
// The dialer (Client) is the reverse side, used by the engine when its
// deployment environment forbids outbound UDP: it performs the same upgrade
// handshake and exposes Send/Recv over the framed stream.
package relay
