package engine

import (
	"context"
	"fmt"
	"net"

	"ts3cli/internal/relay"
)

// Transport is the datagram-level abstraction the engine drives (§4.1
// "Transport abstraction"): "send a whole datagram" / "emit received
// datagrams". Reliability, retransmission, and ordering are all
// implemented above this layer, so both implementations are deliberately
// thin, grounded the way domain.RelayClient is an interface satisfied by
// alternate concrete clients in the teacher.
type Transport interface {
	Send(datagram []byte) error
	Recv() ([]byte, error)
	Close() error
}

// UDPTransport sends/receives raw UDP datagrams directly to a TS3 server.
type UDPTransport struct {
	conn *net.UDPConn
}

// DialUDP opens a direct UDP transport to addr ("host:port").
func DialUDP(ctx context.Context, addr string) (*UDPTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("engine: dial %q: %w", addr, err)
	}
	return &UDPTransport{conn: conn}, nil
}

func (t *UDPTransport) Send(datagram []byte) error {
	_, err := t.conn.Write(datagram)
	return err
}

func (t *UDPTransport) Recv() ([]byte, error) {
	buf := make([]byte, 65536)
	n, err := t.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// RelayTransport reaches the TS3 server through the WebSocket-to-UDP relay
// (§4.2), for deployments where outbound UDP is blocked.
type RelayTransport struct {
	client *relay.Client
}

// DialRelay upgrades to relayURL and asks the relay to bridge to
// host:port.
func DialRelay(ctx context.Context, relayURL, token, host string, port int) (*RelayTransport, error) {
	c, err := relay.Dial(ctx, relayURL, token, host, port)
	if err != nil {
		return nil, fmt.Errorf("engine: dial relay: %w", err)
	}
	return &RelayTransport{client: c}, nil
}

func (t *RelayTransport) Send(datagram []byte) error {
	return t.client.Send(datagram)
}

func (t *RelayTransport) Recv() ([]byte, error) {
	return t.client.Recv()
}

func (t *RelayTransport) Close() error {
	return t.client.Close()
}
