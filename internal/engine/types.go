package engine

// ClientID identifies a client on a TS3 virtual server. It is a distinct
// type from ChannelID so the two 16-bit/int spaces can't be swapped at call
// sites by accident.
type ClientID uint16

// ChannelID identifies a channel on a TS3 virtual server.
type ChannelID int64

// PacketType is the low nibble of the wire type/flags byte (§4.1 "Wire
// framing"). Per-type send/receive counters and generations are maintained
// independently.
type PacketType byte

const (
	PacketVoice         PacketType = 0x0
	PacketVoiceWhisper   PacketType = 0x1
	PacketCommand        PacketType = 0x2
	PacketCommandLow     PacketType = 0x3
	PacketPing           PacketType = 0x4
	PacketPong           PacketType = 0x5
	PacketAck            PacketType = 0x6
	PacketAckLow         PacketType = 0x7
	PacketInit           PacketType = 0x8
)

func (t PacketType) String() string {
	switch t {
	case PacketVoice:
		return "Voice"
	case PacketVoiceWhisper:
		return "VoiceWhisper"
	case PacketCommand:
		return "Command"
	case PacketCommandLow:
		return "CommandLow"
	case PacketPing:
		return "Ping"
	case PacketPong:
		return "Pong"
	case PacketAck:
		return "Ack"
	case PacketAckLow:
		return "AckLow"
	case PacketInit:
		return "Init"
	default:
		return "Unknown"
	}
}

// Flags is the high nibble of the wire type/flags byte.
type Flags byte

const (
	FlagUnencrypted Flags = 0x80
	FlagCompressed  Flags = 0x40
	FlagNewProtocol Flags = 0x20
	FlagFragmented  Flags = 0x10
)

// Header is the parsed form of a packet's post-MAC header fields: packet
// id, client id (present only client->server), and type/flags byte.
// headerBytes() reconstructs the wire form used as EAX associated data.
type Header struct {
	PacketID uint16
	ClientID ClientID // zero/unused on S->C headers
	Type     PacketType
	Flags    Flags
	FromClient bool // true for a C->S header (13-byte), false for S->C (11-byte)
}

// headerBytes returns the on-wire post-MAC bytes: 2-byte packet id, the
// 2-byte client id when FromClient is set, and the type/flags byte. This is
// "meta" in §4.1's per-packet encryption KDF and doubles as the EAX header
// (associated data).
func (h Header) headerBytes() []byte {
	out := make([]byte, 0, 5)
	out = append(out, byte(h.PacketID>>8), byte(h.PacketID))
	if h.FromClient {
		out = append(out, byte(h.ClientID>>8), byte(h.ClientID))
	}
	out = append(out, byte(h.Type)|byte(h.Flags))
	return out
}
