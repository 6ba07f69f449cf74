package relay

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"net"
	"testing"
)

func newPipePair() (a, b *wsConn, closeFn func()) {
	c1, c2 := net.Pipe()
	a = newWSConn(bufio.NewReadWriter(bufio.NewReader(c1), bufio.NewWriter(c1)))
	b = newWSConn(bufio.NewReadWriter(bufio.NewReader(c2), bufio.NewWriter(c2)))
	return a, b, func() { c1.Close(); c2.Close() }
}

// rawFrame builds a single RFC 6455 frame's wire bytes directly, independent
// of wsConn.writeFrame, so tests can exercise frames writeFrame itself never
// produces (fin=false fragments, a bare continuation frame).
func rawFrame(opcode byte, payload []byte, fin bool) []byte {
	var buf bytes.Buffer
	first := opcode
	if fin {
		first |= 0x80
	}
	buf.WriteByte(first)

	switch {
	case len(payload) <= 125:
		buf.WriteByte(byte(len(payload)))
	case len(payload) < 65536:
		buf.WriteByte(126)
		binary.Write(&buf, binary.BigEndian, uint16(len(payload)))
	default:
		buf.WriteByte(127)
		binary.Write(&buf, binary.BigEndian, uint64(len(payload)))
	}
	buf.Write(payload)
	return buf.Bytes()
}

func TestWriteFrameReadMessageRoundTripSizes(t *testing.T) {
	sizes := []int{0, 125, 126, 65535, 65536}
	for _, n := range sizes {
		writer, reader, closeFn := newPipePair()
		payload := bytes.Repeat([]byte{0xAB}, n)

		errCh := make(chan error, 1)
		go func() { errCh <- writer.writeFrame(opBinary, payload, false) }()

		opcode, got, err := reader.readMessage()
		if err != nil {
			t.Fatalf("size %d: readMessage: %v", n, err)
		}
		if err := <-errCh; err != nil {
			t.Fatalf("size %d: writeFrame: %v", n, err)
		}
		if opcode != opBinary {
			t.Fatalf("size %d: opcode = %d, want opBinary", n, opcode)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("size %d: payload length %d, want %d", n, len(got), n)
		}
		closeFn()
	}
}

func TestWriteFrameMaskedRoundTrip(t *testing.T) {
	writer, reader, closeFn := newPipePair()
	defer closeFn()

	payload := []byte("client to server, masked per RFC 6455")
	errCh := make(chan error, 1)
	go func() { errCh <- writer.writeFrame(opBinary, payload, true) }()

	opcode, got, err := reader.readMessage()
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	if opcode != opBinary || !bytes.Equal(got, payload) {
		t.Fatalf("got opcode=%d payload=%q, want opBinary/%q", opcode, got, payload)
	}
}

func TestReadMessageReassemblesContinuationFrames(t *testing.T) {
	writer, reader, closeFn := newPipePair()
	defer closeFn()

	part1 := []byte("hello, ")
	part2 := []byte("fragmented world")

	errCh := make(chan error, 1)
	go func() {
		if _, err := writer.w.Write(rawFrame(opBinary, part1, false)); err != nil {
			errCh <- err
			return
		}
		if err := writer.w.Flush(); err != nil {
			errCh <- err
			return
		}
		if _, err := writer.w.Write(rawFrame(opContinuation, part2, true)); err != nil {
			errCh <- err
			return
		}
		errCh <- writer.w.Flush()
	}()

	opcode, got, err := reader.readMessage()
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("write fragments: %v", err)
	}
	if opcode != opBinary {
		t.Fatalf("opcode = %d, want opBinary", opcode)
	}
	want := append(append([]byte(nil), part1...), part2...)
	if !bytes.Equal(got, want) {
		t.Fatalf("reassembled = %q, want %q", got, want)
	}
}

func TestReadMessageRejectsContinuationWithoutStart(t *testing.T) {
	writer, reader, closeFn := newPipePair()
	defer closeFn()

	errCh := make(chan error, 1)
	go func() {
		if _, err := writer.w.Write(rawFrame(opContinuation, []byte("x"), true)); err != nil {
			errCh <- err
			return
		}
		errCh <- writer.w.Flush()
	}()

	if _, _, err := reader.readMessage(); err == nil {
		t.Fatal("expected error for continuation frame without a preceding fragment")
	}
	<-errCh
}

func TestReadMessageRejectsNewMessageBeforeFinish(t *testing.T) {
	writer, reader, closeFn := newPipePair()
	defer closeFn()

	errCh := make(chan error, 1)
	go func() {
		if _, err := writer.w.Write(rawFrame(opBinary, []byte("a"), false)); err != nil {
			errCh <- err
			return
		}
		if err := writer.w.Flush(); err != nil {
			errCh <- err
			return
		}
		if _, err := writer.w.Write(rawFrame(opBinary, []byte("b"), false)); err != nil {
			errCh <- err
			return
		}
		errCh <- writer.w.Flush()
	}()

	if _, _, err := reader.readMessage(); err == nil {
		t.Fatal("expected error for a new message starting before the previous one finished")
	}
	<-errCh
}

func TestReadMessagePassesThroughControlFrameMidFragment(t *testing.T) {
	writer, reader, closeFn := newPipePair()
	defer closeFn()

	errCh := make(chan error, 1)
	go func() {
		if _, err := writer.w.Write(rawFrame(opBinary, []byte("partial"), false)); err != nil {
			errCh <- err
			return
		}
		if err := writer.w.Flush(); err != nil {
			errCh <- err
			return
		}
		if _, err := writer.w.Write(rawFrame(opPing, []byte("keepalive"), true)); err != nil {
			errCh <- err
			return
		}
		errCh <- writer.w.Flush()
	}()

	opcode, payload, err := reader.readMessage()
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if opcode != opPing || string(payload) != "keepalive" {
		t.Fatalf("opcode=%d payload=%q, want opPing/keepalive", opcode, payload)
	}
	<-errCh
}
