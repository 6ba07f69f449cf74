package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"ts3cli/internal/crypto"
)

const (
	connectTimeout  = 15 * time.Second
	pingInterval    = 1 * time.Second
	idleTimeout     = 30 * time.Second
	maxCommandChunk = 500
)

// Engine drives one TS3 session end to end: handshake, per-packet
// encryption, framing, reliability, fragmentation, heartbeat, the command
// sublanguage, and the high-level API in §4.1's public contract. It is the
// engine's analogue of the teacher's app.App: the facade wiring the leaf
// packages (crypto, the codec, the transport) together behind a small
// public surface.
type Engine struct {
	cfg Config
	log *slog.Logger

	transport Transport
	sess      *session
	retx      *retransmitter

	events chan Event
	m      metrics

	mu       sync.Mutex
	lastRecv time.Time
	closed   bool
	stopLoop chan struct{}
	loopDone chan struct{}
}

// New constructs an Engine for cfg. Connect must be called before any other
// method.
func New(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		log:    log,
		sess:   newSession(),
		retx:   newRetransmitter(),
		events: make(chan Event, 32),
	}
}

// Events returns the channel Event values are delivered on (§9 "Event
// emitters").
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.log.Warn("engine: event channel full, dropping event", "kind", ev.Kind)
	}
}

// Connect performs the full handshake (§4.1 "Handshake -- state machine")
// and, on success, starts the background ping/idle-timeout/retransmit/read
// loops. It fails with Timeout if Authenticated is not reached within 15 s,
// Transport on a network error, or Protocol on an unparseable response.
func (e *Engine) Connect(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, connectTimeout)
	defer cancel()

	transport, err := dialTransport(ctx, e.cfg)
	if err != nil {
		return newError(KindTransport, "dial", err)
	}
	e.transport = transport
	e.touchRecv()

	hs := &handshakeState{}

	init0, err := buildInit0(hs)
	if err != nil {
		return newError(KindCrypto, "build init0", err)
	}
	if err := e.sendInitFrame(init0); err != nil {
		return err
	}

	init1Payload, err := e.recvInitPayload(ctx)
	if err != nil {
		return err
	}
	if err := parseInit1(hs, init1Payload); err != nil {
		return newError(KindProtocol, "init1", err)
	}

	if err := e.sendInitFrame(buildInit2(hs)); err != nil {
		return err
	}

	init3Payload, err := e.recvInitPayload(ctx)
	if err != nil {
		return err
	}
	if err := parseInit3(hs, init3Payload); err != nil {
		return newError(KindProtocol, "init3", err)
	}

	init4, err := e.solvePuzzle(ctx, hs)
	if err != nil {
		return err
	}
	if err := e.sendInitFrame(init4); err != nil {
		return err
	}

	expand, err := e.readCommand(ctx)
	if err != nil {
		return err
	}
	if expand.Name != "initivexpand2" || len(expand.Items) == 0 {
		return newError(KindProtocol, "expected initivexpand2, got "+expand.Name, nil)
	}
	params := expand.Items[0]

	clientekCmd, sharedIV, sharedMAC, err := deriveSessionKeys(
		hs, params["l"], params["beta"], e.cfg.StrictLicense,
		func(msg string) { e.emit(Event{Kind: EventWarning, ErrKind: KindProtocol, Detail: msg}) },
	)
	if err != nil {
		return newError(KindProtocol, "derive session keys", err)
	}
	e.sess.sharedIV = sharedIV
	e.sess.sharedMAC = sharedMAC
	e.sess.serverEdPub = hs.serverEdPub
	e.sess.state = StateAuthenticating

	if err := e.sendRawPacket(PacketCommand, []byte(clientekCmd), false); err != nil {
		return err
	}
	e.sess.encryptionLive = true

	if err := e.sendCommand(PacketCommand, buildClientInitCommand(e.cfg)); err != nil {
		return err
	}

	initserver, err := e.readCommand(ctx)
	if err != nil {
		return err
	}
	if initserver.Name != "initserver" || len(initserver.Items) == 0 {
		return newError(KindProtocol, "expected initserver, got "+initserver.Name, nil)
	}
	if err := e.applyInitServer(initserver.Items[0]); err != nil {
		return newError(KindProtocol, "initserver", err)
	}
	e.sess.state = StateAuthenticated

	for _, category := range []string{"textchannel", "textprivate", "server"} {
		cmd := fmt.Sprintf("servernotifyregister event=%s id=0", category)
		if err := e.sendCommand(PacketCommand, cmd); err != nil {
			return err
		}
	}
	if err := e.sendCommand(PacketCommand, "channellist"); err != nil {
		return err
	}
	if err := e.sendCommand(PacketCommand, "clientlist"); err != nil {
		return err
	}

	e.startLoops()
	e.emit(Event{Kind: EventConnected, VirtualServerName: e.sess.virtualServerName})
	return nil
}

func (e *Engine) applyInitServer(params map[string]string) error {
	raw, ok := params["aclid"]
	if !ok {
		return fmt.Errorf("missing aclid")
	}
	id, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return fmt.Errorf("parse aclid: %w", err)
	}
	e.sess.ownClientID = ClientID(id)
	e.sess.virtualServerName = Unescape(params["virtualserver_name"])
	if cid, ok := params["channel_id"]; ok {
		if v, err := strconv.ParseInt(cid, 10, 64); err == nil {
			e.sess.currentChannel = ChannelID(v)
		}
	}
	return nil
}

func dialTransport(ctx context.Context, cfg Config) (Transport, error) {
	if cfg.usesRelay() {
		return DialRelay(ctx, cfg.RelayURL, cfg.RelayToken, cfg.Host, int(cfg.Port))
	}
	return DialUDP(ctx, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
}

func buildClientInitCommand(cfg Config) string {
	parts := []string{
		"clientinit",
		"client_nickname=" + Escape(cfg.Nickname),
		"client_version=3.13.7 [Build: 0]",
		"client_platform=Linux",
		"client_input_hardware=0",
		"client_output_hardware=0",
		"client_default_channel=" + Escape(cfg.DefaultChannel),
		"client_default_channel_password=",
		"client_server_password=" + Escape(cfg.ServerPassword),
		"client_meta_data=",
		"client_nickname_phonetic=",
		"client_key_offset=0",
		"client_default_token=",
		"hwid=" + Escape(cfg.hwid()),
	}
	return strings.Join(parts, " ")
}

// solvePuzzle runs the CPU-bound puzzle solve on a worker goroutine so it
// never blocks the I/O loop (§5 "Suspension points": "The handshake's
// license derivation and puzzle solving are CPU-bound and must not block
// the I/O loop; run them on a worker.").
func (e *Engine) solvePuzzle(ctx context.Context, hs *handshakeState) ([]byte, error) {
	type result struct {
		payload []byte
		err     error
	}
	done := make(chan result, 1)
	go func() {
		payload, err := buildInit4(hs)
		done <- result{payload, err}
	}()

	select {
	case <-ctx.Done():
		return nil, newError(KindTimeout, "solve puzzle", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, newError(KindProtocol, "solve puzzle", r.err)
		}
		return r.payload, nil
	}
}

func (e *Engine) sendInitFrame(payload []byte) error {
	if err := e.transport.Send(buildInitPacket(payload)); err != nil {
		return newError(KindTransport, "send init frame", err)
	}
	return nil
}

func (e *Engine) recvInitPayload(ctx context.Context) ([]byte, error) {
	raw, err := e.recvRaw(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := parseInitPacket(raw)
	if err != nil {
		return nil, newError(KindProtocol, "parse init packet", err)
	}
	return payload, nil
}

func (e *Engine) recvRaw(ctx context.Context) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := e.transport.Recv()
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, newError(KindTimeout, "recv", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, newError(KindTransport, "recv", r.err)
		}
		e.touchRecv()
		e.m.packetsRecv.Add(1)
		return r.data, nil
	}
}

func (e *Engine) touchRecv() {
	e.mu.Lock()
	e.lastRecv = time.Now()
	e.mu.Unlock()
}

// readCommand blocks until a fully assembled Command/CommandLow payload
// parses as a Command, handling Acks and Pong traffic transparently and
// replying to server-initiated Pings along the way.
func (e *Engine) readCommand(ctx context.Context) (Command, error) {
	for {
		raw, err := e.recvRaw(ctx)
		if err != nil {
			return Command{}, err
		}
		header, mac, ciphertext, err := parseDataPacket(raw, false)
		if err != nil {
			continue
		}

		switch header.Type {
		case PacketAck, PacketAckLow:
			e.handleAck(header, mac, ciphertext)
		case PacketPing:
			_ = e.sendPong(header.PacketID)
		case PacketPong:
			// heartbeat liveness already recorded by recvRaw's touchRecv.
		case PacketCommand, PacketCommandLow:
			cmd, ok, err := e.decodeCommandPacket(header, mac, ciphertext)
			if err != nil {
				return Command{}, err
			}
			if ok {
				return cmd, nil
			}
		default:
		}
	}
}

// decodeCommandPacket decrypts and ack's a Command/CommandLow frame,
// feeding it through fragment assembly. ok is true only once a complete
// message has been assembled and parsed.
func (e *Engine) decodeCommandPacket(header Header, mac [crypto.TagSize]byte, ciphertext []byte) (Command, bool, error) {
	gen := e.sess.recvCounter(header.Type).observe(header.PacketID)
	payload, err := openPacket(header, false, gen, e.sess.sharedIV, !e.sess.encryptionLive, ciphertext, mac)
	if err != nil {
		// MAC failure on a post-handshake packet is a silent drop (§4.1
		// "Failure semantics").
		return Command{}, false, nil
	}

	e.sendAck(header)

	assembled, complete, err := e.sess.assembleFragment(header.Type, header.PacketID, payload, header.Flags&FlagFragmented != 0)
	if err != nil {
		return Command{}, false, newError(KindProtocol, "fragment assembly", err)
	}
	if !complete {
		return Command{}, false, nil
	}

	cmd, err := ParseCommand(string(assembled), false)
	if err != nil {
		return Command{}, false, nil
	}
	return cmd, true, nil
}

func (e *Engine) handleAck(header Header, mac [crypto.TagSize]byte, ciphertext []byte) {
	gen := e.sess.recvCounter(header.Type).observe(header.PacketID)
	payload, err := openPacket(header, false, gen, e.sess.sharedIV, !e.sess.encryptionLive, ciphertext, mac)
	if err != nil || len(payload) < 2 {
		return
	}
	ackedID := binary.BigEndian.Uint16(payload[:2])
	target := PacketCommand
	if header.Type == PacketAckLow {
		target = PacketCommandLow
	}
	e.retx.ack(target, ackedID)
}

func (e *Engine) sendAck(header Header) {
	ackType := PacketAck
	if header.Type == PacketCommandLow {
		ackType = PacketAckLow
	}
	var payload [2]byte
	binary.BigEndian.PutUint16(payload[:], header.PacketID)
	if err := e.sendRawPacket(ackType, payload[:], false); err != nil {
		e.log.Warn("engine: send ack", "error", err)
	}
}

func (e *Engine) sendPong(echoID uint16) error {
	var payload [2]byte
	binary.BigEndian.PutUint16(payload[:], echoID)
	return e.sendRawPacket(PacketPong, payload[:], false)
}

func (e *Engine) sendPing() error {
	return e.sendRawPacket(PacketPing, nil, false)
}

// sendRawPacket builds, encrypts (or leaves in the clear for Ping/Pong,
// which carry FlagUnencrypted) and sends one packet, tracking it for
// retransmission if it is a Command/CommandLow frame.
func (e *Engine) sendRawPacket(ptype PacketType, payload []byte, fragmented bool) error {
	id, gen := e.sess.sendCounter(ptype).next()
	flags := FlagNewProtocol
	if fragmented {
		flags |= FlagFragmented
	}

	header := Header{PacketID: id, ClientID: e.sess.ownClientID, Type: ptype, Flags: flags, FromClient: true}

	var raw []byte
	if ptype == PacketPing || ptype == PacketPong {
		header.Flags |= FlagUnencrypted
		raw = buildDataPacket(header, [crypto.TagSize]byte{}, payload)
	} else {
		ciphertext, tag, err := sealPacket(header, true, gen, e.sess.sharedIV, !e.sess.encryptionLive, payload)
		if err != nil {
			return newError(KindCrypto, "seal packet", err)
		}
		raw = buildDataPacket(header, tag, ciphertext)
	}

	if err := e.transport.Send(raw); err != nil {
		return newError(KindTransport, "send packet", err)
	}
	e.m.packetsSent.Add(1)
	if ptype == PacketCommand || ptype == PacketCommandLow {
		e.retx.track(ptype, id, raw)
	}
	return nil
}

// sendCommand fragments text as needed (§4.1 "Fragmentation") and sends it
// as Command packets.
func (e *Engine) sendCommand(ptype PacketType, text string) error {
	payload := []byte(text)
	if len(payload) <= maxCommandChunk {
		return e.sendRawPacket(ptype, payload, false)
	}
	for off := 0; off < len(payload); off += maxCommandChunk {
		end := off + maxCommandChunk
		if end > len(payload) {
			end = len(payload)
		}
		if err := e.sendRawPacket(ptype, payload[off:end], end < len(payload)); err != nil {
			return err
		}
	}
	return nil
}

// startLoops launches the background ping, idle-timeout/retransmit, and
// read goroutines used once the session is Authenticated.
func (e *Engine) startLoops() {
	e.mu.Lock()
	e.stopLoop = make(chan struct{})
	e.loopDone = make(chan struct{})
	e.mu.Unlock()

	go e.runLoop()
}

func (e *Engine) runLoop() {
	defer close(e.loopDone)

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()
	retxTicker := time.NewTicker(retransmitBaseDelay)
	defer retxTicker.Stop()
	idleTicker := time.NewTicker(time.Second)
	defer idleTicker.Stop()

	type rawResult struct {
		data []byte
		err  error
	}
	rawCh := make(chan rawResult, 8)
	go func() {
		for {
			data, err := e.transport.Recv()
			select {
			case rawCh <- rawResult{data, err}:
			case <-e.stopLoop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-e.stopLoop:
			return

		case <-pingTicker.C:
			if err := e.sendPing(); err != nil {
				e.log.Warn("engine: ping", "error", err)
			}

		case <-retxTicker.C:
			resend, expired := e.retx.due(time.Now())
			for _, raw := range resend {
				if err := e.transport.Send(raw); err != nil {
					e.log.Warn("engine: retransmit", "error", err)
				}
			}
			if expired {
				e.fail(newError(KindTimeout, "retransmit exhausted", nil))
				return
			}

		case <-idleTicker.C:
			e.mu.Lock()
			silent := time.Since(e.lastRecv)
			e.mu.Unlock()
			if silent > idleTimeout {
				e.emit(Event{Kind: EventDisconnected, Reason: "timeout"})
				e.teardown()
				return
			}

		case r := <-rawCh:
			if r.err != nil {
				e.emit(Event{Kind: EventError, ErrKind: KindTransport, Detail: r.err.Error()})
				e.teardown()
				return
			}
			e.touchRecv()
			e.handleIncoming(r.data)
		}
	}
}

func (e *Engine) handleIncoming(raw []byte) {
	header, mac, ciphertext, err := parseDataPacket(raw, false)
	if err != nil {
		return
	}

	switch header.Type {
	case PacketAck, PacketAckLow:
		e.handleAck(header, mac, ciphertext)
	case PacketPing:
		_ = e.sendPong(header.PacketID)
	case PacketPong:
	case PacketCommand, PacketCommandLow:
		cmd, ok, err := e.decodeCommandPacket(header, mac, ciphertext)
		if err != nil {
			e.emit(Event{Kind: EventError, ErrKind: KindProtocol, Detail: err.Error()})
			return
		}
		if ok {
			e.handleNotification(cmd)
		}
	default:
	}
}

func (e *Engine) handleNotification(cmd Command) {
	switch cmd.Name {
	case "channellist":
		for _, item := range cmd.Items {
			id, err := strconv.ParseInt(item["cid"], 10, 64)
			if err != nil {
				continue
			}
			e.sess.channels[ChannelID(id)] = Unescape(item["channel_name"])
		}
	case "channellistfinished":
	case "clientlist":
		for _, item := range cmd.Items {
			id, err := strconv.ParseUint(item["clid"], 10, 16)
			if err != nil {
				continue
			}
			e.sess.peers[ClientID(id)] = Unescape(item["client_nickname"])
		}
	case "notifycliententerview":
		item := firstItem(cmd)
		id, err := strconv.ParseUint(item["clid"], 10, 16)
		if err == nil {
			e.sess.peers[ClientID(id)] = Unescape(item["client_nickname"])
		}
	case "notifyclientleftview":
		item := firstItem(cmd)
		id, err := strconv.ParseUint(item["clid"], 10, 16)
		if err != nil {
			return
		}
		delete(e.sess.peers, ClientID(id))
		if ClientID(id) == e.sess.ownClientID {
			reason := item["reasonmsg"]
			if reason == "" {
				reason = "left"
			}
			e.emit(Event{Kind: EventDisconnected, Reason: reason})
			e.teardown()
		}
	case "notifyclientmoved":
		item := firstItem(cmd)
		clid, err1 := strconv.ParseUint(item["clid"], 10, 16)
		cid, err2 := strconv.ParseInt(item["ctid"], 10, 64)
		if err1 == nil && err2 == nil && ClientID(clid) == e.sess.ownClientID {
			e.sess.currentChannel = ChannelID(cid)
		}
	case "notifyserveredited":
		item := firstItem(cmd)
		if name, ok := item["virtualserver_name"]; ok {
			e.sess.virtualServerName = Unescape(name)
		}
	case "notifychanneledited":
		item := firstItem(cmd)
		id, err := strconv.ParseInt(item["cid"], 10, 64)
		if err == nil {
			if name, ok := item["channel_name"]; ok {
				e.sess.channels[ChannelID(id)] = Unescape(name)
			}
		}
	case "notifytextmessage":
		item := firstItem(cmd)
		mode, _ := strconv.Atoi(item["targetmode"])
		invokerID, _ := strconv.ParseUint(item["invokerid"], 10, 16)
		e.emit(Event{
			Kind:        EventTextMessage,
			Mode:        TextMessageMode(mode),
			Text:        Unescape(item["msg"]),
			InvokerName: Unescape(item["invokername"]),
			InvokerID:   ClientID(invokerID),
		})
	default:
		e.log.Debug("engine: unhandled notification", "name", cmd.Name)
	}
}

func firstItem(cmd Command) map[string]string {
	if len(cmd.Items) == 0 {
		return map[string]string{}
	}
	return cmd.Items[0]
}

func (e *Engine) fail(err *Error) {
	e.emit(Event{Kind: EventError, ErrKind: err.Kind, Detail: err.Detail})
	e.teardown()
}

func (e *Engine) teardown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	stopLoop := e.stopLoop
	e.mu.Unlock()

	if stopLoop != nil {
		close(stopLoop)
	}
	e.sess.state = StateDisconnected
	e.retx.reset()
	if e.transport != nil {
		_ = e.transport.Close()
	}
}

// ServerFingerprint returns a short hex fingerprint of the server's
// license-derived Ed25519 public key, usable as a human-checkable identity
// for the server a session is (or was) connected to. Empty before the
// initivexpand2 leg of Connect completes.
func (e *Engine) ServerFingerprint() string {
	if e.sess.serverEdPub == ([32]byte{}) {
		return ""
	}
	return crypto.Fingerprint(e.sess.serverEdPub[:])
}

// MoveToChannel looks up name case-insensitively in the channel directory
// and, if found, sends clientmove (§4.1 "move_to_channel(name)").
func (e *Engine) MoveToChannel(name string) (bool, error) {
	id, ok := e.sess.channelByName(name)
	if !ok {
		return false, nil
	}
	cmd := fmt.Sprintf("clientmove clid=%d cid=%d", e.sess.ownClientID, id)
	if err := e.sendCommand(PacketCommand, cmd); err != nil {
		return false, err
	}
	e.sess.currentChannel = id
	return true, nil
}

// SendTextMessage enqueues a sendtextmessage command. Fire-and-forget;
// reliability is handled by the ack layer.
func (e *Engine) SendTextMessage(mode TextMessageMode, target ClientID, text string) error {
	cmd := fmt.Sprintf("sendtextmessage targetmode=%d target=%d msg=%s", mode, target, Escape(text))
	return e.sendCommand(PacketCommand, cmd)
}

func (e *Engine) SendChannelMessage(text string) error {
	return e.SendTextMessage(TextModeChannel, 0, text)
}

func (e *Engine) SendServerMessage(text string) error {
	return e.SendTextMessage(TextModeServer, 0, text)
}

// UpdateDescription sends clientedit for the own client id.
func (e *Engine) UpdateDescription(text string) error {
	cmd := fmt.Sprintf("clientedit clid=%d client_description=%s", e.sess.ownClientID, Escape(text))
	return e.sendCommand(PacketCommand, cmd)
}

// Disconnect attempts a graceful clientdisconnect and tears down the
// transport. Idempotent.
func (e *Engine) Disconnect() error {
	e.mu.Lock()
	alreadyClosed := e.closed
	e.mu.Unlock()
	if alreadyClosed {
		return nil
	}

	if e.sess.state == StateAuthenticated {
		_ = e.sendCommand(PacketCommand, "clientdisconnect")
	}
	e.teardown()
	return nil
}
