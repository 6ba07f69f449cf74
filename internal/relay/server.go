package relay

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// wsGUID is the fixed handshake GUID from RFC 6455 section 1.3.
const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// defaultRemotePort is the UDP port assumed when the upgrade request omits
// one, matching a stock TeamSpeak 3 voice server.
const defaultRemotePort = 9987

// Server is the UDP relay gateway: it upgrades framed bidirectional streams
// and bridges each one to a dedicated UDP socket aimed at a caller-supplied
// host/port. The process-wide client table is guarded by a single mutex, per
// spec ("Shared mutable client-id table in the relay").
type Server struct {
	secret    string
	startedAt time.Time
	log       *slog.Logger

	mu      sync.Mutex
	clients map[string]*relayConn
}

// relayConn is one bridged session: a hijacked stream connection paired
// with the UDP socket dialing its configured remote.
type relayConn struct {
	id     string
	stream net.Conn
	ws     *wsConn
	udp    *net.UDPConn
}

// NewServer constructs a relay gateway. secret is the shared token every
// upgrade request must present in its `token` query parameter.
func NewServer(secret string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		secret:    secret,
		startedAt: time.Now(),
		log:       log,
		clients:   make(map[string]*relayConn),
	}
}

// Handler returns the HTTP handler wiring the upgrade endpoint and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleUpgrade)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("token") != s.secret || s.secret == "" {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	host := q.Get("host")
	if host == "" {
		http.Error(w, "missing host", http.StatusBadRequest)
		return
	}

	port := defaultRemotePort
	if p := q.Get("port"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v <= 0 || v > 65535 {
			http.Error(w, "invalid port", http.StatusBadRequest)
			return
		}
		port = v
	}

	key := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Key"))
	if key == "" || !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		http.Error(w, "invalid host", http.StatusBadRequest)
		return
	}
	udpConn, err := net.DialUDP("udp", nil, remoteAddr)
	if err != nil {
		http.Error(w, "could not open udp socket", http.StatusInternalServerError)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "upgrade not supported", http.StatusInternalServerError)
		_ = udpConn.Close()
		return
	}
	stream, rw, err := hj.Hijack()
	if err != nil {
		_ = udpConn.Close()
		return
	}

	accept := computeAccept(key)
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := rw.WriteString(resp); err != nil || rw.Flush() != nil {
		_ = stream.Close()
		_ = udpConn.Close()
		return
	}

	id := newConnID()
	rc := &relayConn{
		id:     id,
		stream: stream,
		ws:     newWSConn(bufio.NewReadWriter(rw.Reader, rw.Writer)),
		udp:    udpConn,
	}
	s.addClient(rc)
	s.log.Info("relay: session opened", "id", id, "remote", remoteAddr.String())

	s.pump(rc)
}

// pump bridges rc's stream and UDP socket until either side closes or
// errors, then releases both per "Failure semantics" (release socket,
// discard any in-progress fragment buffer -- the fragment buffer lives on
// rc.ws and is simply dropped with it when this function returns).
func (s *Server) pump(rc *relayConn) {
	defer s.removeClient(rc)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 65536)
		for {
			n, err := rc.udp.Read(buf)
			if err != nil {
				return
			}
			if err := rc.ws.writeFrame(opBinary, buf[:n], false); err != nil {
				return
			}
		}
	}()

	for {
		opcode, payload, err := rc.ws.readMessage()
		if err != nil {
			break
		}
		switch opcode {
		case opBinary:
			if _, err := rc.udp.Write(payload); err != nil {
				s.log.Warn("relay: udp send failed", "id", rc.id, "error", err)
				continue
			}
		case opPing:
			if err := rc.ws.writeFrame(opPong, payload, false); err != nil {
				break
			}
		case opClose:
			_ = rc.ws.writeFrame(opClose, nil, false)
			goto closed
		case opText:
			// text messages carry no UDP payload; ignored per contract.
		}
	}
closed:

	_ = rc.stream.Close()
	_ = rc.udp.Close()
	<-done
}

func (s *Server) addClient(rc *relayConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[rc.id] = rc
}

func (s *Server) removeClient(rc *relayConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, rc.id)
}

// Shutdown closes every tracked session's stream and UDP socket. Call it
// before closing the listener on SIGINT.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rc := range s.clients {
		_ = rc.stream.Close()
		_ = rc.udp.Close()
		delete(s.clients, id)
	}
}

func computeAccept(key string) string {
	sum := sha1.Sum([]byte(key + wsGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func newConnID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
