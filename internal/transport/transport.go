// Package transport is the WebSocket front door (SPEC_FULL.md §4.6's
// HELLO handshake plus the Connected/Disconnected/Legacy connection
// lifecycle of §4.5): it owns the raw *websocket.Conn, decides whether
// an incoming socket is a brand new client, a reconnecting one, or a
// legacy (pre-reliability) one, and wires each resolved connection to a
// fresh reliability.Adapter + session.Session pair. Grounded on
// internal/server/routes.go's websocketHandler/corsMiddleware/
// heartbeatLoop and cmd/api/main.go's gracefulShutdown, generalized from
// canasta-server's ad hoc JSON ClientMessage dispatch to the HELLO/MSG/
// ACK wire protocol SPEC_FULL.md §4.5 specifies.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fourinarow-server/internal/config"
	"fourinarow-server/internal/connregistry"
	"fourinarow-server/internal/contracts"
	"fourinarow-server/internal/ids"
	"fourinarow-server/internal/reliability"
	"fourinarow-server/internal/session"
	"fourinarow-server/internal/wire"
)

const (
	// helloGrace mirrors SPEC_FULL.md §4.6's "short grace (≈5 s)" a
	// client gets to send HELLO before a recognisable legacy command
	// instead buys it a Legacy Adapter/Session pair.
	helloGrace = 5 * time.Second
	// disconnectGrace is the Disconnected(since) eviction window,
	// SPEC_FULL.md §4.5.
	disconnectGrace = 30 * time.Second
	reaperInterval  = time.Second
	writeTimeout    = 5 * time.Second
)

// minProtocolVersion is client_adapter.rs's MIN_VERSION.
const minProtocolVersion = 2

// wsTransport adapts one *websocket.Conn to reliability.Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Send(raw string) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return t.conn.Write(ctx, websocket.MessageText, []byte(raw))
}

// entry is one token's worth of reconnectable state: the running
// Adapter/Session pair and, while the socket is away, when it dropped.
type entry struct {
	token        string // empty for a Legacy connection, which has no reconnect token
	adapter      *reliability.Adapter
	sess         *session.Session
	cancel       context.CancelFunc
	disconnected bool
	since        time.Time
}

// Hub is the process-wide WebSocket front door: one instance serves
// every /ws connection and keeps the token -> (Adapter, Session)
// map the teacher's ConnectionManager kept, generalized to reliability's
// Connected/Disconnected/Legacy lifecycle.
type Hub struct {
	log          *logrus.Logger
	cfg          config.Config
	registry     contracts.LobbyRegistryHandle
	directory    contracts.UserDirectory
	connRegistry *connregistry.Registry

	mu      sync.Mutex
	entries map[string]*entry

	limiter *rateLimiter
}

func New(log *logrus.Logger, cfg config.Config, registry contracts.LobbyRegistryHandle, directory contracts.UserDirectory, connRegistry *connregistry.Registry) *Hub {
	return &Hub{
		log:          log,
		cfg:          cfg,
		registry:     registry,
		directory:    directory,
		connRegistry: connRegistry,
		entries:      make(map[string]*entry),
		limiter:      newRateLimiter(20, time.Second),
	}
}

// Run sweeps Disconnected entries older than disconnectGrace every
// reaperInterval, the Go analogue of SPEC_FULL.md §4.6's periodic
// duties, until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reap()
		}
	}
}

func (h *Hub) reap() {
	h.mu.Lock()
	var evicted []*entry
	for token, e := range h.entries {
		if e.disconnected && time.Since(e.since) >= disconnectGrace {
			e.adapter.Close()
			e.cancel()
			delete(h.entries, token)
			evicted = append(evicted, e)
		}
	}
	h.mu.Unlock()
	// Unregister happens only here, on final eviction, not on every
	// transient socket drop — a drop that reconnects within grace must
	// stay in the broadcast set the whole time or it misses global chat
	// and CURRENT_SERVER_STATE pushes while away.
	for _, e := range evicted {
		h.connRegistry.Unregister(context.Background(), e.sess)
	}
}

// Handler builds the HTTP mux the way routes.go's RegisterRoutes did:
// a handful of plain routes plus the websocket upgrade, behind the same
// CORS middleware.
func (h *Hub) Handler(health func() error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.helloWorldHandler)
	mux.HandleFunc("/health", h.healthHandler(health))
	mux.HandleFunc("/ws", h.serveWS)
	return h.corsMiddleware(mux)
}

func (h *Hub) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := h.allowedOrigin()
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "false")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Hub) allowedOrigin() string {
	if h.cfg.Production() {
		return "https://fourinarow.example.com"
	}
	return "*"
}

func (h *Hub) helloWorldHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Hello World"})
}

func (h *Hub) healthHandler(health func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "down", "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "up"})
	}
}

func (h *Hub) originPatterns() []string {
	if h.cfg.Production() {
		return []string{"fourinarow.example.com"}
	}
	return []string{"*"}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns()})
	if err != nil {
		h.log.WithError(err).Warn("transport: websocket accept failed")
		return
	}
	defer socket.Close(websocket.StatusInternalError, "connection closing")

	connID := uuid.New().String()
	transport := &wsTransport{conn: socket}

	helloCtx, cancelHello := context.WithTimeout(r.Context(), helloGrace)
	_, payload, err := socket.Read(helloCtx)
	cancelHello()
	if err != nil {
		h.log.WithField("conn", connID).Debug("transport: no initial frame before hello grace expired")
		socket.Close(websocket.StatusPolicyViolation, "no hello")
		return
	}

	if hello, ok := wire.ParseHelloIn(string(payload)); ok {
		h.serveHello(r.Context(), socket, transport, connID, hello)
		return
	}

	// No HELLO, but a recognisable legacy command: SPEC_FULL.md §4.6's
	// compatibility carve-out for pre-reliability clients.
	if msg, ok := wire.ParsePlayerMessage(string(payload)); ok {
		h.serveLegacy(r.Context(), socket, transport, connID, msg)
		return
	}

	socket.Close(websocket.StatusUnsupportedData, "expected HELLO")
}

func (h *Hub) serveHello(ctx context.Context, socket *websocket.Conn, transport *wsTransport, connID string, hello wire.HelloIn) {
	if hello.ProtocolVersion < minProtocolVersion {
		h.writeRaw(ctx, socket, wire.HelloOut{Outdated: true}.Serialize())
		socket.Close(websocket.StatusNormalClosure, "outdated protocol")
		return
	}

	if !hello.IsNew {
		if e, ok := h.reconnect(hello.Token, transport); ok {
			h.writeRaw(ctx, socket, wire.HelloOut{Token: hello.Token}.Serialize())
			h.readLoop(ctx, socket, connID, e, false)
			return
		}
	}

	token := string(ids.NewSessionToken())
	e := h.newEntry(transport, false)
	e.token = token
	h.mu.Lock()
	h.entries[token] = e
	h.mu.Unlock()
	h.connRegistry.Register(ctx, e.sess)

	h.writeRaw(ctx, socket, wire.HelloOut{IsNew: true, Token: token}.Serialize())
	h.readLoop(ctx, socket, connID, e, false)
}

// reconnect swaps a fresh transport into the Adapter already bound to
// token, the Go analogue of ConnectionManager's HELLO::REQ hit path.
func (h *Hub) reconnect(token string, transport *wsTransport) (*entry, bool) {
	h.mu.Lock()
	e, ok := h.entries[token]
	if ok {
		e.disconnected = false
	}
	h.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.adapter.Reconnect(transport)
	return e, true
}

func (h *Hub) serveLegacy(ctx context.Context, socket *websocket.Conn, transport *wsTransport, connID string, first wire.PlayerMessage) {
	e := h.newEntry(transport, true)
	h.connRegistry.Register(ctx, e.sess)
	e.sess.Forward(ctx, first)
	h.readLoop(ctx, socket, connID, e, true)
}

func (h *Hub) newEntry(transport *wsTransport, legacy bool) *entry {
	connCtx, cancel := context.WithCancel(context.Background())
	sess := session.New(nil, h.registry, h.directory, h.connRegistry)
	adapter := reliability.New(sess, transport, legacy)
	sess.SetOutbound(adapter)

	go adapter.Run(connCtx)
	go sess.Run(connCtx)

	return &entry{adapter: adapter, sess: sess, cancel: cancel}
}

// readLoop pumps raw frames from socket into e.adapter until the socket
// closes, then marks the entry Disconnected (reliable) or tears it down
// outright (legacy), matching SPEC_FULL.md §4.5's two connection-loss
// behaviors.
func (h *Hub) readLoop(ctx context.Context, socket *websocket.Conn, connID string, e *entry, legacy bool) {
	for {
		_, data, err := socket.Read(ctx)
		if err != nil {
			break
		}
		if !h.limiter.allow(connID) {
			continue
		}
		if legacy {
			if msg, ok := wire.ParsePlayerMessage(string(data)); ok {
				e.sess.Forward(ctx, msg)
			}
			continue
		}
		e.adapter.HandleRaw(string(data))
	}

	h.limiter.remove(connID)
	h.onReadLoopExit(e)
}

func (h *Hub) onReadLoopExit(e *entry) {
	if e.token == "" {
		// Legacy connections have no reconnect token: the socket
		// dropping means the connection is gone for good, so unregister
		// immediately rather than waiting on reap's disconnect window.
		e.adapter.Close()
		e.cancel()
		h.connRegistry.Unregister(context.Background(), e.sess)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e.disconnected = true
	e.since = time.Now()
	e.adapter.Disconnect()
}

func (h *Hub) writeRaw(ctx context.Context, socket *websocket.Conn, raw string) {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = socket.Write(writeCtx, websocket.MessageText, []byte(raw))
}
