// Package reliability is the at-most-once, ordered delivery adapter
// that sits between the raw websocket and a Session (SPEC_FULL.md §4.5,
// C5). It is grounded in full on
// original_source/src/game/client_adapter.rs's ClientAdapter: the same
// monotonic id assignment, the same inbound exact/future/past-id
// handling with a queue-drain on every in-order arrival, and the same
// outbound resend loop with the pre-increment retry-count gate (a
// message is dropped, and the connection torn down, only once its
// *already-attempted* count exceeds the limit — not its count after
// this attempt).
package reliability

import (
	"context"
	"sync"
	"time"

	"fourinarow-server/internal/actor"
	"fourinarow-server/internal/wire"
)

const (
	ResendInterval = 250 * time.Millisecond
	ResendTimeout  = 700 * time.Millisecond
	RetryLimit     = 16
)

// Transport is the live outbound sink for an adapter, a raw text
// websocket write. Adapter never blocks on it for long; a slow/broken
// socket just means queued messages pile up until Disconnect is called.
type Transport interface {
	Send(raw string) error
}

// Forwarder receives player messages once they've been reassembled
// in order, the adapter's only upward collaborator. Session implements
// this; declaring it here instead of importing internal/session keeps
// reliability free of a dependency on the session package.
type Forwarder interface {
	Forward(ctx context.Context, msg wire.PlayerMessage)
	// ForwardInternalError is called when the adapter gives up on its
	// peer because a message exhausted the retry limit (see giveUp), the
	// equivalent of client_adapter.rs notifying
	// ServerMessage::Error(SrvMsgError::Internal) upstream. Malformed
	// frames do not reach it; they are answered with an ERR frame.
	ForwardInternalError(ctx context.Context)
}

type connState int

const (
	stateConnected connState = iota
	stateDisconnected
	stateLegacy
)

type queuedServer struct {
	id         int
	msg        wire.ServerMessage
	sent       time.Time
	retryCount int
}

type queuedPlayer struct {
	id  int
	msg wire.PlayerMessage
}

type rawIn struct{ payload string }
type sendOut struct{ msg wire.ServerMessage }
type connect struct{ transport Transport }
type disconnect struct{}
type closeAdapter struct{}

type cmd struct {
	rawIn        *rawIn
	sendOut      *sendOut
	connect      *connect
	disconnect   *disconnect
	closeAdapter *closeAdapter
}

// Adapter is one client's reliability layer; one instance per
// connected session, same lifetime as the ClientAdapter actor it is
// grounded on.
type Adapter struct {
	forwarder Forwarder

	mailbox actor.Mailbox[cmd]
	once    sync.Once

	// state below is only ever touched from the run loop goroutine.
	state     connState
	transport Transport

	playerMsgIndex int
	playerMsgQ     []queuedPlayer
	serverMsgIndex int
	serverMsgQ     []queuedServer
}

// New constructs an adapter already wired to transport. legacy marks a
// pre-reliability client, one that opened with a recognisable command
// instead of HELLO (see internal/transport's serveLegacy): such clients
// exchange bare PlayerMessage/ServerMessage text with no ACK/MSG
// framing at all.
func New(forwarder Forwarder, transport Transport, legacy bool) *Adapter {
	state := stateConnected
	if legacy {
		state = stateLegacy
	}
	return &Adapter{
		forwarder: forwarder,
		mailbox:   actor.NewMailbox[cmd](32),
		state:     state,
		transport: transport,
	}
}

// Run drains the adapter's mailbox and fires the resend sweep every
// ResendInterval, until ctx is cancelled. Call it in its own goroutine.
func (a *Adapter) Run(ctx context.Context) {
	actor.RunTicked(ctx, a.mailbox, func(c cmd) { a.handle(ctx, c) }, ResendInterval, func() { a.resendQueued(ctx) })
}

// HandleRaw delivers one inbound text frame from the socket.
func (a *Adapter) HandleRaw(payload string) {
	a.send(cmd{rawIn: &rawIn{payload: payload}})
}

// Send queues a server message for reliable delivery to the client.
func (a *Adapter) Send(msg wire.ServerMessage) {
	a.send(cmd{sendOut: &sendOut{msg: msg}})
}

// Reconnect attaches a fresh transport after the client re-established
// its socket, the equivalent of ClientAdapterMsg::Connect.
func (a *Adapter) Reconnect(transport Transport) {
	a.send(cmd{connect: &connect{transport: transport}})
}

// Disconnect marks the adapter as having lost its socket; queued and
// future sends keep accumulating until Reconnect or Close.
func (a *Adapter) Disconnect() {
	a.send(cmd{disconnect: &disconnect{}})
}

// Close drops every queued message in both directions (the session
// itself is gone). It does not stop the run loop; that ends only when
// the ctx passed to Run is cancelled.
func (a *Adapter) Close() {
	a.send(cmd{closeAdapter: &closeAdapter{}})
}

func (a *Adapter) send(c cmd) {
	select {
	case a.mailbox <- c:
	default:
		// Mailbox full: best-effort, drop rather than block a caller
		// that may itself be this adapter's own goroutine during shutdown.
	}
}

func (a *Adapter) handle(ctx context.Context, c cmd) {
	switch {
	case c.rawIn != nil:
		a.handleRaw(ctx, c.rawIn.payload)
	case c.sendOut != nil:
		a.handleSend(ctx, c.sendOut.msg)
	case c.connect != nil:
		a.transport = c.connect.transport
		if a.state == stateDisconnected {
			a.state = stateConnected
		}
	case c.disconnect != nil:
		a.state = stateDisconnected
	case c.closeAdapter != nil:
		a.playerMsgQ = nil
		a.serverMsgQ = nil
	}
}

func (a *Adapter) handleRaw(ctx context.Context, payload string) {
	if a.state == stateLegacy {
		if msg, ok := wire.ParsePlayerMessage(payload); ok {
			a.forwarder.Forward(ctx, msg)
		}
		return
	}

	pkt, err := wire.ParseReliablePacketIn(payload)
	if err != nil {
		a.writeRaw(wire.ErrPacket(toWireReliabilityError(err)).Serialize())
		return
	}
	if pkt.IsAck {
		a.handleAck(pkt.AckID)
		return
	}
	a.receiveReliable(ctx, pkt.MsgID, pkt.Payload)
}

func toWireReliabilityError(err error) wire.ReliabilityError {
	if rerr, ok := err.(wire.ReliabilityError); ok {
		return rerr
	}
	return wire.ErrUnknownMessage
}

func (a *Adapter) handleAck(id int) {
	for i, q := range a.serverMsgQ {
		if q.id == id {
			a.serverMsgQ = append(a.serverMsgQ[:i], a.serverMsgQ[i+1:]...)
			return
		}
	}
}

// receiveReliable is client_adapter.rs's received_reliable_pkt for the
// Msg(id, payload) branch: exact match forwards and drains the queue,
// a future id gets buffered, a stale id is re-acked without forwarding.
func (a *Adapter) receiveReliable(ctx context.Context, id int, msg wire.PlayerMessage) {
	expected := a.playerMsgIndex + 1
	switch {
	case id == expected:
		a.playerMsgIndex = expected
		a.forwarder.Forward(ctx, msg)
		a.ack(id)
		a.processQueue(ctx)
	case id > expected:
		a.playerMsgQ = append(a.playerMsgQ, queuedPlayer{id: id, msg: msg})
		a.ack(a.playerMsgIndex)
	default:
		a.ack(id)
	}
}

// processQueue drains playerMsgQ repeatedly as long as the next
// expected id is present, exactly mirroring the Rust loop that handles
// e.g. [4, 5, 3, 7] arriving with index 2: 3, 4, 5 drain in order and 7
// stays queued.
func (a *Adapter) processQueue(ctx context.Context) {
	for {
		advanced := false
		remaining := a.playerMsgQ[:0:0]
		for _, q := range a.playerMsgQ {
			expected := a.playerMsgIndex + 1
			if q.id == expected {
				a.playerMsgIndex = expected
				a.forwarder.Forward(ctx, q.msg)
				a.ack(q.id)
				advanced = true
			} else {
				remaining = append(remaining, q)
			}
		}
		a.playerMsgQ = remaining
		if !advanced {
			return
		}
	}
}

func (a *Adapter) ack(id int) {
	a.writeRaw(wire.AckPacket(id).Serialize())
}

func (a *Adapter) handleSend(ctx context.Context, msg wire.ServerMessage) {
	if a.state == stateLegacy {
		a.writeRaw(msg.Serialize())
		return
	}
	a.serverMsgIndex++
	a.dispatch(ctx, queuedServer{id: a.serverMsgIndex, msg: msg, retryCount: 0})
}

// dispatch is client_adapter.rs's Handler<ReliablePacketOut>: for a
// live connection it gates on the retry count *before* this attempt,
// requeues with the count incremented, and writes the frame; for a
// disconnected client it just requeues without writing or incrementing,
// matching the Rust Disconnected arm exactly. Exceeding the retry limit
// is client_adapter.rs:256's ctx.stop() — the peer is considered lost,
// so the adapter tears itself down and cascades the loss to the Session
// instead of quietly piling the message up forever.
func (a *Adapter) dispatch(ctx context.Context, q queuedServer) {
	switch a.state {
	case stateConnected:
		if q.retryCount > RetryLimit {
			a.giveUp(ctx)
			return
		}
		pkt := wire.MsgPacket(q.id, q.msg, q.retryCount)
		q.sent = time.Now()
		q.retryCount++
		a.serverMsgQ = append(a.serverMsgQ, q)
		a.writeRaw(pkt.Serialize())
	case stateDisconnected:
		q.sent = time.Now()
		a.serverMsgQ = append(a.serverMsgQ, q)
	case stateLegacy:
		a.writeRaw(wire.MsgPacket(q.id, q.msg, q.retryCount).Serialize())
	}
}

// giveUp tears the adapter down the same way closeAdapter does and tells
// the Session its peer is lost, so the "peer considered lost" cascade of
// SPEC_FULL §4.5/§5 fires immediately rather than only once the socket
// also happens to drop.
func (a *Adapter) giveUp(ctx context.Context) {
	a.state = stateDisconnected
	a.playerMsgQ = nil
	a.serverMsgQ = nil
	a.forwarder.ForwardInternalError(ctx)
}

// resendQueued is client_adapter.rs's resend_queued_interval: every
// ResendInterval, anything that has sat unacked past ResendTimeout is
// redispatched (which, in turn, re-evaluates the retry gate).
func (a *Adapter) resendQueued(ctx context.Context) {
	pending := a.serverMsgQ
	a.serverMsgQ = nil
	for _, q := range pending {
		if time.Since(q.sent) >= ResendTimeout {
			a.dispatch(ctx, q)
		} else {
			a.serverMsgQ = append(a.serverMsgQ, q)
		}
	}
}

func (a *Adapter) writeRaw(raw string) {
	if a.transport == nil {
		return
	}
	if err := a.transport.Send(raw); err != nil {
		a.state = stateDisconnected
	}
}
