// Package session implements the Session component (SPEC_FULL.md §4.4,
// C4): the per-connection actor sitting between a ReliabilityAdapter
// and whichever Lobby the player currently occupies. Grounded in full
// on original_source/src/game/client_state.rs's ClientState actor — the
// same inbound event table and the same NotLoggedIn/NotInLobby guard
// violations.
package session

import (
	"context"

	"fourinarow-server/internal/actor"
	"fourinarow-server/internal/contracts"
	"fourinarow-server/internal/ids"
	"fourinarow-server/internal/wire"
)

// Outbound is the minimal slice of *reliability.Adapter a Session needs:
// a non-blocking, always-thread-safe place to hand outgoing messages.
type Outbound interface {
	Send(msg wire.ServerMessage)
}

type playerMsgCmd struct{ msg wire.PlayerMessage }
type internalErrorCmd struct{}
type lobbyResetCmd struct{}

type cmd struct {
	playerMsg     *playerMsgCmd
	internalError *internalErrorCmd
	lobbyReset    *lobbyResetCmd
}

// Session is one connected player, from first HELLO through however many
// logins/lobbies/chats it passes through before disconnecting for good.
type Session struct {
	adapter      Outbound
	registry     contracts.LobbyRegistryHandle
	directory    contracts.UserDirectory
	connRegistry contracts.ConnectionRegistryHandle

	mailbox actor.Mailbox[cmd]

	uid          *ids.UserID
	currentLobby contracts.LobbyHandle
	seat         ids.Player
}

func New(adapter Outbound, registry contracts.LobbyRegistryHandle, directory contracts.UserDirectory, connRegistry contracts.ConnectionRegistryHandle) *Session {
	return &Session{
		adapter:      adapter,
		registry:     registry,
		directory:    directory,
		connRegistry: connRegistry,
		mailbox:      actor.NewMailbox[cmd](32),
	}
}

// SetOutbound backfills the adapter a Session sends through. transport
// constructs a Session before its reliability.Adapter exists (the
// Adapter needs the Session as its Forwarder), so the two are wired
// together in two steps; callers must call this before Run/Forward are
// reachable from another goroutine.
func (s *Session) SetOutbound(adapter Outbound) {
	s.adapter = adapter
}

// Run drains the session's mailbox until ctx is cancelled (the
// connection closing for good) or the mailbox is closed.
func (s *Session) Run(ctx context.Context) {
	actor.Run(ctx, s.mailbox, func(c cmd) { s.handle(ctx, c) })
	s.cleanup(context.Background())
}

// UserID satisfies contracts.PlayerHandle.
func (s *Session) UserID() *ids.UserID { return s.uid }

// Deliver satisfies contracts.PlayerHandle: a Lobby or the
// ConnectionRegistry handing this player an outgoing message. It goes
// straight to the adapter rather than through this session's own
// mailbox — the adapter has its own internal ordering/retry mailbox, so
// routing through Session's loop first would only add needless latency.
func (s *Session) Deliver(msg wire.ServerMessage) {
	s.adapter.Send(msg)
}

// Forward satisfies reliability.Forwarder: the adapter handing this
// session an in-order, de-duplicated inbound logical message.
func (s *Session) Forward(ctx context.Context, msg wire.PlayerMessage) {
	select {
	case s.mailbox <- cmd{playerMsg: &playerMsgCmd{msg: msg}}:
	case <-ctx.Done():
	}
}

// ForwardInternalError satisfies reliability.Forwarder: the adapter has
// given up on its peer (retry limit exhausted). The session reports an
// Internal error and leaves its lobby, if any, as a disconnect.
func (s *Session) ForwardInternalError(ctx context.Context) {
	select {
	case s.mailbox <- cmd{internalError: &internalErrorCmd{}}:
	case <-ctx.Done():
	}
}

// ResetToIdle satisfies contracts.PlayerHandle.
func (s *Session) ResetToIdle(ctx context.Context) {
	select {
	case s.mailbox <- cmd{lobbyReset: &lobbyResetCmd{}}:
	case <-ctx.Done():
	}
}

func (s *Session) handle(ctx context.Context, c cmd) {
	switch {
	case c.playerMsg != nil:
		s.onPlayerMessage(ctx, c.playerMsg.msg)
	case c.internalError != nil:
		s.Deliver(wire.ErrorMessage(wire.ErrInternal))
		s.cleanup(ctx)
	case c.lobbyReset != nil:
		s.leaveLobby(ctx)
	}
}

func (s *Session) onPlayerMessage(ctx context.Context, msg wire.PlayerMessage) {
	switch msg.Kind {
	case wire.PMPing:
		s.Deliver(wire.PongMessage())

	case wire.PMLogin:
		s.onLogin(ctx, msg.Token)

	case wire.PMLogout:
		s.onLogout(ctx)

	case wire.PMLobbyRequest:
		s.onLobbyRequest(ctx, msg.LobbyKind)

	case wire.PMLobbyJoin:
		s.onLobbyJoin(ctx, msg.GameID)

	case wire.PMReadyPong:
		s.toLobby(ctx, contracts.ClientLobbyMessage{Sender: s.seat, Kind: contracts.LobbyMsgReadyPong})

	case wire.PMPlaceChip:
		s.toLobby(ctx, contracts.ClientLobbyMessage{Sender: s.seat, Kind: contracts.LobbyMsgPlaceChip, Column: msg.Column})

	case wire.PMPlayAgainRequest:
		s.toLobby(ctx, contracts.ClientLobbyMessage{Sender: s.seat, Kind: contracts.LobbyMsgRematchRequest})

	case wire.PMLeaving:
		s.onLeaving(ctx)

	case wire.PMBattleReq:
		s.onBattleReq(ctx, msg.UserID)

	case wire.PMChatMessage:
		s.onChatMessage(ctx, msg.Text)

	case wire.PMChatRead:
		s.onChatRead(ctx)
	}
}

func (s *Session) onLogin(ctx context.Context, token string) {
	if s.currentLobby != nil {
		s.Deliver(wire.ErrorMessage(wire.ErrAlreadyInLobby))
		return
	}
	if token == "" {
		s.Deliver(wire.ErrorMessage(wire.ErrMissingSessionToken))
		return
	}
	info, err := s.directory.LookupBySessionToken(ctx, token)
	if err != nil {
		s.Deliver(wire.ErrorMessage(wire.ErrIncorrectCredentials))
		return
	}
	if s.uid != nil {
		_ = s.directory.ClearPlaying(ctx, *s.uid)
	}
	s.uid = &info.ID
	s.Deliver(wire.OkayMessage())
}

func (s *Session) onLogout(ctx context.Context) {
	if s.uid != nil {
		_ = s.directory.ClearPlaying(ctx, *s.uid)
	}
	s.uid = nil
	s.Deliver(wire.OkayMessage())
}

func (s *Session) onLobbyRequest(ctx context.Context, kind wire.LobbyKind) {
	if s.currentLobby != nil {
		s.Deliver(wire.ErrorMessage(wire.ErrAlreadyInLobby))
		return
	}
	outcome, err := s.registry.NewLobby(ctx, kind, s, s.uid)
	if err != nil {
		s.Deliver(wire.ErrorMessage(wire.ErrInternal))
		return
	}
	// A public host is quick-matched automatically and never needs the
	// game id to share; it just waits. A private host needs the id back
	// so it can hand it to whoever it invites.
	if kind == wire.LobbyPublic {
		s.enterLobby(ctx, outcome, wire.OkayMessage())
		return
	}
	s.enterLobby(ctx, outcome, wire.ServerMessage{Kind: wire.SMLobbyID, BattleGameID: outcome.GameID})
}

func (s *Session) onLobbyJoin(ctx context.Context, gameID ids.GameID) {
	if s.currentLobby != nil {
		s.Deliver(wire.ErrorMessage(wire.ErrAlreadyInLobby))
		return
	}
	outcome, err := s.registry.JoinLobby(ctx, gameID, s, s.uid)
	if err != nil {
		s.Deliver(wire.ErrorMessage(wire.ErrLobbyNotFound))
		return
	}
	// The joiner already supplied gameID itself; it only needs an
	// acknowledgement, not the id echoed back.
	s.enterLobby(ctx, outcome, wire.OkayMessage())
}

func (s *Session) onBattleReq(ctx context.Context, targetUID ids.UserID) {
	if s.uid == nil {
		s.Deliver(wire.ErrorMessage(wire.ErrNotLoggedIn))
		return
	}
	if s.currentLobby != nil {
		s.Deliver(wire.ErrorMessage(wire.ErrAlreadyInLobby))
		return
	}
	outcome, err := s.registry.BattleRequest(ctx, *s.uid, targetUID, s)
	if err != nil {
		s.Deliver(wire.ErrorMessage(wire.ErrUserNotPlaying))
		return
	}
	// The requester didn't choose gameID, so it needs it echoed back the
	// same way a private-lobby host does.
	s.enterLobby(ctx, outcome, wire.ServerMessage{Kind: wire.SMLobbyID, BattleGameID: outcome.GameID})
}

func (s *Session) enterLobby(ctx context.Context, outcome contracts.LobbyJoinOutcome, response wire.ServerMessage) {
	s.currentLobby = outcome.Lobby
	s.seat = outcome.Player
	if s.uid != nil {
		_ = s.directory.SetPlaying(ctx, *s.uid, s)
	}
	s.Deliver(response)
}

func (s *Session) onLeaving(ctx context.Context) {
	if s.currentLobby == nil {
		s.Deliver(wire.ErrorMessage(wire.ErrNotInLobby))
		return
	}
	s.toLobby(ctx, contracts.ClientLobbyMessage{Sender: s.seat, Kind: contracts.LobbyMsgLeaving, Reason: contracts.LeaveVoluntary})
	s.leaveLobby(ctx)
}

func (s *Session) onChatMessage(ctx context.Context, text string) {
	if s.currentLobby != nil {
		s.toLobby(ctx, contracts.ClientLobbyMessage{Sender: s.seat, Kind: contracts.LobbyMsgChatMessage, ChatText: text})
		return
	}
	s.connRegistry.BroadcastChat(ctx, s.uid, text)
}

func (s *Session) onChatRead(ctx context.Context) {
	if s.currentLobby == nil {
		return
	}
	s.toLobby(ctx, contracts.ClientLobbyMessage{Sender: s.seat, Kind: contracts.LobbyMsgChatRead})
}

func (s *Session) toLobby(ctx context.Context, msg contracts.ClientLobbyMessage) {
	if s.currentLobby == nil {
		s.Deliver(wire.ErrorMessage(wire.ErrNotInLobby))
		return
	}
	if err := s.currentLobby.Deliver(ctx, msg); err != nil {
		s.Deliver(wire.ErrorMessage(wire.ErrInternal))
	}
}

func (s *Session) leaveLobby(ctx context.Context) {
	s.currentLobby = nil
	if s.uid != nil {
		_ = s.directory.ClearPlaying(ctx, *s.uid)
	}
}

// cleanup notifies the Lobby (if any) that this session dropped, the Go
// analogue of client_state.rs's Drop/stopping teardown telling its
// Lobby the connection is gone for good rather than merely reconnecting.
func (s *Session) cleanup(ctx context.Context) {
	if s.currentLobby == nil {
		return
	}
	_ = s.currentLobby.Deliver(ctx, contracts.ClientLobbyMessage{Sender: s.seat, Kind: contracts.LobbyMsgLeaving, Reason: contracts.LeaveDisconnected})
	s.leaveLobby(ctx)
}
