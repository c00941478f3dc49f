// Package lobby implements one match between two sessions (SPEC_FULL.md
// §4.2, C2): the join handshake, turn arbitration over a board.Board,
// per-lobby chat relay, rematch voting, and teardown. It is grounded in
// full on original_source/src/game/lobby.rs's Lobby actor — the same
// LobbyState transitions, the same LOBBY_TIMEOUT_S/GAME_START_DELAY_S/
// GAME_READY_RESPONSE_TIMEOUT_MS constants, and the same teardown
// broadcast on stop.
package lobby

import (
	"context"
	"time"

	"fourinarow-server/internal/actor"
	"fourinarow-server/internal/board"
	"fourinarow-server/internal/contracts"
	"fourinarow-server/internal/ids"
	"fourinarow-server/internal/wire"
)

const (
	IdleTimeout      = 30 * time.Minute
	GameStartDelay   = 2 * time.Second
	ReadyPongTimeout = 5 * time.Second
	watchdogInterval = 5 * time.Second
)

type lobbyState int

const (
	stateOnePlayer lobbyState = iota
	stateWaitingForPong
	stateTwoPlayers
)

type seat struct {
	handle contracts.PlayerHandle
	uid    *ids.UserID
}

type clientEvent struct{ msg contracts.ClientLobbyMessage }
type playerJoined struct {
	handle contracts.PlayerHandle
	uid    *ids.UserID
}
type readyPong struct{}
type readyTimeout struct{ generation int }
type gameStartTimer struct{ generation int }

type cmd struct {
	clientEvent    *clientEvent
	playerJoined   *playerJoined
	readyPong      *readyPong
	readyTimeout   *readyTimeout
	gameStartTimer *gameStartTimer
}

// Lobby is one match. NewLobby/BattleRequest in internal/lobbyregistry
// construct one per pairing attempt and run it in its own goroutine;
// JoinLobby only seats a second player in an existing one.
type Lobby struct {
	gameID   ids.GameID
	kind     wire.LobbyKind
	registry contracts.LobbyRegistryHandle
	rng      board.Random
	archive  contracts.MessageArchive

	mailbox actor.Mailbox[cmd]

	state        lobbyState
	host         seat
	joined       seat
	ranked       bool
	gameBoard    *board.Board
	lastActivity time.Time

	// timeoutGeneration guards against a stale timer firing after the
	// state it was armed for has already moved on (e.g. a ready-pong
	// timeout firing after the pong already arrived and GameStart has
	// been scheduled).
	timeoutGeneration int

	// cancel stops Run's loop once the lobby has torn down for good
	// (teardown, or a ready-pong timeout that kills the pairing attempt);
	// without it a finished match's goroutine and mailbox would leak
	// until process shutdown.
	cancel context.CancelFunc
}

// New constructs a lobby in OnePlayer state, the Go analogue of
// Lobby::new. The caller (LobbyRegistry) has already minted gameID and
// decided kind (public/private).
func New(gameID ids.GameID, kind wire.LobbyKind, registry contracts.LobbyRegistryHandle, archive contracts.MessageArchive, rng board.Random, host contracts.PlayerHandle, hostUID *ids.UserID) *Lobby {
	return &Lobby{
		gameID:       gameID,
		kind:         kind,
		registry:     registry,
		rng:          rng,
		archive:      archive,
		mailbox:      actor.NewMailbox[cmd](32),
		state:        stateOnePlayer,
		host:         seat{handle: host, uid: hostUID},
		lastActivity: time.Now(),
	}
}

// Run drains the lobby's mailbox and fires the 30-minute idle watchdog
// every 5 s, until ctx is cancelled or the lobby tears itself down.
func (l *Lobby) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	done := make(chan struct{})
	go func() {
		actor.RunTicked(ctx, l.mailbox, func(c cmd) { l.handle(ctx, c) }, watchdogInterval, func() { l.checkIdle(ctx) })
		close(done)
	}()
	<-done
}

// Deliver satisfies contracts.LobbyHandle: a Session forwards one of
// its player's in-lobby events here.
func (l *Lobby) Deliver(ctx context.Context, msg contracts.ClientLobbyMessage) error {
	select {
	case l.mailbox <- cmd{clientEvent: &clientEvent{msg: msg}}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PlayerJoined is called by LobbyRegistry once a second player has been
// matched to this lobby (LobbyMessage::PlayerJoined in lobby.rs).
func (l *Lobby) PlayerJoined(ctx context.Context, handle contracts.PlayerHandle, uid *ids.UserID) {
	select {
	case l.mailbox <- cmd{playerJoined: &playerJoined{handle: handle, uid: uid}}:
	case <-ctx.Done():
	}
}

// ReceivedReadyPong is called by the host's Session once the client
// answers the ready-for-game ping.
func (l *Lobby) ReceivedReadyPong(ctx context.Context) {
	select {
	case l.mailbox <- cmd{readyPong: &readyPong{}}:
	case <-ctx.Done():
	}
}

func (l *Lobby) armTimer(ctx context.Context, after time.Duration, build func(gen int) cmd) {
	gen := l.timeoutGeneration
	time.AfterFunc(after, func() {
		select {
		case l.mailbox <- build(gen):
		case <-ctx.Done():
		}
	})
}

func (l *Lobby) checkIdle(ctx context.Context) {
	if time.Since(l.lastActivity) > IdleTimeout {
		l.teardown(ctx)
	}
}

func (l *Lobby) handle(ctx context.Context, c cmd) {
	switch {
	case c.playerJoined != nil:
		l.lastActivity = time.Now()
		l.onPlayerJoined(ctx, c.playerJoined.handle, c.playerJoined.uid)
	case c.readyPong != nil:
		l.lastActivity = time.Now()
		l.onReadyPong(ctx)
	case c.readyTimeout != nil:
		if c.readyTimeout.generation == l.timeoutGeneration && l.state == stateWaitingForPong {
			l.onReadyTimeout(ctx)
		}
	case c.gameStartTimer != nil:
		if c.gameStartTimer.generation == l.timeoutGeneration {
			l.onGameStart()
		}
	case c.clientEvent != nil:
		l.lastActivity = time.Now()
		l.onClientEvent(ctx, c.clientEvent.msg)
	}
}

func (l *Lobby) onPlayerJoined(ctx context.Context, handle contracts.PlayerHandle, uid *ids.UserID) {
	if l.state != stateOnePlayer {
		handle.Deliver(wire.OpponentJoinMessage())
		return
	}
	l.joined = seat{handle: handle, uid: uid}
	l.state = stateWaitingForPong
	l.timeoutGeneration++
	l.host.handle.Deliver(wire.ReadyPingMessage())
	l.armTimer(ctx, ReadyPongTimeout, func(gen int) cmd { return cmd{readyTimeout: &readyTimeout{generation: gen}} })
}

func (l *Lobby) onReadyTimeout(ctx context.Context) {
	// The joiner never got a confirmed pairing; the spec calls this out
	// specifically as LobbyNotFound rather than the generic teardown
	// message, since from the joiner's perspective the match never
	// really happened.
	l.joined.handle.Deliver(wire.ErrorMessage(wire.ErrLobbyNotFound))
	l.joined.handle.ResetToIdle(ctx)
	l.host.handle.Deliver(wire.LobbyClosingMessage())
	l.host.handle.ResetToIdle(ctx)
	l.registry.LobbyClosed(ctx, l.gameID)
	l.state = stateOnePlayer
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *Lobby) onReadyPong(ctx context.Context) {
	if l.state != stateWaitingForPong {
		return
	}
	l.timeoutGeneration++
	l.host.handle.Deliver(wire.OpponentJoinMessage())
	l.joined.handle.Deliver(wire.OpponentJoinMessage())

	l.ranked = l.host.uid != nil && l.joined.uid != nil
	l.gameBoard = board.New(l.rng)
	l.state = stateTwoPlayers

	l.armTimer(ctx, GameStartDelay, func(gen int) cmd { return cmd{gameStartTimer: &gameStartTimer{generation: gen}} })
}

func (l *Lobby) onGameStart() {
	l.gameBoard.Reset(l.rng)
	hostUID := uidPtr(l.joined.uid)
	joinedUID := uidPtr(l.host.uid)
	l.host.handle.Deliver(wire.GameStartMessage(l.gameBoard.Turn() == ids.PlayerOne, hostUID))
	l.joined.handle.Deliver(wire.GameStartMessage(l.gameBoard.Turn() == ids.PlayerTwo, joinedUID))
}

func uidPtr(uid *ids.UserID) *string {
	if uid == nil {
		return nil
	}
	s := string(*uid)
	return &s
}

func (l *Lobby) onClientEvent(ctx context.Context, msg contracts.ClientLobbyMessage) {
	switch msg.Kind {
	case contracts.LobbyMsgPlaceChip:
		l.onPlaceChip(ctx, msg.Sender, msg.Column)
	case contracts.LobbyMsgRematchRequest:
		l.onRematchRequest(msg.Sender)
	case contracts.LobbyMsgLeaving:
		l.onLeaving(ctx, msg.Sender, msg.Reason)
	case contracts.LobbyMsgChatMessage:
		l.onChatMessage(ctx, msg.Sender, msg.ChatText, msg.ChatSenderName)
	case contracts.LobbyMsgChatRead:
		l.onChatRead(msg.Sender)
	case contracts.LobbyMsgReadyPong:
		if msg.Sender == ids.PlayerOne {
			l.onReadyPong(ctx)
		}
	}
}

func (l *Lobby) seatFor(player ids.Player) seat {
	return ids.Select(player, l.host, l.joined)
}

func (l *Lobby) onPlaceChip(ctx context.Context, sender ids.Player, column int) {
	if l.state != stateTwoPlayers {
		l.notGameStartedError()
		return
	}
	mover := l.seatFor(sender)
	opponent := l.seatFor(sender.Other())

	winner, err := l.gameBoard.Place(column, sender)
	if err != nil {
		mover.handle.Deliver(wire.ErrorMessage(toWireBoardError(err)))
		return
	}
	mover.handle.Deliver(wire.OkayMessage())
	opponent.handle.Deliver(wire.PlaceChipMessage(column))
	if winner == nil {
		return
	}
	mover.handle.Deliver(wire.GameOverMessage(winner.Player == sender))
	opponent.handle.Deliver(wire.GameOverMessage(winner.Player == sender.Other()))

	if l.ranked {
		winnerSeat := l.seatFor(winner.Player)
		loserSeat := l.seatFor(winner.Player.Other())
		l.registry.PlayedGame(ctx, contracts.PlayedGameInfo{Winner: *winnerSeat.uid, Loser: *loserSeat.uid})
	}
}

func (l *Lobby) onRematchRequest(sender ids.Player) {
	if l.state != stateTwoPlayers {
		l.notGameStartedError()
		return
	}
	winner := l.gameBoard.Winner()
	if winner == nil {
		l.seatFor(sender).handle.Deliver(wire.ErrorMessage(wire.ErrGameNotOver))
		return
	}
	if l.gameBoard.RequestRematch(sender) {
		l.onGameStart()
	}
}

func (l *Lobby) notGameStartedError() {
	l.host.handle.Deliver(wire.ErrorMessage(wire.ErrGameNotStarted))
	if l.joined.handle != nil {
		l.joined.handle.Deliver(wire.ErrorMessage(wire.ErrGameNotStarted))
	}
}

func (l *Lobby) onLeaving(ctx context.Context, sender ids.Player, reason contracts.LeaveReason) {
	_ = reason
	other := l.seatFor(sender.Other())
	if l.state != stateOnePlayer && other.handle != nil {
		other.handle.Deliver(wire.OpponentLeaveMessage())
	}
	l.teardown(ctx)
}

func (l *Lobby) onChatMessage(ctx context.Context, sender ids.Player, text, senderName string) {
	if l.state != stateTwoPlayers {
		return
	}
	thread := ids.ChatThreadID(l.gameID)
	fromUID := seatUID(l.seatFor(sender))
	out := wire.ServerMessage{
		Kind:        wire.SMChatMessage,
		ChatThread:  thread,
		ChatText:    text,
		ChatFromUID: fromUID,
	}
	if l.archive != nil {
		if recorded, err := l.archive.Append(ctx, thread, fromUID, text); err == nil {
			out.ChatID = recorded.ID
			out.ChatTimestamp = recorded.CreatedAt.Unix()
		}
	}
	recipient := l.seatFor(sender.Other())
	recipient.handle.Deliver(out)
	_ = senderName
}

func (l *Lobby) onChatRead(sender ids.Player) {
	if l.state != stateTwoPlayers {
		return
	}
	recipient := l.seatFor(sender.Other())
	recipient.handle.Deliver(wire.ServerMessage{Kind: wire.SMChatRead, ChatThread: ids.ChatThreadID(l.gameID)})
}

func seatUID(s seat) *ids.UserID { return s.uid }

// teardown sends LobbyClosing to every still-attached seat and notifies
// the registry, the Go analogue of Lobby::stopping.
func (l *Lobby) teardown(ctx context.Context) {
	if l.host.handle != nil {
		l.host.handle.Deliver(wire.LobbyClosingMessage())
		l.host.handle.ResetToIdle(ctx)
	}
	if l.joined.handle != nil {
		l.joined.handle.Deliver(wire.LobbyClosingMessage())
		l.joined.handle.ResetToIdle(ctx)
	}
	l.registry.LobbyClosed(ctx, l.gameID)
	if l.cancel != nil {
		l.cancel()
	}
}

func toWireBoardError(err error) wire.SrvMsgError {
	switch err {
	case board.ErrInvalidColumn:
		return wire.ErrInvalidColumn
	case board.ErrNotYourTurn:
		return wire.ErrNotYourTurn
	default:
		return wire.ErrInternal
	}
}
