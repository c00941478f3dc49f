// Package lobbyregistry implements the LobbyRegistry component
// (SPEC_FULL.md §4.3, C3): minting game ids, pairing quick-match
// players into a shared open lobby, routing join-by-code requests, and
// wiring battle requests to an already-playing opponent. Grounded on
// original_source/src/game/lobby_mgr.rs's LobbyManager in full.
package lobbyregistry

import (
	"context"
	"errors"
	"math/rand"

	"fourinarow-server/internal/actor"
	"fourinarow-server/internal/board"
	"fourinarow-server/internal/contracts"
	"fourinarow-server/internal/ids"
	"fourinarow-server/internal/lobby"
	"fourinarow-server/internal/wire"
)

var (
	ErrLobbyNotFound      = errors.New("lobbyregistry: lobby not found")
	ErrTargetNotPlaying   = errors.New("lobbyregistry: battle target is not currently in a game")
)

type systemRandom struct{}

func (systemRandom) Intn(n int) int { return rand.Intn(n) }

type lobbyOpResult struct {
	outcome contracts.LobbyJoinOutcome
	err     error
}

type newLobbyCmd struct {
	kind    wire.LobbyKind
	host    contracts.PlayerHandle
	hostUID *ids.UserID
	reply   actor.Reply[lobbyOpResult]
}

type joinLobbyCmd struct {
	gameID    ids.GameID
	joiner    contracts.PlayerHandle
	joinerUID *ids.UserID
	reply     actor.Reply[lobbyOpResult]
}

type battleRequestCmd struct {
	fromUID, toUID ids.UserID
	from           contracts.PlayerHandle
	reply          actor.Reply[lobbyOpResult]
}

type lobbyClosedCmd struct{ gameID ids.GameID }
type playedGameCmd struct{ info contracts.PlayedGameInfo }
type someoneWaitingCmd struct{ reply actor.Reply[bool] }

type cmd struct {
	newLobby       *newLobbyCmd
	joinLobby      *joinLobbyCmd
	battleRequest  *battleRequestCmd
	lobbyClosed    *lobbyClosedCmd
	playedGame     *playedGameCmd
	someoneWaiting *someoneWaitingCmd
}

// OpenSlotNotifier is told whenever the open public lobby slot changes
// (a host arrives, a quick-match pairs up, a lobby closes), the Go
// analogue of lobby_mgr.rs firing ConnectionManagerMsg::Update reactively
// instead of leaving presence entirely to ConnectionRegistry's poll.
type OpenSlotNotifier interface {
	RefreshServerInfo(ctx context.Context)
}

// Registry is the single LobbyRegistry actor for the server. It satisfies
// contracts.LobbyRegistryHandle; a *Lobby holds one of these to report
// closure and played games back.
type Registry struct {
	directory contracts.UserDirectory
	archive   contracts.MessageArchive
	rng       board.Random
	notifier  OpenSlotNotifier

	mailbox actor.Mailbox[cmd]

	active       map[ids.GameID]*lobby.Lobby
	openPublicID *ids.GameID
}

func New(directory contracts.UserDirectory, archive contracts.MessageArchive) *Registry {
	return &Registry{
		directory: directory,
		archive:   archive,
		rng:       systemRandom{},
		mailbox:   actor.NewMailbox[cmd](64),
		active:    make(map[ids.GameID]*lobby.Lobby),
	}
}

// SetNotifier backfills who to tell about open-slot changes. Registry and
// ConnectionRegistry are constructed in opposite dependency directions
// (ConnectionRegistry needs a Registry as its WaitingSource), so this is
// wired in a second step, the same pattern session.SetOutbound uses.
// Must be called before Run/doNewLobby etc. are reachable concurrently.
func (r *Registry) SetNotifier(n OpenSlotNotifier) {
	r.notifier = n
}

func (r *Registry) notifyOpenSlotChanged(ctx context.Context) {
	if r.notifier != nil {
		r.notifier.RefreshServerInfo(ctx)
	}
}

func (r *Registry) Run(ctx context.Context) {
	actor.Run(ctx, r.mailbox, func(c cmd) { r.handle(ctx, c) })
}

func (r *Registry) handle(ctx context.Context, c cmd) {
	switch {
	case c.newLobby != nil:
		outcome, err := r.doNewLobby(ctx, c.newLobby.kind, c.newLobby.host, c.newLobby.hostUID)
		c.newLobby.reply <- lobbyOpResult{outcome, err}
	case c.joinLobby != nil:
		outcome, err := r.doJoinLobby(ctx, c.joinLobby.gameID, c.joinLobby.joiner, c.joinLobby.joinerUID)
		c.joinLobby.reply <- lobbyOpResult{outcome, err}
	case c.battleRequest != nil:
		outcome, err := r.doBattleRequest(ctx, c.battleRequest.fromUID, c.battleRequest.toUID, c.battleRequest.from)
		c.battleRequest.reply <- lobbyOpResult{outcome, err}
	case c.lobbyClosed != nil:
		r.doLobbyClosed(ctx, c.lobbyClosed.gameID)
	case c.playedGame != nil:
		r.doPlayedGame(ctx, c.playedGame.info)
	case c.someoneWaiting != nil:
		c.someoneWaiting.reply <- r.openPublicID != nil
	}
}

func (r *Registry) idSet() map[ids.GameID]struct{} {
	set := make(map[ids.GameID]struct{}, len(r.active))
	for id := range r.active {
		set[id] = struct{}{}
	}
	return set
}

func (r *Registry) doNewLobby(ctx context.Context, kind wire.LobbyKind, host contracts.PlayerHandle, hostUID *ids.UserID) (contracts.LobbyJoinOutcome, error) {
	if kind == wire.LobbyPublic && r.openPublicID != nil {
		gameID := *r.openPublicID
		l := r.active[gameID]
		r.openPublicID = nil
		l.PlayerJoined(ctx, host, hostUID)
		r.notifyOpenSlotChanged(ctx)
		return contracts.LobbyJoinOutcome{Player: ids.PlayerTwo, GameID: gameID, Lobby: l, Waiting: false}, nil
	}

	gameID := ids.NewGameID(r.idSet())
	l := lobby.New(gameID, kind, r, r.archive, r.rng, host, hostUID)
	r.active[gameID] = l
	go l.Run(ctx)
	if kind == wire.LobbyPublic {
		id := gameID
		r.openPublicID = &id
		r.notifyOpenSlotChanged(ctx)
	}
	return contracts.LobbyJoinOutcome{Player: ids.PlayerOne, GameID: gameID, Lobby: l, Waiting: true}, nil
}

func (r *Registry) doJoinLobby(ctx context.Context, gameID ids.GameID, joiner contracts.PlayerHandle, joinerUID *ids.UserID) (contracts.LobbyJoinOutcome, error) {
	l, ok := r.active[gameID]
	if !ok {
		return contracts.LobbyJoinOutcome{}, ErrLobbyNotFound
	}
	if r.openPublicID != nil && *r.openPublicID == gameID {
		r.openPublicID = nil
		r.notifyOpenSlotChanged(ctx)
	}
	l.PlayerJoined(ctx, joiner, joinerUID)
	return contracts.LobbyJoinOutcome{Player: ids.PlayerTwo, GameID: gameID, Lobby: l, Waiting: false}, nil
}

// doBattleRequest pairs fromUID with an opponent already mid-game
// (resolved through the UserDirectory's live presence map), the Go
// analogue of lobby_mgr.rs's BattleReq handler: it opens a fresh private
// lobby naming `from` as host, immediately joins the resolved target,
// and sends the target an SMBattleReq heads-up so a client can surface
// who challenged it.
func (r *Registry) doBattleRequest(ctx context.Context, fromUID, toUID ids.UserID, from contracts.PlayerHandle) (contracts.LobbyJoinOutcome, error) {
	target, ok, err := r.directory.ResolveBattleTarget(ctx, toUID)
	if err != nil {
		return contracts.LobbyJoinOutcome{}, err
	}
	if !ok {
		return contracts.LobbyJoinOutcome{}, ErrTargetNotPlaying
	}

	gameID := ids.NewGameID(r.idSet())
	fromUIDCopy := fromUID
	l := lobby.New(gameID, wire.LobbyPrivate, r, r.archive, r.rng, from, &fromUIDCopy)
	r.active[gameID] = l
	go l.Run(ctx)

	toUIDCopy := toUID
	l.PlayerJoined(ctx, target, &toUIDCopy)
	target.Deliver(wire.ServerMessage{Kind: wire.SMBattleReq, BattleFromUID: fromUID, BattleGameID: gameID})

	return contracts.LobbyJoinOutcome{Player: ids.PlayerOne, GameID: gameID, Lobby: l, Waiting: false}, nil
}

func (r *Registry) doLobbyClosed(ctx context.Context, gameID ids.GameID) {
	delete(r.active, gameID)
	if r.openPublicID != nil && *r.openPublicID == gameID {
		r.openPublicID = nil
		r.notifyOpenSlotChanged(ctx)
	}
}

func (r *Registry) doPlayedGame(ctx context.Context, info contracts.PlayedGameInfo) {
	// Best-effort; a persistence failure here should not take the lobby
	// down, the game already finished from the players' point of view.
	_ = r.directory.RecordPlayedGame(ctx, info)
}

// NewLobby satisfies contracts.LobbyRegistryHandle.
func (r *Registry) NewLobby(ctx context.Context, kind wire.LobbyKind, host contracts.PlayerHandle, hostUID *ids.UserID) (contracts.LobbyJoinOutcome, error) {
	res, err := actor.Ask[cmd, lobbyOpResult](ctx, r.mailbox, func(reply actor.Reply[lobbyOpResult]) cmd {
		return cmd{newLobby: &newLobbyCmd{kind: kind, host: host, hostUID: hostUID, reply: reply}}
	})
	if err != nil {
		return contracts.LobbyJoinOutcome{}, err
	}
	return res.outcome, res.err
}

// JoinLobby satisfies contracts.LobbyRegistryHandle.
func (r *Registry) JoinLobby(ctx context.Context, gameID ids.GameID, joiner contracts.PlayerHandle, joinerUID *ids.UserID) (contracts.LobbyJoinOutcome, error) {
	res, err := actor.Ask[cmd, lobbyOpResult](ctx, r.mailbox, func(reply actor.Reply[lobbyOpResult]) cmd {
		return cmd{joinLobby: &joinLobbyCmd{gameID: gameID, joiner: joiner, joinerUID: joinerUID, reply: reply}}
	})
	if err != nil {
		return contracts.LobbyJoinOutcome{}, err
	}
	return res.outcome, res.err
}

// BattleRequest satisfies contracts.LobbyRegistryHandle.
func (r *Registry) BattleRequest(ctx context.Context, fromUID, toUID ids.UserID, from contracts.PlayerHandle) (contracts.LobbyJoinOutcome, error) {
	res, err := actor.Ask[cmd, lobbyOpResult](ctx, r.mailbox, func(reply actor.Reply[lobbyOpResult]) cmd {
		return cmd{battleRequest: &battleRequestCmd{fromUID: fromUID, toUID: toUID, from: from, reply: reply}}
	})
	if err != nil {
		return contracts.LobbyJoinOutcome{}, err
	}
	return res.outcome, res.err
}

// LobbyClosed satisfies contracts.LobbyRegistryHandle.
func (r *Registry) LobbyClosed(ctx context.Context, gameID ids.GameID) {
	select {
	case r.mailbox <- cmd{lobbyClosed: &lobbyClosedCmd{gameID: gameID}}:
	case <-ctx.Done():
	}
}

// PlayedGame satisfies contracts.LobbyRegistryHandle.
func (r *Registry) PlayedGame(ctx context.Context, info contracts.PlayedGameInfo) {
	select {
	case r.mailbox <- cmd{playedGame: &playedGameCmd{info: info}}:
	case <-ctx.Done():
	}
}

// SomeoneWaiting reports whether a public lobby is currently open and
// waiting for a second player, for ConnectionRegistry's periodic
// CURRENT_SERVER_STATE broadcast.
func (r *Registry) SomeoneWaiting(ctx context.Context) (bool, error) {
	return actor.Ask[cmd, bool](ctx, r.mailbox, func(reply actor.Reply[bool]) cmd {
		return cmd{someoneWaiting: &someoneWaitingCmd{reply: reply}}
	})
}
