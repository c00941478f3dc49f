// Package contracts holds the interfaces and message types the core
// actors (session, lobby, lobbyregistry, connregistry) use to address
// each other. They live apart from internal/wire — which is the
// client-facing codec — so that session/lobby/lobbyregistry can depend
// on each other's capabilities without an import cycle: session, lobby
// and connregistry import contracts and ids/wire, never one another
// directly; lobbyregistry also imports lobby, since it constructs them.
//
// It mirrors the role actix's Addr<T>/Recipient<T> plays in
// original_source/src/game: client_state.rs holds an Addr<Lobby>,
// lobby.rs holds an Addr<ClientState>, lobby_mgr.rs hands out
// Addr<Lobby> to whoever just joined. Since Go has no actor framework
// in the example pack, those addresses become small handle interfaces
// backed by each actor's own command mailbox.
package contracts

import (
	"context"
	"errors"
	"time"

	"fourinarow-server/internal/ids"
	"fourinarow-server/internal/wire"
)

// ErrNotFound is returned by UserDirectory/MessageArchive lookups that
// miss.
var ErrNotFound = errors.New("contracts: not found")

// PlayerHandle is how a Lobby (and indirectly a LobbyRegistry) reaches
// back to a connected player's Session, the Go analogue of lobby.rs's
// Addr<ClientState>.
type PlayerHandle interface {
	// UserID is nil for a not-logged-in (anonymous/unranked) player.
	UserID() *ids.UserID
	// Deliver hands a server message to the session's outbound queue.
	// It never blocks on the network; delivery to a disconnected
	// session is buffered by the reliability adapter underneath.
	Deliver(msg wire.ServerMessage)
	// ResetToIdle tells a still-attached session that the Lobby it was
	// in just tore down out from under it (opponent left, idle
	// watchdog, ready-pong timeout) so it returns to Idle instead of
	// being stuck believing it still occupies a dead lobby. The Go
	// analogue of client_state.rs's ClientStateMessage::Reset.
	ResetToIdle(ctx context.Context)
}

// LeaveReason distinguishes a voluntary leave from a connection drop,
// carried over from original_source's PlayerLeaveReason (lobby.rs).
type LeaveReason int

const (
	LeaveVoluntary LeaveReason = iota
	LeaveDisconnected
)

// ClientLobbyMessageKind enumerates what a Session may tell the Lobby
// it is currently seated in, the Go equivalent of lobby.rs's
// ClientLobbyMessage enum.
type ClientLobbyMessageKind int

const (
	LobbyMsgPlaceChip ClientLobbyMessageKind = iota
	LobbyMsgRematchRequest
	LobbyMsgLeaving
	LobbyMsgChatMessage
	LobbyMsgChatRead
	// LobbyMsgReadyPong is sent only by the host seat, in answer to the
	// ReadyForGamePing the Lobby sends once a second player joins.
	LobbyMsgReadyPong
)

// ClientLobbyMessage is one event routed from a Session into the Lobby
// it currently belongs to, tagged with which of the two seats it came
// from.
type ClientLobbyMessage struct {
	Sender ids.Player
	Kind   ClientLobbyMessageKind

	Column int         // LobbyMsgPlaceChip
	Reason LeaveReason // LobbyMsgLeaving

	ChatText       string // LobbyMsgChatMessage
	ChatSenderName string // LobbyMsgChatMessage, empty for the global thread
}

// LobbyHandle is how a Session reaches the Lobby it currently belongs
// to, the Go analogue of client_state.rs's Addr<Lobby>.
type LobbyHandle interface {
	Deliver(ctx context.Context, msg ClientLobbyMessage) error
}

// LobbyJoinOutcome is what LobbyRegistry hands back to a session that
// just opened, joined, or battle-requested a lobby: which of the two
// seats it was given, the minted/looked-up id, a handle to address the
// lobby, and whether it is still waiting for a second player (true for
// the PlayerOne host of a fresh lobby, false for the PlayerTwo joiner
// and for a battle requester whose target is already seated).
type LobbyJoinOutcome struct {
	Player  ids.Player
	GameID  ids.GameID
	Lobby   LobbyHandle
	Waiting bool
}

// LobbyRegistryHandle is how a Session opens, joins, or battle-requests
// a lobby, the Go analogue of lobby_mgr.rs's Addr<LobbyManager>.
type LobbyRegistryHandle interface {
	NewLobby(ctx context.Context, kind wire.LobbyKind, host PlayerHandle, hostUID *ids.UserID) (LobbyJoinOutcome, error)
	JoinLobby(ctx context.Context, gameID ids.GameID, joiner PlayerHandle, joinerUID *ids.UserID) (LobbyJoinOutcome, error)
	BattleRequest(ctx context.Context, fromUID, toUID ids.UserID, from PlayerHandle) (LobbyJoinOutcome, error)
	// LobbyClosed notifies the registry that gameID's lobby has torn
	// itself down (a player left, the idle watchdog fired, or the
	// ready-pong timed out) and should be removed from the active map
	// and, if it held it, the open public slot.
	LobbyClosed(ctx context.Context, gameID ids.GameID)
	// PlayedGame forwards a ranked game's outcome to UserDirectory, the
	// Go analogue of lobby_mgr.rs's LobbyManagerMsg::PlayedGame arm.
	PlayedGame(ctx context.Context, info PlayedGameInfo)
}

// ConnectionRegistryHandle is how a Session or Lobby reaches the
// process-wide connection registry for global chat and presence
// counts, the Go analogue of connection_mgr.rs's
// send_server_info_to_all / global ChatMessage fan-out.
type ConnectionRegistryHandle interface {
	BroadcastChat(ctx context.Context, fromUID *ids.UserID, text string)
	ConnectedCount(ctx context.Context) int
}

// UserInfo is the minimal identity a session needs once logged in.
type UserInfo struct {
	ID       ids.UserID
	Username string
}

// PlayedGameInfo records the outcome of a ranked game (SPEC_FULL.md §4.2).
type PlayedGameInfo struct {
	Winner ids.UserID
	Loser  ids.UserID
}

// ChatMessage is one archived entry of a thread.
type ChatMessage struct {
	ID        int64
	Thread    ids.ChatThreadID
	FromUID   *ids.UserID
	Body      string
	CreatedAt time.Time
}

// UserDirectory is the external collaborator SPEC_FULL.md §6 names:
// authenticate a session token, track which user is attached to which
// live session (for friend battle requests), record ranked outcomes.
// Note that SetPlaying/ResolveBattleTarget deal in live PlayerHandles,
// not just persisted rows — the same split original_source's UserManager
// makes by caching an Addr<ClientState> alongside each playing user.
type UserDirectory interface {
	LookupBySessionToken(ctx context.Context, token string) (*UserInfo, error)
	SetPlaying(ctx context.Context, uid ids.UserID, handle PlayerHandle) error
	ClearPlaying(ctx context.Context, uid ids.UserID) error
	RecordPlayedGame(ctx context.Context, info PlayedGameInfo) error
	// ResolveBattleTarget reports the live session handle for uid, if
	// that user is currently connected and playing.
	ResolveBattleTarget(ctx context.Context, uid ids.UserID) (PlayerHandle, bool, error)
}

// MessageArchive appends to and reads back a chat thread.
type MessageArchive interface {
	Append(ctx context.Context, thread ids.ChatThreadID, fromUID *ids.UserID, text string) (ChatMessage, error)
	ReadPage(ctx context.Context, thread ids.ChatThreadID, beforeID int64, limit int) (messages []ChatMessage, more bool, err error)
}
