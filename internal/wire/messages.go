package wire

import (
	"encoding/base64"
	"strconv"
	"strings"

	"fourinarow-server/internal/ids"
)

// LobbyKind distinguishes a private (invite-code) lobby from the single
// public matchmaking queue (SPEC_FULL.md §4.3).
type LobbyKind int

const (
	LobbyPrivate LobbyKind = iota
	LobbyPublic
)

// PlayerMessageKind tags the player->server logical messages of SPEC_FULL.md §6.
type PlayerMessageKind int

const (
	PMPlaceChip PlayerMessageKind = iota
	PMLobbyRequest
	PMLobbyJoin
	PMPlayAgainRequest
	PMLeaving
	PMPing
	PMLogin
	PMLogout
	PMBattleReq
	PMChatMessage
	PMChatRead
	PMReadyPong
)

// PlayerMessage is a parsed player->server logical message (the payload of
// a reliability-layer MSG frame, see internal/reliability).
type PlayerMessage struct {
	Kind      PlayerMessageKind
	Column    int
	LobbyKind LobbyKind
	GameID    ids.GameID
	Token     string
	UserID    ids.UserID
	Text      string
}

// ParsePlayerMessage decodes a colon-delimited logical payload. Unknown or
// malformed payloads report ok=false; the caller (ReliabilityAdapter)
// discards them per SPEC_FULL.md §7.
func ParsePlayerMessage(payload string) (PlayerMessage, bool) {
	if len(payload) > 1000 {
		// Chat messages might legitimately be long; anything beyond that is
		// not a message this protocol produces.
		return PlayerMessage{}, false
	}
	upper := strings.ToUpper(payload)

	switch {
	case strings.HasPrefix(upper, "PC:") && len(upper) == 4:
		col, err := strconv.Atoi(upper[3:4])
		if err != nil {
			return PlayerMessage{}, false
		}
		return PlayerMessage{Kind: PMPlaceChip, Column: col}, true

	case upper == "REQ_LOBBY":
		return PlayerMessage{Kind: PMLobbyRequest, LobbyKind: LobbyPrivate}, true

	case upper == "REQ_WW":
		return PlayerMessage{Kind: PMLobbyRequest, LobbyKind: LobbyPublic}, true

	case strings.HasPrefix(upper, "JOIN_LOBBY:") && len(upper) == 11+ids.GameIDLen:
		id, ok := ids.ParseGameID(upper[11 : 11+ids.GameIDLen])
		if !ok {
			return PlayerMessage{}, false
		}
		return PlayerMessage{Kind: PMLobbyJoin, GameID: id}, true

	case upper == "PLAY_AGAIN":
		return PlayerMessage{Kind: PMPlayAgainRequest}, true

	case upper == "LEAVE":
		return PlayerMessage{Kind: PMLeaving}, true

	case upper == "PING":
		return PlayerMessage{Kind: PMPing}, true

	case strings.HasPrefix(upper, "LOGIN:"):
		parts := strings.SplitN(payload, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			return PlayerMessage{}, false
		}
		return PlayerMessage{Kind: PMLogin, Token: parts[1]}, true

	case upper == "LOGOUT":
		return PlayerMessage{Kind: PMLogout}, true

	case strings.HasPrefix(upper, "BATTLE_REQ:"):
		parts := strings.SplitN(payload, ":", 2)
		if len(parts) != 2 {
			return PlayerMessage{}, false
		}
		return PlayerMessage{Kind: PMBattleReq, UserID: ids.UserID(parts[1])}, true

	case strings.HasPrefix(upper, "CHAT_MSG:"):
		parts := strings.SplitN(payload, ":", 2)
		if len(parts) != 2 {
			return PlayerMessage{}, false
		}
		decoded, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			return PlayerMessage{}, false
		}
		return PlayerMessage{Kind: PMChatMessage, Text: string(decoded)}, true

	case upper == "CHAT_READ":
		return PlayerMessage{Kind: PMChatRead}, true

	case upper == "READY_PONG":
		return PlayerMessage{Kind: PMReadyPong}, true

	default:
		return PlayerMessage{}, false
	}
}

// ServerMessageKind tags the server->player logical messages.
type ServerMessageKind int

const (
	SMPlaceChip ServerMessageKind = iota
	SMOpponentJoining
	SMOpponentLeaving
	SMGameStart
	SMGameOver
	SMLobbyClosing
	SMOkay
	SMPong
	SMReadyPing
	SMError
	SMBattleReq
	SMCurrentServerState
	SMChatMessage
	SMChatRead
	SMLobbyID
)

type ServerMessage struct {
	Kind ServerMessageKind

	Column int // SMPlaceChip

	YourTurn    bool    // SMGameStart, SMGameOver ("you win"/"your turn")
	OpponentUID *string // SMGameStart

	Err *SrvMsgError // SMError, nil means a bare "ERROR" with no kind

	BattleFromUID ids.UserID // SMBattleReq
	BattleGameID  ids.GameID // SMBattleReq, SMLobbyID

	ConnectedCount int  // SMCurrentServerState
	SomeoneWaiting bool // SMCurrentServerState

	ChatThread    ids.ChatThreadID // SMChatMessage, SMChatRead
	ChatID        int64            // SMChatMessage
	ChatTimestamp int64            // SMChatMessage, unix seconds
	ChatFromUID   *ids.UserID      // SMChatMessage
	ChatText      string           // SMChatMessage
}

func OkayMessage() ServerMessage        { return ServerMessage{Kind: SMOkay} }
func PongMessage() ServerMessage        { return ServerMessage{Kind: SMPong} }
func ReadyPingMessage() ServerMessage   { return ServerMessage{Kind: SMReadyPing} }
func OpponentJoinMessage() ServerMessage { return ServerMessage{Kind: SMOpponentJoining} }
func OpponentLeaveMessage() ServerMessage { return ServerMessage{Kind: SMOpponentLeaving} }
func LobbyClosingMessage() ServerMessage { return ServerMessage{Kind: SMLobbyClosing} }

func ErrorMessage(kind SrvMsgError) ServerMessage {
	k := kind
	return ServerMessage{Kind: SMError, Err: &k}
}

func PlaceChipMessage(column int) ServerMessage {
	return ServerMessage{Kind: SMPlaceChip, Column: column}
}

func GameStartMessage(yourTurn bool, opponentUID *string) ServerMessage {
	return ServerMessage{Kind: SMGameStart, YourTurn: yourTurn, OpponentUID: opponentUID}
}

func GameOverMessage(youWin bool) ServerMessage {
	return ServerMessage{Kind: SMGameOver, YourTurn: youWin}
}

// Serialize renders the message in the colon-delimited wire format of
// SPEC_FULL.md §6.
func (m ServerMessage) Serialize() string {
	switch m.Kind {
	case SMPlaceChip:
		return "PC:" + strconv.Itoa(m.Column)
	case SMOpponentJoining:
		return "OPP_JOINED"
	case SMOpponentLeaving:
		return "OPP_LEAVING"
	case SMGameStart:
		side := "OPP"
		if m.YourTurn {
			side = "YOU"
		}
		if m.OpponentUID != nil {
			return "GAME_START:" + side + ":" + *m.OpponentUID
		}
		return "GAME_START:" + side
	case SMGameOver:
		if m.YourTurn {
			return "GAME_OVER:YOU"
		}
		return "GAME_OVER:OPP"
	case SMLobbyClosing:
		return "LOBBY_CLOSING"
	case SMOkay:
		return "OKAY"
	case SMPong:
		return "PONG"
	case SMReadyPing:
		return "READY_PING"
	case SMError:
		if m.Err != nil {
			return "ERROR:" + m.Err.String()
		}
		return "ERROR"
	case SMBattleReq:
		return "BATTLE_REQ:" + string(m.BattleFromUID) + ":" + string(m.BattleGameID)
	case SMCurrentServerState:
		return "CURRENT_SERVER_STATE:" + strconv.Itoa(m.ConnectedCount) + ":" + strconv.FormatBool(m.SomeoneWaiting)
	case SMChatMessage:
		from := ""
		if m.ChatFromUID != nil {
			from = string(*m.ChatFromUID)
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(m.ChatText))
		return "CHAT_MSG:" + string(m.ChatThread) + ":" + strconv.FormatInt(m.ChatID, 10) + ":" +
			strconv.FormatInt(m.ChatTimestamp, 10) + ":" + from + ":" + encoded
	case SMChatRead:
		return "CHAT_READ:" + string(m.ChatThread)
	case SMLobbyID:
		return "LOBBY_ID:" + string(m.BattleGameID)
	default:
		return "ERROR"
	}
}
