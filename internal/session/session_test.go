package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fourinarow-server/internal/contracts"
	"fourinarow-server/internal/ids"
	"fourinarow-server/internal/wire"
)

type fakeOutbound struct {
	mu        chan struct{}
	delivered []wire.ServerMessage
}

func newFakeOutbound() *fakeOutbound { return &fakeOutbound{mu: make(chan struct{}, 1)} }

func (f *fakeOutbound) Send(msg wire.ServerMessage) { f.delivered = append(f.delivered, msg) }
func (f *fakeOutbound) last() wire.ServerMessage     { return f.delivered[len(f.delivered)-1] }

type fakeLobbyHandle struct {
	received []contracts.ClientLobbyMessage
}

func (l *fakeLobbyHandle) Deliver(_ context.Context, msg contracts.ClientLobbyMessage) error {
	l.received = append(l.received, msg)
	return nil
}

type fakeRegistry struct {
	newLobbyOutcome contracts.LobbyJoinOutcome
	joinErr         error
	battleErr       error
}

func (r *fakeRegistry) NewLobby(context.Context, wire.LobbyKind, contracts.PlayerHandle, *ids.UserID) (contracts.LobbyJoinOutcome, error) {
	return r.newLobbyOutcome, nil
}
func (r *fakeRegistry) JoinLobby(context.Context, ids.GameID, contracts.PlayerHandle, *ids.UserID) (contracts.LobbyJoinOutcome, error) {
	return r.newLobbyOutcome, r.joinErr
}
func (r *fakeRegistry) BattleRequest(context.Context, ids.UserID, ids.UserID, contracts.PlayerHandle) (contracts.LobbyJoinOutcome, error) {
	return r.newLobbyOutcome, r.battleErr
}
func (r *fakeRegistry) LobbyClosed(context.Context, ids.GameID)                   {}
func (r *fakeRegistry) PlayedGame(context.Context, contracts.PlayedGameInfo)      {}

type fakeDirectory struct {
	byToken map[string]contracts.UserInfo
	playing map[ids.UserID]contracts.PlayerHandle
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{byToken: make(map[string]contracts.UserInfo), playing: make(map[ids.UserID]contracts.PlayerHandle)}
}
func (d *fakeDirectory) LookupBySessionToken(_ context.Context, token string) (*contracts.UserInfo, error) {
	info, ok := d.byToken[token]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return &info, nil
}
func (d *fakeDirectory) SetPlaying(_ context.Context, uid ids.UserID, h contracts.PlayerHandle) error {
	d.playing[uid] = h
	return nil
}
func (d *fakeDirectory) ClearPlaying(_ context.Context, uid ids.UserID) error {
	delete(d.playing, uid)
	return nil
}
func (d *fakeDirectory) RecordPlayedGame(context.Context, contracts.PlayedGameInfo) error { return nil }
func (d *fakeDirectory) ResolveBattleTarget(_ context.Context, uid ids.UserID) (contracts.PlayerHandle, bool, error) {
	h, ok := d.playing[uid]
	return h, ok, nil
}

type fakeConnRegistry struct {
	broadcasts []string
}

func (c *fakeConnRegistry) BroadcastChat(_ context.Context, _ *ids.UserID, text string) {
	c.broadcasts = append(c.broadcasts, text)
}
func (c *fakeConnRegistry) ConnectedCount(context.Context) int { return 1 }

func startedSession(t *testing.T, reg *fakeRegistry, dir *fakeDirectory, conn *fakeConnRegistry) (*Session, *fakeOutbound, context.CancelFunc) {
	t.Helper()
	out := newFakeOutbound()
	s := New(out, reg, dir, conn)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	return s, out, cancel
}

func waitForDelivery(t *testing.T, out *fakeOutbound, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(out.delivered) >= n }, time.Second, time.Millisecond)
}

func TestSession_PingReturnsPong(t *testing.T) {
	s, out, cancel := startedSession(t, &fakeRegistry{}, newFakeDirectory(), &fakeConnRegistry{})
	defer cancel()

	s.Forward(context.Background(), wire.PlayerMessage{Kind: wire.PMPing})

	waitForDelivery(t, out, 1)
	assert.Equal(t, wire.SMPong, out.last().Kind)
}

func TestSession_LoginUnknownTokenErrors(t *testing.T) {
	s, out, cancel := startedSession(t, &fakeRegistry{}, newFakeDirectory(), &fakeConnRegistry{})
	defer cancel()

	s.Forward(context.Background(), wire.PlayerMessage{Kind: wire.PMLogin, Token: "missing"})

	waitForDelivery(t, out, 1)
	require.Equal(t, wire.SMError, out.last().Kind)
	assert.Equal(t, wire.ErrIncorrectCredentials, *out.last().Err)
}

func TestSession_LoginSucceedsAndSetsUID(t *testing.T) {
	dir := newFakeDirectory()
	dir.byToken["tok-1"] = contracts.UserInfo{ID: "user-1", Username: "alice"}
	s, out, cancel := startedSession(t, &fakeRegistry{}, dir, &fakeConnRegistry{})
	defer cancel()

	s.Forward(context.Background(), wire.PlayerMessage{Kind: wire.PMLogin, Token: "tok-1"})

	waitForDelivery(t, out, 1)
	assert.Equal(t, wire.SMOkay, out.last().Kind)
	require.NotNil(t, s.UserID())
	assert.Equal(t, ids.UserID("user-1"), *s.UserID())
}

func TestSession_PublicLobbyRequestEntersLobbyAndReportsOkay(t *testing.T) {
	lobbyHandle := &fakeLobbyHandle{}
	reg := &fakeRegistry{newLobbyOutcome: contracts.LobbyJoinOutcome{Player: ids.PlayerOne, GameID: "ABCD", Lobby: lobbyHandle, Waiting: true}}
	s, out, cancel := startedSession(t, reg, newFakeDirectory(), &fakeConnRegistry{})
	defer cancel()

	s.Forward(context.Background(), wire.PlayerMessage{Kind: wire.PMLobbyRequest, LobbyKind: wire.LobbyPublic})

	waitForDelivery(t, out, 1)
	assert.Equal(t, wire.SMOkay, out.last().Kind)
}

func TestSession_PrivateLobbyRequestEntersLobbyAndReportsID(t *testing.T) {
	lobbyHandle := &fakeLobbyHandle{}
	reg := &fakeRegistry{newLobbyOutcome: contracts.LobbyJoinOutcome{Player: ids.PlayerOne, GameID: "ABCD", Lobby: lobbyHandle, Waiting: true}}
	s, out, cancel := startedSession(t, reg, newFakeDirectory(), &fakeConnRegistry{})
	defer cancel()

	s.Forward(context.Background(), wire.PlayerMessage{Kind: wire.PMLobbyRequest, LobbyKind: wire.LobbyPrivate})

	waitForDelivery(t, out, 1)
	assert.Equal(t, wire.SMLobbyID, out.last().Kind)
	assert.Equal(t, ids.GameID("ABCD"), out.last().BattleGameID)
}

func TestSession_PlaceChipOutsideLobbyErrors(t *testing.T) {
	s, out, cancel := startedSession(t, &fakeRegistry{}, newFakeDirectory(), &fakeConnRegistry{})
	defer cancel()

	s.Forward(context.Background(), wire.PlayerMessage{Kind: wire.PMPlaceChip, Column: 2})

	waitForDelivery(t, out, 1)
	require.Equal(t, wire.SMError, out.last().Kind)
	assert.Equal(t, wire.ErrNotInLobby, *out.last().Err)
}

func TestSession_PlaceChipInLobbyForwardsToLobby(t *testing.T) {
	lobbyHandle := &fakeLobbyHandle{}
	reg := &fakeRegistry{newLobbyOutcome: contracts.LobbyJoinOutcome{Player: ids.PlayerOne, GameID: "ABCD", Lobby: lobbyHandle}}
	s, out, cancel := startedSession(t, reg, newFakeDirectory(), &fakeConnRegistry{})
	defer cancel()

	s.Forward(context.Background(), wire.PlayerMessage{Kind: wire.PMLobbyRequest, LobbyKind: wire.LobbyPrivate})
	waitForDelivery(t, out, 1)

	s.Forward(context.Background(), wire.PlayerMessage{Kind: wire.PMPlaceChip, Column: 4})

	require.Eventually(t, func() bool { return len(lobbyHandle.received) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, contracts.LobbyMsgPlaceChip, lobbyHandle.received[0].Kind)
	assert.Equal(t, 4, lobbyHandle.received[0].Column)
}

func TestSession_ChatOutsideLobbyBroadcastsGlobally(t *testing.T) {
	conn := &fakeConnRegistry{}
	s, _, cancel := startedSession(t, &fakeRegistry{}, newFakeDirectory(), conn)
	defer cancel()

	s.Forward(context.Background(), wire.PlayerMessage{Kind: wire.PMChatMessage, Text: "hi all"})

	require.Eventually(t, func() bool { return len(conn.broadcasts) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "hi all", conn.broadcasts[0])
}
