package lobbyregistry

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

type fakeHandle struct {
	uid       *ids.UserID
	delivered []wire.ServerMessage
}

func (f *fakeHandle) UserID() *ids.UserID            { return f.uid }
func (f *fakeHandle) Deliver(msg wire.ServerMessage) { f.delivered = append(f.delivered, msg) }
func (f *fakeHandle) ResetToIdle(context.Context)    {}

type fakeDirectory struct {
	presence map[ids.UserID]contracts.PlayerHandle
	played   []contracts.PlayedGameInfo
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{presence: make(map[ids.UserID]contracts.PlayerHandle)}
}

func (d *fakeDirectory) LookupBySessionToken(context.Context, string) (*contracts.UserInfo, error) {
	return nil, contracts.ErrNotFound
}
func (d *fakeDirectory) SetPlaying(_ context.Context, uid ids.UserID, handle contracts.PlayerHandle) error {
	d.presence[uid] = handle
	return nil
}
func (d *fakeDirectory) ClearPlaying(_ context.Context, uid ids.UserID) error {
	delete(d.presence, uid)
	return nil
}
func (d *fakeDirectory) RecordPlayedGame(_ context.Context, info contracts.PlayedGameInfo) error {
	d.played = append(d.played, info)
	return nil
}
func (d *fakeDirectory) ResolveBattleTarget(_ context.Context, uid ids.UserID) (contracts.PlayerHandle, bool, error) {
	h, ok := d.presence[uid]
	return h, ok, nil
}

// Append/ReadPage let fakeDirectory double as a contracts.MessageArchive
// so tests don't need a second fake just to satisfy lobby.New's archive
// parameter.
func (d *fakeDirectory) Append(_ context.Context, thread ids.ChatThreadID, fromUID *ids.UserID, text string) (contracts.ChatMessage, error) {
	return contracts.ChatMessage{Thread: thread, FromUID: fromUID, Body: text}, nil
}
func (d *fakeDirectory) ReadPage(context.Context, ids.ChatThreadID, int64, int) ([]contracts.ChatMessage, bool, error) {
	return nil, false, nil
}

func uid(s string) ids.UserID { return ids.UserID(s) }

func startedRegistry(t *testing.T, directory *fakeDirectory) (*Registry, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := New(directory, directory)
	go r.Run(ctx)
	return r, ctx
}

func TestRegistry_PublicNewLobbyThenQuickMatch(t *testing.T) {
	r, ctx := startedRegistry(t, newFakeDirectory())
	hostUID := uid("host-1")
	host := &fakeHandle{uid: &hostUID}

	outcome, err := r.NewLobby(ctx, wire.LobbyPublic, host, &hostUID)
	require.NoError(t, err)
	assert.True(t, outcome.Waiting)
	assert.Equal(t, ids.PlayerOne, outcome.Player)

	joinerUID := uid("joiner-1")
	joiner := &fakeHandle{uid: &joinerUID}
	second, err := r.NewLobby(ctx, wire.LobbyPublic, joiner, &joinerUID)
	require.NoError(t, err)
	assert.False(t, second.Waiting)
	assert.Equal(t, ids.PlayerTwo, second.Player)
	assert.Equal(t, outcome.GameID, second.GameID)

	waiting, err := r.SomeoneWaiting(ctx)
	require.NoError(t, err)
	assert.False(t, waiting)
}

func TestRegistry_JoinLobbyByCode(t *testing.T) {
	r, ctx := startedRegistry(t, newFakeDirectory())
	hostUID := uid("host-1")
	host := &fakeHandle{uid: &hostUID}

	outcome, err := r.NewLobby(ctx, wire.LobbyPrivate, host, &hostUID)
	require.NoError(t, err)

	joinerUID := uid("joiner-1")
	joiner := &fakeHandle{uid: &joinerUID}
	joined, err := r.JoinLobby(ctx, outcome.GameID, joiner, &joinerUID)
	require.NoError(t, err)
	assert.Equal(t, ids.PlayerTwo, joined.Player)
}

func TestRegistry_JoinUnknownLobbyErrors(t *testing.T) {
	r, ctx := startedRegistry(t, newFakeDirectory())
	joinerUID := uid("joiner-1")
	joiner := &fakeHandle{uid: &joinerUID}

	_, err := r.JoinLobby(ctx, ids.GameID("ZZZZ"), joiner, &joinerUID)
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestRegistry_BattleRequestRequiresTargetPlaying(t *testing.T) {
	dir := newFakeDirectory()
	r, ctx := startedRegistry(t, dir)
	fromUID := uid("from-1")
	from := &fakeHandle{uid: &fromUID}
	toUID := uid("to-1")

	_, err := r.BattleRequest(ctx, fromUID, toUID, from)
	assert.ErrorIs(t, err, ErrTargetNotPlaying)

	target := &fakeHandle{uid: &toUID}
	require.NoError(t, dir.SetPlaying(ctx, toUID, target))

	outcome, err := r.BattleRequest(ctx, fromUID, toUID, from)
	require.NoError(t, err)
	assert.Equal(t, ids.PlayerOne, outcome.Player)

	// Allow the registry's own goroutine (PlayerJoined -> lobby mailbox
	// send) to be delivered before asserting on the target's mailbox.
	require.Eventually(t, func() bool { return len(target.delivered) > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, wire.SMBattleReq, target.delivered[0].Kind)
}

func TestRegistry_LobbyClosedFreesID(t *testing.T) {
	r, ctx := startedRegistry(t, newFakeDirectory())
	hostUID := uid("host-1")
	host := &fakeHandle{uid: &hostUID}

	outcome, err := r.NewLobby(ctx, wire.LobbyPublic, host, &hostUID)
	require.NoError(t, err)

	r.LobbyClosed(ctx, outcome.GameID)

	require.Eventually(t, func() bool {
		waiting, err := r.SomeoneWaiting(ctx)
		return err == nil && !waiting
	}, time.Second, time.Millisecond)

	_, err = r.JoinLobby(ctx, outcome.GameID, host, &hostUID)
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}
