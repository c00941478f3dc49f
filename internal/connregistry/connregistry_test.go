package connregistry

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

type fakeWaiting struct{ waiting bool }

func (w fakeWaiting) SomeoneWaiting(context.Context) (bool, error) { return w.waiting, nil }

type fakeArchive struct{ appended int }

func (a *fakeArchive) Append(_ context.Context, thread ids.ChatThreadID, fromUID *ids.UserID, text string) (contracts.ChatMessage, error) {
	a.appended++
	return contracts.ChatMessage{ID: int64(a.appended), Thread: thread, FromUID: fromUID, Body: text}, nil
}
func (a *fakeArchive) ReadPage(context.Context, ids.ChatThreadID, int64, int) ([]contracts.ChatMessage, bool, error) {
	return nil, false, nil
}

func startedRegistry(t *testing.T, waiting bool) (*Registry, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := New(fakeWaiting{waiting: waiting}, &fakeArchive{})
	go r.Run(ctx)
	return r, ctx
}

func TestRegistry_RegisterSendsServerState(t *testing.T) {
	r, ctx := startedRegistry(t, true)
	h := &fakeHandle{}

	r.Register(ctx, h)

	require.Eventually(t, func() bool { return len(h.delivered) > 0 }, time.Second, time.Millisecond)
	last := h.delivered[len(h.delivered)-1]
	assert.Equal(t, wire.SMCurrentServerState, last.Kind)
	assert.Equal(t, 1, last.ConnectedCount)
	assert.True(t, last.SomeoneWaiting)
}

func TestRegistry_ConnectedCountTracksRegistrations(t *testing.T) {
	r, ctx := startedRegistry(t, false)
	h1, h2 := &fakeHandle{}, &fakeHandle{}

	r.Register(ctx, h1)
	r.Register(ctx, h2)
	require.Eventually(t, func() bool { return r.ConnectedCount(ctx) == 2 }, time.Second, time.Millisecond)

	r.Unregister(ctx, h1)
	require.Eventually(t, func() bool { return r.ConnectedCount(ctx) == 1 }, time.Second, time.Millisecond)
}

func TestRegistry_BroadcastChatSkipsSender(t *testing.T) {
	r, ctx := startedRegistry(t, false)
	senderUID := ids.UserID("sender-1")
	sender := &fakeHandle{uid: &senderUID}
	other := &fakeHandle{}

	r.Register(ctx, sender)
	r.Register(ctx, other)
	require.Eventually(t, func() bool { return r.ConnectedCount(ctx) == 2 }, time.Second, time.Millisecond)

	r.BroadcastChat(ctx, &senderUID, "hello")

	require.Eventually(t, func() bool {
		for _, m := range other.delivered {
			if m.Kind == wire.SMChatMessage {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	for _, m := range sender.delivered {
		assert.NotEqual(t, wire.SMChatMessage, m.Kind)
	}
}
