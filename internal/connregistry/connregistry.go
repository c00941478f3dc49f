// Package connregistry implements the ConnectionRegistry component
// (SPEC_FULL.md §4.6, C6): the process-wide set of connected sessions,
// global chat fan-out, and the periodic CURRENT_SERVER_STATE broadcast.
// Grounded on original_source/src/game/connection_mgr.rs's
// ConnectionManager in full.
package connregistry

import (
	"context"
	"time"

	"fourinarow-server/internal/actor"
	"fourinarow-server/internal/contracts"
	"fourinarow-server/internal/ids"
	"fourinarow-server/internal/wire"
)

// ServerInfoInterval mirrors connection_mgr.rs's
// SEND_SERVER_INFO_INTERVAL_SECONDS: player_is_waiting isn't reactive,
// so everyone gets a refreshed CURRENT_SERVER_STATE on this cadence in
// case a push was missed.
const ServerInfoInterval = 2 * time.Second

// WaitingSource reports whether a public lobby is currently open,
// satisfied by *lobbyregistry.Registry.
type WaitingSource interface {
	SomeoneWaiting(ctx context.Context) (bool, error)
}

type registerCmd struct{ handle contracts.PlayerHandle }
type unregisterCmd struct{ handle contracts.PlayerHandle }
type chatCmd struct {
	fromUID *ids.UserID
	text    string
}
type countCmd struct{ reply actor.Reply[int] }
type refreshCmd struct{}

type cmd struct {
	register   *registerCmd
	unregister *unregisterCmd
	chat       *chatCmd
	count      *countCmd
	refresh    *refreshCmd
}

// Registry is the single ConnectionRegistry actor for the server.
type Registry struct {
	waiting WaitingSource
	archive contracts.MessageArchive
	mailbox actor.Mailbox[cmd]

	connections map[contracts.PlayerHandle]struct{}
}

func New(waiting WaitingSource, archive contracts.MessageArchive) *Registry {
	return &Registry{
		waiting:     waiting,
		archive:     archive,
		mailbox:     actor.NewMailbox[cmd](128),
		connections: make(map[contracts.PlayerHandle]struct{}),
	}
}

// Run drains the mailbox and refreshes CURRENT_SERVER_STATE for
// everyone every ServerInfoInterval, until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	actor.RunTicked(ctx, r.mailbox, func(c cmd) { r.handle(ctx, c) }, ServerInfoInterval, func() { r.broadcastServerInfo(ctx) })
}

func (r *Registry) handle(ctx context.Context, c cmd) {
	switch {
	case c.register != nil:
		r.connections[c.register.handle] = struct{}{}
		r.sendServerInfo(ctx, c.register.handle)
	case c.unregister != nil:
		delete(r.connections, c.unregister.handle)
		r.broadcastServerInfo(ctx)
	case c.chat != nil:
		r.doBroadcastChat(ctx, c.chat.fromUID, c.chat.text)
	case c.count != nil:
		c.count.reply <- len(r.connections)
	case c.refresh != nil:
		r.broadcastServerInfo(ctx)
	}
}

func (r *Registry) sendServerInfo(ctx context.Context, handle contracts.PlayerHandle) {
	waiting, err := r.waiting.SomeoneWaiting(ctx)
	if err != nil {
		waiting = false
	}
	handle.Deliver(wire.ServerMessage{
		Kind:           wire.SMCurrentServerState,
		ConnectedCount: len(r.connections),
		SomeoneWaiting: waiting,
	})
}

func (r *Registry) broadcastServerInfo(ctx context.Context) {
	for handle := range r.connections {
		r.sendServerInfo(ctx, handle)
	}
}

func (r *Registry) doBroadcastChat(ctx context.Context, fromUID *ids.UserID, text string) {
	out := wire.ServerMessage{
		Kind:        wire.SMChatMessage,
		ChatThread:  ids.GlobalChatThread,
		ChatFromUID: fromUID,
		ChatText:    text,
	}
	if r.archive != nil {
		if recorded, err := r.archive.Append(ctx, ids.GlobalChatThread, fromUID, text); err == nil {
			out.ChatID = recorded.ID
			out.ChatTimestamp = recorded.CreatedAt.Unix()
		}
	}
	for handle := range r.connections {
		if fromUID != nil && handle.UserID() != nil && *handle.UserID() == *fromUID {
			continue
		}
		handle.Deliver(out)
	}
}

// Register adds handle to the connected set and immediately refreshes
// its CURRENT_SERVER_STATE view, the Go analogue of
// ConnectionManagerMsg::Hello.
func (r *Registry) Register(ctx context.Context, handle contracts.PlayerHandle) {
	select {
	case r.mailbox <- cmd{register: &registerCmd{handle: handle}}:
	case <-ctx.Done():
	}
}

// Unregister removes handle, the Go analogue of ConnectionManagerMsg::Bye.
func (r *Registry) Unregister(ctx context.Context, handle contracts.PlayerHandle) {
	select {
	case r.mailbox <- cmd{unregister: &unregisterCmd{handle: handle}}:
	case <-ctx.Done():
	}
}

// BroadcastChat satisfies contracts.ConnectionRegistryHandle.
func (r *Registry) BroadcastChat(ctx context.Context, fromUID *ids.UserID, text string) {
	select {
	case r.mailbox <- cmd{chat: &chatCmd{fromUID: fromUID, text: text}}:
	case <-ctx.Done():
	}
}

// RefreshServerInfo satisfies lobbyregistry.OpenSlotNotifier: the open
// public slot just changed (a host arrived, a quick-match paired up, a
// lobby closed), so every connected session gets a fresh
// CURRENT_SERVER_STATE now instead of waiting for the next poll tick.
func (r *Registry) RefreshServerInfo(ctx context.Context) {
	select {
	case r.mailbox <- cmd{refresh: &refreshCmd{}}:
	case <-ctx.Done():
	}
}

// ConnectedCount satisfies contracts.ConnectionRegistryHandle.
func (r *Registry) ConnectedCount(ctx context.Context) int {
	n, err := actor.Ask[cmd, int](ctx, r.mailbox, func(reply actor.Reply[int]) cmd {
		return cmd{count: &countCmd{reply: reply}}
	})
	if err != nil {
		return 0
	}
	return n
}
