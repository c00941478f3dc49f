// Package actor is the small shared run-loop every core actor
// (lobby/lobbyregistry/session/reliability/connregistry) is built
// on: a single goroutine draining a command channel, with an optional
// ticker for periodic work. It mirrors the teacher's own idiom for
// long-running goroutines in server.go (periodicSaveTask/cleanupTask: a
// context plus a time.Ticker inside a for/select loop), generalized here
// into one place so every actor starts, stops, and replies the same way.
package actor

import (
	"context"
	"time"
)

// Mailbox is the inbound command channel for an actor. Cmd is typically
// a closure (func(state)) or a small sum type switched on in the
// actor's handle function; callers that need a reply close over their
// own response channel, the ask-style pattern used throughout the core
// packages (e.g. lobbyregistry's NewLobby returning a GameID).
type Mailbox[Cmd any] chan Cmd

func NewMailbox[Cmd any](buffer int) Mailbox[Cmd] {
	return make(Mailbox[Cmd], buffer)
}

// Run drains mailbox until ctx is cancelled, invoking handle for each
// command in receipt order. Exactly one goroutine should ever call Run
// for a given mailbox — that single-reader discipline is what gives
// each actor its no-shared-mutable-state guarantee.
func Run[Cmd any](ctx context.Context, mailbox Mailbox[Cmd], handle func(Cmd)) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-mailbox:
			if !ok {
				return
			}
			handle(cmd)
		}
	}
}

// RunTicked is Run plus a periodic tick fired every interval, for
// actors that also need to do unprompted work: the lobby's idle
// watchdog, the reliability adapter's retransmit sweep, the connection
// registry's grace-period reaper and server-state broadcast.
func RunTicked[Cmd any](ctx context.Context, mailbox Mailbox[Cmd], handle func(Cmd), interval time.Duration, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-mailbox:
			if !ok {
				return
			}
			handle(cmd)
		case <-ticker.C:
			tick()
		}
	}
}

// Reply is the standard ask-style response channel: a command carries
// one of these, the actor sends exactly one value, and the caller's
// Ask blocks for it.
type Reply[T any] chan T

// Ask sends cmd (built from newCmd given a fresh reply channel) into
// mailbox and blocks for the single reply, or returns ctx's error if
// the actor is unreachable before it answers.
func Ask[Cmd any, T any](ctx context.Context, mailbox Mailbox[Cmd], newCmd func(Reply[T]) Cmd) (T, error) {
	reply := make(Reply[T], 1)
	cmd := newCmd(reply)
	var zero T
	select {
	case mailbox <- cmd:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
