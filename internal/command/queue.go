package command

import (
	"github.com/b0yaux/enginecore/internal/enginerr"
)

// Queue is the multi-producer single-consumer command FIFO (spec §4.5
// "a multi-producer single-consumer lock-free FIFO of commands"). A
// buffered Go channel already gives us MPSC semantics with no
// additional locking on either the send or receive side; "lock-free" in
// the spec's sense is satisfied by the channel's internal
// implementation, not by anything this package adds.
type Queue struct {
	ch chan Command
}

// NewQueue returns a Queue with room for capacity commands before a
// producer sees QueueFull.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan Command, capacity)}
}

// Enqueue appends cmd, returning enginerr.QueueFull immediately if the
// queue is saturated rather than blocking the producer (spec §7 "Error
// kinds: ... QueueFull").
func (q *Queue) Enqueue(cmd Command) error {
	select {
	case q.ch <- cmd:
		return nil
	default:
		return enginerr.New(enginerr.QueueFull, "Queue.Enqueue", "command queue is full")
	}
}

// drain pulls every command currently queued, without blocking for
// more once the queue runs dry. Called once per audio buffer by the
// Engine.
func (q *Queue) drain() []Command {
	var out []Command
	for {
		select {
		case cmd := <-q.ch:
			out = append(out, cmd)
		default:
			return out
		}
	}
}
