// Package handlers implements the handler mesh of §4.2/§4.3: one
// ChainHandler or HeaderHandler per ChainIndex, a single FlowHandler
// serializing every DAG mutation, and a TxHandler relaying transactions.
// Handlers are goroutines owning a bounded mailbox, not actor-toolkit
// actors, per Design Notes §9; grounded on netadapter/router.Route.
package handlers

import (
	"time"

	"github.com/pkg/errors"
)

const defaultMailboxCapacity = 100

var (
	// ErrTimeout is returned by DequeueWithTimeout when no message arrives.
	ErrTimeout = errors.New("handlers: dequeue timed out")
	// ErrMailboxClosed is returned when enqueuing or dequeuing on a closed mailbox.
	ErrMailboxClosed = errors.New("handlers: mailbox is closed")
)

// Message is any value routed through a handler's mailbox.
type Message interface {
	// Kind names the message's concrete type, for logging and dispatch.
	Kind() string
}

// Mailbox is a bounded, single-consumer message queue, grounded on
// netadapter/router.Route.
type Mailbox struct {
	ch       chan Message
	closed   bool
	closeSem chan struct{}
}

// NewMailbox creates a Mailbox with the default capacity.
func NewMailbox() *Mailbox {
	return NewMailboxWithCapacity(defaultMailboxCapacity)
}

// NewMailboxWithCapacity creates a Mailbox holding at most capacity
// messages before Enqueue blocks.
func NewMailboxWithCapacity(capacity int) *Mailbox {
	return &Mailbox{ch: make(chan Message, capacity), closeSem: make(chan struct{})}
}

// Enqueue adds message to the mailbox, blocking if it is full.
func (m *Mailbox) Enqueue(message Message) error {
	select {
	case <-m.closeSem:
		return errors.WithStack(ErrMailboxClosed)
	default:
	}
	select {
	case m.ch <- message:
		return nil
	case <-m.closeSem:
		return errors.WithStack(ErrMailboxClosed)
	}
}

// Dequeue blocks until a message is available or the mailbox is closed.
func (m *Mailbox) Dequeue() (Message, error) {
	msg, ok := <-m.ch
	if !ok {
		return nil, errors.WithStack(ErrMailboxClosed)
	}
	return msg, nil
}

// DequeueWithTimeout behaves like Dequeue but gives up after timeout.
func (m *Mailbox) DequeueWithTimeout(timeout time.Duration) (Message, error) {
	select {
	case msg, ok := <-m.ch:
		if !ok {
			return nil, errors.WithStack(ErrMailboxClosed)
		}
		return msg, nil
	case <-time.After(timeout):
		return nil, errors.WithStack(ErrTimeout)
	}
}

// Close marks the mailbox closed; pending Enqueues fail, pending Dequeues
// drain what's left then fail.
func (m *Mailbox) Close() {
	if m.closed {
		return
	}
	m.closed = true
	close(m.closeSem)
	close(m.ch)
}
