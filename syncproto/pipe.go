package syncproto

import (
	"context"

	"github.com/pkg/errors"
)

// pipeSession is an in-process PeerSession over two buffered channels,
// the same bounded-mailbox shape as netadapter/router.Route, used here to
// let two Synchronizers talk without any real transport (and by tests).
type pipeSession struct {
	out    chan Message
	in     chan Message
	closed chan struct{}
}

// NewPipe returns two connected PeerSessions: messages sent on one arrive
// on the other's Recv.
func NewPipe(capacity int) (PeerSession, PeerSession) {
	if capacity <= 0 {
		capacity = 1
	}
	a := make(chan Message, capacity)
	b := make(chan Message, capacity)
	closed := make(chan struct{})
	return &pipeSession{out: a, in: b, closed: closed}, &pipeSession{out: b, in: a, closed: closed}
}

// Send implements PeerSession.
func (p *pipeSession) Send(msg Message) error {
	select {
	case <-p.closed:
		return errors.WithStack(errSessionClosed)
	default:
	}
	select {
	case p.out <- msg:
		return nil
	case <-p.closed:
		return errors.WithStack(errSessionClosed)
	}
}

// Recv implements PeerSession.
func (p *pipeSession) Recv(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-p.in:
		if !ok {
			return nil, errors.WithStack(errSessionClosed)
		}
		return msg, nil
	case <-p.closed:
		return nil, errors.WithStack(errSessionClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements PeerSession. It's safe to call from either end or
// more than once.
func (p *pipeSession) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}
