package rpc

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrBusClosed is returned by Call once the bus has stopped
var ErrBusClosed = errors.New("message bus closed")

type call struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// Bus delivers requests to a Handler one at a time from a single goroutine,
// so transports never run two actions concurrently.
type Bus struct {
	handler  Handler
	requests chan call
	done     chan struct{}
	stopOnce sync.Once
}

// NewBus creates a bus; call Run to start delivering
func NewBus(handler Handler, buffer int) *Bus {
	return &Bus{
		handler:  handler,
		requests: make(chan call, buffer),
		done:     make(chan struct{}),
	}
}

// Run handles requests until ctx is done
func (b *Bus) Run(ctx context.Context) {
	defer b.stopOnce.Do(func() { close(b.done) })

	slog.Debug("message bus started")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("message bus stopped")
			return
		case c := <-b.requests:
			if c.ctx.Err() != nil {
				continue
			}
			// reply is buffered, the caller may have given up
			c.reply <- b.handler.Handle(c.ctx, c.req)
		}
	}
}

// Call sends req and waits for its Response. Requests without an id get one.
func (b *Bus) Call(ctx context.Context, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	c := call{ctx: ctx, req: req, reply: make(chan Response, 1)}

	select {
	case b.requests <- c:
	case <-b.done:
		return Response{}, ErrBusClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-c.reply:
		return resp, nil
	case <-b.done:
		select {
		case resp := <-c.reply:
			return resp, nil
		default:
			return Response{}, ErrBusClosed
		}
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
