package pubsub

import (
	"context"
	"errors"
	"time"

	"github.com/mirror520/chatroom/queue"
	"github.com/mirror520/chatroom/subscription"
)

// Inbox is the receiving half shared by transport adapters: a prefix filter
// set and a FIFO of accepted lines.
type Inbox struct {
	filters *subscription.Registry
	lines   *queue.Queue[[]byte]
}

func NewInbox(capacity int) *Inbox {
	return &Inbox{
		filters: subscription.NewRegistry(),
		lines:   queue.New[[]byte](capacity, queue.DropOldest),
	}
}

// Deliver queues data when it matches a subscribed prefix.
func (in *Inbox) Deliver(data []byte) bool {
	if !in.filters.Match(string(data)) {
		return false
	}

	return in.lines.Push(append([]byte(nil), data...))
}

func (in *Inbox) Subscribe(prefix string) error {
	if in.lines.Closed() {
		return NewTransportError("subscribe", ErrClosed)
	}

	in.filters.Add(prefix)
	return nil
}

func (in *Inbox) Unsubscribe(prefix string) error {
	if in.lines.Closed() {
		return NewTransportError("unsubscribe", ErrClosed)
	}

	in.filters.Remove(prefix)
	return nil
}

func (in *Inbox) Recv(ctx context.Context) ([]byte, error) {
	data, err := in.lines.Pop(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return nil, NewTransportError("recv", ErrClosed)
		}
		return nil, err
	}
	return data, nil
}

func (in *Inbox) Poll(timeout time.Duration) bool {
	if in.lines.Len() > 0 {
		return true
	}

	if timeout <= 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return in.lines.Wait(ctx) == nil
}

func (in *Inbox) Close() {
	in.lines.Close()
}

func (in *Inbox) Closed() bool {
	return in.lines.Closed()
}
