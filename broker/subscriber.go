package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mirror520/chatroom/message"
	"github.com/mirror520/chatroom/queue"
	"github.com/mirror520/chatroom/subscription"
)

type SubscriberID ulid.ULID

func NewSubscriberID() SubscriberID {
	return SubscriberID(ulid.Make())
}

func ParseSubscriberID(s string) (SubscriberID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return SubscriberID{}, err
	}
	return SubscriberID(id), nil
}

func (id SubscriberID) String() string {
	return ulid.ULID(id).String()
}

func (id SubscriberID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *SubscriberID) UnmarshalText(data []byte) error {
	parsed, err := ParseSubscriberID(string(data))
	if err != nil {
		return err
	}

	*id = parsed
	return nil
}

// Subscriber is one connected consumer: a filter set plus an inbound queue.
// Only its owner mutates the filter set.
type Subscriber struct {
	ID          SubscriberID
	Name        string
	ConnectedAt time.Time

	filters *subscription.Registry
	inbox   *queue.Queue[*message.Envelope]
	live    atomic.Bool
	engine  *Engine
}

func (s *Subscriber) Subscribe(filter string) (subscription.Result, error) {
	if !s.Live() {
		return subscription.NotPresent, ErrSubscriberClosed
	}
	return s.filters.Add(filter), nil
}

func (s *Subscriber) Unsubscribe(filter string) (subscription.Result, error) {
	if !s.Live() {
		return subscription.NotPresent, ErrSubscriberClosed
	}
	return s.filters.Remove(filter), nil
}

func (s *Subscriber) SubscribeAll(topics []string) ([]subscription.Result, error) {
	if !s.Live() {
		return nil, ErrSubscriberClosed
	}
	return s.filters.SubscribeAll(topics), nil
}

func (s *Subscriber) Filters() []string {
	return s.filters.Filters()
}

func (s *Subscriber) matches(topic string) bool {
	return s.filters.Match(topic)
}

// Receive blocks until an envelope is queued, ctx is done, or the
// subscriber disconnects.
func (s *Subscriber) Receive(ctx context.Context) (*message.Envelope, error) {
	e, err := s.inbox.Pop(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return nil, ErrSubscriberClosed
		}
		return nil, err
	}
	return e, nil
}

// Poll waits up to timeout and returns nil, nil when nothing arrived.
func (s *Subscriber) Poll(ctx context.Context, timeout time.Duration) (*message.Envelope, error) {
	if e, ok := s.inbox.TryPop(); ok {
		return e, nil
	}

	if !s.Live() {
		return nil, ErrSubscriberClosed
	}

	if timeout <= 0 {
		return nil, nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e, err := s.Receive(pollCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (s *Subscriber) Live() bool {
	return s.live.Load()
}

func (s *Subscriber) Pending() int {
	return s.inbox.Len()
}

func (s *Subscriber) Dropped() uint64 {
	return s.inbox.Dropped()
}

// Close disconnects the subscriber from its engine.
func (s *Subscriber) Close() error {
	return s.engine.Disconnect(s.ID)
}
