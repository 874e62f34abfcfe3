package broker

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mirror520/chatroom/message"
	"github.com/mirror520/chatroom/queue"
	"github.com/mirror520/chatroom/subscription"
)

var (
	ErrEngineClosed       = errors.New("engine closed")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrSubscriberClosed   = errors.New("subscriber closed")
)

type Options struct {
	QueueCapacity int          // 0 means unbounded
	QueuePolicy   queue.Policy // applies when QueueCapacity > 0
}

// Engine fans published envelopes out to the queues of matching subscribers.
type Engine struct {
	log         *zap.Logger
	opts        Options
	subscribers map[SubscriberID]*Subscriber
	closed      bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64 // by subscribers already disconnected
	sync.RWMutex
}

func NewEngine(opts Options) *Engine {
	return &Engine{
		log: zap.L().With(
			zap.String("component", "broker"),
		),
		opts:        opts,
		subscribers: make(map[SubscriberID]*Subscriber),
	}
}

func (e *Engine) Connect(name string) (*Subscriber, error) {
	s := &Subscriber{
		ID:          NewSubscriberID(),
		Name:        name,
		ConnectedAt: time.Now(),
		filters:     subscription.NewRegistry(),
		inbox:       queue.New[*message.Envelope](e.opts.QueueCapacity, e.opts.QueuePolicy),
		engine:      e,
	}
	s.live.Store(true)

	e.Lock()
	if e.closed {
		e.Unlock()
		return nil, ErrEngineClosed
	}
	e.subscribers[s.ID] = s
	e.Unlock()

	e.log.Debug("subscriber connected",
		zap.String("subscriber_id", s.ID.String()),
		zap.String("name", name),
	)
	return s, nil
}

// Disconnect stops delivery to the subscriber, discards its queue and
// releases any pending Receive.
func (e *Engine) Disconnect(id SubscriberID) error {
	e.Lock()
	s, ok := e.subscribers[id]
	if ok {
		delete(e.subscribers, id)
	}
	e.Unlock()

	if !ok {
		return ErrSubscriberNotFound
	}

	e.release(s)
	return nil
}

func (e *Engine) release(s *Subscriber) {
	s.live.Store(false)
	discarded := s.inbox.Close()
	e.dropped.Add(s.inbox.Dropped())

	e.log.Debug("subscriber disconnected",
		zap.String("subscriber_id", s.ID.String()),
		zap.String("name", s.Name),
		zap.Int("discarded", len(discarded)),
	)
}

func (e *Engine) Subscriber(id SubscriberID) (*Subscriber, error) {
	e.RLock()
	defer e.RUnlock()

	s, ok := e.subscribers[id]
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	return s, nil
}

func (e *Engine) Subscribers() []*Subscriber {
	e.RLock()
	subscribers := make([]*Subscriber, 0, len(e.subscribers))
	for _, s := range e.subscribers {
		subscribers = append(subscribers, s)
	}
	e.RUnlock()

	sort.Slice(subscribers, func(i, j int) bool {
		return subscribers[i].ConnectedAt.Before(subscribers[j].ConnectedAt)
	})
	return subscribers
}

// Publish queues env for every live subscriber holding a matching filter and
// returns how many subscribers it was queued for. It never waits on consumers.
func (e *Engine) Publish(env *message.Envelope) int {
	e.RLock()
	defer e.RUnlock()

	if e.closed {
		return 0
	}

	e.published.Add(1)

	count := 0
	for _, s := range e.subscribers {
		if !s.matches(env.Topic) {
			continue
		}

		if s.inbox.Push(env) {
			count++
		}
	}

	e.delivered.Add(uint64(count))
	return count
}

// Close disconnects every subscriber. Later publishes are no-ops.
func (e *Engine) Close() {
	e.Lock()
	if e.closed {
		e.Unlock()
		return
	}
	e.closed = true

	subscribers := e.subscribers
	e.subscribers = make(map[SubscriberID]*Subscriber)
	e.Unlock()

	for _, s := range subscribers {
		e.release(s)
	}
}

type Stats struct {
	Subscribers int    `json:"subscribers"`
	Pending     int    `json:"pending"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

func (e *Engine) Stats() Stats {
	e.RLock()
	defer e.RUnlock()

	stats := Stats{
		Subscribers: len(e.subscribers),
		Published:   e.published.Load(),
		Delivered:   e.delivered.Load(),
		Dropped:     e.dropped.Load(),
	}

	for _, s := range e.subscribers {
		stats.Pending += s.Pending()
		stats.Dropped += s.Dropped()
	}

	return stats
}
