package chatroom

import (
	"context"
	"time"

	"github.com/mirror520/chatroom/broker"
	"github.com/mirror520/chatroom/message"
	"github.com/mirror520/chatroom/subscription"
)

// Publisher is the entry point of one publishing actor.
type Publisher struct {
	svc    Service
	Sender string
}

func NewPublisher(svc Service, sender string) *Publisher {
	return &Publisher{
		svc:    svc,
		Sender: sender,
	}
}

func (p *Publisher) Publish(ctx context.Context, topic string, text string) (int, error) {
	return p.svc.Publish(ctx, topic, p.Sender, text)
}

func (p *Publisher) PublishStructured(ctx context.Context, topic string, text string, meta message.Metadata) (int, error) {
	return p.svc.PublishStructured(ctx, topic, p.Sender, text, meta)
}

// Broadcast publishes text once to every catalog topic not in exclude.
func (p *Publisher) Broadcast(ctx context.Context, text string, exclude ...string) (map[string]int, error) {
	return p.svc.Broadcast(ctx, p.Sender, text, exclude...)
}

// System publishes text on the system topic regardless of Sender.
func (p *Publisher) System(ctx context.Context, text string) (int, error) {
	return p.svc.System(ctx, text)
}

// Subscriber is the entry point of one subscribing actor. Its filter set is
// changed only through these methods.
type Subscriber struct {
	svc Service
	sub *broker.Subscriber
}

func NewSubscriber(svc Service, name string) (*Subscriber, error) {
	sub, err := svc.Connect(name)
	if err != nil {
		return nil, err
	}

	return &Subscriber{
		svc: svc,
		sub: sub,
	}, nil
}

func (s *Subscriber) ID() broker.SubscriberID {
	return s.sub.ID
}

func (s *Subscriber) Name() string {
	return s.sub.Name
}

func (s *Subscriber) Subscribe(filter string) (subscription.Result, error) {
	return s.svc.Subscribe(s.sub.ID, filter)
}

func (s *Subscriber) Unsubscribe(filter string) (subscription.Result, error) {
	return s.svc.Unsubscribe(s.sub.ID, filter)
}

// SubscribeSystem joins the system topic.
func (s *Subscriber) SubscribeSystem() (subscription.Result, error) {
	return s.svc.Subscribe(s.sub.ID, s.svc.SystemTopic())
}

// SubscribeAll subscribes to every topic in the catalog.
func (s *Subscriber) SubscribeAll() ([]subscription.Result, error) {
	return s.svc.SubscribeAll(s.sub.ID)
}

func (s *Subscriber) Filters() []string {
	return s.sub.Filters()
}

// Poll returns nil, nil when nothing is queued within timeout.
func (s *Subscriber) Poll(ctx context.Context, timeout time.Duration) (*message.Envelope, error) {
	return s.sub.Poll(ctx, timeout)
}

func (s *Subscriber) Receive(ctx context.Context) (*message.Envelope, error) {
	return s.sub.Receive(ctx)
}

func (s *Subscriber) Close() error {
	return s.svc.Disconnect(s.sub.ID)
}
