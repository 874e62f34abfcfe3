package chatroom

import (
	"context"
	"errors"
	"time"

	"github.com/mirror520/chatroom/broker"
	"github.com/mirror520/chatroom/message"
	"github.com/mirror520/chatroom/pubsub"
	"github.com/mirror520/chatroom/subscription"
	"github.com/mirror520/chatroom/topic"
)

var (
	ErrReservedTopic = errors.New("reserved topic")
)

type Service interface {
	Publish(ctx context.Context, topic string, sender string, text string) (int, error)
	PublishStructured(ctx context.Context, topic string, sender string, text string, meta message.Metadata) (int, error)
	Broadcast(ctx context.Context, sender string, text string, exclude ...string) (map[string]int, error)

	// System publishes an operator notice on the system topic, sent as
	// "[<system topic>]".
	System(ctx context.Context, text string) (int, error)
	SystemTopic() string

	// Ingest delivers a wire line received from the transport to local
	// subscribers only.
	Ingest(ctx context.Context, data []byte) (int, error)

	Connect(name string) (*broker.Subscriber, error)
	Disconnect(id broker.SubscriberID) error
	Subscribe(id broker.SubscriberID, filter string) (subscription.Result, error)
	Unsubscribe(id broker.SubscriberID, filter string) (subscription.Result, error)
	SubscribeAll(id broker.SubscriberID) ([]subscription.Result, error)
	Filters(id broker.SubscriberID) ([]string, error)
	Poll(ctx context.Context, id broker.SubscriberID, timeout time.Duration) (*message.Envelope, error)

	Topics() ([]*topic.Topic, error)
	AddTopic(name string, description string) (*topic.Topic, error)
	RemoveTopic(name string) error

	Stats() broker.Stats
}

type ServiceMiddleware func(Service) Service

type service struct {
	engine      *broker.Engine
	codec       *message.Codec
	topics      topic.Repository
	transport   pubsub.PubSub // optional
	systemTopic string
}

type Option func(*service)

// WithTransport sends every locally published envelope over ps as well.
func WithTransport(ps pubsub.PubSub) Option {
	return func(svc *service) {
		svc.transport = ps
	}
}

func WithCodec(codec *message.Codec) Option {
	return func(svc *service) {
		svc.codec = codec
	}
}

func WithSystemTopic(name string) Option {
	return func(svc *service) {
		svc.systemTopic = name
	}
}

func NewService(engine *broker.Engine, topics topic.Repository, opts ...Option) Service {
	svc := new(service)
	svc.engine = engine
	svc.topics = topics
	svc.codec = message.NewCodec()
	svc.systemTopic = "SISTEMA"

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

func (svc *service) Publish(ctx context.Context, topic string, sender string, text string) (int, error) {
	return svc.publish(ctx, message.NewPlainText(topic, sender, text))
}

func (svc *service) PublishStructured(ctx context.Context, topic string, sender string, text string, meta message.Metadata) (int, error) {
	return svc.publish(ctx, message.NewStructured(topic, sender, text, meta))
}

func (svc *service) publish(ctx context.Context, env *message.Envelope) (int, error) {
	if err := topic.ValidateName(env.Topic); err != nil {
		return 0, err
	}

	data, err := svc.codec.Encode(env)
	if err != nil {
		return 0, err
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if svc.transport != nil {
		if err := svc.transport.Send(data); err != nil {
			return 0, err
		}
	}

	return svc.engine.Publish(env), nil
}

func (svc *service) Broadcast(ctx context.Context, sender string, text string, exclude ...string) (map[string]int, error) {
	topics, err := svc.topics.List()
	if err != nil {
		return nil, err
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	delivered := make(map[string]int)
	for _, t := range topics {
		if _, ok := skip[t.Name]; ok {
			continue
		}

		count, err := svc.Publish(ctx, t.Name, sender, text)
		if err != nil {
			return delivered, err
		}

		delivered[t.Name] = count
	}

	return delivered, nil
}

func (svc *service) System(ctx context.Context, text string) (int, error) {
	return svc.Publish(ctx, svc.systemTopic, SystemSender(svc.systemTopic), text)
}

func (svc *service) SystemTopic() string {
	return svc.systemTopic
}

// SystemSender is the sender shown on system notices, e.g. "[SISTEMA]".
func SystemSender(systemTopic string) string {
	return "[" + systemTopic + "]"
}

func (svc *service) Ingest(ctx context.Context, data []byte) (int, error) {
	env, err := svc.codec.Decode(data)
	if err != nil {
		return 0, err
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return svc.engine.Publish(env), nil
}

func (svc *service) Connect(name string) (*broker.Subscriber, error) {
	return svc.engine.Connect(name)
}

func (svc *service) Disconnect(id broker.SubscriberID) error {
	return svc.engine.Disconnect(id)
}

func (svc *service) Subscribe(id broker.SubscriberID, filter string) (subscription.Result, error) {
	s, err := svc.engine.Subscriber(id)
	if err != nil {
		return subscription.NotPresent, err
	}

	return s.Subscribe(filter)
}

func (svc *service) Unsubscribe(id broker.SubscriberID, filter string) (subscription.Result, error) {
	s, err := svc.engine.Subscriber(id)
	if err != nil {
		return subscription.NotPresent, err
	}

	return s.Unsubscribe(filter)
}

func (svc *service) SubscribeAll(id broker.SubscriberID) ([]subscription.Result, error) {
	s, err := svc.engine.Subscriber(id)
	if err != nil {
		return nil, err
	}

	topics, err := svc.topics.List()
	if err != nil {
		return nil, err
	}

	return s.SubscribeAll(topic.Names(topics))
}

func (svc *service) Filters(id broker.SubscriberID) ([]string, error) {
	s, err := svc.engine.Subscriber(id)
	if err != nil {
		return nil, err
	}

	return s.Filters(), nil
}

func (svc *service) Poll(ctx context.Context, id broker.SubscriberID, timeout time.Duration) (*message.Envelope, error) {
	s, err := svc.engine.Subscriber(id)
	if err != nil {
		return nil, err
	}

	return s.Poll(ctx, timeout)
}

func (svc *service) Topics() ([]*topic.Topic, error) {
	return svc.topics.List()
}

func (svc *service) AddTopic(name string, description string) (*topic.Topic, error) {
	t, err := topic.NewTopic(name, description)
	if err != nil {
		return nil, err
	}

	t.Reserved = name == svc.systemTopic

	if err := svc.topics.Store(t); err != nil {
		return nil, err
	}

	return t, nil
}

func (svc *service) RemoveTopic(name string) error {
	t, err := svc.topics.Find(name)
	if err != nil {
		return err
	}

	if t.Reserved {
		return ErrReservedTopic
	}

	return svc.topics.Remove(name)
}

func (svc *service) Stats() broker.Stats {
	return svc.engine.Stats()
}
