package chatroom

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mirror520/chatroom/broker"
	"github.com/mirror520/chatroom/message"
	"github.com/mirror520/chatroom/subscription"
	"github.com/mirror520/chatroom/topic"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	return func(next Service) Service {
		return &loggingMiddleware{
			log.With(
				zap.String("service", "chatroom"),
				zap.String("middleware", "logging"),
			),
			next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) Publish(ctx context.Context, topic string, sender string, text string) (int, error) {
	log := mw.log.With(
		zap.String("action", "publish"),
		zap.String("topic", topic),
		zap.String("sender", sender),
	)

	count, err := mw.next.Publish(ctx, topic, sender, text)
	if err != nil {
		log.Error(err.Error())
		return 0, err
	}

	log.Debug("message published", zap.Int("delivered", count))
	return count, nil
}

func (mw *loggingMiddleware) PublishStructured(ctx context.Context, topic string, sender string, text string, meta message.Metadata) (int, error) {
	log := mw.log.With(
		zap.String("action", "publish_structured"),
		zap.String("topic", topic),
		zap.String("sender", sender),
	)

	if meta != nil {
		log = log.With(zap.String("metadata", meta.Kind()))
	}

	count, err := mw.next.PublishStructured(ctx, topic, sender, text, meta)
	if err != nil {
		log.Error(err.Error())
		return 0, err
	}

	log.Debug("message published", zap.Int("delivered", count))
	return count, nil
}

func (mw *loggingMiddleware) Broadcast(ctx context.Context, sender string, text string, exclude ...string) (map[string]int, error) {
	log := mw.log.With(
		zap.String("action", "broadcast"),
		zap.String("sender", sender),
		zap.Strings("exclude", exclude),
	)

	delivered, err := mw.next.Broadcast(ctx, sender, text, exclude...)
	if err != nil {
		log.Error(err.Error(), zap.Int("topics", len(delivered)))
		return delivered, err
	}

	log.Info("message broadcast", zap.Int("topics", len(delivered)))
	return delivered, nil
}

func (mw *loggingMiddleware) System(ctx context.Context, text string) (int, error) {
	log := mw.log.With(
		zap.String("action", "system"),
		zap.String("topic", mw.next.SystemTopic()),
	)

	count, err := mw.next.System(ctx, text)
	if err != nil {
		log.Error(err.Error())
		return 0, err
	}

	log.Info("system message published", zap.Int("delivered", count))
	return count, nil
}

func (mw *loggingMiddleware) SystemTopic() string {
	return mw.next.SystemTopic()
}

func (mw *loggingMiddleware) Ingest(ctx context.Context, data []byte) (int, error) {
	log := mw.log.With(
		zap.String("action", "ingest"),
	)

	count, err := mw.next.Ingest(ctx, data)
	if err != nil {
		log.Warn(err.Error(), zap.ByteString("data", data))
		return 0, err
	}

	log.Debug("message ingested", zap.Int("delivered", count))
	return count, nil
}

func (mw *loggingMiddleware) Connect(name string) (*broker.Subscriber, error) {
	log := mw.log.With(
		zap.String("action", "connect"),
		zap.String("name", name),
	)

	s, err := mw.next.Connect(name)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("subscriber connected", zap.String("subscriber_id", s.ID.String()))
	return s, nil
}

func (mw *loggingMiddleware) Disconnect(id broker.SubscriberID) error {
	log := mw.log.With(
		zap.String("action", "disconnect"),
		zap.String("subscriber_id", id.String()),
	)

	err := mw.next.Disconnect(id)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("subscriber disconnected")
	return nil
}

func (mw *loggingMiddleware) Subscribe(id broker.SubscriberID, filter string) (subscription.Result, error) {
	log := mw.log.With(
		zap.String("action", "subscribe"),
		zap.String("subscriber_id", id.String()),
		zap.String("filter", filter),
	)

	result, err := mw.next.Subscribe(id, filter)
	if err != nil {
		log.Error(err.Error())
		return result, err
	}

	log.Info(result.String())
	return result, nil
}

func (mw *loggingMiddleware) Unsubscribe(id broker.SubscriberID, filter string) (subscription.Result, error) {
	log := mw.log.With(
		zap.String("action", "unsubscribe"),
		zap.String("subscriber_id", id.String()),
		zap.String("filter", filter),
	)

	result, err := mw.next.Unsubscribe(id, filter)
	if err != nil {
		log.Error(err.Error())
		return result, err
	}

	log.Info(result.String())
	return result, nil
}

func (mw *loggingMiddleware) SubscribeAll(id broker.SubscriberID) ([]subscription.Result, error) {
	log := mw.log.With(
		zap.String("action", "subscribe_all"),
		zap.String("subscriber_id", id.String()),
	)

	results, err := mw.next.SubscribeAll(id)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	added := 0
	for _, r := range results {
		if r == subscription.Added {
			added++
		}
	}

	log.Info("subscribed to all topics", zap.Int("added", added))
	return results, nil
}

func (mw *loggingMiddleware) Filters(id broker.SubscriberID) ([]string, error) {
	return mw.next.Filters(id)
}

func (mw *loggingMiddleware) Poll(ctx context.Context, id broker.SubscriberID, timeout time.Duration) (*message.Envelope, error) {
	env, err := mw.next.Poll(ctx, id, timeout)
	if err != nil {
		mw.log.Error(err.Error(),
			zap.String("action", "poll"),
			zap.String("subscriber_id", id.String()),
		)
		return nil, err
	}

	return env, nil
}

func (mw *loggingMiddleware) Topics() ([]*topic.Topic, error) {
	return mw.next.Topics()
}

func (mw *loggingMiddleware) AddTopic(name string, description string) (*topic.Topic, error) {
	log := mw.log.With(
		zap.String("action", "add_topic"),
		zap.String("topic", name),
	)

	t, err := mw.next.AddTopic(name, description)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("topic added", zap.Bool("reserved", t.Reserved))
	return t, nil
}

func (mw *loggingMiddleware) RemoveTopic(name string) error {
	log := mw.log.With(
		zap.String("action", "remove_topic"),
		zap.String("topic", name),
	)

	err := mw.next.RemoveTopic(name)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("topic removed")
	return nil
}

func (mw *loggingMiddleware) Stats() broker.Stats {
	return mw.next.Stats()
}
