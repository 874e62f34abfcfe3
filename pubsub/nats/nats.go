package nats

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mirror520/chatroom/conf"
	"github.com/mirror520/chatroom/pubsub"
)

// NewPubSub connects to a NATS server and carries every topic on the single
// subject cfg.Subject. Topic filtering happens locally by byte prefix.
func NewPubSub(cfg conf.PubSub) (pubsub.PubSub, error) {
	log := zap.L().With(
		zap.String("pubsub", "nats"),
		zap.String("subject", cfg.Subject),
	)

	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	inbox := pubsub.NewInbox(cfg.Capacity)

	nc, err := nats.Connect(url,
		nats.Name(cfg.Subject),
		nats.NoEcho(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn(err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			inbox.Close()
		}),
	)
	if err != nil {
		return nil, pubsub.NewTransportError("connect", err)
	}

	sub, err := nc.Subscribe(cfg.Subject, func(m *nats.Msg) {
		inbox.Deliver(m.Data)
	})
	if err != nil {
		nc.Close()
		return nil, pubsub.NewTransportError("subscribe", err)
	}

	log.Info("connected", zap.String("url", nc.ConnectedUrl()))

	return &pubSub{
		Inbox:   inbox,
		log:     log,
		nc:      nc,
		sub:     sub,
		subject: cfg.Subject,
	}, nil
}

type pubSub struct {
	*pubsub.Inbox
	log     *zap.Logger
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

func (ps *pubSub) Send(data []byte) error {
	if err := ps.nc.Publish(ps.subject, data); err != nil {
		return pubsub.NewTransportError("send", err)
	}
	return nil
}

func (ps *pubSub) Close() error {
	ps.sub.Unsubscribe()

	if err := ps.nc.Drain(); err != nil {
		ps.nc.Close()
	}

	ps.Inbox.Close()
	return nil
}
