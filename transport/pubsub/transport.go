package pubsub

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/go-kit/kit/endpoint"
	"go.uber.org/zap"

	"github.com/mirror520/chatroom/message"
	"github.com/mirror520/chatroom/pubsub"
)

// Relay feeds wire lines received from a transport into the local engine
// through the ingest endpoint. It never sends, so relayed messages do not
// loop back onto the transport.
type Relay struct {
	log     *zap.Logger
	ps      pubsub.PubSub
	ingest  endpoint.Endpoint
	filters []string
	stopped atomic.Bool
}

func NewRelay(ps pubsub.PubSub, ingest endpoint.Endpoint, filters ...string) *Relay {
	if len(filters) == 0 {
		filters = []string{""}
	}

	return &Relay{
		log: zap.L().With(
			zap.String("transport", "pubsub"),
			zap.String("component", "relay"),
		),
		ps:      ps,
		ingest:  ingest,
		filters: filters,
	}
}

// Run blocks until ctx is done or the transport fails. A transport failure
// stops the relay and is returned; cancellation returns nil.
func (r *Relay) Run(ctx context.Context) error {
	for _, filter := range r.filters {
		if err := r.ps.Subscribe(filter); err != nil {
			r.stopped.Store(true)
			return err
		}
	}

	r.log.Info("relay started", zap.Strings("filters", r.filters))

	for {
		data, err := r.ps.Recv(ctx)
		if err != nil {
			r.stopped.Store(true)

			if ctx.Err() != nil {
				r.log.Info("relay stopped")
				return nil
			}

			r.log.Error(err.Error())
			return err
		}

		if _, err := r.ingest(ctx, data); err != nil {
			if errors.Is(err, message.ErrMalformedEnvelope) {
				r.log.Warn(err.Error(), zap.ByteString("data", data))
				continue
			}

			r.log.Error(err.Error())
		}
	}
}

func (r *Relay) Stopped() bool {
	return r.stopped.Load()
}
