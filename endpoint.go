package chatroom

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-kit/kit/endpoint"

	"github.com/mirror520/chatroom/broker"
	"github.com/mirror520/chatroom/message"
)

var ErrInvalidRequest = errors.New("invalid request")

type EndpointSet struct {
	Publish      endpoint.Endpoint
	Broadcast    endpoint.Endpoint
	System       endpoint.Endpoint
	Connect      endpoint.Endpoint
	Disconnect   endpoint.Endpoint
	Subscribe    endpoint.Endpoint
	Unsubscribe  endpoint.Endpoint
	SubscribeAll endpoint.Endpoint
	Filters      endpoint.Endpoint
	Poll         endpoint.Endpoint
	Topics       endpoint.Endpoint
	AddTopic     endpoint.Endpoint
	RemoveTopic  endpoint.Endpoint
	Stats        endpoint.Endpoint
	Ingest       endpoint.Endpoint
}

func MakeEndpoints(svc Service) *EndpointSet {
	return &EndpointSet{
		Publish:      PublishEndpoint(svc),
		Broadcast:    BroadcastEndpoint(svc),
		System:       SystemEndpoint(svc),
		Connect:      ConnectEndpoint(svc),
		Disconnect:   DisconnectEndpoint(svc),
		Subscribe:    SubscribeEndpoint(svc),
		Unsubscribe:  UnsubscribeEndpoint(svc),
		SubscribeAll: SubscribeAllEndpoint(svc),
		Filters:      FiltersEndpoint(svc),
		Poll:         PollEndpoint(svc),
		Topics:       TopicsEndpoint(svc),
		AddTopic:     AddTopicEndpoint(svc),
		RemoveTopic:  RemoveTopicEndpoint(svc),
		Stats:        StatsEndpoint(svc),
		Ingest:       IngestEndpoint(svc),
	}
}

type PublishRequest struct {
	Topic    string          `json:"-"`
	Sender   string          `json:"sender" binding:"required"`
	Message  string          `json:"message"`
	Metadata json.RawMessage `json:"metadata"`
}

type DeliveredResponse struct {
	Delivered int `json:"delivered"`
}

// PublishEndpoint publishes a structured envelope when the request carries
// metadata, a plain one otherwise.
func PublishEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		req, ok := request.(PublishRequest)
		if !ok {
			return nil, ErrInvalidRequest
		}

		var count int
		if len(req.Metadata) > 0 {
			meta := message.DecodeMetadata(req.Metadata)
			count, err = svc.PublishStructured(ctx, req.Topic, req.Sender, req.Message, meta)
		} else {
			count, err = svc.Publish(ctx, req.Topic, req.Sender, req.Message)
		}

		if err != nil {
			return nil, err
		}

		return DeliveredResponse{count}, nil
	}
}

type BroadcastRequest struct {
	Sender  string   `json:"sender" binding:"required"`
	Message string   `json:"message"`
	Exclude []string `json:"exclude"`
}

type BroadcastResponse struct {
	Delivered map[string]int `json:"delivered"` // map[Topic]Count
}

func BroadcastEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		req, ok := request.(BroadcastRequest)
		if !ok {
			return nil, ErrInvalidRequest
		}

		delivered, err := svc.Broadcast(ctx, req.Sender, req.Message, req.Exclude...)
		if err != nil {
			return nil, err
		}

		return BroadcastResponse{delivered}, nil
	}
}

type SystemRequest struct {
	Message string `json:"message" binding:"required"`
}

func SystemEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		req, ok := request.(SystemRequest)
		if !ok {
			return nil, ErrInvalidRequest
		}

		count, err := svc.System(ctx, req.Message)
		if err != nil {
			return nil, err
		}

		return DeliveredResponse{count}, nil
	}
}

type ConnectRequest struct {
	Name    string   `json:"name" binding:"required"`
	Filters []string `json:"filters"`
}

type SubscriberResponse struct {
	ID          broker.SubscriberID `json:"id"`
	Name        string              `json:"name"`
	ConnectedAt time.Time           `json:"connected_at"`
	Filters     []string            `json:"filters"`
}

func ConnectEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		req, ok := request.(ConnectRequest)
		if !ok {
			return nil, ErrInvalidRequest
		}

		s, err := svc.Connect(req.Name)
		if err != nil {
			return nil, err
		}

		for _, filter := range req.Filters {
			if _, err := svc.Subscribe(s.ID, filter); err != nil {
				svc.Disconnect(s.ID)
				return nil, err
			}
		}

		return SubscriberResponse{
			ID:          s.ID,
			Name:        s.Name,
			ConnectedAt: s.ConnectedAt,
			Filters:     s.Filters(),
		}, nil
	}
}

func DisconnectEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		id, ok := request.(broker.SubscriberID)
		if !ok {
			return nil, ErrInvalidRequest
		}

		return nil, svc.Disconnect(id)
	}
}

type FilterRequest struct {
	ID     broker.SubscriberID
	Filter string
}

type FilterResponse struct {
	Filter string `json:"filter"`
	Result string `json:"result"`
}

func SubscribeEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		req, ok := request.(FilterRequest)
		if !ok {
			return nil, ErrInvalidRequest
		}

		result, err := svc.Subscribe(req.ID, req.Filter)
		if err != nil {
			return nil, err
		}

		return FilterResponse{req.Filter, result.String()}, nil
	}
}

func UnsubscribeEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		req, ok := request.(FilterRequest)
		if !ok {
			return nil, ErrInvalidRequest
		}

		result, err := svc.Unsubscribe(req.ID, req.Filter)
		if err != nil {
			return nil, err
		}

		return FilterResponse{req.Filter, result.String()}, nil
	}
}

func SubscribeAllEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		id, ok := request.(broker.SubscriberID)
		if !ok {
			return nil, ErrInvalidRequest
		}

		if _, err := svc.SubscribeAll(id); err != nil {
			return nil, err
		}

		return svc.Filters(id)
	}
}

func FiltersEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		id, ok := request.(broker.SubscriberID)
		if !ok {
			return nil, ErrInvalidRequest
		}

		return svc.Filters(id)
	}
}

type PollRequest struct {
	ID      broker.SubscriberID
	Timeout time.Duration
}

type EnvelopeResponse struct {
	Topic        string           `json:"topic"`
	Sender       string           `json:"sender"`
	Message      string           `json:"message"`
	SentAt       time.Time        `json:"sent_at"`
	Structured   bool             `json:"structured"`
	MetadataKind string           `json:"metadata_kind,omitempty"`
	Metadata     message.Metadata `json:"metadata,omitempty"`
	Rendered     string           `json:"rendered"`
}

// PollEndpoint returns a nil response when nothing arrived within the
// timeout.
func PollEndpoint(svc Service) endpoint.Endpoint {
	codec := message.NewCodec()

	return func(ctx context.Context, request any) (response any, err error) {
		req, ok := request.(PollRequest)
		if !ok {
			return nil, ErrInvalidRequest
		}

		env, err := svc.Poll(ctx, req.ID, req.Timeout)
		if err != nil {
			return nil, err
		}

		if env == nil {
			return nil, nil
		}

		resp := &EnvelopeResponse{
			Topic:    env.Topic,
			Sender:   env.Sender,
			Message:  env.Text(),
			SentAt:   env.SentAt,
			Rendered: codec.Render(env),
		}

		if _, ok := env.Body.(message.Structured); ok {
			resp.Structured = true
		}

		if meta := env.Metadata(); meta != nil {
			resp.Metadata = meta
			resp.MetadataKind = meta.Kind()
		}

		return resp, nil
	}
}

func TopicsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		return svc.Topics()
	}
}

type AddTopicRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func AddTopicEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		req, ok := request.(AddTopicRequest)
		if !ok {
			return nil, ErrInvalidRequest
		}

		return svc.AddTopic(req.Name, req.Description)
	}
}

func RemoveTopicEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		name, ok := request.(string)
		if !ok {
			return nil, ErrInvalidRequest
		}

		return nil, svc.RemoveTopic(name)
	}
}

func StatsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		return svc.Stats(), nil
	}
}

// IngestEndpoint takes a raw wire line received from the transport.
func IngestEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (response any, err error) {
		data, ok := request.([]byte)
		if !ok {
			return nil, ErrInvalidRequest
		}

		count, err := svc.Ingest(ctx, data)
		if err != nil {
			return nil, err
		}

		return DeliveredResponse{count}, nil
	}
}
