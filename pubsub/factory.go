package pubsub

import (
	"errors"

	"github.com/mirror520/chatroom/conf"
)

type factory func(cfg conf.PubSub) (PubSub, error)

var factories = make(map[conf.TransportProvider]factory)

func AddFactory(provider conf.TransportProvider, factory factory) {
	factories[provider] = factory
}

func NewPubSub(cfg conf.PubSub) (PubSub, error) {
	factory, ok := factories[cfg.Provider]
	if !ok {
		return nil, errors.New("provider not supported")
	}

	return factory(cfg)
}
