package persistence

import (
	"errors"

	"github.com/mirror520/chatroom/conf"
	"github.com/mirror520/chatroom/persistence/db"
	"github.com/mirror520/chatroom/persistence/inmem"
	"github.com/mirror520/chatroom/persistence/kv"
	"github.com/mirror520/chatroom/topic"
)

func NewTopicRepository(cfg conf.Persistence) (topic.Repository, error) {
	switch cfg.Driver {
	case conf.SQLite:
		return db.NewTopicRepository(cfg)
	case conf.BadgerDB:
		return kv.NewTopicRepository(cfg)
	case conf.InMem:
		return inmem.NewTopicRepository()
	default:
		return nil, errors.New("driver not supported")
	}
}
