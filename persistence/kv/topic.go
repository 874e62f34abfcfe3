package kv

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/mirror520/chatroom/conf"
	"github.com/mirror520/chatroom/topic"
)

const topicPrefix = "topic:"

type topicRepository struct {
	db *badger.DB
}

func NewTopicRepository(cfg conf.Persistence) (topic.Repository, error) {
	opts := badger.DefaultOptions(cfg.Host + "/" + cfg.Name)
	if cfg.InMem {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	repo := new(topicRepository)
	repo.db = db

	return repo, nil
}

func (repo *topicRepository) Store(t *topic.Topic) error {
	bs, err := json.Marshal(t)
	if err != nil {
		return err
	}

	return repo.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(topicPrefix+t.Name), bs)
	})
}

func (repo *topicRepository) Find(name string) (*topic.Topic, error) {
	var t *topic.Topic

	if err := repo.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(topicPrefix + name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return topic.ErrTopicNotFound
			}

			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &t)
		})
	}); err != nil {
		return nil, err
	}

	return t, nil
}

// List walks the key prefix; badger iterates keys in byte order, which is
// also name order.
func (repo *topicRepository) List() ([]*topic.Topic, error) {
	topics := make([]*topic.Topic, 0)

	err := repo.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(topicPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var t *topic.Topic
				if err := json.Unmarshal(val, &t); err != nil {
					return err
				}

				topics = append(topics, t)
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return topics, nil
}

func (repo *topicRepository) Remove(name string) error {
	return repo.db.Update(func(txn *badger.Txn) error {
		key := []byte(topicPrefix + name)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return topic.ErrTopicNotFound
			}

			return err
		}

		return txn.Delete(key)
	})
}

func (repo *topicRepository) Close() error {
	return repo.db.Close()
}
