package chatroom

import (
	"errors"

	"github.com/mirror520/chatroom/conf"
	"github.com/mirror520/chatroom/topic"
)

// SeedTopics stores the configured topics that the catalog does not hold
// yet. Existing entries are left untouched.
func SeedTopics(repo topic.Repository, topics []conf.Topic, systemTopic string) error {
	for _, seed := range topics {
		_, err := repo.Find(seed.Name)
		if err == nil {
			continue
		}

		if !errors.Is(err, topic.ErrTopicNotFound) {
			return err
		}

		t, err := topic.NewTopic(seed.Name, seed.Description)
		if err != nil {
			return err
		}
		t.Reserved = seed.Reserved || seed.Name == systemTopic

		if err := repo.Store(t); err != nil {
			return err
		}
	}

	return nil
}
