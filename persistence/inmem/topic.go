package inmem

import (
	"sort"
	"sync"

	"github.com/mirror520/chatroom/topic"
)

type topicRepository struct {
	topics map[string]*topic.Topic // map[Name]*topic.Topic
	sync.RWMutex
}

func NewTopicRepository() (topic.Repository, error) {
	repo := new(topicRepository)
	repo.topics = make(map[string]*topic.Topic)
	return repo, nil
}

func (repo *topicRepository) Store(t *topic.Topic) error {
	repo.Lock()

	newTopic := new(topic.Topic)
	*newTopic = *t

	repo.topics[t.Name] = newTopic

	repo.Unlock()
	return nil
}

func (repo *topicRepository) Find(name string) (*topic.Topic, error) {
	repo.RLock()
	defer repo.RUnlock()

	t, ok := repo.topics[name]
	if !ok {
		return nil, topic.ErrTopicNotFound
	}

	found := *t
	return &found, nil
}

func (repo *topicRepository) List() ([]*topic.Topic, error) {
	repo.RLock()
	topics := make([]*topic.Topic, 0, len(repo.topics))
	for _, t := range repo.topics {
		found := *t
		topics = append(topics, &found)
	}
	repo.RUnlock()

	sort.Slice(topics, func(i, j int) bool {
		return topics[i].Name < topics[j].Name
	})
	return topics, nil
}

func (repo *topicRepository) Remove(name string) error {
	repo.Lock()
	defer repo.Unlock()

	if _, ok := repo.topics[name]; !ok {
		return topic.ErrTopicNotFound
	}

	delete(repo.topics, name)
	return nil
}

func (repo *topicRepository) Close() error {
	return nil
}
