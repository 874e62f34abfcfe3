package db

import (
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mirror520/chatroom/conf"
	"github.com/mirror520/chatroom/topic"
)

// Topic is the row model of topic.Topic.
type Topic struct {
	Name        string `gorm:"primaryKey"`
	Description string
	Reserved    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewTopic(t *topic.Topic) *Topic {
	return &Topic{
		Name:        t.Name,
		Description: t.Description,
		Reserved:    t.Reserved,
		CreatedAt:   t.CreatedAt,
	}
}

func (t *Topic) reconstitute() *topic.Topic {
	return &topic.Topic{
		Name:        t.Name,
		Description: t.Description,
		Reserved:    t.Reserved,
		CreatedAt:   t.CreatedAt,
	}
}

type topicRepository struct {
	db *gorm.DB
}

func NewTopicRepository(cfg conf.Persistence) (topic.Repository, error) {
	dsn := cfg.Host + "/" + cfg.Name + ".db"
	if cfg.InMem {
		dsn = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Topic{}); err != nil {
		return nil, err
	}

	repo := new(topicRepository)
	repo.db = db
	return repo, nil
}

func (repo *topicRepository) Store(t *topic.Topic) error {
	result := repo.db.Save(NewTopic(t))
	if err := result.Error; err != nil {
		return err
	}

	return nil
}

func (repo *topicRepository) Find(name string) (*topic.Topic, error) {
	var t *Topic

	result := repo.db.Take(&t, "name = ?", name)
	if err := result.Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, topic.ErrTopicNotFound
		}

		return nil, err
	}

	return t.reconstitute(), nil
}

func (repo *topicRepository) List() ([]*topic.Topic, error) {
	var rows []*Topic

	result := repo.db.Order("name").Find(&rows)
	if err := result.Error; err != nil {
		return nil, err
	}

	topics := make([]*topic.Topic, len(rows))
	for i, row := range rows {
		topics[i] = row.reconstitute()
	}

	return topics, nil
}

func (repo *topicRepository) Remove(name string) error {
	result := repo.db.Delete(&Topic{}, "name = ?", name)
	if err := result.Error; err != nil {
		return err
	}

	if result.RowsAffected == 0 {
		return topic.ErrTopicNotFound
	}

	return nil
}

func (repo *topicRepository) Close() error {
	sqlDB, err := repo.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
