package persistence

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mirror520/chatroom/conf"
	"github.com/mirror520/chatroom/topic"
)

type topicRepositoryTestSuite struct {
	suite.Suite
	cfg    conf.Persistence
	topics topic.Repository
}

func (suite *topicRepositoryTestSuite) SetupTest() {
	topics, err := NewTopicRepository(suite.cfg)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	for _, name := range []string{"TECNOLOGIA", "GERAL", "SISTEMA"} {
		t, err := topic.NewTopic(name, "sala "+name)
		if err != nil {
			suite.Fail(err.Error())
			return
		}

		t.Reserved = name == "SISTEMA"
		if err := topics.Store(t); err != nil {
			suite.Fail(err.Error())
			return
		}
	}

	suite.topics = topics
}

func (suite *topicRepositoryTestSuite) TestFind() {
	t, err := suite.topics.Find("SISTEMA")
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal("SISTEMA", t.Name)
	suite.Equal("sala SISTEMA", t.Description)
	suite.True(t.Reserved)

	_, err = suite.topics.Find("ESPORTES")
	suite.ErrorIs(err, topic.ErrTopicNotFound)
}

func (suite *topicRepositoryTestSuite) TestListIsSorted() {
	topics, err := suite.topics.List()
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal([]string{"GERAL", "SISTEMA", "TECNOLOGIA"}, topic.Names(topics))
}

func (suite *topicRepositoryTestSuite) TestStoreOverwrites() {
	t, _ := topic.NewTopic("GERAL", "chat geral")
	if err := suite.topics.Store(t); err != nil {
		suite.Fail(err.Error())
		return
	}

	found, err := suite.topics.Find("GERAL")
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal("chat geral", found.Description)

	topics, _ := suite.topics.List()
	suite.Len(topics, 3)
}

func (suite *topicRepositoryTestSuite) TestRemove() {
	suite.NoError(suite.topics.Remove("GERAL"))
	suite.ErrorIs(suite.topics.Remove("GERAL"), topic.ErrTopicNotFound)

	topics, _ := suite.topics.List()
	suite.Equal([]string{"SISTEMA", "TECNOLOGIA"}, topic.Names(topics))
}

func (suite *topicRepositoryTestSuite) TearDownTest() {
	for _, name := range []string{"GERAL", "SISTEMA", "TECNOLOGIA"} {
		suite.topics.Remove(name)
	}
	suite.topics.Close()
}

func TestInMemTopicRepositoryTestSuite(t *testing.T) {
	suite.Run(t, &topicRepositoryTestSuite{
		cfg: conf.Persistence{Driver: conf.InMem},
	})
}

func TestBadgerTopicRepositoryTestSuite(t *testing.T) {
	suite.Run(t, &topicRepositoryTestSuite{
		cfg: conf.Persistence{Driver: conf.BadgerDB, Name: "topics", InMem: true},
	})
}

func TestSQLiteTopicRepositoryTestSuite(t *testing.T) {
	suite.Run(t, &topicRepositoryTestSuite{
		cfg: conf.Persistence{Driver: conf.SQLite, Name: "topics", Host: t.TempDir()},
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := NewTopicRepository(conf.Persistence{Driver: conf.PersistenceDriver(42)})
	if err == nil {
		t.Fail()
	}
}
