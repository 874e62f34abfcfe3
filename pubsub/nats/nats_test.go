package nats

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mirror520/chatroom/conf"
	"github.com/mirror520/chatroom/pubsub"
)

type natsTestSuite struct {
	suite.Suite
	pub pubsub.PubSub
	sub pubsub.PubSub
}

func (suite *natsTestSuite) SetupSuite() {
	url, ok := os.LookupEnv("NATS_URL")
	if !ok {
		suite.T().Skip("NATS_URL not set")
		return
	}

	cfg := conf.PubSub{
		Enabled:  true,
		Provider: conf.NATS,
		URL:      url,
		Subject:  "chatroom.test",
	}

	pub, err := NewPubSub(cfg)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	sub, err := NewPubSub(cfg)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.pub = pub
	suite.sub = sub
}

func (suite *natsTestSuite) TestSendAndRecv() {
	suite.NoError(suite.sub.Subscribe("TECNOLOGIA"))

	suite.NoError(suite.pub.Send([]byte("ESPORTES [14:32:05] Fan: gol")))
	suite.NoError(suite.pub.Send([]byte("TECNOLOGIA [14:32:06] Dev: deploy")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := suite.sub.Recv(ctx)
	suite.NoError(err)
	suite.Equal("TECNOLOGIA [14:32:06] Dev: deploy", string(data))
}

func (suite *natsTestSuite) TestNoEcho() {
	suite.NoError(suite.pub.Subscribe(""))
	defer suite.pub.Unsubscribe("")

	suite.NoError(suite.pub.Send([]byte("GERAL oi")))
	suite.False(suite.pub.Poll(200 * time.Millisecond))
}

func (suite *natsTestSuite) TearDownSuite() {
	if suite.pub != nil {
		suite.pub.Close()
	}
	if suite.sub != nil {
		suite.sub.Close()
	}
}

func TestNatsTestSuite(t *testing.T) {
	suite.Run(t, new(natsTestSuite))
}
