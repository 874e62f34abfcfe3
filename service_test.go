package chatroom

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mirror520/chatroom/broker"
	"github.com/mirror520/chatroom/message"
	"github.com/mirror520/chatroom/persistence/inmem"
	"github.com/mirror520/chatroom/pubsub"
	"github.com/mirror520/chatroom/pubsub/inproc"
	"github.com/mirror520/chatroom/subscription"
	"github.com/mirror520/chatroom/topic"
)

type chatroomTestSuite struct {
	suite.Suite
	engine *broker.Engine
	topics topic.Repository
	svc    Service
	ctx    context.Context
}

func (suite *chatroomTestSuite) SetupTest() {
	topics, err := inmem.NewTopicRepository()
	suite.Require().NoError(err)

	suite.engine = broker.NewEngine(broker.Options{})
	suite.topics = topics
	suite.svc = NewService(suite.engine, topics)
	suite.ctx = context.Background()

	for _, name := range []string{"GERAL", "TECNOLOGIA", "SISTEMA"} {
		_, err := suite.svc.AddTopic(name, "")
		suite.Require().NoError(err)
	}
}

func (suite *chatroomTestSuite) TearDownTest() {
	suite.engine.Close()
	suite.topics.Close()
}

func (suite *chatroomTestSuite) subscriber(name string, filters ...string) *Subscriber {
	s, err := NewSubscriber(suite.svc, name)
	suite.Require().NoError(err)

	for _, f := range filters {
		result, err := s.Subscribe(f)
		suite.Require().NoError(err)
		suite.Require().Equal(subscription.Added, result)
	}
	return s
}

func (suite *chatroomTestSuite) TestExactFanOut() {
	joao := suite.subscriber("João", "TECNOLOGIA")
	maria := suite.subscriber("Maria", "ESPORTES")
	ana := suite.subscriber("Ana")

	pub := NewPublisher(suite.svc, "Admin")
	count, err := pub.Publish(suite.ctx, "TECNOLOGIA", "Nova versão do Python lançada!")
	suite.NoError(err)
	suite.Equal(1, count)

	env, err := joao.Poll(suite.ctx, 0)
	suite.NoError(err)
	suite.Require().NotNil(env)
	suite.Equal("TECNOLOGIA", env.Topic)
	suite.Equal("Admin", env.Sender)
	suite.Equal("Nova versão do Python lançada!", env.Text())

	for _, s := range []*Subscriber{maria, ana} {
		env, err := s.Poll(suite.ctx, 0)
		suite.NoError(err)
		suite.Nil(env)
	}
}

func (suite *chatroomTestSuite) TestZeroSubscriberPublish() {
	suite.subscriber("João", "TECNOLOGIA")

	count, err := suite.svc.Publish(suite.ctx, "NOTICIAS", "Admin", "ninguém ouve")
	suite.NoError(err)
	suite.Zero(count)
}

func (suite *chatroomTestSuite) TestFIFOPerTopic() {
	s := suite.subscriber("Ana", "GERAL")
	pub := NewPublisher(suite.svc, "Admin")

	_, err := pub.Publish(suite.ctx, "GERAL", "m1")
	suite.NoError(err)
	_, err = pub.Publish(suite.ctx, "GERAL", "m2")
	suite.NoError(err)

	first, err := s.Receive(suite.ctx)
	suite.NoError(err)
	second, err := s.Receive(suite.ctx)
	suite.NoError(err)

	suite.Equal("m1", first.Text())
	suite.Equal("m2", second.Text())
}

func (suite *chatroomTestSuite) TestUnsubscribeStopsFutureDelivery() {
	s := suite.subscriber("Ana", "GERAL")
	pub := NewPublisher(suite.svc, "Admin")

	_, err := pub.Publish(suite.ctx, "GERAL", "before")
	suite.NoError(err)

	result, err := s.Unsubscribe("GERAL")
	suite.NoError(err)
	suite.Equal(subscription.Removed, result)

	count, err := pub.Publish(suite.ctx, "GERAL", "after")
	suite.NoError(err)
	suite.Zero(count)

	env, err := s.Poll(suite.ctx, 0)
	suite.NoError(err)
	suite.Require().NotNil(env)
	suite.Equal("before", env.Text())

	env, err = s.Poll(suite.ctx, 10*time.Millisecond)
	suite.NoError(err)
	suite.Nil(env)
}

func (suite *chatroomTestSuite) TestIdempotentSubscribe() {
	s := suite.subscriber("Ana", "GERAL")

	result, err := s.Subscribe("GERAL")
	suite.NoError(err)
	suite.Equal(subscription.AlreadyPresent, result)
	suite.Equal([]string{"GERAL"}, s.Filters())

	result, err = s.Unsubscribe("ESPORTES")
	suite.NoError(err)
	suite.Equal(subscription.NotPresent, result)
}

func (suite *chatroomTestSuite) TestBroadcastExcludesSystemTopic() {
	s := suite.subscriber("Todos", "")
	pub := NewPublisher(suite.svc, "Admin")

	delivered, err := pub.Broadcast(suite.ctx, "Manutenção às 22h", "SISTEMA")
	suite.NoError(err)
	suite.Equal(map[string]int{"GERAL": 1, "TECNOLOGIA": 1}, delivered)

	topics := make([]string, 0, 2)
	for {
		env, err := s.Poll(suite.ctx, 0)
		suite.NoError(err)
		if env == nil {
			break
		}
		topics = append(topics, env.Topic)
	}

	suite.ElementsMatch([]string{"GERAL", "TECNOLOGIA"}, topics)
}

func (suite *chatroomTestSuite) TestSubscribeAll() {
	s := suite.subscriber("Ana")

	results, err := s.SubscribeAll()
	suite.NoError(err)
	suite.Len(results, 3)
	suite.Equal([]string{"GERAL", "SISTEMA", "TECNOLOGIA"}, s.Filters())
}

func (suite *chatroomTestSuite) TestPublishStructured() {
	s := suite.subscriber("Ana", "AVISOS")
	pub := NewPublisher(suite.svc, "Coordenador")

	meta := message.Priority{Level: message.High}
	count, err := pub.PublishStructured(suite.ctx, "AVISOS", "URGENTE: reunião", meta)
	suite.NoError(err)
	suite.Equal(1, count)

	env, err := s.Receive(suite.ctx)
	suite.NoError(err)
	suite.Equal(meta, env.Metadata())
}

func (suite *chatroomTestSuite) TestPublishInvalidTopic() {
	_, err := suite.svc.Publish(suite.ctx, "", "Admin", "oi")
	suite.ErrorIs(err, topic.ErrInvalidName)

	_, err = suite.svc.Publish(suite.ctx, "SALA 1", "Admin", "oi")
	suite.ErrorIs(err, topic.ErrInvalidName)
}

func (suite *chatroomTestSuite) TestReceiveReleasedOnClose() {
	s := suite.subscriber("Ana", "GERAL")

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Receive(suite.ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	suite.NoError(s.Close())

	select {
	case err := <-errCh:
		suite.ErrorIs(err, broker.ErrSubscriberClosed)
	case <-time.After(time.Second):
		suite.Fail("receive not released")
	}

	_, err := suite.svc.Subscribe(s.ID(), "TECNOLOGIA")
	suite.ErrorIs(err, broker.ErrSubscriberNotFound)
}

func (suite *chatroomTestSuite) TestRemoveReservedTopic() {
	err := suite.svc.RemoveTopic("SISTEMA")
	suite.ErrorIs(err, ErrReservedTopic)

	suite.NoError(suite.svc.RemoveTopic("GERAL"))

	topics, err := suite.svc.Topics()
	suite.NoError(err)
	suite.Equal([]string{"SISTEMA", "TECNOLOGIA"}, topic.Names(topics))
}

func (suite *chatroomTestSuite) TestSystemMessage() {
	s := suite.subscriber("Ana", "GERAL")

	result, err := s.SubscribeSystem()
	suite.NoError(err)
	suite.Equal(subscription.Added, result)
	suite.Equal([]string{"GERAL", "SISTEMA"}, s.Filters())

	pub := NewPublisher(suite.svc, "Admin")
	count, err := pub.System(suite.ctx, "Servidor de chat iniciado!")
	suite.NoError(err)
	suite.Equal(1, count)

	env, err := s.Receive(suite.ctx)
	suite.NoError(err)
	suite.Equal("SISTEMA", env.Topic)
	suite.Equal("[SISTEMA]", env.Sender)
	suite.Equal("Servidor de chat iniciado!", env.Text())
}

func (suite *chatroomTestSuite) TestCustomSystemTopic() {
	svc := NewService(suite.engine, suite.topics, WithSystemTopic("AVISOS"))
	suite.Equal("AVISOS", svc.SystemTopic())

	s, err := NewSubscriber(svc, "Ana")
	suite.Require().NoError(err)

	_, err = s.SubscribeSystem()
	suite.NoError(err)

	_, err = svc.System(suite.ctx, "manutenção")
	suite.NoError(err)

	env, err := s.Receive(suite.ctx)
	suite.NoError(err)
	suite.Equal("AVISOS", env.Topic)
	suite.Equal("[AVISOS]", env.Sender)
}

func TestChatroomTestSuite(t *testing.T) {
	suite.Run(t, new(chatroomTestSuite))
}

type failingTransport struct {
	pubsub.PubSub
	err error
}

func (ft *failingTransport) Send(data []byte) error {
	return pubsub.NewTransportError("send", ft.err)
}

type transportTestSuite struct {
	suite.Suite
	hub *inproc.Hub
	ctx context.Context
}

func (suite *transportTestSuite) SetupTest() {
	suite.hub = inproc.NewHub()
	suite.ctx = context.Background()
}

func (suite *transportTestSuite) newService(ps pubsub.PubSub) (Service, *broker.Engine) {
	topics, err := inmem.NewTopicRepository()
	suite.Require().NoError(err)

	engine := broker.NewEngine(broker.Options{})
	return NewService(engine, topics, WithTransport(ps)), engine
}

func (suite *transportTestSuite) TestPublishSendsWireLine() {
	local := suite.hub.Connect(0)
	remote := suite.hub.Connect(0)
	defer local.Close()
	defer remote.Close()

	suite.NoError(remote.Subscribe("GERAL"))

	svc, engine := suite.newService(local)
	defer engine.Close()

	_, err := svc.Publish(suite.ctx, "GERAL", "Admin", "Bem-vindos ao sistema de chat!")
	suite.NoError(err)

	data, err := remote.Recv(suite.ctx)
	suite.NoError(err)
	suite.Regexp(`^GERAL \[\d{2}:\d{2}:\d{2}\] Admin: Bem-vindos ao sistema de chat!$`, string(data))
}

func (suite *transportTestSuite) TestTransportErrorFailsOnlyThatPublish() {
	cause := errors.New("connection reset")
	svc, engine := suite.newService(&failingTransport{err: cause})
	defer engine.Close()

	s, err := NewSubscriber(svc, "Ana")
	suite.Require().NoError(err)
	_, err = s.Subscribe("GERAL")
	suite.Require().NoError(err)

	_, err = svc.Publish(suite.ctx, "GERAL", "Admin", "oi")
	suite.ErrorIs(err, pubsub.ErrTransport)
	suite.ErrorIs(err, cause)

	env, err := s.Poll(suite.ctx, 0)
	suite.NoError(err)
	suite.Nil(env)
	suite.True(engine.Subscribers()[0].Live())
}

func (suite *transportTestSuite) TestIngestDeliversLocally() {
	svc, engine := suite.newService(nil)
	defer engine.Close()

	s, err := NewSubscriber(svc, "Ana")
	suite.Require().NoError(err)
	_, err = s.Subscribe("TECNOLOGIA")
	suite.Require().NoError(err)

	count, err := svc.Ingest(suite.ctx, []byte("TECNOLOGIA [14:32:05] Dev: deploy feito"))
	suite.NoError(err)
	suite.Equal(1, count)

	env, err := s.Receive(suite.ctx)
	suite.NoError(err)
	suite.Equal("Dev", env.Sender)
	suite.Equal("deploy feito", env.Text())

	_, err = svc.Ingest(suite.ctx, []byte(`AVISOS {"topic":"AVISOS"}`))
	suite.ErrorIs(err, message.ErrMalformedEnvelope)
}

func (suite *transportTestSuite) TestSystemWireLine() {
	local := suite.hub.Connect(0)
	remote := suite.hub.Connect(0)
	defer local.Close()
	defer remote.Close()

	suite.NoError(remote.Subscribe("SISTEMA"))

	svc, engine := suite.newService(local)
	defer engine.Close()

	_, err := svc.System(suite.ctx, "Servidor de chat iniciado!")
	suite.NoError(err)

	data, err := remote.Recv(suite.ctx)
	suite.NoError(err)
	suite.Regexp(`^SISTEMA \[\d{2}:\d{2}:\d{2}\] \[SISTEMA\]: Servidor de chat iniciado!$`, string(data))
}

func TestTransportTestSuite(t *testing.T) {
	suite.Run(t, new(transportTestSuite))
}
