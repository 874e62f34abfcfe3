package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/mirror520/chatroom"
	"github.com/mirror520/chatroom/broker"
	"github.com/mirror520/chatroom/model"
	"github.com/mirror520/chatroom/persistence/inmem"
	"github.com/mirror520/chatroom/topic"
)

type httpTestSuite struct {
	suite.Suite
	engine *broker.Engine
	topics topic.Repository
	router *gin.Engine
}

func (suite *httpTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	topics, err := inmem.NewTopicRepository()
	suite.Require().NoError(err)

	engine := broker.NewEngine(broker.Options{})

	svc := chatroom.NewService(engine, topics)
	for _, name := range []string{"GERAL", "TECNOLOGIA", "SISTEMA"} {
		_, err := svc.AddTopic(name, "")
		suite.Require().NoError(err)
	}

	suite.engine = engine
	suite.topics = topics
	suite.router = NewRouter(zap.NewNop())

	SetRouter(suite.router, chatroom.MakeEndpoints(svc), "/health")
}

func (suite *httpTestSuite) TearDownTest() {
	suite.engine.Close()
	suite.topics.Close()
}

func (suite *httpTestSuite) do(method string, path string, body any) (int, *model.Result) {
	var reader *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(bs)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	if w.Body.Len() == 0 {
		return w.Code, nil
	}

	var result *model.Result
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &result))
	return w.Code, result
}

func (suite *httpTestSuite) connect(name string, filters ...string) string {
	code, result := suite.do(http.MethodPost, "/v1/subscribers", chatroom.ConnectRequest{
		Name:    name,
		Filters: filters,
	})
	suite.Require().Equal(http.StatusCreated, code)

	var resp struct {
		ID string `json:"id"`
	}
	suite.Require().NoError(result.Decode(&resp))
	return resp.ID
}

func (suite *httpTestSuite) TestHealth() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("ok", w.Body.String())
}

func (suite *httpTestSuite) TestPublishAndPoll() {
	id := suite.connect("João", "TECNOLOGIA")

	code, result := suite.do(http.MethodPost, "/v1/topics/TECNOLOGIA/messages", map[string]any{
		"sender":   "Admin",
		"message":  "Nova versão lançada!",
		"metadata": map[string]string{"priority": "high"},
	})
	suite.Equal(http.StatusOK, code)

	var delivered chatroom.DeliveredResponse
	suite.NoError(result.Decode(&delivered))
	suite.Equal(1, delivered.Delivered)

	code, result = suite.do(http.MethodGet, "/v1/subscribers/"+id+"/messages?timeout=10ms", nil)
	suite.Equal(http.StatusOK, code)

	var env struct {
		Topic        string `json:"topic"`
		Sender       string `json:"sender"`
		Message      string `json:"message"`
		Structured   bool   `json:"structured"`
		MetadataKind string `json:"metadata_kind"`
		Rendered     string `json:"rendered"`
	}
	suite.NoError(result.Decode(&env))
	suite.Equal("TECNOLOGIA", env.Topic)
	suite.Equal("Admin", env.Sender)
	suite.Equal("Nova versão lançada!", env.Message)
	suite.True(env.Structured)
	suite.Equal("priority", env.MetadataKind)
	suite.Contains(env.Rendered, "[!] high priority")

	code, _ = suite.do(http.MethodGet, "/v1/subscribers/"+id+"/messages?timeout=10ms", nil)
	suite.Equal(http.StatusNoContent, code)
}

func (suite *httpTestSuite) TestFilters() {
	id := suite.connect("Ana")

	code, result := suite.do(http.MethodPut, "/v1/subscribers/"+id+"/filters/GERAL", nil)
	suite.Equal(http.StatusOK, code)

	var resp chatroom.FilterResponse
	suite.NoError(result.Decode(&resp))
	suite.Equal("GERAL", resp.Filter)
	suite.Equal("added", resp.Result)

	_, result = suite.do(http.MethodPut, "/v1/subscribers/"+id+"/filters/GERAL", nil)
	suite.NoError(result.Decode(&resp))
	suite.Equal("already_present", resp.Result)

	code, result = suite.do(http.MethodPut, "/v1/subscribers/"+id+"/filters", nil)
	suite.Equal(http.StatusOK, code)

	var filters []string
	suite.NoError(result.Decode(&filters))
	suite.Equal([]string{"GERAL", "SISTEMA", "TECNOLOGIA"}, filters)

	_, result = suite.do(http.MethodDelete, "/v1/subscribers/"+id+"/filters/ESPORTES", nil)
	suite.NoError(result.Decode(&resp))
	suite.Equal("not_present", resp.Result)
}

func (suite *httpTestSuite) TestBroadcast() {
	id := suite.connect("Todos", "")

	code, result := suite.do(http.MethodPost, "/v1/broadcast", chatroom.BroadcastRequest{
		Sender:  "Admin",
		Message: "Manutenção às 22h",
		Exclude: []string{"SISTEMA"},
	})
	suite.Equal(http.StatusOK, code)

	var resp chatroom.BroadcastResponse
	suite.NoError(result.Decode(&resp))
	suite.Equal(map[string]int{"GERAL": 1, "TECNOLOGIA": 1}, resp.Delivered)

	parsed, err := broker.ParseSubscriberID(id)
	suite.Require().NoError(err)

	s, err := suite.engine.Subscriber(parsed)
	suite.Require().NoError(err)
	suite.Equal(2, s.Pending())
}

func (suite *httpTestSuite) TestSystem() {
	id := suite.connect("Ana", "SISTEMA")

	code, result := suite.do(http.MethodPost, "/v1/system", chatroom.SystemRequest{
		Message: "Servidor de chat iniciado!",
	})
	suite.Equal(http.StatusOK, code)

	var resp chatroom.DeliveredResponse
	suite.NoError(result.Decode(&resp))
	suite.Equal(1, resp.Delivered)

	code, result = suite.do(http.MethodGet, "/v1/subscribers/"+id+"/messages?timeout=10ms", nil)
	suite.Equal(http.StatusOK, code)

	var env struct {
		Topic  string `json:"topic"`
		Sender string `json:"sender"`
	}
	suite.NoError(result.Decode(&env))
	suite.Equal("SISTEMA", env.Topic)
	suite.Equal("[SISTEMA]", env.Sender)

	code, _ = suite.do(http.MethodPost, "/v1/system", map[string]string{})
	suite.Equal(http.StatusBadRequest, code)
}

func (suite *httpTestSuite) TestDisconnect() {
	id := suite.connect("Ana", "GERAL")

	code, _ := suite.do(http.MethodDelete, "/v1/subscribers/"+id, nil)
	suite.Equal(http.StatusOK, code)

	code, result := suite.do(http.MethodGet, "/v1/subscribers/"+id+"/filters", nil)
	suite.Equal(http.StatusNotFound, code)
	suite.Equal(model.FAILURE, result.Status)

	code, _ = suite.do(http.MethodGet, "/v1/subscribers/not-an-id/filters", nil)
	suite.Equal(http.StatusBadRequest, code)
}

func (suite *httpTestSuite) TestTopics() {
	code, _ := suite.do(http.MethodPost, "/v1/topics", chatroom.AddTopicRequest{
		Name:        "ESPORTES",
		Description: "Futebol e afins",
	})
	suite.Equal(http.StatusCreated, code)

	code, _ = suite.do(http.MethodPost, "/v1/topics", chatroom.AddTopicRequest{Name: "SALA 1"})
	suite.Equal(http.StatusBadRequest, code)

	code, _ = suite.do(http.MethodDelete, "/v1/topics/SISTEMA", nil)
	suite.Equal(http.StatusForbidden, code)

	code, _ = suite.do(http.MethodDelete, "/v1/topics/GERAL", nil)
	suite.Equal(http.StatusOK, code)

	code, _ = suite.do(http.MethodDelete, "/v1/topics/GERAL", nil)
	suite.Equal(http.StatusNotFound, code)

	code, result := suite.do(http.MethodGet, "/v1/topics", nil)
	suite.Equal(http.StatusOK, code)

	var topics []*topic.Topic
	suite.NoError(result.Decode(&topics))
	suite.Equal([]string{"ESPORTES", "SISTEMA", "TECNOLOGIA"}, topic.Names(topics))
}

func (suite *httpTestSuite) TestStats() {
	suite.connect("Ana", "GERAL")

	_, err := suite.engine.Subscribers()[0].Subscribe("TECNOLOGIA")
	suite.NoError(err)

	code, result := suite.do(http.MethodGet, "/v1/stats", nil)
	suite.Equal(http.StatusOK, code)

	var stats broker.Stats
	suite.NoError(result.Decode(&stats))
	suite.Equal(1, stats.Subscribers)
}

func TestHTTPTestSuite(t *testing.T) {
	suite.Run(t, new(httpTestSuite))
}
