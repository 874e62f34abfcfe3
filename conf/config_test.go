package conf

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"

	"github.com/mirror520/chatroom/queue"
)

func TestLoadConfig(t *testing.T) {
	assert := assert.New(t)

	os.Setenv("INSTANCE_NAME", "chatroom-test")
	defer os.Unsetenv("INSTANCE_NAME")

	Port = 8080

	cfg, err := LoadConfig("..")
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal("chatroom-test", cfg.Name)
	assert.Equal("SISTEMA", cfg.SystemTopic)

	assert.Len(cfg.Topics, 6)
	assert.Equal("GERAL", cfg.Topics[0].Name)
	assert.True(cfg.Topics[5].Reserved)

	assert.Equal(0, cfg.Queue.Capacity)
	assert.Equal(queue.DropOldest, cfg.Queue.Policy)

	assert.True(cfg.Transports.HTTP.Enabled)
	assert.Equal("http://localhost:8080", cfg.Transports.HTTP.Internal.URL())

	assert.Equal(NATS, cfg.Transports.PubSub.Provider)
	assert.Equal("nats://127.0.0.1:4222", cfg.Transports.PubSub.URL)
	assert.Equal([]string{""}, cfg.Transports.PubSub.Filters)

	assert.Equal(10*time.Second, cfg.Transports.Consul.Interval)
	assert.Equal(InMem, cfg.Persistence.Driver)
}

func TestTopicShorthand(t *testing.T) {
	assert := assert.New(t)

	var cfg Config
	err := yaml.Unmarshal([]byte("topics: [GERAL, {name: SISTEMA, reserved: true}]"), &cfg)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal([]Topic{
		{Name: "GERAL"},
		{Name: "SISTEMA", Reserved: true},
	}, cfg.Topics)
}

func TestInvalidQueuePolicy(t *testing.T) {
	var cfg Config
	err := yaml.Unmarshal([]byte("queue: {capacity: 4, policy: block}"), &cfg)
	assert.Error(t, err)
}

func TestEnvExpandedReader(t *testing.T) {
	assert := assert.New(t)

	os.Setenv("CHATROOM_TEST_HOST", "example.com")
	defer os.Unsetenv("CHATROOM_TEST_HOST")

	in := "host: $CHATROOM_TEST_HOST\nport: ${CHATROOM_TEST_PORT:-4222}\nname: ${CHATROOM_TEST_HOST}"
	bs, err := io.ReadAll(NewEnvExpandedReader(strings.NewReader(in)))
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal("host: example.com\nport: 4222\nname: example.com", string(bs))
}
