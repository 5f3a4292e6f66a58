package mqtt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/vbox-mqtt/config"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Host:           "127.0.0.1",
		Port:           1,
		CommandBuffer:  2,
		PublishTimeout: time.Second,
	}
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient(config.MQTTConfig{}, "")
	assert.Error(t, err)
}

func TestNewClient_GeneratesClientID(t *testing.T) {
	c, err := NewClient(testConfig(), "virtualbox/availability")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.config.ClientID, "vbox-mqtt-"))
	assert.Equal(t, 2, cap(c.messages))
	assert.False(t, c.IsConnected())
}

func TestClient_CallbacksPostEvents(t *testing.T) {
	c, err := NewClient(testConfig(), "")
	require.NoError(t, err)

	c.onConnect(nil)
	c.onConnect(nil) // coalesced, must not block
	select {
	case <-c.Connected():
	default:
		t.Fatal("expected a connect event")
	}
	select {
	case <-c.Connected():
		t.Fatal("expected connect events to be coalesced")
	default:
	}

	c.onMessage(nil, fakeMessage{topic: "virtualbox/command", payload: []byte("start demo")})
	msg := <-c.Messages()
	assert.Equal(t, "virtualbox/command", msg.Topic)
	assert.Equal(t, "start demo", string(msg.Payload))
}

func TestClient_PublishWhileDisconnected(t *testing.T) {
	c, err := NewClient(testConfig(), "")
	require.NoError(t, err)

	err = c.Publish("virtualbox/demo/status", true, []byte("running"))
	require.Error(t, err)
	assert.True(t, IsNotConnected(err))
}

func TestClient_PublishWhileConnectRetrying(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectTimeout = 100 * time.Millisecond
	c, err := NewClient(cfg, "virtualbox/availability")
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)

	// nothing listens on port 1, so paho keeps retrying in the background
	assert.Error(t, c.Connect())

	start := time.Now()
	err = c.Publish("virtualbox/demo/status", true, []byte("running"))
	require.Error(t, err)
	assert.True(t, IsNotConnected(err))
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	err = c.Subscribe("virtualbox/command")
	assert.True(t, IsNotConnected(err))
}
