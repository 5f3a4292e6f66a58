package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/eddielth/vbox-mqtt/config"
	"github.com/eddielth/vbox-mqtt/logger"
	"github.com/eddielth/vbox-mqtt/metrics"
)

// Availability payloads
const (
	Online  = "online"
	Offline = "offline"
)

func init() {
	paho.ERROR = logger.PahoAdapter{Level: logger.ERROR}
	paho.CRITICAL = logger.PahoAdapter{Level: logger.ERROR}
	paho.WARN = logger.PahoAdapter{Level: logger.WARN}
}

// Message is an inbound publish received on a subscribed topic
type Message struct {
	Topic   string
	Payload []byte
}

// Client represents an MQTT client. Paho callbacks only post onto the
// Connected and Messages channels; all real work happens in their consumer.
type Client struct {
	client    paho.Client
	config    config.MQTTConfig
	messages  chan Message
	connected chan struct{}
}

// NewClient creates a client whose last will marks willTopic "offline"
func NewClient(cfg config.MQTTConfig, willTopic string) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("MQTT broker address cannot be empty")
	}

	if cfg.ClientID == "" {
		cfg.ClientID = "vbox-mqtt-" + uuid.NewString()[:8]
	}
	buffer := cfg.CommandBuffer
	if buffer <= 0 {
		buffer = 1
	}

	c := &Client{
		config:    cfg,
		messages:  make(chan Message, buffer),
		connected: make(chan struct{}, 1),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}
	if willTopic != "" {
		opts.SetWill(willTopic, Offline, 0, true)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Error("MQTT connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Info("trying to reconnect to MQTT broker...")
	})

	c.client = paho.NewClient(opts)
	return c, nil
}

func (c *Client) onConnect(_ paho.Client) {
	logger.Info("connected to MQTT broker: %s", c.config.BrokerURL())
	select {
	case c.connected <- struct{}{}:
	default:
		// a connect event is already pending
	}
}

func (c *Client) onMessage(_ paho.Client, msg paho.Message) {
	logger.Debug("received message from topic %s", msg.Topic())
	c.messages <- Message{Topic: msg.Topic(), Payload: msg.Payload()}
}

// Connect starts connecting to the broker. If the broker is not reachable
// within the connect timeout an error is returned while paho keeps retrying
// in the background.
func (c *Client) Connect() error {
	token := c.client.Connect()
	timeout := c.config.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("connection to MQTT broker %s timed out, retrying in background", c.config.BrokerURL())
	}

	if err := token.Error(); err != nil {
		if ct, ok := token.(*paho.ConnectToken); ok {
			return fmt.Errorf("connection to MQTT broker refused, reason code %d: %w", ct.ReturnCode(), err)
		}
		return err
	}
	return nil
}

// Connected delivers one event per successful (re)connection
func (c *Client) Connected() <-chan struct{} {
	return c.connected
}

// Messages delivers inbound messages for every subscribed topic
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Publish sends payload at QoS 0 and waits for it to be handed to the network.
// While the connection is down it fails at once with paho.ErrNotConnected;
// with connect-retry enabled paho would otherwise queue the message.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		metrics.PublishSkipped()
		return fmt.Errorf("publish to %s: %w", topic, paho.ErrNotConnected)
	}

	token := c.client.Publish(topic, 0, retained, payload)
	err := c.wait(token, "publish to "+topic)
	metrics.Publish(err)
	return err
}

// Subscribe subscribes to the specified topic
func (c *Client) Subscribe(topic string) error {
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("subscription to topic %s: %w", topic, paho.ErrNotConnected)
	}

	token := c.client.Subscribe(topic, 0, c.onMessage)
	if err := c.wait(token, "subscription to topic "+topic); err != nil {
		return err
	}

	logger.Info("successfully subscribed to topic: %s", topic)
	return nil
}

func (c *Client) wait(token paho.Token, what string) error {
	timeout := c.config.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%s timed out", what)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// IsConnected reports whether the connection is currently up
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Disconnect disconnects from the MQTT broker
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	logger.Info("disconnected from MQTT broker")
}

// IsNotConnected reports whether err came from a publish while offline
func IsNotConnected(err error) bool {
	return errors.Is(err, paho.ErrNotConnected)
}
