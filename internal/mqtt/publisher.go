// Package mqtt publishes device state to an MQTT broker as retained JSON.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daybetterd/internal/config"
	"github.com/dokzlo13/daybetterd/internal/eventbus"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
)

// ErrConnectionFailed is returned when the broker cannot be reached in time.
var ErrConnectionFailed = errors.New("mqtt connection failed")

// Client is the part of the paho client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Topics builds topic names under a prefix.
type Topics struct {
	Prefix string
}

// State is the retained per-device state topic.
func (t Topics) State(device string) string {
	return fmt.Sprintf("%s/%s/state", t.Prefix, device)
}

// Status is the bridge availability topic.
func (t Topics) Status() string {
	return t.Prefix + "/status"
}

// Publisher mirrors state_changed events to the broker.
type Publisher struct {
	client Client
	topics Topics
	qos    byte
}

// Connect dials the broker and announces the bridge as online. The broker
// flips the status topic to offline through the last will on an unclean exit.
func Connect(cfg config.MQTTConfig) (*Publisher, error) {
	topics := Topics{Prefix: strings.TrimRight(cfg.TopicPrefix, "/")}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetWill(topics.Status(), "offline", cfg.QoS, true)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		c.Publish(topics.Status(), cfg.QoS, true, "online")
	})

	c := pahomqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	log.Info().Str("broker", cfg.Broker).Str("prefix", topics.Prefix).Msg("Connected to MQTT broker")
	return NewPublisher(c, topics, cfg.QoS), nil
}

// NewPublisher wraps an already connected client.
func NewPublisher(c Client, topics Topics, qos byte) *Publisher {
	return &Publisher{client: c, topics: topics, qos: qos}
}

// Handle publishes the event's device view. It is an eventbus.Handler.
func (p *Publisher) Handle(e eventbus.Event) {
	if err := p.publish(e); err != nil {
		log.Warn().Err(err).Str("device", e.View.Name).Msg("Failed to publish device state")
	}
}

func (p *Publisher) publish(e eventbus.Event) error {
	payload, err := json.Marshal(e.View)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	token := p.client.Publish(p.topics.State(e.View.Name), p.qos, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timed out after %v", publishTimeout)
	}
	return token.Error()
}

// Close marks the bridge offline and disconnects.
func (p *Publisher) Close() error {
	token := p.client.Publish(p.topics.Status(), p.qos, true, "offline")
	token.WaitTimeout(publishTimeout)
	p.client.Disconnect(disconnectQuiesce)
	return nil
}
