// Package mqtt mirrors speaker state onto an MQTT broker using homie-style
// topics and accepts capability writes on "<topic>/set".
//
// Layout, relative to the topic base:
//
//	$state                      ready | lost (bridge will)
//	<device>/$state             ready | disconnected
//	<device>/<capability>       retained value
//	<device>/<capability>/set   command input
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	qos            = 1
	publishTimeout = 5 * time.Second
)

// CommandHandler receives a decoded "<device>/<capability>/set" message.
type CommandHandler func(deviceID, capability string, value any)

// Client publishes speaker state to a broker.
type Client struct {
	client paho.Client
	base   string
	logger zerolog.Logger

	mu      sync.Mutex
	handler CommandHandler
}

// Connect dials broker (e.g. "tcp://localhost:1883") and announces the
// bridge as ready. The client reconnects on its own after connection loss
// and re-subscribes to command topics each time.
func Connect(ctx context.Context, broker, base string) (*Client, error) {
	if broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if base == "" {
		base = "heos"
	}

	c := &Client{
		base:   base,
		logger: log.With().Str("component", "mqtt").Logger(),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("heos-bridge-"+uuid.NewString()[:8]).
		SetKeepAlive(60*time.Second).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(10*time.Second).
		SetOrderMatters(false).
		SetWill(c.topic("$state"), "lost", qos, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn().Err(err).Msg("Broker connection lost")
		}).
		SetOnConnectHandler(func(pc paho.Client) {
			c.logger.Info().Str("broker", broker).Msg("Connected to broker")
			c.onConnect(pc)
		})

	c.client = paho.NewClient(opts)

	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("mqtt connect: %w", err)
		}
	case <-ctx.Done():
		c.client.Disconnect(0)
		return nil, ctx.Err()
	}
	return c, nil
}

// newWithClient wraps an existing paho client.
func newWithClient(pc paho.Client, base string) *Client {
	return &Client{
		client: pc,
		base:   base,
		logger: log.With().Str("component", "mqtt").Logger(),
	}
}

func (c *Client) topic(parts ...string) string {
	return Topic(c.base, parts...)
}

func (c *Client) onConnect(pc paho.Client) {
	c.publish(pc, c.topic("$state"), "ready")

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		if err := c.subscribe(pc, handler); err != nil {
			c.logger.Error().Err(err).Msg("Failed to restore command subscription")
		}
	}
}

// PublishState publishes each capability as a retained value.
func (c *Client) PublishState(deviceID string, state map[string]any) {
	for capability, value := range state {
		c.publish(c.client, c.topic(deviceID, capability), EncodePayload(value))
	}
}

// PublishAvailability publishes the device's homie $state.
func (c *Client) PublishAvailability(deviceID string, available bool) {
	state := "disconnected"
	if available {
		state = "ready"
	}
	c.publish(c.client, c.topic(deviceID, "$state"), state)
}

// ClearDevice removes the retained topics of an unpaired device.
func (c *Client) ClearDevice(deviceID string, capabilities []string) {
	for _, capability := range capabilities {
		c.publish(c.client, c.topic(deviceID, capability), "")
	}
	c.publish(c.client, c.topic(deviceID, "$state"), "")
}

// publish hands the message to paho and returns without waiting for the
// broker. Callers run on speaker sessions, which must keep draining events
// while the broker is away.
func (c *Client) publish(pc paho.Client, topic, payload string) {
	token := pc.Publish(topic, qos, true, payload)
	go c.awaitAck(token, topic)
}

func (c *Client) awaitAck(token paho.Token, topic string) {
	if !token.WaitTimeout(publishTimeout) {
		c.logger.Warn().Str("topic", topic).Msg("Publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		c.logger.Warn().Err(err).Str("topic", topic).Msg("Publish failed")
	}
}

// SubscribeCommands routes "<base>/+/+/set" messages to handler. The
// subscription is restored after every reconnect.
func (c *Client) SubscribeCommands(handler CommandHandler) error {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
	return c.subscribe(c.client, handler)
}

func (c *Client) subscribe(pc paho.Client, handler CommandHandler) error {
	filter := c.topic("+", "+", "set")
	token := pc.Subscribe(filter, qos, func(_ paho.Client, msg paho.Message) {
		deviceID, capability, ok := ParseSetTopic(c.base, msg.Topic())
		if !ok {
			return
		}
		handler(deviceID, capability, DecodePayload(msg.Payload()))
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timed out", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

// Close publishes "lost" for the bridge and disconnects.
func (c *Client) Close() {
	c.publish(c.client, c.topic("$state"), "lost")
	c.client.Disconnect(250)
}
