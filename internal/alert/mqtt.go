package alert

import (
	"context"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/skywatch/skywatch-go/internal/conf"
	"github.com/skywatch/skywatch-go/internal/datastore"
)

// MQTTChannel publishes detections as JSON to a broker topic, for home
// automation integrations. The connection is established lazily on first
// send and reconnects automatically afterwards.
type MQTTChannel struct {
	channelBase
	broker   string
	topic    string
	username string
	password string

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTTChannel creates the channel from settings.
func NewMQTTChannel(settings *conf.AlertsSettings) *MQTTChannel {
	return &MQTTChannel{
		channelBase: newChannelBase("mqtt", settings.MQTT.ChannelSettings),
		broker:      settings.MQTT.Broker,
		topic:       settings.MQTT.Topic,
		username:    settings.MQTT.Username,
		password:    settings.MQTT.Password,
	}
}

// connect establishes the broker connection if needed.
func (c *MQTTChannel) connect(ctx context.Context) (mqtt.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnectionOpen() {
		return c.client, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.broker)
	opts.SetClientID("skywatch-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.timeout)
	if c.username != "" {
		opts.SetUsername(c.username)
		opts.SetPassword(c.password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", c.broker, err)
	}

	c.client = client
	return client, nil
}

// Send publishes one detection to the configured topic.
func (c *MQTTChannel) Send(ctx context.Context, d *datastore.Detection) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}

	body, err := buildPayload(d)
	if err != nil {
		return fmt.Errorf("encoding MQTT payload: %w", err)
	}

	token := client.Publish(c.topic, 0, false, body)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", c.topic, err)
	}
	return nil
}
