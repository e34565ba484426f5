package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesceMs   = 250
)

// MQTTPublisher is the subset of mqtt.Client used by MQTTSink.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// NewMQTTClient connects to the broker with auto-reconnect enabled.
func NewMQTTClient(options MQTTOptions) (mqtt.Client, error) {
	clientOptions := mqtt.NewClientOptions()
	clientOptions.AddBroker(options.Broker)
	clientOptions.SetClientID(options.ClientID)
	if options.Username != "" {
		clientOptions.SetUsername(options.Username)
	}
	if options.Password != "" {
		clientOptions.SetPassword(options.Password)
	}
	clientOptions.SetAutoReconnect(true)
	clientOptions.SetCleanSession(true)

	client := mqtt.NewClient(clientOptions)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", options.Broker, token.Error())
	}
	return client, nil
}

// MQTTSink publishes events under topicPrefix/<channel path>, where the dots
// of a channel name become topic levels.
type MQTTSink struct {
	client      MQTTPublisher
	topicPrefix string
	qos         byte
	timeout     time.Duration
}

// NewMQTTSink wraps a connected client.
func NewMQTTSink(client MQTTPublisher, topicPrefix string, qos byte) *MQTTSink {
	return &MQTTSink{
		client:      client,
		topicPrefix: strings.TrimSuffix(topicPrefix, "/"),
		qos:         qos,
		timeout:     defaultPublishTimeout,
	}
}

// Topic returns the MQTT topic for a channel.
func (sink *MQTTSink) Topic(channel string) string {
	path := strings.ReplaceAll(channel, ".", "/")
	if sink.topicPrefix == "" {
		return path
	}
	return sink.topicPrefix + "/" + path
}

func (sink *MQTTSink) Deliver(ctx context.Context, channel string, event booking.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return booking.WrapError("broadcast", "mqtt", "encode", err)
	}
	timeout := sink.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	token := sink.client.Publish(sink.Topic(channel), sink.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return booking.WrapError("broadcast", "mqtt", "timeout", fmt.Errorf("publish to %s timed out after %s", sink.Topic(channel), timeout))
	}
	if err := token.Error(); err != nil {
		return booking.WrapError("broadcast", "mqtt", "publish", err)
	}
	return nil
}

func (sink *MQTTSink) Close() error {
	sink.client.Disconnect(disconnectQuiesceMs)
	return nil
}
