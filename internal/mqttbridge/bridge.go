// Package mqttbridge feeds device telemetry published over MQTT into the
// ingestion service.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/vesaa/iotlinker/internal/models"
)

// Ingester is the ingestion entry point shared with the HTTP API.
type Ingester interface {
	Ingest(ctx context.Context, deviceID string, batch models.DeviceDataBatch, remoteIP string) (*models.IngestResult, error)
}

// Options describe the broker connection and the subscription.
// Topic must contain exactly one "+" wildcard, which matches the device id.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Timeout  time.Duration
}

// Bridge subscribes to the telemetry topic and ingests every message.
type Bridge struct {
	opts     Options
	ingester Ingester
	log      *zap.Logger
	client   mqtt.Client
}

func New(opts Options, ing Ingester, log *zap.Logger) (*Bridge, error) {
	if strings.Count(opts.Topic, "+") != 1 || strings.Contains(opts.Topic, "#") {
		return nil, fmt.Errorf("mqtt topic %q must contain exactly one '+' for the device id and no '#'", opts.Topic)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Bridge{opts: opts, ingester: ing, log: log}, nil
}

// Start connects to the broker. The subscription is renewed on every
// (re)connect.
func (b *Bridge) Start() error {
	co := mqtt.NewClientOptions()
	co.AddBroker(b.opts.Broker)
	co.SetClientID(b.opts.ClientID)
	if b.opts.Username != "" {
		co.SetUsername(b.opts.Username)
	}
	if b.opts.Password != "" {
		co.SetPassword(b.opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetCleanSession(true)
	co.SetOnConnectHandler(func(c mqtt.Client) {
		if err := b.subscribe(c); err != nil {
			b.log.Error("mqtt subscribe failed", zap.String("topic", b.opts.Topic), zap.Error(err))
			return
		}
		b.log.Info("mqtt subscribed", zap.String("topic", b.opts.Topic), zap.Uint8("qos", b.opts.QoS))
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.Warn("mqtt connection lost", zap.Error(err))
	})

	b.client = mqtt.NewClient(co)
	tok := b.client.Connect()
	if !tok.WaitTimeout(b.opts.Timeout) {
		return fmt.Errorf("connecting to mqtt broker %s: timed out", b.opts.Broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("connecting to mqtt broker %s: %w", b.opts.Broker, err)
	}
	return nil
}

// Stop disconnects, giving in-flight work 250ms.
func (b *Bridge) Stop() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

func (b *Bridge) subscribe(c mqtt.Client) error {
	tok := c.Subscribe(b.opts.Topic, b.opts.QoS, b.onMessage)
	if !tok.WaitTimeout(b.opts.Timeout) {
		return fmt.Errorf("subscribing to %s: timed out after %s", b.opts.Topic, b.opts.Timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.opts.Topic, err)
	}
	return nil
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.Timeout)
	defer cancel()
	if err := b.handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		b.log.Warn("mqtt message rejected", zap.String("topic", msg.Topic()), zap.Error(err))
	}
}

func (b *Bridge) handle(ctx context.Context, topic string, payload []byte) error {
	deviceID, ok := DeviceIDFromTopic(b.opts.Topic, topic)
	if !ok {
		return errors.New("topic does not match subscription")
	}
	var batch models.DeviceDataBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	res, err := b.ingester.Ingest(ctx, deviceID, batch, "")
	if err != nil {
		return err
	}
	b.log.Debug("mqtt batch ingested", zap.String("device_id", res.DeviceID), zap.Int("accepted", res.Accepted))
	return nil
}

// DeviceIDFromTopic returns the segment of topic matched by the "+" in pattern.
func DeviceIDFromTopic(pattern, topic string) (string, bool) {
	ps := strings.Split(pattern, "/")
	ts := strings.Split(topic, "/")
	if len(ps) != len(ts) {
		return "", false
	}
	id := ""
	for i := range ps {
		switch ps[i] {
		case "+":
			id = ts[i]
		default:
			if ps[i] != ts[i] {
				return "", false
			}
		}
	}
	return id, id != ""
}
