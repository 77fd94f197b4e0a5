// Package publish forwards published readings to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/insole/pkg/config"
	"github.com/itohio/insole/pkg/sensor"
	"github.com/itohio/insole/pkg/snapshot"
)

const (
	queueSize      = 64
	connectTimeout = 10 * time.Second
	publishTimeout = 2 * time.Second
	quiesceMillis  = 250
)

// Client is the part of mqtt.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Message is the JSON payload sent for every reading.
type Message struct {
	Timestamp time.Time      `json:"timestamp"`
	Pressures sensor.Reading `json:"pressures"`
}

// Encode renders a snapshot as a Message.
func Encode(s snapshot.Snapshot) ([]byte, error) {
	return json.Marshal(Message{Timestamp: s.Timestamp, Pressures: s.Values})
}

// Publisher queues snapshots from the ingestion loop and publishes them from
// its own goroutine, so a slow broker never stalls ingestion.
type Publisher struct {
	client   Client
	topic    string
	qos      byte
	retained bool
	queue    chan snapshot.Snapshot
	logger   *log.Logger
}

// Connect dials the broker from cfg and returns a publisher bound to it.
func Connect(cfg config.MQTTConfig, logger *log.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)

	if logger == nil {
		logger = log.Default()
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("connection lost", "broker", cfg.Broker, "err", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("connected", "broker", cfg.Broker)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	p := New(client, cfg.Topic, cfg.QoS, logger)
	p.retained = cfg.Retained
	return p, nil
}

// New creates a publisher over an already connected client.
func New(client Client, topic string, qos byte, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{
		client: client,
		topic:  topic,
		qos:    qos,
		queue:  make(chan snapshot.Snapshot, queueSize),
		logger: logger,
	}
}

// Enqueue hands a snapshot to the publisher. It never blocks; when the queue
// is full the snapshot is dropped.
func (p *Publisher) Enqueue(s snapshot.Snapshot) {
	select {
	case p.queue <- s:
	default:
		p.logger.Debug("queue full, dropping reading")
	}
}

// Run publishes queued snapshots until ctx is cancelled, then disconnects.
func (p *Publisher) Run(ctx context.Context) {
	defer p.client.Disconnect(quiesceMillis)

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-p.queue:
			p.publish(s)
		}
	}
}

func (p *Publisher) publish(s snapshot.Snapshot) {
	payload, err := Encode(s)
	if err != nil {
		p.logger.Warn("failed to encode reading", "err", err)
		return
	}

	token := p.client.Publish(p.topic, p.qos, p.retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.logger.Warn("publish timed out", "topic", p.topic)
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("publish failed", "topic", p.topic, "err", err)
	}
}
