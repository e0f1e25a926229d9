package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/roman-kulish/drone-mission/internal/mission"
)

const (
	qos    = 1
	retain = false

	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesce     = 1000 // milliseconds
)

var ErrNotConnected = errors.New("mqtt not connected")

// Config holds the MQTT broker connection settings
type Config struct {
	Broker   string
	Port     int
	ClientID string
	Username string
	Password string
}

// Connect establishes the broker connection. The client reconnects on its own
// after the initial connection succeeds.
func Connect(cfg Config) (mqtt.Client, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return client, nil
}

// message is the wire form of a mission.Event
type message struct {
	MessageID string `json:"messageId"`
	mission.Event
}

func WithLogger(logger *slog.Logger) func(*Publisher) {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithPublishTimeout bounds how long Notify waits for the broker acknowledgement
func WithPublishTimeout(d time.Duration) func(*Publisher) {
	return func(p *Publisher) {
		p.timeout = d
	}
}

// Publisher publishes mission events as JSON to <topic>/<missionId>
type Publisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ mission.Notifier = (*Publisher)(nil)

func NewPublisher(client mqtt.Client, topic string, options ...func(*Publisher)) *Publisher {
	p := Publisher{
		client:  client,
		topic:   strings.TrimSuffix(topic, "/"),
		timeout: defaultPublishTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Topic returns the topic events of the mission are published to
func (p *Publisher) Topic(missionID string) string {
	return p.topic + "/" + missionID
}

func (p *Publisher) Notify(ctx context.Context, e mission.Event) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(message{
		MessageID: uuid.NewString(),
		Event:     e,
	})
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	topic := p.Topic(e.MissionID)
	token := p.client.Publish(topic, qos, retain, payload)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("publishing to %s: timed out after %s", topic, p.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err = token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	p.logger.Debug("event published",
		slog.String("topic", topic),
		slog.String("state", e.State.String()),
	)
	return nil
}

// Close disconnects from the broker, waiting for in-flight messages
func (p *Publisher) Close() error {
	p.client.Disconnect(disconnectQuiesce)
	return nil
}
