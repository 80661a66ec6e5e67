package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	DefaultClientID        = "clublog-ha-bridge"
	DefaultPort            = 1883
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultEntityBase      = "clublog"
	DefaultKeepAlive       = 60 * time.Second
	DefaultConnectTimeout  = 10 * time.Second

	// closeTimeout bounds the final "offline" publish.
	closeTimeout = 2 * time.Second
	// disconnectQuiesce is milliseconds paho waits for in-flight work.
	disconnectQuiesce = 250
)

// Config describes the broker connection and topic layout.
type Config struct {
	Broker   string
	Port     int
	Username string
	Password string

	// ClientID defaults to DefaultClientID. With UniqueClientID a random
	// suffix is appended so several bridges can share a broker.
	ClientID       string
	UniqueClientID bool

	DiscoveryPrefix string
	EntityBase      string
	Device          Device

	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.UniqueClientID {
		c.ClientID += "-" + uuid.NewString()[:8]
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if c.EntityBase == "" {
		c.EntityBase = DefaultEntityBase
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}

// Transport delivers messages to the broker.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
	Close()
}

// Publisher turns sensors into retained discovery, state and attribute
// messages. It is safe for concurrent use if its Transport is.
type Publisher struct {
	transport Transport
	cfg       Config
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewPublisher creates a Publisher over an existing transport.
func NewPublisher(t Transport, cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		transport: t,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Connect dials the MQTT broker described by cfg and returns a Publisher
// backed by it.
//
// The connection announces "online" on the availability topic every time it
// (re)connects and leaves "offline" as its last will. Connect blocks until
// the first connection succeeds, fails, or ctx is done.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}

	addr := BrokerURL(cfg.Broker, cfg.Port)
	availability := AvailabilityTopic(cfg.EntityBase)

	opts := mqtt.NewClientOptions().
		AddBroker(addr).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetWill(availability, Offline, cfg.QoS, true).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("connected to MQTT broker", "broker", addr, "client_id", cfg.ClientID)
			c.Publish(availability, cfg.QoS, true, Online)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost, reconnecting", "broker", addr, "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", addr, err)
	}

	t := &pahoTransport{client: client, qos: cfg.QoS, availability: availability}
	return NewPublisher(t, cfg, logger), nil
}

// BrokerURL turns a host and port into a paho broker URL. A broker that
// already carries a scheme is returned unchanged.
func BrokerURL(broker string, port int) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	if port == 0 {
		port = DefaultPort
	}
	return "tcp://" + broker + ":" + strconv.Itoa(port)
}

// Publish sends the sensor's attributes (if any), discovery config and
// state, in that order, all retained. Publishing the same sensor twice
// produces identical messages.
func (p *Publisher) Publish(ctx context.Context, s Sensor) error {
	if s.ID == "" {
		return errors.New("sensor id is required")
	}
	base := p.cfg.EntityBase
	unique := UniqueID(base, s.ID)

	payload := configPayload{
		Name:              s.Name,
		StateTopic:        StateTopic(base, s.ID),
		UniqueID:          unique,
		ObjectID:          unique,
		Device:            p.cfg.Device,
		AvailabilityTopic: AvailabilityTopic(base),
		Unit:              s.Unit,
		Icon:              s.Icon,
		StateClass:        s.StateClass,
		DeviceClass:       s.DeviceClass,
		EntityCategory:    s.EntityCategory,
	}
	if s.Kind == KindBinarySensor {
		payload.PayloadOn = PayloadOn
		payload.PayloadOff = PayloadOff
	}

	if s.Attributes != nil {
		payload.AttributesTopic = AttributesTopic(base, s.ID)
		data, err := json.Marshal(s.Attributes)
		if err != nil {
			return fmt.Errorf("encoding attributes for %s: %w", s.ID, err)
		}
		if err := p.transport.Publish(ctx, payload.AttributesTopic, data, true); err != nil {
			return fmt.Errorf("publishing attributes for %s: %w", s.ID, err)
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding config for %s: %w", s.ID, err)
	}
	if err := p.transport.Publish(ctx, ConfigTopic(p.cfg.DiscoveryPrefix, s.Kind, base, s.ID), data, true); err != nil {
		return fmt.Errorf("publishing config for %s: %w", s.ID, err)
	}
	if err := p.transport.Publish(ctx, payload.StateTopic, []byte(s.State), true); err != nil {
		return fmt.Errorf("publishing state for %s: %w", s.ID, err)
	}

	p.logger.Debug("published sensor", "sensor", s.ID, "state", s.State)
	return nil
}

// PublishAll publishes every sensor, continuing past failures. The returned
// error joins all individual failures.
func (p *Publisher) PublishAll(ctx context.Context, sensors []Sensor) error {
	var errs []error
	for _, s := range sensors {
		if err := p.Publish(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close marks the bridge offline and disconnects. Safe to call more than once.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(p.transport.Close)
}

// pahoTransport adapts a paho client to Transport.
type pahoTransport struct {
	client       mqtt.Client
	qos          byte
	availability string
}

func (t *pahoTransport) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	return waitToken(ctx, t.client.Publish(topic, t.qos, retained, payload))
}

func (t *pahoTransport) Close() {
	if t.client.IsConnected() {
		t.client.Publish(t.availability, t.qos, true, Offline).WaitTimeout(closeTimeout)
	}
	t.client.Disconnect(disconnectQuiesce)
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
