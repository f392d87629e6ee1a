package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/lifeline/internal/config"
	"github.com/nugget/lifeline/internal/events"
)

const (
	// busBuffer is the forwarder's subscription buffer on the event bus.
	busBuffer = 256
	// eventsPerSecond caps the forwarded event rate.
	eventsPerSecond = 50
)

// publisher is the subset of [autopaho.ConnectionManager] the forwarder
// uses, so tests can capture publishes without a broker.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Forwarder relays bus events to an MQTT broker.
type Forwarder struct {
	cfg        config.MQTTConfig
	instanceID string
	bus        *events.Bus
	logger     *slog.Logger
	limiter    *rateLimiter

	cm  *autopaho.ConnectionManager
	pub publisher
}

// New creates a Forwarder but does not connect. Call [Forwarder.Start]
// to connect and begin forwarding.
func New(cfg config.MQTTConfig, instanceID string, bus *events.Bus, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		cfg:        cfg,
		instanceID: instanceID,
		bus:        bus,
		logger:     logger,
		limiter:    newRateLimiter(eventsPerSecond, time.Second, logger),
	}
}

// Start connects to the broker and forwards bus events until ctx is
// cancelled.
func (f *Forwarder) Start(ctx context.Context) error {
	if f.bus == nil {
		return errors.New("mqtt forwarder needs an event bus")
	}
	brokerURL, err := url.Parse(f.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := f.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: f.cfg.Username,
		ConnectPassword: []byte(f.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			f.logger.Info("mqtt connected to broker", "broker", f.cfg.Broker)
			f.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			f.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "lifeline-" + f.cfg.ClientName,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	f.cm = cm
	f.pub = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background; events published
		// before the connection is up are dropped.
		f.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	ch := f.bus.Subscribe(busBuffer)
	defer f.bus.Unsubscribe(ch)

	go f.limiter.start(ctx)
	f.run(ctx, ch)
	return nil
}

// Stop publishes an "offline" availability message and disconnects.
// The provided context bounds the publish and disconnect.
func (f *Forwarder) Stop(ctx context.Context) error {
	if f.cm == nil {
		return nil
	}
	f.publishAvailability(ctx, f.cm, "offline")
	return f.cm.Disconnect(ctx)
}

func (f *Forwarder) run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			f.forward(ctx, ev)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, ev events.Event) {
	if f.pub == nil {
		return
	}
	if !f.limiter.allow() {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		f.logger.Error("mqtt marshal event", "source", ev.Source, "kind", ev.Kind, "error", err)
		return
	}

	topic := f.eventTopic(ev)
	if _, err := f.pub.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     0,
	}); err != nil {
		f.logger.Debug("mqtt event publish failed", "topic", topic, "error", err)
	}
}

func (f *Forwarder) publishAvailability(ctx context.Context, pub publisher, status string) {
	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   f.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		f.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		f.logger.Info("mqtt availability published", "status", status)
	}
}

// --- Topic helpers ---

func (f *Forwarder) baseTopic() string {
	return f.cfg.TopicPrefix + "/" + f.instanceID
}

func (f *Forwarder) availabilityTopic() string {
	return f.baseTopic() + "/availability"
}

func (f *Forwarder) eventTopic(ev events.Event) string {
	return f.baseTopic() + "/" + ev.Source + "/" + ev.Kind
}
