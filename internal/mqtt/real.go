package mqtt

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Prefix   string
	Buffer   int // offline messages kept for replay
	Logger   *slog.Logger

	// OnConnectionChange is called from paho's goroutines whenever the
	// connection comes up or drops.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages produced while
// the broker is unreachable are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	log    *slog.Logger
	notify func(bool)

	mu      sync.Mutex
	offline *ringBuffer
}

// NewRealPublisher creates a publisher connected to the given broker.
// The first connection attempt waits at most ten seconds. On timeout the
// publisher is returned alongside the error and paho keeps retrying.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.ClientID == "" {
		o.ClientID = DefaultPrefix
	}
	p := &RealPublisher{
		topics:  NewTopics(o.Prefix),
		log:     o.Logger.With("component", "mqtt"),
		notify:  o.OnConnectionChange,
		offline: newRingBuffer(o.Buffer),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return p, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.log.Info("connected to broker")
	if p.notify != nil {
		p.notify(true)
	}
	p.mu.Lock()
	msgs, dropped := p.offline.drainAll()
	p.mu.Unlock()
	if dropped > 0 {
		p.log.Warn("offline buffer overflowed", "dropped", dropped)
	}
	if len(msgs) == 0 {
		return
	}
	p.log.Info("replaying buffered messages", "count", len(msgs))
	// Handlers must not block on tokens.
	go func() {
		for _, m := range msgs {
			c.Publish(m.topic, m.qos, m.retained, m.payload)
		}
	}()
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.log.Warn("connection to broker lost", "error", err)
	if p.notify != nil {
		p.notify(false)
	}
}

// IsConnected reports whether the client currently has a live connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// send publishes msg, or buffers it when offline. When wait is set it
// blocks up to five seconds for the broker to acknowledge.
func (p *RealPublisher) send(msg bufferedMsg, wait bool) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		dropped := p.offline.push(msg)
		p.mu.Unlock()
		if dropped {
			p.log.Debug("offline buffer full, oldest message dropped", "topic", msg.topic)
		}
		return nil
	}
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !wait {
		return nil
	}
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// PublishState sends an activation label. QoS 0, fire and forget.
func (p *RealPublisher) PublishState(label string) error {
	payload, err := FormatState(label, time.Now())
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return p.send(bufferedMsg{topic: p.topics.State, payload: payload}, false)
}

// PublishTelemetry sends a readings record.
func (p *RealPublisher) PublishTelemetry(t Telemetry) error {
	payload, err := FormatTelemetry(t)
	if err != nil {
		return fmt.Errorf("format telemetry payload: %w", err)
	}
	return p.send(bufferedMsg{topic: p.topics.Telemetry, payload: payload}, true)
}

// PublishSystem sends a system lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events should be delivered
	return p.send(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained}, true)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
