// Package notify delivers detection events to external transports.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"catwatch/internal/config"
	"catwatch/internal/logger"
	"catwatch/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	queueSize      = 16
)

type outbound struct {
	topic   string
	payload string
}

// MQTTStats is a snapshot of publisher counters.
type MQTTStats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// MQTTPublisher sends events to the feed and status topics. Publish never
// blocks the caller: messages go through a bounded queue drained by a single
// worker, and are dropped when the queue is full. Delivery results are only
// logged.
type MQTTPublisher struct {
	cfg       config.MQTTConfig
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	logger    *logger.Logger

	queue    chan outbound
	stop     chan struct{}
	stopOnce sync.Once
	worker   sync.WaitGroup

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

func NewMQTTPublisher(cfg config.MQTTConfig, logger *logger.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		cfg:       cfg,
		newClient: mqtt.NewClient,
		logger:    logger,
		queue:     make(chan outbound, queueSize),
		stop:      make(chan struct{}),
		published: make(map[string]uint64),
	}
}

// Connect dials the broker. The client keeps retrying in the background, so a
// timeout here is not fatal: events are dropped until the connection is up.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWriteTimeout(publishTimeout)

	opts.OnConnect = p.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warning("MQTT connection lost, reconnecting: %v", err)
	}

	p.client = p.newClient(opts)
	p.worker.Add(1)
	go p.drain()
	p.logger.Info("Connecting to MQTT broker %s", p.cfg.Broker)

	token := p.client.Connect()
	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("mqtt connection timeout after %s", connectTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

func (p *MQTTPublisher) onConnect(c mqtt.Client) {
	p.setConnected(true)
	p.logger.Info("✅ MQTT connected to %s as %s", p.cfg.Broker, p.cfg.ClientID)

	if p.cfg.StatusTopic == "" {
		return
	}
	c.Subscribe(p.cfg.StatusTopic, p.cfg.QoS, func(_ mqtt.Client, m mqtt.Message) {
		p.logger.Info("📨 %s: %s", m.Topic(), string(m.Payload()))
	})
	p.enqueue(p.cfg.StatusTopic, strings.ToUpper(p.cfg.ClientID)+" ONLINE")
}

// Publish sends the event payload to the feed topic and a status line to the
// status topic.
func (p *MQTTPublisher) Publish(event models.Event) {
	if !p.isConnected() {
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()
		p.logger.Warning("MQTT not connected, dropping %s event", event.Label)
		return
	}

	p.enqueue(p.cfg.FeedTopic, event.Payload())
	if p.cfg.StatusTopic != "" {
		p.enqueue(p.cfg.StatusTopic, event.StatusMessage())
	}
}

func (p *MQTTPublisher) enqueue(topic, payload string) {
	select {
	case p.queue <- outbound{topic: topic, payload: payload}:
	default:
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()
		p.logger.Warning("MQTT queue full, dropping %q to %s", payload, topic)
	}
}

// drain delivers queued messages until stop is closed, then flushes whatever
// is still queued.
func (p *MQTTPublisher) drain() {
	defer p.worker.Done()
	for {
		select {
		case m := <-p.queue:
			p.deliver(m)
		case <-p.stop:
			for {
				select {
				case m := <-p.queue:
					p.deliver(m)
				default:
					return
				}
			}
		}
	}
}

func (p *MQTTPublisher) deliver(m outbound) {
	token := p.client.Publish(m.topic, p.cfg.QoS, false, m.payload)
	err := fmt.Errorf("publish timeout")
	if token.WaitTimeout(publishTimeout) {
		err = token.Error()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.errors++
		p.logger.Error("Failed to publish %q to %s: %v", m.payload, m.topic, err)
		return
	}
	p.published[m.topic]++
	p.logger.Info("📤 Published %q to %s", m.payload, m.topic)
}

// Disconnect waits briefly for queued publishes and closes the connection.
func (p *MQTTPublisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stop) })
	done := make(chan struct{})
	go func() {
		p.worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(publishTimeout):
	}

	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("MQTT disconnected")
	}
	p.setConnected(false)
}

func (p *MQTTPublisher) Stats() MQTTStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	published := make(map[string]uint64, len(p.published))
	for k, v := range p.published {
		published[k] = v
	}
	return MQTTStats{Connected: p.connected, Published: published, Errors: p.errors}
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *MQTTPublisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}
