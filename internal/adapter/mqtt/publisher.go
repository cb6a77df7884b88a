// Package mqtt publishes live-update events to the broker subscribers
// watch, with automatic reconnection and message buffering.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/bench-engine/internal/domain"
	"github.com/nexus-edge/bench-engine/internal/metrics"
)

// Publisher pushes engine events to the MQTT broker. It implements
// domain.EventPublisher.
type Publisher struct {
	config        Config
	client        pahomqtt.Client
	logger        zerolog.Logger
	metrics       *metrics.Registry
	mu            sync.RWMutex
	connected     atomic.Bool
	messageBuffer chan *bufferedMessage
	done          chan struct{}
	wg            sync.WaitGroup
	stats         *Stats
}

// Config holds MQTT publisher configuration.
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	BufferSize     int
	PublishTimeout time.Duration

	// TopicPrefix roots the event topics: <prefix>/data, <prefix>/devices,
	// <prefix>/alarms.
	TopicPrefix string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "bench-engine",
		QoS:            1,
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReconnectDelay: 5 * time.Second,
		BufferSize:     10000,
		PublishTimeout: 5 * time.Second,
		TopicPrefix:    "bench/live",
	}
}

// Stats tracks publisher performance counters.
type Stats struct {
	MessagesPublished atomic.Uint64
	MessagesFailed    atomic.Uint64
	MessagesBuffered  atomic.Uint64
	ReconnectCount    atomic.Uint64
}

type bufferedMessage struct {
	topic   string
	payload []byte
}

// NewPublisher creates a new MQTT publisher.
func NewPublisher(config Config, logger zerolog.Logger, metricsReg *metrics.Registry) *Publisher {
	if config.BufferSize == 0 {
		config.BufferSize = 10000
	}
	if config.PublishTimeout == 0 {
		config.PublishTimeout = 5 * time.Second
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	if config.TopicPrefix == "" {
		config.TopicPrefix = "bench/live"
	}

	return &Publisher{
		config:        config,
		logger:        logger.With().Str("component", "mqtt-publisher").Logger(),
		metrics:       metricsReg,
		messageBuffer: make(chan *bufferedMessage, config.BufferSize),
		done:          make(chan struct{}),
		stats:         &Stats{},
	}
}

// Connect establishes the connection to the MQTT broker and starts the
// buffer processor.
func (p *Publisher) Connect(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.config.BrokerURL)
	opts.SetClientID(p.config.ClientID)
	opts.SetKeepAlive(p.config.KeepAlive)
	opts.SetConnectTimeout(p.config.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(p.config.ReconnectDelay)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		p.connected.Store(true)
		p.logger.Info().Msg("MQTT connection established")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.connected.Store(false)
		p.logger.Warn().Err(err).Msg("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		p.stats.ReconnectCount.Add(1)
		p.logger.Info().Msg("Attempting to reconnect to MQTT broker")
	})

	p.mu.Lock()
	p.client = pahomqtt.NewClient(opts)
	client := p.client
	p.mu.Unlock()

	p.logger.Info().Str("broker", p.config.BrokerURL).Msg("Connecting to MQTT broker")

	token := client.Connect()
	connectDone := make(chan bool, 1)
	go func() {
		connectDone <- token.WaitTimeout(p.config.ConnectTimeout)
	}()

	select {
	case success := <-connectDone:
		if !success {
			return fmt.Errorf("%w: connection timeout", domain.ErrMQTTConnectionFailed)
		}
		if token.Error() != nil {
			return fmt.Errorf("%w: %v", domain.ErrMQTTConnectionFailed, token.Error())
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrMQTTConnectionFailed, ctx.Err())
	}

	p.connected.Store(true)

	p.wg.Add(1)
	go p.processBuffer()

	return nil
}

// Disconnect drains the buffer and closes the broker connection.
func (p *Publisher) Disconnect() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(1000)
	}
	p.connected.Store(false)
	p.logger.Info().Msg("Disconnected from MQTT broker")
}

// PublishLiveData publishes a processed reading.
func (p *Publisher) PublishLiveData(ev domain.LiveDataEvent) error {
	ev.Type = domain.EventTypeLiveData
	return p.publishJSON(p.config.TopicPrefix+"/data", ev)
}

// PublishDeviceStatus publishes an online/offline transition.
func (p *Publisher) PublishDeviceStatus(ev domain.DeviceStatusEvent) error {
	ev.Type = domain.EventTypeDeviceStatus
	return p.publishJSON(p.config.TopicPrefix+"/devices", ev)
}

// PublishAlarm publishes an alarm episode update.
func (p *Publisher) PublishAlarm(ev domain.AlarmUpdateEvent) error {
	ev.Type = domain.EventTypeAlarmUpdate
	return p.publishJSON(p.config.TopicPrefix+"/alarms", ev)
}

func (p *Publisher) publishJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	if !p.connected.Load() {
		return p.buffer(topic, payload)
	}
	return p.publishRaw(topic, payload)
}

func (p *Publisher) publishRaw(topic string, payload []byte) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	if client == nil {
		return domain.ErrMQTTNotConnected
	}

	token := client.Publish(topic, p.config.QoS, false, payload)
	if !token.WaitTimeout(p.config.PublishTimeout) {
		p.stats.MessagesFailed.Add(1)
		p.recordPublish(false)
		return fmt.Errorf("%w: publish timeout", domain.ErrMQTTPublishFailed)
	}
	if token.Error() != nil {
		p.stats.MessagesFailed.Add(1)
		p.recordPublish(false)
		return fmt.Errorf("%w: %v", domain.ErrMQTTPublishFailed, token.Error())
	}

	p.stats.MessagesPublished.Add(1)
	p.recordPublish(true)
	return nil
}

// buffer queues a message for delivery once the connection returns. A full
// buffer drops the oldest message rather than blocking the poll cycle.
func (p *Publisher) buffer(topic string, payload []byte) error {
	msg := &bufferedMessage{topic: topic, payload: payload}
	select {
	case p.messageBuffer <- msg:
		p.stats.MessagesBuffered.Add(1)
		return nil
	default:
		select {
		case <-p.messageBuffer:
			p.messageBuffer <- msg
			p.logger.Warn().Msg("Buffer full, dropped oldest message")
			return nil
		default:
			return fmt.Errorf("message buffer full")
		}
	}
}

func (p *Publisher) processBuffer() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			p.drainBuffer()
			return
		case msg := <-p.messageBuffer:
			if p.connected.Load() {
				if err := p.publishRaw(msg.topic, msg.payload); err != nil {
					p.logger.Warn().Err(err).Str("topic", msg.topic).Msg("Failed to publish buffered message")
				}
			} else {
				select {
				case p.messageBuffer <- msg:
				default:
				}
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

func (p *Publisher) drainBuffer() {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-p.messageBuffer:
			if p.connected.Load() {
				if err := p.publishRaw(msg.topic, msg.payload); err != nil {
					p.logger.Warn().Err(err).Str("topic", msg.topic).Msg("Failed to drain buffered message")
				}
			}
		case <-timeout:
			if remaining := len(p.messageBuffer); remaining > 0 {
				p.logger.Warn().Int("count", remaining).Msg("Timeout draining buffer, messages dropped")
			}
			return
		default:
			return
		}
	}
}

func (p *Publisher) recordPublish(success bool) {
	if p.metrics != nil {
		p.metrics.RecordEventPublish(success)
	}
}

// IsConnected returns true if the publisher is connected to the broker.
func (p *Publisher) IsConnected() bool {
	return p.connected.Load()
}

// HealthCheck implements the health.Checker interface.
func (p *Publisher) HealthCheck(ctx context.Context) error {
	if !p.connected.Load() {
		return domain.ErrMQTTNotConnected
	}
	return nil
}

// BufferSize returns the current number of buffered messages.
func (p *Publisher) BufferSize() int {
	return len(p.messageBuffer)
}
