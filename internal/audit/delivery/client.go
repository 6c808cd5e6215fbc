// Package delivery owns the event hub producer. The audit store itself lives
// behind the bus; this package only gets events onto the configured topic.
package delivery

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"

	"ms-security/internal/audit"
)

// saslUser is the fixed SASL/PLAIN username for connection-string
// authentication against Azure Event Hubs' Kafka surface.
const saslUser = "$ConnectionString"

const (
	dialTimeout    = 10 * time.Second
	requestTimeout = 30 * time.Second
	sendTimeout    = 30 * time.Second
	recordRetries  = 8
)

// Config is the connection surface of the delivery client. Without a
// ConnectionString the client stays disabled: auditing is best-effort
// infrastructure and must never keep the host from starting.
type Config struct {
	Brokers          []string
	ClientID         string
	ConnectionString string
	Topic            string

	// Insecure skips TLS and SASL for brokers that speak plaintext.
	// Integration tests and local development only.
	Insecure bool
}

// Enabled reports whether the configuration is complete enough to deliver.
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != "" && (c.ConnectionString != "" || c.Insecure)
}

// Client publishes audit events to the event hub topic. One instance is
// shared process-wide; Initialize and Disconnect are idempotent.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	kafka       *kgo.Client
	initialized bool
}

// NewClient builds an unconnected client. Call Initialize before Send.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

// Initialize sets up the producer. With incomplete configuration it returns
// nil and leaves the client disabled. The producer is idempotent with at most
// one produce request in flight per broker, so events for the same key keep
// their order.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if !c.cfg.Enabled() {
		c.logger.Info("audit delivery disabled, no event hub configuration")
		return nil
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(c.cfg.Brokers...),
		kgo.ClientID(c.cfg.ClientID),
		kgo.DefaultProduceTopic(c.cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.MaxProduceRequestsInflightPerBroker(1),
		kgo.RecordRetries(recordRetries),
		kgo.ProduceRequestTimeout(requestTimeout),
		kgo.DialTimeout(dialTimeout),
	}
	if !c.cfg.Insecure {
		opts = append(opts,
			kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}),
			kgo.SASL(plain.Auth{User: saslUser, Pass: c.cfg.ConnectionString}.AsMechanism()),
		)
	}

	kafka, err := kgo.NewClient(opts...)
	if err != nil {
		return err
	}

	// The client dials lazily; ping to surface connectivity problems early,
	// but keep the producer either way and let it reconnect on its own.
	if err := kafka.Ping(ctx); err != nil {
		c.logger.Warn("event hub not reachable yet", "error", err)
	}

	c.kafka = kafka
	c.initialized = true
	c.logger.Info("audit delivery initialized", "topic", c.cfg.Topic, "brokers", len(c.cfg.Brokers))
	return nil
}

// Send publishes one event, keyed by event ID for stable partitioning.
// It reports false on any failure, including the disabled state, so the
// caller can decide whether to queue a retry.
func (c *Client) Send(ctx context.Context, event audit.Event) bool {
	c.mu.Lock()
	kafka := c.kafka
	c.mu.Unlock()
	if kafka == nil {
		return false
	}

	value, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("audit event not serializable", "event_id", event.EventID, "error", err)
		return false
	}

	record := &kgo.Record{
		Topic: c.cfg.Topic,
		Key:   []byte(event.EventID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "service", Value: []byte(event.Source)},
			{Key: "eventType", Value: []byte(event.EventType)},
			{Key: "userId", Value: []byte(event.UserID)},
			{Key: "severityLevel", Value: []byte(event.SeverityLevel)},
		},
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := kafka.ProduceSync(sendCtx, record).FirstErr(); err != nil {
		c.logger.Warn("audit event delivery failed", "event_id", event.EventID, "error", err)
		return false
	}
	return true
}

// Initialized reports whether the producer is up. False both before
// Initialize and in the disabled state.
func (c *Client) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Disconnect flushes buffered records best-effort and closes the producer.
// Safe to call multiple times and on a disabled client.
func (c *Client) Disconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kafka == nil {
		return
	}
	if err := c.kafka.Flush(ctx); err != nil {
		c.logger.Warn("audit delivery flush incomplete", "error", err)
	}
	c.kafka.Close()
	c.kafka = nil
	c.initialized = false
}
