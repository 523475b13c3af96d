// Package producer publishes lifecycle records to Kafka with franz-go.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

var ErrClosed = errors.New("kafka producer is closed")

const (
	defaultClientID        = "zkcred"
	defaultDeliveryTimeout = 10 * time.Second
	flushTimeout           = 30 * time.Second
)

// Message is one record to publish.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Config holds producer configuration.
type Config struct {
	// Brokers is a comma-separated seed list.
	Brokers  string
	ClientID string
	// Acks is "0", "1" or "all". Default "all": lifecycle events must not be
	// lost to a leader failover.
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// Producer publishes records synchronously so a failed event surfaces to the
// audit publisher that logs it.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
	closed atomic.Bool
}

// New creates a producer. It does not contact the brokers; use Healthy for that.
func New(cfg Config, logger *slog.Logger) (*Producer, error) {
	brokers := seedBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientID
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(acks(cfg.Acks)),
		kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.AllowAutoTopicCreation(),
	}
	if cfg.Retries > 0 {
		opts = append(opts, kgo.RecordRetries(cfg.Retries))
	}
	if cfg.Acks == "0" || cfg.Acks == "1" {
		// Idempotent writes require all-ISR acks.
		opts = append(opts, kgo.DisableIdempotentWrite())
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{client: client, logger: logger}, nil
}

// Produce publishes msg and waits for the broker acknowledgement.
func (p *Producer) Produce(ctx context.Context, msg *Message) error {
	if p.closed.Load() {
		return ErrClosed
	}
	record := &kgo.Record{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers(msg.Headers),
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", msg.Topic, err)
	}
	return nil
}

// Healthy reports whether the brokers answer a ping.
func (p *Producer) Healthy(ctx context.Context) bool {
	if p.closed.Load() {
		return false
	}
	return p.client.Ping(ctx) == nil
}

// Close flushes buffered records and closes the client. Calling it twice is a no-op.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("kafka producer closed with unflushed records", "error", err)
	}
	p.client.Close()
	return nil
}

func seedBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func acks(setting string) kgo.Acks {
	switch setting {
	case "0":
		return kgo.NoAck()
	case "1":
		return kgo.LeaderAck()
	default:
		return kgo.AllISRAcks()
	}
}

// headers converts h in key order so records are reproducible.
func headers(h map[string]string) []kgo.RecordHeader {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]kgo.RecordHeader, 0, len(keys))
	for _, k := range keys {
		out = append(out, kgo.RecordHeader{Key: k, Value: []byte(h[k])})
	}
	return out
}
