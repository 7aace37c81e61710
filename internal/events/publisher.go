// Package events publishes conversation status events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/types"
)

// Recorder receives publish outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordKafkaPublish(topic string, err error, latencySeconds float64)
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers   []string
	Topic     string
	Principal string
	Enabled   bool
}

// Publisher writes status events keyed by conversation id, so every event of
// one conversation lands on the same partition in order.
type Publisher struct {
	writer    MessageWriter
	topic     string
	principal string
	enabled   bool
	metrics   Recorder
	log       *logger.Logger
}

// New creates a publisher. With Kafka disabled or no brokers configured it
// runs in log-only mode.
func New(cfg Config, rec Recorder, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	p := &Publisher{
		topic:     cfg.Topic,
		principal: cfg.Principal,
		metrics:   rec,
		log:       log.Component("events"),
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		p.log.Info("Kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	p.enabled = true

	p.log.WithFields(map[string]any{
		"brokers":   cfg.Brokers,
		"topic":     cfg.Topic,
		"principal": cfg.Principal,
	}).Info("Kafka publisher initialized")
	return p
}

// NewWithWriter builds an enabled publisher around an existing writer.
func NewWithWriter(w MessageWriter, topic, principal string, rec Recorder, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		writer:    w,
		topic:     topic,
		principal: principal,
		enabled:   true,
		metrics:   rec,
		log:       log.Component("events"),
	}
}

// Enabled reports whether events are written to Kafka.
func (p *Publisher) Enabled() bool { return p.enabled }

// Publish writes ev to the status topic.
func (p *Publisher) Publish(ctx context.Context, ev types.StatusEvent) error {
	start := time.Now()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	p.log.WithConversation(ev.ConversationID).WithFields(map[string]any{
		"topic":  p.topic,
		"status": ev.Status,
		"inner":  ev.InnerStatus,
	}).Debug("publishing status event")

	if !p.enabled || p.writer == nil {
		p.record(nil, start)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("conversation.status")},
			{Key: "status", Value: []byte(ev.Status)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.record(err, start)
		return fmt.Errorf("write status event to %s: %w", p.topic, err)
	}
	p.record(nil, start)
	return nil
}

func (p *Publisher) record(err error, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(p.topic, err, time.Since(start).Seconds())
	}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
