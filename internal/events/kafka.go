package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"agentauth/internal/platform/config"
	"agentauth/internal/platform/logger"
)

// KafkaPublisher produces events asynchronously to a single topic, keyed by
// tenant so a tenant's events stay ordered within a partition.
type KafkaPublisher struct {
	client    *kgo.Client
	topic     string
	logger    *slog.Logger
	published *prometheus.CounterVec
}

type KafkaOption func(*KafkaPublisher)

func WithKafkaLogger(l *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		p.logger = l
	}
}

// WithRegisterer registers publish counters on reg.
func WithRegisterer(reg prometheus.Registerer) KafkaOption {
	return func(p *KafkaPublisher) {
		p.published = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_events_published_total",
			Help: "Domain events handed to the broker by result",
		}, []string{"type", "result"})
	}
}

// NewKafkaPublisher connects to the configured brokers. When CreateTopic is
// set the topic is created if it does not exist yet.
func NewKafkaPublisher(ctx context.Context, cfg config.KafkaConfig, opts ...KafkaOption) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	p := &KafkaPublisher{
		client: client,
		topic:  cfg.Topic,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.CreateTopic {
		if err := ensureTopic(ctx, client, cfg.Topic); err != nil {
			client.Close()
			return nil, err
		}
	}
	return p, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Publish hands the event to the producer and returns immediately.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		p.count(event.Type, "encode_error")
		p.logger.ErrorContext(ctx, "event_encode_failed", "event_type", event.Type, "error", err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.TenantID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "ce_type", Value: []byte(event.Type)},
			{Key: "content-type", Value: []byte("application/cloudevents+json")},
		},
	}
	p.client.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.count(event.Type, "error")
			p.logger.WarnContext(ctx, "event_publish_failed",
				"event_type", event.Type,
				"event_id", event.ID,
				"error", err,
			)
			return
		}
		p.count(event.Type, "ok")
	})
}

// Close flushes buffered records and closes the client.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	defer p.client.Close()
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush events: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) count(t Type, result string) {
	if p.published == nil {
		return
	}
	p.published.WithLabelValues(string(t), result).Inc()
}
