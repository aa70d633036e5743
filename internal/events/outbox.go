// Package events relays transactional outbox rows to Kafka.
package events

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// EventOrderConfirmed is emitted once per confirmed order.
const EventOrderConfirmed = "order.confirmed"

// Writer is the subset of *kafka.Writer used by the poller.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter creates a writer for topic. Messages sharing a key land on the same partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// OutboxPoller periodically publishes unpublished outbox events.
type OutboxPoller struct {
	repo      repository.OutboxRepository
	writer    Writer
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger
}

// NewOutboxPoller creates a poller. m may be nil.
func NewOutboxPoller(repo repository.OutboxRepository, writer Writer, m *metrics.Metrics, interval time.Duration, batchSize int, logger zerolog.Logger) *OutboxPoller {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxPoller{
		repo:      repo,
		writer:    writer,
		metrics:   m,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "outbox-poller").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Int("batch_size", p.batchSize).Msg("outbox poller started")

	for {
		select {
		case <-ticker.C:
			if _, err := p.PublishPending(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error().Err(err).Msg("failed to publish outbox events")
			}
		case <-ctx.Done():
			p.logger.Info().Msg("outbox poller stopped")
			return
		}
	}
}

// PublishPending publishes one batch and returns how many events were marked published.
// Events are written before they are marked, so a crash in between re-delivers them.
func (p *OutboxPoller) PublishPending(ctx context.Context) (int, error) {
	events, err := p.repo.GetUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch outbox events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	ids := make([]int64, 0, len(events))
	for _, event := range events {
		msgs = append(msgs, toMessage(event))
		ids = append(ids, event.ID)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.record(events, metrics.OutcomeFailure)
		return 0, fmt.Errorf("failed to write outbox events: %w", err)
	}
	p.record(events, metrics.OutcomeSuccess)

	if err := p.repo.MarkPublished(ctx, ids); err != nil {
		return 0, fmt.Errorf("failed to mark outbox events published: %w", err)
	}

	p.logger.Debug().Int("count", len(events)).Msg("outbox events published")
	return len(events), nil
}

func (p *OutboxPoller) record(events []model.OutboxEvent, outcome string) {
	if p.metrics == nil {
		return
	}
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.EventType]++
	}
	for eventType, n := range counts {
		p.metrics.OutboxPublished(eventType, outcome, n)
	}
}

func toMessage(event model.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
}
