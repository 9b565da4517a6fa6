package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"workshop-recorder/internal/models"
	"workshop-recorder/internal/schema"
)

// ErrUnknownEvent is returned for messages that carry no known event type.
var ErrUnknownEvent = errors.New("unknown event type")

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// offsetSetter is implemented by partition readers without a consumer group.
type offsetSetter interface {
	SetOffsetAt(ctx context.Context, t time.Time) error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers []string
	Topics  []string
	GroupID string        // empty reads partition 0 directly
	Since   time.Duration // replay window for partition readers, 0 = latest
}

// Record is a decoded recorder event. Exactly one of Segment and Session is set.
type Record struct {
	Topic     string
	Key       string
	EventType string
	Segment   *models.SegmentEvent
	Session   *models.SessionEvent
}

// Consumer reads recorder events from one or more topics.
type Consumer struct {
	readers   map[string]messageReader
	since     time.Duration
	validator *schema.Validator
}

// NewConsumer creates one reader per topic.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	c := &Consumer{
		readers:   make(map[string]messageReader, len(cfg.Topics)),
		validator: schema.New(),
	}
	if cfg.GroupID == "" {
		c.since = cfg.Since
	}
	for _, topic := range cfg.Topics {
		rc := kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}
		if cfg.GroupID == "" {
			rc.StartOffset = kafka.LastOffset
		}
		c.readers[topic] = kafka.NewReader(rc)
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Strs("topics", cfg.Topics).
		Str("groupId", cfg.GroupID).
		Msg("Kafka consumer initialized")
	return c
}

// Run reads every topic until ctx is done, calling handle for each decoded
// event. Messages that fail to decode are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handle func(Record)) error {
	g, gctx := errgroup.WithContext(ctx)
	for topic, reader := range c.readers {
		g.Go(func() error {
			return c.consume(gctx, topic, reader, handle)
		})
	}
	return g.Wait()
}

func (c *Consumer) consume(ctx context.Context, topic string, reader messageReader, handle func(Record)) error {
	if s, ok := reader.(offsetSetter); ok && c.since > 0 {
		if err := s.SetOffsetAt(ctx, time.Now().Add(-c.since)); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Failed to rewind reader")
		}
	}

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("topic", topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		rec, err := c.Decode(msg)
		if err != nil {
			log.Warn().Err(err).Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("Skipping message")
			continue
		}
		handle(rec)
	}
}

// Decode parses and validates a message. The eventType header wins over the
// payload field.
func (c *Consumer) Decode(msg kafka.Message) (Record, error) {
	rec := Record{Topic: msg.Topic, Key: string(msg.Key)}
	for _, h := range msg.Headers {
		if h.Key == "eventType" {
			rec.EventType = string(h.Value)
		}
	}
	if rec.EventType == "" {
		var envelope struct {
			EventType string `json:"eventType"`
		}
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			return rec, fmt.Errorf("decode event: %w", err)
		}
		rec.EventType = envelope.EventType
	}

	var event any
	switch rec.EventType {
	case models.EventSegmentCompleted, models.EventSegmentFailed:
		rec.Segment = &models.SegmentEvent{}
		event = rec.Segment
	case models.EventSessionCompleted:
		rec.Session = &models.SessionEvent{}
		event = rec.Session
	default:
		return rec, fmt.Errorf("%w: %q", ErrUnknownEvent, rec.EventType)
	}

	if err := json.Unmarshal(msg.Value, event); err != nil {
		return rec, fmt.Errorf("decode %s: %w", rec.EventType, err)
	}
	if err := c.validator.Validate(event); err != nil {
		return rec, err
	}
	return rec, nil
}

// Close closes every reader.
func (c *Consumer) Close() error {
	var err error
	for topic, r := range c.readers {
		if e := r.Close(); e != nil {
			log.Error().Err(e).Str("topic", topic).Msg("Error closing reader")
			err = e
		}
	}
	return err
}
