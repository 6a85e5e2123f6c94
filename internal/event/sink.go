package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/kafka"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/logger"
)

// TopicCartAnalytics is where analytics events are published.
var TopicCartAnalytics = pkgkafka.Topic("cart", "analytics")

// SourceCartEngine identifies events originating from the cart engine.
const SourceCartEngine = "cart-engine"

// Sink receives analytics events. Implementations may block; the engine
// calls them off the mutation path.
type Sink interface {
	Track(ctx context.Context, sessionID string, ev Analytics) error
}

// Publisher is the subset of *pkgkafka.Producer the Kafka sink uses.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// KafkaSink publishes analytics events to Kafka.
type KafkaSink struct {
	publisher Publisher
	topic     string
	logger    *slog.Logger
}

// NewKafkaSink creates a Kafka-backed sink. An empty topic uses TopicCartAnalytics.
func NewKafkaSink(publisher Publisher, topic string, logger *slog.Logger) *KafkaSink {
	if topic == "" {
		topic = TopicCartAnalytics
	}
	return &KafkaSink{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// Track publishes ev keyed by session.
func (s *KafkaSink) Track(ctx context.Context, sessionID string, ev Analytics) error {
	msg, err := pkgkafka.NewEvent(string(ev.Event), sessionID, SourceCartEngine, ev)
	if err != nil {
		return fmt.Errorf("create %s event: %w", ev.Event, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		msg.WithCorrelationID(id)
	}

	if err := s.publisher.Publish(ctx, s.topic, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Event, err)
	}

	s.logger.DebugContext(ctx, "published analytics event",
		slog.String("event", string(ev.Event)),
		slog.String("session_id", sessionID),
	)
	return nil
}

// LogSink writes analytics events to the log at debug level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that only logs.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Track(ctx context.Context, sessionID string, ev Analytics) error {
	s.logger.DebugContext(ctx, "cart analytics",
		slog.String("event", string(ev.Event)),
		slog.String("session_id", sessionID),
		slog.String("product_id", ev.ProductID),
		slog.String("sku", ev.SKU),
		slog.Int("quantity", ev.Quantity),
		slog.Int64("price", ev.Price),
		slog.Int("item_count", ev.ItemCount),
		slog.Int64("subtotal", ev.Subtotal),
	)
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Track(context.Context, string, Analytics) error { return nil }

// Multi fans an event out to several sinks, returning the first error.
type Multi []Sink

func (m Multi) Track(ctx context.Context, sessionID string, ev Analytics) error {
	var first error
	for _, s := range m {
		if err := s.Track(ctx, sessionID, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
