package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/logger"
)

// --- Event tests ---

func TestNewEvent_Fields(t *testing.T) {
	type AddData struct {
		ProductID string `json:"productId"`
		Price     int64  `json:"price"`
	}

	data := AddData{ProductID: "boots-1", Price: 12999}
	event, err := NewEvent("add_to_cart", "sess-123", "cart-engine", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID, "EventID should be a non-empty UUID")
	assert.Equal(t, "add_to_cart", event.EventType)
	assert.Equal(t, "sess-123", event.SessionID)
	assert.Equal(t, "cart-engine", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)
	assert.NotNil(t, event.Metadata)

	var roundTripped AddData
	require.NoError(t, json.Unmarshal(event.Data, &roundTripped))
	assert.Equal(t, data, roundTripped)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("test.event", "sess-1", "svc", make(chan int))
	require.Error(t, err)
}

func TestEvent_Marshal_Unmarshal(t *testing.T) {
	original, err := NewEvent("begin_checkout", "sess-456", "cart-engine", map[string]int{"itemCount": 3})
	require.NoError(t, err)
	original.CorrelationID = "corr-abc"
	original.Metadata["tab"] = "2"

	bytes, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(bytes)
	require.NoError(t, err)

	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, original.EventType, restored.EventType)
	assert.Equal(t, original.SessionID, restored.SessionID)
	assert.Equal(t, original.CorrelationID, restored.CorrelationID)
	assert.Equal(t, original.Metadata, restored.Metadata)
	assert.JSONEq(t, string(original.Data), string(restored.Data))
	assert.WithinDuration(t, original.Timestamp, restored.Timestamp, time.Millisecond)
}

func TestEvent_WithCorrelationID(t *testing.T) {
	event, err := NewEvent("test.event", "sess-1", "svc", nil)
	require.NoError(t, err)

	result := event.WithCorrelationID("corr-xyz")
	assert.Same(t, event, result)
	assert.Equal(t, "corr-xyz", event.CorrelationID)
}

func TestEvent_WithMetadata_NilMetadataMap(t *testing.T) {
	event := &Event{EventID: "test-id", EventType: "test"}
	event.WithMetadata("key", "value").WithMetadata("k2", "v2")
	assert.Equal(t, "value", event.Metadata["key"])
	assert.Equal(t, "v2", event.Metadata["k2"])
}

func TestEvent_UnmarshalData_Invalid(t *testing.T) {
	event := &Event{Data: json.RawMessage(`not valid json`)}
	var target map[string]string
	require.Error(t, event.UnmarshalData(&target))
}

func TestUnmarshalEvent_InvalidJSON(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{broken json`))
	require.Error(t, err)
}

// --- ProducerConfig tests ---

func TestDefaultProducerConfig(t *testing.T) {
	brokers := []string{"broker1:9092", "broker2:9092"}
	cfg := DefaultProducerConfig(brokers)

	assert.Equal(t, brokers, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.False(t, cfg.Async)
}

// --- Topic tests ---

func TestTopic(t *testing.T) {
	assert.Equal(t, "storefront.cart.analytics", Topic("cart", "analytics"))
}

// --- Producer tests ---

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, []string{"localhost:9092"}, logger.Discard())

	event, err := NewEvent("add_to_cart", "sess-9", "cart-engine", map[string]string{"productId": "boots-1"})
	require.NoError(t, err)
	event.WithCorrelationID("corr-1")

	require.NoError(t, p.Publish(context.Background(), "storefront.cart.analytics", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "storefront.cart.analytics", msg.Topic)
	assert.Equal(t, "sess-9", string(msg.Key))
	assert.Equal(t, "add_to_cart", header(msg, "event_type"))
	assert.Equal(t, "cart-engine", header(msg, "source"))
	assert.Equal(t, "corr-1", header(msg, "correlation_id"))

	decoded, err := UnmarshalEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, decoded.EventID)
}

func TestProducer_Publish_WriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, nil, logger.Discard())

	event, err := NewEvent("remove_from_cart", "sess-1", "cart-engine", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "t", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to t")
}

func TestProducer_Close(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, nil, logger.Discard())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewProducer_CreatesInstance(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), logger.Discard())
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
