package kafka

import (
    "context"
    "encoding/json"
    "errors"
    "testing"
    "time"

    "user-events-engine/internal/domain/changes"

    "github.com/segmentio/kafka-go"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type writerMock struct {
    messages []kafka.Message
    err      error
    closed   bool
}

func (w *writerMock) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
    if w.err != nil {
        return w.err
    }
    w.messages = append(w.messages, msgs...)
    return nil
}

func (w *writerMock) Close() error {
    w.closed = true
    return nil
}

func header(message kafka.Message, key string) string {
    for _, h := range message.Headers {
        if h.Key == key {
            return string(h.Value)
        }
    }
    return ""
}

func TestAppendKeysMessagesByEntityId(t *testing.T) {
    writer := &writerMock{}
    sink := NewAnalyticsSink(writer)
    record := changes.NewFanOutRecord(changes.Notification{
        EventName: changes.Remove,
        OldImage:  changes.Image{"id": "u1", "entity_type": "user"},
    })

    require.NoError(t, sink.Append(context.Background(), "user-events-analytics", record))
    require.Len(t, writer.messages, 1)

    message := writer.messages[0]
    assert.Equal(t, "user-events-analytics", message.Topic)
    assert.Equal(t, "u1", string(message.Key))
    assert.Equal(t, "REMOVE", header(message, EventNameHeader))
    assert.Equal(t, record.IdempotencyKey(), header(message, IdempotencyKeyHeader))

    var payload map[string]any
    require.NoError(t, json.Unmarshal(message.Value, &payload))
    assert.Equal(t, map[string]any{"id": "u1", "entity_type": "user", "is_hard_deleted": true}, payload)

    require.NoError(t, sink.Close())
    assert.True(t, writer.closed)
}

func TestAppendWrapsWriterErrors(t *testing.T) {
    writerErr := errors.New("leader not available")
    sink := NewAnalyticsSink(&writerMock{err: writerErr})

    err := sink.Append(context.Background(), "stream", changes.NewFanOutRecord(changes.Notification{
        EventName: changes.Insert,
        NewImage:  changes.Image{"id": "u1", "entity_type": "user"},
    }))
    require.Error(t, err)
    assert.ErrorIs(t, err, writerErr)
}

func TestNewWriterFlushesPromptly(t *testing.T) {
    writer := NewWriter("kafka-1:9092,kafka-2:9092")

    assert.Equal(t, "kafka-1:9092,kafka-2:9092", writer.Addr.String())
    assert.Equal(t, kafka.RequireAll, writer.RequiredAcks)
    assert.IsType(t, &kafka.Hash{}, writer.Balancer)
    assert.Empty(t, writer.Topic)
    assert.Equal(t, writerBatchTimeout, writer.BatchTimeout)
    assert.LessOrEqual(t, writer.BatchTimeout, 50*time.Millisecond)
}
