package kafka

import (
    "context"
    "encoding/json"
    "fmt"
    "strings"
    "time"

    "user-events-engine/internal/domain/changes"

    "github.com/segmentio/kafka-go"
)

const (
    EventNameHeader      = "event_name"
    IdempotencyKeyHeader = "idempotency_key"

    // Append writes one record at a time; a longer timeout only delays it.
    writerBatchTimeout = 10 * time.Millisecond
)

var _ changes.AnalyticsSink = (*AnalyticsSink)(nil)

type Writer interface {
    WriteMessages(ctx context.Context, msgs ...kafka.Message) error
    Close() error
}

// AnalyticsSink appends fan-out records to a topic. Messages are keyed by
// entity id, so records of one entity land in one partition in order.
type AnalyticsSink struct {
    writer Writer
}

func NewAnalyticsSink(writer Writer) *AnalyticsSink {
    return &AnalyticsSink{writer: writer}
}

// NewWriter builds a writer without a default topic; each message names the
// stream it is appended to.
func NewWriter(brokers string) *kafka.Writer {
    return &kafka.Writer{
        Addr:         kafka.TCP(strings.Split(brokers, ",")...),
        RequiredAcks: kafka.RequireAll,
        Balancer:     &kafka.Hash{},
        BatchTimeout: writerBatchTimeout,
    }
}

func (s *AnalyticsSink) Append(ctx context.Context, stream string, record changes.FanOutRecord) error {
    data, err := json.Marshal(record.Payload())
    if err != nil {
        return fmt.Errorf("failed marshalling fan-out record: %w", err)
    }
    err = s.writer.WriteMessages(ctx, kafka.Message{
        Topic: stream,
        Key:   []byte(record.Key()),
        Value: data,
        Headers: []kafka.Header{
            {Key: EventNameHeader, Value: []byte(record.EventName)},
            {Key: IdempotencyKeyHeader, Value: []byte(record.IdempotencyKey())},
        },
        Time: time.Now(),
    })
    if err != nil {
        return fmt.Errorf("failed appending to %s: %w", stream, err)
    }
    return nil
}

func (s *AnalyticsSink) Close() error {
    return s.writer.Close()
}
