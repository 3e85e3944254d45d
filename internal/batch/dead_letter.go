package batch

import (
    "encoding/json"
    "time"

    "github.com/google/uuid"
    "github.com/walletera/eventskit/events"
)

const DeadLetterEventType = "record_dead_lettered"

var _ events.EventData = DeadLetter{}

// DeadLetter carries a failed record and the reason it failed.
type DeadLetter struct {
    id        uuid.UUID
    consumer  string
    failure   Failure
    createdAt time.Time
}

type deadLetterJSON struct {
    Consumer    string          `json:"consumer"`
    RecordIndex int             `json:"record_index"`
    RecordID    string          `json:"record_id,omitempty"`
    Key         string          `json:"key,omitempty"`
    Error       string          `json:"error"`
    Retryable   bool            `json:"retryable"`
    Payload     json.RawMessage `json:"payload,omitempty"`
    RawPayload  []byte          `json:"raw_payload,omitempty"`
    CreatedAt   time.Time       `json:"created_at"`
}

func NewDeadLetter(consumer string, failure Failure, createdAt time.Time) DeadLetter {
    return DeadLetter{
        id:        uuid.New(),
        consumer:  consumer,
        failure:   failure,
        createdAt: createdAt,
    }
}

func (d DeadLetter) ID() string { return d.id.String() }

func (d DeadLetter) Type() string { return DeadLetterEventType }

func (d DeadLetter) AggregateVersion() uint64 { return 0 }

func (d DeadLetter) CorrelationID() string { return d.failure.Record.ID }

func (d DeadLetter) DataContentType() string { return "application/json" }

func (d DeadLetter) CreatedAt() time.Time { return d.createdAt }

func (d DeadLetter) Failure() Failure { return d.failure }

// Serialize keeps the original payload verbatim when it is valid JSON so it
// can be replayed as is; anything else is carried base64 encoded.
func (d DeadLetter) Serialize() ([]byte, error) {
    letter := deadLetterJSON{
        Consumer:    d.consumer,
        RecordIndex: d.failure.Record.Index,
        RecordID:    d.failure.Record.ID,
        Key:         d.failure.Key,
        Error:       d.failure.Err.Message(),
        Retryable:   d.failure.Err.IsRetryable(),
        CreatedAt:   d.createdAt,
    }
    if json.Valid(d.failure.Record.Payload) {
        letter.Payload = d.failure.Record.Payload
    } else {
        letter.RawPayload = d.failure.Record.Payload
    }
    return json.Marshal(letter)
}
