package tests

import (
    "time"

    "user-events-engine/internal/dispatch"

    "github.com/walletera/eventskit/events"
)

var _ events.EventData = publishable{}

// publishable sends a raw envelope as is, so malformed records can be published too.
type publishable struct {
    rawEvent  []byte
    envelope  dispatch.Envelope
    createdAt time.Time
}

func newPublishable(rawEvent []byte) publishable {
    // a record that does not decode is still published, it is the consumer who rejects it
    envelope, _ := dispatch.Decode(rawEvent)
    return publishable{
        rawEvent:  rawEvent,
        envelope:  envelope,
        createdAt: time.Now(),
    }
}

func (p publishable) ID() string { return p.envelope.ID() }

func (p publishable) Type() string { return p.envelope.Discriminator() }

func (p publishable) AggregateVersion() uint64 { return 0 }

func (p publishable) CorrelationID() string { return p.envelope.CorrelationID() }

func (p publishable) DataContentType() string { return "application/json" }

func (p publishable) CreatedAt() time.Time { return p.createdAt }

func (p publishable) Serialize() ([]byte, error) {
    return p.rawEvent, nil
}
