package changes

import (
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
)

const hardDeletedAttribute = "is_hard_deleted"

// FanOutRecord is the normalized form of a mutation forwarded to the
// analytics sink. It lives for a single forward attempt.
type FanOutRecord struct {
    EntityType     string
    EventName      EventName
    Image          Image
    HardDeleted    bool
    SequenceNumber string
}

func NewFanOutRecord(notification Notification) FanOutRecord {
    return FanOutRecord{
        EntityType:     notification.EntityType(),
        EventName:      notification.EventName,
        Image:          notification.Image(),
        HardDeleted:    notification.EventName == Remove,
        SequenceNumber: notification.SequenceNumber,
    }
}

// Payload is the forwarded document: the chosen image, with
// is_hard_deleted=true injected for removals.
func (r FanOutRecord) Payload() map[string]any {
    payload := r.Image.clone()
    if r.HardDeleted {
        payload[hardDeletedAttribute] = true
    }
    return payload
}

// Key is the entity id; sinks partition on it to keep per-key order.
func (r FanOutRecord) Key() string {
    return r.Image.ID()
}

// IdempotencyKey identifies the logical change so downstream consumers can
// drop redeliveries.
func (r FanOutRecord) IdempotencyKey() string {
    body, _ := json.Marshal(r.Payload())
    sum := sha256.New()
    sum.Write([]byte(r.EventName))
    sum.Write([]byte{0})
    sum.Write([]byte(r.SequenceNumber))
    sum.Write([]byte{0})
    sum.Write(body)
    return hex.EncodeToString(sum.Sum(nil))
}
