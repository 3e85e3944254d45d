package dispatch

import (
    "bytes"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
)

var (
    // ErrDecode is returned when a raw record is not a well-formed envelope.
    ErrDecode = errors.New("decode error")
    // ErrMissingHandler is returned when no handler is registered for a discriminator.
    // Callers treat it as a warning and skip the record.
    ErrMissingHandler = errors.New("missing handler")
    // ErrInvocation is returned when the envelope arguments do not match what the handler expects.
    ErrInvocation = errors.New("invocation error")
)

// Arguments are the handler specific named inputs of an envelope.
type Arguments map[string]json.RawMessage

// Envelope is the decoded unit of work extracted from one transport record.
type Envelope struct {
    discriminator string
    arguments     Arguments
    correlationID string
    id            string
}

type envelopeJSON struct {
    EventType     string    `json:"event_type"`
    Args          Arguments `json:"args"`
    CorrelationID string    `json:"correlation_id,omitempty"`
}

// Decode parses a raw transport record into an Envelope.
func Decode(raw []byte) (Envelope, error) {
    trimmed := bytes.TrimSpace(raw)
    if len(trimmed) == 0 || trimmed[0] != '{' {
        return Envelope{}, fmt.Errorf("%w: record is not a json object", ErrDecode)
    }
    var decoded envelopeJSON
    if err := json.Unmarshal(trimmed, &decoded); err != nil {
        return Envelope{}, fmt.Errorf("%w: %s", ErrDecode, err.Error())
    }
    discriminator := strings.TrimSpace(decoded.EventType)
    if discriminator == "" {
        return Envelope{}, fmt.Errorf("%w: missing event_type", ErrDecode)
    }
    args := decoded.Args
    if args == nil {
        args = Arguments{}
    }
    id, err := payloadID(discriminator, args)
    if err != nil {
        return Envelope{}, fmt.Errorf("%w: %s", ErrDecode, err.Error())
    }
    return Envelope{
        discriminator: discriminator,
        arguments:     args,
        correlationID: decoded.CorrelationID,
        id:            id,
    }, nil
}

// NewEnvelope builds an envelope from already decoded parts, mostly useful for producers and tests.
func NewEnvelope(discriminator string, args map[string]any) (Envelope, error) {
    encoded := make(Arguments, len(args))
    for name, value := range args {
        raw, err := json.Marshal(value)
        if err != nil {
            return Envelope{}, fmt.Errorf("failed encoding argument %s: %w", name, err)
        }
        encoded[name] = raw
    }
    id, err := payloadID(discriminator, encoded)
    if err != nil {
        return Envelope{}, err
    }
    return Envelope{discriminator: discriminator, arguments: encoded, id: id}, nil
}

func (e Envelope) Discriminator() string { return e.discriminator }

func (e Envelope) CorrelationID() string { return e.correlationID }

// ID is derived from the payload content; the transport gives no envelope identity.
func (e Envelope) ID() string { return e.id }

// Arguments returns a copy of the envelope arguments.
func (e Envelope) Arguments() Arguments {
    args := make(Arguments, len(e.arguments))
    for k, v := range e.arguments {
        args[k] = append(json.RawMessage(nil), v...)
    }
    return args
}

// Serialize re-encodes the envelope in its wire shape.
func (e Envelope) Serialize() ([]byte, error) {
    return json.Marshal(envelopeJSON{
        EventType:     e.discriminator,
        Args:          e.arguments,
        CorrelationID: e.correlationID,
    })
}

// payloadID hashes the discriminator and the canonical (sorted keys, compacted) arguments.
func payloadID(discriminator string, args Arguments) (string, error) {
    canonical := make(map[string]any, len(args))
    for name, raw := range args {
        var value any
        if err := json.Unmarshal(raw, &value); err != nil {
            return "", fmt.Errorf("argument %s: %w", name, err)
        }
        canonical[name] = value
    }
    body, err := json.Marshal(canonical)
    if err != nil {
        return "", err
    }
    sum := sha256.New()
    sum.Write([]byte(discriminator))
    sum.Write([]byte{0})
    sum.Write(body)
    return hex.EncodeToString(sum.Sum(nil)), nil
}
