package changes

import (
    "bytes"
    "encoding/base64"
    "encoding/json"
    "errors"
    "fmt"
    "strconv"
    "strings"
)

var (
    ErrDecode = errors.New("decode error")
    // ErrMalformedImage is returned by entity handlers for images they cannot use.
    ErrMalformedImage = errors.New("malformed image")
)

type EventName string

const (
    Insert EventName = "INSERT"
    Modify EventName = "MODIFY"
    Remove EventName = "REMOVE"
)

// ParseEventName accepts the stream spellings case-insensitively. DELETE is
// an alias of REMOVE used by older producers.
func ParseEventName(name string) (EventName, error) {
    switch strings.ToUpper(strings.TrimSpace(name)) {
    case string(Insert):
        return Insert, nil
    case string(Modify):
        return Modify, nil
    case string(Remove), "DELETE":
        return Remove, nil
    default:
        return "", fmt.Errorf("%w: unknown event name %q", ErrDecode, name)
    }
}

const (
    entityTypeAttribute       = "entity_type"
    legacyEntityTypeAttribute = "EntityType"
    idAttribute               = "id"
    documentIDAttribute       = "_id"
    objectIDAttribute         = "$oid"
)

// Image is a plain (untyped) snapshot of a primary store item.
type Image map[string]any

func (i Image) String(key string) string {
    value, found := i[key]
    if !found || value == nil {
        return ""
    }
    switch v := value.(type) {
    case string:
        return v
    case float64:
        return strconv.FormatFloat(v, 'f', -1, 64)
    default:
        return fmt.Sprint(v)
    }
}

func (i Image) EntityType() string {
    if entityType := i.String(entityTypeAttribute); entityType != "" {
        return entityType
    }
    return i.String(legacyEntityTypeAttribute)
}

// ID is the id attribute, falling back to the document key of images read
// from the primary store. Object ids are rendered as their hex string.
func (i Image) ID() string {
    if id := i.String(idAttribute); id != "" {
        return id
    }
    if objectID, ok := i[documentIDAttribute].(map[string]any); ok {
        return Image(objectID).String(objectIDAttribute)
    }
    return i.String(documentIDAttribute)
}

func (i Image) clone() Image {
    cloned := make(Image, len(i))
    for k, v := range i {
        cloned[k] = v
    }
    return cloned
}

// Notification is one primary store mutation.
type Notification struct {
    EventName      EventName
    OldImage       Image
    NewImage       Image
    SequenceNumber string
}

// Image returns the image describing the entity: the new image for inserts and
// modifications, the pre-image for removals since the item is already gone.
func (n Notification) Image() Image {
    if n.EventName == Remove {
        return n.OldImage
    }
    return n.NewImage
}

func (n Notification) EntityType() string {
    return n.Image().EntityType()
}

type notificationJSON struct {
    EventName      string `json:"event_name"`
    OldImage       Image  `json:"old_image"`
    NewImage       Image  `json:"new_image"`
    SequenceNumber string `json:"sequence_number"`

    StreamEventName string            `json:"eventName"`
    Stream          *streamRecordJSON `json:"dynamodb"`
}

type streamRecordJSON struct {
    OldImage       map[string]json.RawMessage `json:"OldImage"`
    NewImage       map[string]json.RawMessage `json:"NewImage"`
    SequenceNumber string                     `json:"SequenceNumber"`
}

// Decode parses a change record. Both the plain shape
// {"event_name","old_image","new_image"} and the stream-native shape, whose
// images are typed attribute values, are accepted.
func Decode(raw []byte) (Notification, error) {
    trimmed := bytes.TrimSpace(raw)
    if len(trimmed) == 0 || trimmed[0] != '{' {
        return Notification{}, fmt.Errorf("%w: record is not a json object", ErrDecode)
    }
    var decoded notificationJSON
    if err := json.Unmarshal(trimmed, &decoded); err != nil {
        return Notification{}, fmt.Errorf("%w: %s", ErrDecode, err.Error())
    }

    var notification Notification
    rawName := decoded.EventName
    if decoded.Stream != nil {
        rawName = decoded.StreamEventName
        oldImage, err := fromAttributeMap(decoded.Stream.OldImage)
        if err != nil {
            return Notification{}, err
        }
        newImage, err := fromAttributeMap(decoded.Stream.NewImage)
        if err != nil {
            return Notification{}, err
        }
        notification.OldImage = oldImage
        notification.NewImage = newImage
        notification.SequenceNumber = decoded.Stream.SequenceNumber
    } else {
        notification.OldImage = decoded.OldImage
        notification.NewImage = decoded.NewImage
        notification.SequenceNumber = decoded.SequenceNumber
    }

    eventName, err := ParseEventName(rawName)
    if err != nil {
        return Notification{}, err
    }
    // a missing image leaves the entity type empty and the router skips the record
    notification.EventName = eventName
    return notification, nil
}

func fromAttributeMap(attributes map[string]json.RawMessage) (Image, error) {
    if attributes == nil {
        return nil, nil
    }
    image := make(Image, len(attributes))
    for name, raw := range attributes {
        value, err := fromAttributeValue(raw)
        if err != nil {
            return nil, fmt.Errorf("%w: attribute %s: %s", ErrDecode, name, err.Error())
        }
        image[name] = value
    }
    return image, nil
}

func fromAttributeValue(raw json.RawMessage) (any, error) {
    var typed map[string]json.RawMessage
    if err := json.Unmarshal(raw, &typed); err != nil {
        return nil, err
    }
    if len(typed) != 1 {
        return nil, fmt.Errorf("expected exactly one type descriptor, got %d", len(typed))
    }
    for descriptor, value := range typed {
        switch descriptor {
        case "S":
            var s string
            err := json.Unmarshal(value, &s)
            return s, err
        case "N":
            var n string
            if err := json.Unmarshal(value, &n); err != nil {
                return nil, err
            }
            return parseNumber(n)
        case "BOOL":
            var b bool
            err := json.Unmarshal(value, &b)
            return b, err
        case "NULL":
            return nil, nil
        case "B":
            var b string
            if err := json.Unmarshal(value, &b); err != nil {
                return nil, err
            }
            return base64.StdEncoding.DecodeString(b)
        case "M":
            var m map[string]json.RawMessage
            if err := json.Unmarshal(value, &m); err != nil {
                return nil, err
            }
            image, err := fromAttributeMap(m)
            return map[string]any(image), err
        case "L":
            var l []json.RawMessage
            if err := json.Unmarshal(value, &l); err != nil {
                return nil, err
            }
            list := make([]any, 0, len(l))
            for _, item := range l {
                converted, err := fromAttributeValue(item)
                if err != nil {
                    return nil, err
                }
                list = append(list, converted)
            }
            return list, nil
        case "SS":
            var ss []string
            if err := json.Unmarshal(value, &ss); err != nil {
                return nil, err
            }
            set := make([]any, 0, len(ss))
            for _, s := range ss {
                set = append(set, s)
            }
            return set, nil
        case "NS":
            var ns []string
            if err := json.Unmarshal(value, &ns); err != nil {
                return nil, err
            }
            set := make([]any, 0, len(ns))
            for _, n := range ns {
                parsed, err := parseNumber(n)
                if err != nil {
                    return nil, err
                }
                set = append(set, parsed)
            }
            return set, nil
        default:
            return nil, fmt.Errorf("unsupported type descriptor %s", descriptor)
        }
    }
    return nil, nil
}

// parseNumber keeps the float64 representation plain JSON decoding would give.
func parseNumber(n string) (float64, error) {
    return strconv.ParseFloat(strings.TrimSpace(n), 64)
}
