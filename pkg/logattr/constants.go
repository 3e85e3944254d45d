package logattr

import "log/slog"

func ServiceName(serviceName string) slog.Attr {
    return slog.String("service_name", serviceName)
}

func Component(component string) slog.Attr {
    return slog.String("component", component)
}

func Consumer(consumer string) slog.Attr {
    return slog.String("consumer", consumer)
}

func EventType(eventType string) slog.Attr {
    return slog.String("event_type", eventType)
}

func EventName(eventName string) slog.Attr {
    return slog.String("event_name", eventName)
}

func EntityType(entityType string) slog.Attr {
    return slog.String("entity_type", entityType)
}

// Key is a record's discriminator, an event type or an entity type depending
// on the consumer.
func Key(key string) slog.Attr {
    return slog.String("key", key)
}

func EntityId(entityId string) slog.Attr {
    return slog.String("entity_id", entityId)
}

func Username(username string) slog.Attr {
    return slog.String("username", username)
}

func State(state string) slog.Attr {
    return slog.String("state", state)
}

func RecordIndex(index int) slog.Attr {
    return slog.Int("record_index", index)
}

func RecordId(recordId string) slog.Attr {
    return slog.String("record_id", recordId)
}

func BatchSize(size int) slog.Attr {
    return slog.Int("batch_size", size)
}

func Retryable(retryable bool) slog.Attr {
    return slog.Bool("retryable", retryable)
}

func Error(err string) slog.Attr {
    return slog.String("error", err)
}

func CorrelationId(correlationId string) slog.Attr {
    return slog.String("correlation_id", correlationId)
}

func StreamName(streamName string) slog.Attr {
    return slog.String("stream_name", streamName)
}
