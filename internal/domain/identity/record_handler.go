package identity

import (
    "context"
    "errors"
    "log/slog"

    "user-events-engine/internal/batch"
    "user-events-engine/internal/dispatch"
    "user-events-engine/pkg/logattr"

    "github.com/walletera/werrors"
)

// NewRecordHandler decodes one transport record and routes it to handler.
// Unknown discriminators are logged and skipped.
func NewRecordHandler(deserializer *Deserializer, handler Handler, logger *slog.Logger) batch.HandleFunc {
    return func(ctx context.Context, record batch.Record) (batch.Disposition, werrors.WError) {
        envelope, err := dispatch.Decode(record.Payload)
        if err != nil {
            return batch.Disposition{}, werrors.NewUnprocessableMessageError(err.Error())
        }
        disposition := batch.Disposition{Key: envelope.Discriminator()}

        event, err := deserializer.FromEnvelope(envelope)
        switch {
        case errors.Is(err, dispatch.ErrMissingHandler):
            logger.Warn(
                "missing handler for event",
                logattr.EventType(envelope.Discriminator()),
                logattr.RecordIndex(record.Index),
            )
            disposition.Skipped = true
            return disposition, nil
        case err != nil:
            return disposition, werrors.NewNonRetryableInternalError("%s", err.Error())
        }

        return disposition, event.Accept(ctx, handler)
    }
}
