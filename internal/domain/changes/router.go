package changes

import (
    "context"
    "errors"
    "log/slog"

    "user-events-engine/internal/batch"
    "user-events-engine/internal/dispatch"
    "user-events-engine/pkg/logattr"

    "github.com/walletera/werrors"
)

// EntityHandler applies the entity-type specific side effects of a change.
type EntityHandler interface {
    HandleChange(ctx context.Context, notification Notification) error
}

type EntityHandlerFunc func(ctx context.Context, notification Notification) error

func (f EntityHandlerFunc) HandleChange(ctx context.Context, notification Notification) error {
    return f(ctx, notification)
}

// NewEntityTable registers the entity types this consumer understands.
func NewEntityTable(users *UserHandler) *dispatch.Table[EntityHandler] {
    return dispatch.NewTable[EntityHandler]().
        Register(UserEntityType, users)
}

// Router applies entity side effects and forwards one fan-out record per
// notification. It assumes per-key order only; records of different keys may
// be observed in any order relative to the primary store.
type Router struct {
    entities *dispatch.Table[EntityHandler]
    sink     AnalyticsSink
    stream   string
    logger   *slog.Logger
}

func NewRouter(entities *dispatch.Table[EntityHandler], sink AnalyticsSink, stream string, logger *slog.Logger) *Router {
    return &Router{
        entities: entities,
        sink:     sink,
        stream:   stream,
        logger:   logger.With(logattr.StreamName(stream)),
    }
}

func (r *Router) Route(ctx context.Context, notification Notification) (batch.Disposition, werrors.WError) {
    entityType := notification.EntityType()
    disposition := batch.Disposition{Key: entityType}
    logger := r.logger.With(
        logattr.EventName(string(notification.EventName)),
        logattr.EntityType(entityType),
        logattr.EntityId(notification.Image().ID()),
    )

    if entityType == "" {
        logger.Warn("missing entity type attribute")
        disposition.Skipped = true
        return disposition, nil
    }
    handler, found := r.entities.Lookup(entityType)
    if !found {
        logger.Warn("missing entity type handler")
        disposition.Skipped = true
        return disposition, nil
    }

    err := handler.HandleChange(ctx, notification)
    if err != nil {
        logger.Error("failed handling change", logattr.Error(err.Error()))
        if errors.Is(err, ErrMalformedImage) {
            return disposition, werrors.NewNonRetryableInternalError("%s", err.Error())
        }
        return disposition, werrors.NewRetryableInternalError("%s", err.Error())
    }

    record := NewFanOutRecord(notification)
    err = r.sink.Append(ctx, r.stream, record)
    if err != nil {
        logger.Error("failed forwarding change", logattr.Error(err.Error()))
        return disposition, werrors.NewRetryableInternalError("analytics sink failure: %s", err.Error())
    }

    logger.Info("change forwarded")
    return disposition, nil
}

// NewRecordHandler decodes one stream record and routes it.
func NewRecordHandler(router *Router) batch.HandleFunc {
    return func(ctx context.Context, record batch.Record) (batch.Disposition, werrors.WError) {
        notification, err := Decode(record.Payload)
        if err != nil {
            return batch.Disposition{}, werrors.NewUnprocessableMessageError(err.Error())
        }
        return router.Route(ctx, notification)
    }
}
