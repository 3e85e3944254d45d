package changes

import (
    "context"
    "fmt"
    "log/slog"

    "user-events-engine/pkg/logattr"
)

const UserEntityType = "user"

// UserHandler applies the side effects of user mutations. Removals are not
// indexed here; tombstoning is carried by the forwarded record.
type UserHandler struct {
    indexer         Indexer
    indexingEnabled bool
    logger          *slog.Logger
}

func NewUserHandler(indexer Indexer, indexingEnabled bool, logger *slog.Logger) *UserHandler {
    return &UserHandler{
        indexer:         indexer,
        indexingEnabled: indexingEnabled,
        logger:          logger,
    }
}

func (h *UserHandler) HandleChange(ctx context.Context, notification Notification) error {
    switch notification.EventName {
    case Insert, Modify:
        if !h.indexingEnabled {
            return nil
        }
        id := notification.NewImage.ID()
        if id == "" {
            return fmt.Errorf("%w: user image without id", ErrMalformedImage)
        }
        err := h.indexer.Upsert(ctx, Document{
            ID:         id,
            EntityType: UserEntityType,
            Body:       notification.NewImage,
        })
        if err != nil {
            return fmt.Errorf("failed indexing user %s: %w", id, err)
        }
        h.logger.Debug("user indexed", logattr.EntityId(id))
        return nil
    case Remove:
        return nil
    default:
        return fmt.Errorf("%w: unsupported event name %s", ErrMalformedImage, notification.EventName)
    }
}
