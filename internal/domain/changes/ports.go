package changes

import "context"

// Document is an entity as stored in the search index.
type Document struct {
    ID         string
    EntityType string
    Body       map[string]any
}

type Indexer interface {
    Upsert(ctx context.Context, document Document) error
}

// AnalyticsSink appends fan-out records to a named delivery stream.
type AnalyticsSink interface {
    Append(ctx context.Context, stream string, record FanOutRecord) error
}
