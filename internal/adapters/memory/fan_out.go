package memory

import (
    "context"
    "sync"

    "user-events-engine/internal/domain/changes"
)

var (
    _ changes.Indexer       = (*SearchIndex)(nil)
    _ changes.AnalyticsSink = (*AnalyticsSink)(nil)
)

type SearchIndex struct {
    mu        sync.Mutex
    documents map[string]changes.Document
    upserts   int
    err       error
}

func NewSearchIndex() *SearchIndex {
    return &SearchIndex{documents: make(map[string]changes.Document)}
}

// FailWith makes every upsert fail with err until it is reset with nil.
func (i *SearchIndex) FailWith(err error) {
    i.mu.Lock()
    defer i.mu.Unlock()
    i.err = err
}

func (i *SearchIndex) Upsert(ctx context.Context, document changes.Document) error {
    i.mu.Lock()
    defer i.mu.Unlock()
    if i.err != nil {
        return i.err
    }
    i.upserts++
    i.documents[document.EntityType+"/"+document.ID] = document
    return nil
}

func (i *SearchIndex) Document(entityType, id string) (changes.Document, bool) {
    i.mu.Lock()
    defer i.mu.Unlock()
    document, found := i.documents[entityType+"/"+id]
    return document, found
}

func (i *SearchIndex) Upserts() int {
    i.mu.Lock()
    defer i.mu.Unlock()
    return i.upserts
}

// AppendedRecord is a record as seen by the sink.
type AppendedRecord struct {
    Stream  string
    Key     string
    Payload map[string]any
}

type AnalyticsSink struct {
    mu      sync.Mutex
    records []AppendedRecord
    err     error
}

func NewAnalyticsSink() *AnalyticsSink {
    return &AnalyticsSink{}
}

func (s *AnalyticsSink) FailWith(err error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.err = err
}

func (s *AnalyticsSink) Append(ctx context.Context, stream string, record changes.FanOutRecord) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return s.err
    }
    s.records = append(s.records, AppendedRecord{
        Stream:  stream,
        Key:     record.Key(),
        Payload: record.Payload(),
    })
    return nil
}

func (s *AnalyticsSink) Records() []AppendedRecord {
    s.mu.Lock()
    defer s.mu.Unlock()
    return append([]AppendedRecord(nil), s.records...)
}
