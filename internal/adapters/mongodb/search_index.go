package mongodb

import (
    "context"
    "fmt"
    "time"

    "user-events-engine/internal/domain/changes"

    "go.mongodb.org/mongo-driver/v2/bson"
    "go.mongodb.org/mongo-driver/v2/mongo"
    "go.mongodb.org/mongo-driver/v2/mongo/options"
)

var _ changes.Indexer = (*SearchIndex)(nil)

type DocumentBSON struct {
    ID         string         `bson:"_id"`
    EntityType string         `bson:"entityType"`
    Body       map[string]any `bson:"body"`
    IndexedAt  time.Time      `bson:"indexedAt"`
}

// SearchIndex stores the latest image of every indexed entity, one document
// per entity type and id.
type SearchIndex struct {
    client         *mongo.Client
    dbName         string
    collectionName string
}

func NewSearchIndex(client *mongo.Client, dbName string, collectionName string) *SearchIndex {
    return &SearchIndex{client: client, dbName: dbName, collectionName: collectionName}
}

func (s *SearchIndex) Upsert(ctx context.Context, document changes.Document) error {
    key := documentKey(document.EntityType, document.ID)
    coll := s.client.Database(s.dbName).Collection(s.collectionName)
    _, err := coll.ReplaceOne(
        ctx,
        bson.M{"_id": key},
        DocumentBSON{
            ID:         key,
            EntityType: document.EntityType,
            Body:       document.Body,
            IndexedAt:  time.Now().UTC(),
        },
        options.Replace().SetUpsert(true),
    )
    if err != nil {
        return fmt.Errorf("failed to index %s: %w", key, err)
    }
    return nil
}

func documentKey(entityType, id string) string {
    return entityType + "/" + id
}
