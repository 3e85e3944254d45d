package mongodb

import (
    "context"
    "errors"
    "fmt"
    "time"

    "go.mongodb.org/mongo-driver/v2/bson"
    "go.mongodb.org/mongo-driver/v2/mongo"
    "go.mongodb.org/mongo-driver/v2/mongo/options"
)

type CheckpointBSON struct {
    Stream      string    `bson:"_id"`
    ResumeToken bson.Raw  `bson:"resumeToken"`
    Records     int64     `bson:"records"`
    UpdatedAt   time.Time `bson:"updatedAt"`
}

// CheckpointStore persists change stream resume tokens so a restarted
// consumer picks up after the last processed batch.
type CheckpointStore struct {
    client         *mongo.Client
    dbName         string
    collectionName string
}

func NewCheckpointStore(client *mongo.Client, dbName string, collectionName string) *CheckpointStore {
    return &CheckpointStore{client: client, dbName: dbName, collectionName: collectionName}
}

// Load returns a nil token when the stream was never checkpointed.
func (c *CheckpointStore) Load(ctx context.Context, stream string) (bson.Raw, error) {
    result := c.collection().FindOne(ctx, bson.M{"_id": stream})
    if err := result.Err(); err != nil {
        if errors.Is(err, mongo.ErrNoDocuments) {
            return nil, nil
        }
        return nil, fmt.Errorf("failed finding checkpoint for %s: %w", stream, err)
    }
    var checkpoint CheckpointBSON
    if err := result.Decode(&checkpoint); err != nil {
        return nil, fmt.Errorf("failed decoding checkpoint for %s: %w", stream, err)
    }
    return checkpoint.ResumeToken, nil
}

func (c *CheckpointStore) Save(ctx context.Context, stream string, resumeToken bson.Raw, records int) error {
    _, err := c.collection().UpdateOne(
        ctx,
        bson.M{"_id": stream},
        bson.M{
            "$set": bson.M{
                "resumeToken": resumeToken,
                "updatedAt":   time.Now().UTC(),
            },
            "$inc": bson.M{"records": int64(records)},
        },
        options.UpdateOne().SetUpsert(true),
    )
    if err != nil {
        return fmt.Errorf("failed saving checkpoint for %s: %w", stream, err)
    }
    return nil
}

func (c *CheckpointStore) collection() *mongo.Collection {
    return c.client.Database(c.dbName).Collection(c.collectionName)
}
