package mongodb

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"

    "user-events-engine/internal/batch"
    "user-events-engine/pkg/logattr"

    "go.mongodb.org/mongo-driver/v2/bson"
    "go.mongodb.org/mongo-driver/v2/mongo"
    "go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultChangeStreamBatchSize = 100

var ErrChangeStreamClosed = errors.New("change stream closed")

type BatchProcessor interface {
    Process(ctx context.Context, records []batch.Record) (batch.Result, error)
}

type resumeTokenBSON struct {
    Data string `bson:"_data"`
}

type changeEventBSON struct {
    ID                       resumeTokenBSON `bson:"_id"`
    OperationType            string          `bson:"operationType"`
    ClusterTime              bson.Timestamp  `bson:"clusterTime"`
    FullDocument             bson.Raw        `bson:"fullDocument,omitempty"`
    FullDocumentBeforeChange bson.Raw        `bson:"fullDocumentBeforeChange,omitempty"`
}

// ChangeStreamSource feeds the primary collection mutations to a batch
// processor. Server batches are grouped into processor batches, and the
// resume token is checkpointed once a batch has been attempted.
type ChangeStreamSource struct {
    client         *mongo.Client
    dbName         string
    collectionName string
    checkpoints    *CheckpointStore
    processor      BatchProcessor
    batchSize      int
    logger         *slog.Logger
    stream         *mongo.ChangeStream
}

func NewChangeStreamSource(
    client *mongo.Client,
    dbName string,
    collectionName string,
    checkpoints *CheckpointStore,
    processor BatchProcessor,
    batchSize int,
    logger *slog.Logger,
) *ChangeStreamSource {
    if batchSize <= 0 {
        batchSize = defaultChangeStreamBatchSize
    }
    return &ChangeStreamSource{
        client:         client,
        dbName:         dbName,
        collectionName: collectionName,
        checkpoints:    checkpoints,
        processor:      processor,
        batchSize:      batchSize,
        logger:         logger.With(logattr.StreamName(dbName + "." + collectionName)),
    }
}

// EnablePreImages turns on pre- and post-images for the primary collection,
// which removals need to carry their old image.
func (s *ChangeStreamSource) EnablePreImages(ctx context.Context) error {
    err := s.client.Database(s.dbName).RunCommand(ctx, bson.D{
        {Key: "collMod", Value: s.collectionName},
        {Key: "changeStreamPreAndPostImages", Value: bson.M{"enabled": true}},
    }).Err()
    if err != nil {
        return fmt.Errorf("failed enabling pre-images on %s: %w", s.collectionName, err)
    }
    return nil
}

// Start opens the change stream, resuming after the last checkpoint. Mutations
// committed after Start returns are observed by Run.
func (s *ChangeStreamSource) Start(ctx context.Context) error {
    resumeToken, err := s.checkpoints.Load(ctx, s.checkpointName())
    if err != nil {
        return err
    }

    changeStreamOpts := options.ChangeStream().
        SetFullDocument(options.UpdateLookup).
        SetFullDocumentBeforeChange(options.WhenAvailable).
        SetBatchSize(int32(s.batchSize))
    if resumeToken != nil {
        changeStreamOpts.SetStartAfter(resumeToken)
    }

    coll := s.client.Database(s.dbName).Collection(s.collectionName)
    stream, err := coll.Watch(ctx, mongo.Pipeline{}, changeStreamOpts)
    if err != nil {
        return fmt.Errorf("failed watching %s: %w", s.collectionName, err)
    }
    s.stream = stream
    s.logger.Info("change stream started", slog.Bool("resumed", resumeToken != nil))
    return nil
}

// Run blocks until ctx is cancelled or the stream fails.
func (s *ChangeStreamSource) Run(ctx context.Context) error {
    if s.stream == nil {
        if err := s.Start(ctx); err != nil {
            return err
        }
    }
    stream := s.stream
    defer stream.Close(context.Background())

    checkpointName := s.checkpointName()
    for {
        records, err := s.nextBatch(ctx, stream)
        if err != nil {
            if ctx.Err() != nil {
                return nil
            }
            return err
        }

        if len(records) > 0 {
            _, err = s.processor.Process(ctx, records)
            if err != nil {
                return fmt.Errorf("failed processing change stream batch: %w", err)
            }
        }

        err = s.checkpoints.Save(ctx, checkpointName, stream.ResumeToken(), len(records))
        if err != nil {
            if ctx.Err() != nil {
                return nil
            }
            return err
        }
    }
}

func (s *ChangeStreamSource) nextBatch(ctx context.Context, stream *mongo.ChangeStream) ([]batch.Record, error) {
    if !stream.Next(ctx) {
        if err := stream.Err(); err != nil {
            return nil, err
        }
        return nil, ErrChangeStreamClosed
    }

    records := make([]batch.Record, 0, s.batchSize)
    for {
        record, ok, err := changeEventToRecord(len(records), stream.Current)
        if err != nil {
            s.logger.Error("failed converting change event", logattr.Error(err.Error()))
        } else if ok {
            records = append(records, record)
        }
        if len(records) >= s.batchSize || stream.RemainingBatchLength() == 0 {
            return records, nil
        }
        if !stream.Next(ctx) {
            // the events read so far are still processed; the error resurfaces on the next call
            return records, nil
        }
    }
}

func (s *ChangeStreamSource) checkpointName() string {
    return "changes:" + s.dbName + "." + s.collectionName
}

// changeEventToRecord renders a change event in the plain notification
// shape. Events that do not describe a document mutation are dropped.
func changeEventToRecord(index int, raw bson.Raw) (batch.Record, bool, error) {
    var event changeEventBSON
    if err := bson.Unmarshal(raw, &event); err != nil {
        return batch.Record{}, false, fmt.Errorf("failed decoding change event: %w", err)
    }

    var eventName string
    switch event.OperationType {
    case "insert":
        eventName = "INSERT"
    case "update", "replace":
        eventName = "MODIFY"
    case "delete":
        eventName = "REMOVE"
    default:
        return batch.Record{}, false, nil
    }

    notification := map[string]any{
        "event_name":      eventName,
        "sequence_number": fmt.Sprintf("%d.%d", event.ClusterTime.T, event.ClusterTime.I),
    }
    if len(event.FullDocumentBeforeChange) > 0 {
        image, err := bson.MarshalExtJSON(event.FullDocumentBeforeChange, false, false)
        if err != nil {
            return batch.Record{}, false, fmt.Errorf("failed rendering old image: %w", err)
        }
        notification["old_image"] = json.RawMessage(image)
    }
    if len(event.FullDocument) > 0 {
        image, err := bson.MarshalExtJSON(event.FullDocument, false, false)
        if err != nil {
            return batch.Record{}, false, fmt.Errorf("failed rendering new image: %w", err)
        }
        notification["new_image"] = json.RawMessage(image)
    }

    payload, err := json.Marshal(notification)
    if err != nil {
        return batch.Record{}, false, fmt.Errorf("failed rendering notification: %w", err)
    }
    return batch.Record{
        Index:   index,
        ID:      event.ID.Data,
        Payload: payload,
    }, true, nil
}
