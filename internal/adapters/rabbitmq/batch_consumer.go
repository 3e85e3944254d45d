package rabbitmq

import (
    "context"
    "crypto/sha256"
    "fmt"
    "log/slog"
    "time"

    "user-events-engine/internal/batch"
    "user-events-engine/internal/metrics"
    "user-events-engine/pkg/logattr"

    "github.com/walletera/eventskit/messages"
    "github.com/walletera/werrors"
)

// maxTrackedDeliveries bounds the attempts table. Payloads that stop being
// redelivered are forgotten once it fills up.
const maxTrackedDeliveries = 10_000

type BatchProcessor interface {
    Process(ctx context.Context, records []batch.Record) (batch.Result, error)
}

// BatchConsumer groups queue deliveries into batches and settles every
// delivery individually: successes are acked and only the failed records are
// nacked, so the broker redelivers nothing that already succeeded.
//
// The broker does not count redeliveries of a requeued message, so the
// consumer counts failed attempts per payload. Once a payload failed more than
// maxRetries times it is dead-lettered and dropped instead of requeued.
type BatchConsumer struct {
    name      string
    consumer  messages.Consumer
    processor BatchProcessor
    logger    *slog.Logger
    opts      BatchConsumerOpts
    delivered uint64
    attempts  map[[sha256.Size]byte]int
    done      chan struct{}
}

func NewBatchConsumer(
    name string,
    consumer messages.Consumer,
    processor BatchProcessor,
    logger *slog.Logger,
    customOpts ...BatchConsumerOpt,
) *BatchConsumer {
    opts := defaultBatchConsumerOpts
    for _, customOpt := range customOpts {
        customOpt(&opts)
    }
    return &BatchConsumer{
        name:      name,
        consumer:  consumer,
        processor: processor,
        logger:    logger.With(logattr.Consumer(name)),
        opts:      opts,
        attempts:  make(map[[sha256.Size]byte]int),
        done:      make(chan struct{}),
    }
}

// Start registers the queue consumer and processes deliveries in the
// background until ctx is cancelled and the consumer is closed.
func (c *BatchConsumer) Start(ctx context.Context) error {
    msgCh, err := c.consumer.Consume()
    if err != nil {
        return fmt.Errorf("failed consuming from message consumer: %w", err)
    }
    go func() {
        <-ctx.Done()
        err := c.consumer.Close()
        if err != nil {
            c.opts.errorCallback(werrors.NewRetryableInternalError("failed closing message consumer: %s", err.Error()))
        }
    }()
    go c.processMsgs(ctx, msgCh)
    return nil
}

// Done is closed once every delivery received before shutdown was settled.
func (c *BatchConsumer) Done() <-chan struct{} {
    return c.done
}

// Run is Start followed by waiting for Done.
func (c *BatchConsumer) Run(ctx context.Context) error {
    if err := c.Start(ctx); err != nil {
        return err
    }
    <-c.Done()
    return nil
}

func (c *BatchConsumer) processMsgs(ctx context.Context, msgCh <-chan messages.Message) {
    defer close(c.done)
    for {
        msgs, open := c.collect(msgCh)
        if len(msgs) > 0 {
            c.processBatch(ctx, msgs)
        }
        if !open {
            return
        }
    }
}

// collect waits for a first delivery, then keeps reading until the batch is
// full or the batch window elapses.
func (c *BatchConsumer) collect(msgCh <-chan messages.Message) ([]messages.Message, bool) {
    // msgCh is closed once ctx is done and the consumer closed, deliveries
    // still in flight are settled before returning
    msg, ok := <-msgCh
    if !ok {
        return nil, false
    }
    msgs := []messages.Message{msg}

    window := time.NewTimer(c.opts.batchWindow)
    defer window.Stop()
    for len(msgs) < c.opts.batchSize {
        select {
        case msg, ok := <-msgCh:
            if !ok {
                return msgs, false
            }
            msgs = append(msgs, msg)
        case <-window.C:
            return msgs, true
        }
    }
    return msgs, true
}

func (c *BatchConsumer) processBatch(ctx context.Context, msgs []messages.Message) {
    records := make([]batch.Record, len(msgs))
    for i, msg := range msgs {
        c.delivered++
        records[i] = batch.Record{
            Index:   i,
            ID:      fmt.Sprintf("%s#%d", c.name, c.delivered),
            Payload: msg.Payload(),
        }
    }

    ctxWithTimeout, cancelCtx := context.WithTimeout(context.WithoutCancel(ctx), c.opts.processingTimeout)
    defer cancelCtx()
    result, err := c.processor.Process(ctxWithTimeout, records)
    if err != nil {
        werr := werrors.NewRetryableInternalError("failed processing batch: %s", err.Error())
        c.opts.errorCallback(werr)
        c.logger.Error("failed processing batch", logattr.BatchSize(len(msgs)), logattr.Error(err.Error()))
        for i, msg := range msgs {
            c.nack(ctxWithTimeout, msg, batch.Failure{Record: records[i], Err: werr})
        }
        return
    }

    for i, msg := range msgs {
        failure, failed := result.Failed(i)
        if failed {
            c.opts.errorCallback(failure.Err)
            c.nack(ctxWithTimeout, msg, failure)
            continue
        }
        delete(c.attempts, sha256.Sum256(msg.Payload()))
        if err := msg.Acknowledger().Ack(); err != nil {
            c.logger.Error("failed acking message", logattr.RecordIndex(i), logattr.Error(err.Error()))
        }
    }
}

func (c *BatchConsumer) nack(ctx context.Context, msg messages.Message, failure batch.Failure) {
    requeue := failure.Err.IsRetryable()
    if !requeue {
        delete(c.attempts, sha256.Sum256(msg.Payload()))
    } else if !c.retry(msg.Payload()) {
        requeue = false
        c.logger.Error(
            "retries exhausted, dropping message",
            logattr.RecordId(failure.Record.ID),
            logattr.Key(failure.Key),
            logattr.Error(failure.Err.Message()),
        )
        c.deadLetter(ctx, failure)
    }
    err := msg.Acknowledger().Nack(messages.NackOpts{
        Requeue:      requeue,
        MaxRetries:   c.opts.maxRetries,
        ErrorCode:    failure.Err.Code(),
        ErrorMessage: failure.Err.Message(),
    })
    if err != nil {
        c.logger.Error("failed nacking message", logattr.Error(err.Error()))
    }
}

// retry counts a failed attempt of payload and reports whether it may be
// requeued once more.
func (c *BatchConsumer) retry(payload []byte) bool {
    key := sha256.Sum256(payload)
    if _, tracked := c.attempts[key]; !tracked && len(c.attempts) >= maxTrackedDeliveries {
        clear(c.attempts)
    }
    c.attempts[key]++
    if c.attempts[key] > c.opts.maxRetries {
        delete(c.attempts, key)
        return false
    }
    return true
}

func (c *BatchConsumer) deadLetter(ctx context.Context, failure batch.Failure) {
    if c.opts.deadLetterPublisher == nil {
        return
    }
    letter := batch.NewDeadLetter(c.name, failure, time.Now())
    if err := c.opts.deadLetterPublisher.Publish(ctx, letter, c.opts.deadLetterRouting); err != nil {
        c.logger.Error("failed publishing dead letter", logattr.RecordId(failure.Record.ID), logattr.Error(err.Error()))
        return
    }
    metrics.RecordDeadLettered(c.name)
}
