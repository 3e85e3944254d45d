package batch

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "time"

    "user-events-engine/internal/metrics"
    "user-events-engine/pkg/logattr"

    "github.com/walletera/eventskit/events"
    "github.com/walletera/werrors"
)

// ErrNoHandler is an infrastructure fault: the processor cannot reach any record handler.
var ErrNoHandler = errors.New("batch processor has no record handler")

// Record is one transport record. Index is its position in the delivered batch.
type Record struct {
    Index   int
    ID      string
    Payload []byte
}

// Disposition tells the processor how a record was handled. Key is the
// discriminator or entity type, used for diagnostics only.
type Disposition struct {
    Key     string
    Skipped bool
}

type HandleFunc func(ctx context.Context, record Record) (Disposition, werrors.WError)

type Failure struct {
    Record Record
    Key    string
    Err    werrors.WError
}

type Result struct {
    Attempted int
    Succeeded int
    Skipped   int
    Failures  []Failure
}

// Failed reports whether the record at index failed.
func (r Result) Failed(index int) (Failure, bool) {
    for _, failure := range r.Failures {
        if failure.Record.Index == index {
            return failure, true
        }
    }
    return Failure{}, false
}

// Processor attempts every record of a batch sequentially, in delivery order,
// isolating each record's failure from the rest of the batch.
type Processor struct {
    consumer string
    handle   HandleFunc
    logger   *slog.Logger
    opts     ProcessorOpts
}

func NewProcessor(consumer string, handle HandleFunc, logger *slog.Logger, customOpts ...ProcessorOpt) *Processor {
    opts := defaultProcessorOpts()
    for _, customOpt := range customOpts {
        customOpt(&opts)
    }
    return &Processor{
        consumer: consumer,
        handle:   handle,
        logger:   logger,
        opts:     opts,
    }
}

// Process returns an error only for faults outside any single record's
// handling. Record failures are reported in the Result.
func (p *Processor) Process(ctx context.Context, records []Record) (Result, error) {
    if p.handle == nil {
        return Result{}, ErrNoHandler
    }
    started := p.opts.now()
    defer func() {
        metrics.ObserveBatch(p.consumer, p.opts.now().Sub(started))
    }()

    var result Result
    for _, record := range records {
        result.Attempted++
        disposition, werr := p.processRecord(ctx, record)
        switch {
        case werr != nil:
            failure := Failure{Record: record, Key: disposition.Key, Err: werr}
            result.Failures = append(result.Failures, failure)
            metrics.RecordOutcome(p.consumer, metrics.OutcomeFailed)
            p.logFailure(failure)
            p.deadLetter(ctx, failure)
        case disposition.Skipped:
            result.Skipped++
            metrics.RecordOutcome(p.consumer, metrics.OutcomeSkipped)
        default:
            result.Succeeded++
            metrics.RecordOutcome(p.consumer, metrics.OutcomeSucceeded)
        }
    }

    p.logger.Debug(
        "batch processed",
        logattr.BatchSize(len(records)),
        slog.Int("succeeded", result.Succeeded),
        slog.Int("skipped", result.Skipped),
        slog.Int("failed", len(result.Failures)),
    )
    return result, nil
}

func (p *Processor) processRecord(ctx context.Context, record Record) (disposition Disposition, werr werrors.WError) {
    defer func() {
        if r := recover(); r != nil {
            werr = werrors.NewNonRetryableInternalError("panic handling record: %v", r)
        }
    }()
    disposition, werr = p.handle(ctx, record)
    if werr != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
        werr = werrors.NewTimeoutError(fmt.Sprintf("record %d timed out: %s", record.Index, werr.Message()))
    }
    return disposition, werr
}

func (p *Processor) logFailure(failure Failure) {
    p.logger.Error(
        "failed processing record",
        logattr.Consumer(p.consumer),
        logattr.RecordIndex(failure.Record.Index),
        logattr.RecordId(failure.Record.ID),
        logattr.Key(failure.Key),
        logattr.Retryable(failure.Err.IsRetryable()),
        logattr.Error(failure.Err.Message()),
    )
}

func (p *Processor) deadLetter(ctx context.Context, failure Failure) {
    if p.opts.deadLetterPublisher == nil {
        return
    }
    letter := NewDeadLetter(p.consumer, failure, p.opts.now())
    err := p.opts.deadLetterPublisher.Publish(ctx, letter, p.opts.deadLetterRouting)
    if err != nil {
        p.logger.Error(
            "failed publishing dead letter",
            logattr.Consumer(p.consumer),
            logattr.RecordIndex(failure.Record.Index),
            logattr.Error(err.Error()),
        )
        return
    }
    metrics.RecordDeadLettered(p.consumer)
}

type ProcessorOpts struct {
    deadLetterPublisher events.Publisher
    deadLetterRouting   events.RoutingInfo
    now                 func() time.Time
}

func defaultProcessorOpts() ProcessorOpts {
    return ProcessorOpts{now: time.Now}
}

type ProcessorOpt func(opts *ProcessorOpts)

// WithDeadLetter republishes every failed record so it can be resubmitted
// later. Used by consumers whose transport has no per-record acknowledgment.
func WithDeadLetter(publisher events.Publisher, routingInfo events.RoutingInfo) ProcessorOpt {
    return func(opts *ProcessorOpts) {
        opts.deadLetterPublisher = publisher
        opts.deadLetterRouting = routingInfo
    }
}

func WithClock(now func() time.Time) ProcessorOpt {
    return func(opts *ProcessorOpts) {
        if now != nil {
            opts.now = now
        }
    }
}
