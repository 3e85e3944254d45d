package rabbitmq

import (
    "time"

    "github.com/walletera/eventskit/events"
    "github.com/walletera/eventskit/messages"
    "github.com/walletera/werrors"
)

type BatchConsumerOpts struct {
    batchSize           int
    batchWindow         time.Duration
    maxRetries          int
    processingTimeout   time.Duration
    errorCallback       messages.ErrorCallback
    deadLetterPublisher events.Publisher
    deadLetterRouting   events.RoutingInfo
}

var defaultBatchConsumerOpts = BatchConsumerOpts{
    batchSize:         10,
    batchWindow:       500 * time.Millisecond,
    maxRetries:        5,
    processingTimeout: 5 * time.Minute,
    errorCallback:     func(err werrors.WError) {},
}

type BatchConsumerOpt func(opts *BatchConsumerOpts)

func WithBatchSize(batchSize int) BatchConsumerOpt {
    return func(opts *BatchConsumerOpts) {
        if batchSize > 0 {
            opts.batchSize = batchSize
        }
    }
}

func WithBatchWindow(batchWindow time.Duration) BatchConsumerOpt {
    return func(opts *BatchConsumerOpts) {
        if batchWindow > 0 {
            opts.batchWindow = batchWindow
        }
    }
}

func WithMaxRetries(maxRetries int) BatchConsumerOpt {
    return func(opts *BatchConsumerOpts) {
        opts.maxRetries = maxRetries
    }
}

func WithProcessingTimeout(processingTimeout time.Duration) BatchConsumerOpt {
    return func(opts *BatchConsumerOpts) {
        opts.processingTimeout = processingTimeout
    }
}

func WithErrorCallback(errorCallback messages.ErrorCallback) BatchConsumerOpt {
    return func(opts *BatchConsumerOpts) {
        if errorCallback != nil {
            opts.errorCallback = errorCallback
        }
    }
}

// WithDeadLetter publishes messages whose retries are exhausted before they
// are dropped.
func WithDeadLetter(publisher events.Publisher, routingInfo events.RoutingInfo) BatchConsumerOpt {
    return func(opts *BatchConsumerOpts) {
        opts.deadLetterPublisher = publisher
        opts.deadLetterRouting = routingInfo
    }
}
