package app

import (
    "log/slog"
    "time"

    "user-events-engine/internal/domain/changes"
)

type Option func(app *App)

func WithOpsAPIConfig(config OpsAPIConfig) func(a *App) {
    return func(a *App) {
        a.opsAPIConfig = NewOptional[OpsAPIConfig](config)
    }
}

func WithRabbitmqHost(host string) func(a *App) { return func(a *App) { a.rabbitmqHost = host } }

func WithRabbitmqPort(port int) func(a *App) { return func(a *App) { a.rabbitmqPort = port } }

func WithRabbitmqUser(user string) func(a *App) { return func(a *App) { a.rabbitmqUser = user } }

func WithRabbitmqPassword(password string) func(a *App) {
    return func(a *App) { a.rabbitmqPassword = password }
}

func WithIdentityQueueName(queueName string) func(a *App) {
    return func(a *App) { a.identityQueueName = queueName }
}

func WithDeadLetterExchange(exchange string) func(a *App) {
    return func(a *App) { a.deadLetterExchange = exchange }
}

func WithMongoDBURL(url string) func(a *App) { return func(a *App) { a.mongodbURL = url } }

func WithPrimaryStore(dbName, collectionName string) func(a *App) {
    return func(a *App) {
        a.primaryDBName = dbName
        a.primaryCollectionName = collectionName
    }
}

func WithSecondaryIdentityProvider(provider SecondaryIdentityProvider) func(a *App) {
    return func(a *App) { a.secondaryIdentityProvider = provider }
}

func WithAuth0Config(config Auth0Config) func(a *App) {
    return func(a *App) {
        a.auth0Config = NewOptional[Auth0Config](config)
    }
}

func WithKafkaBrokers(brokers string) func(a *App) { return func(a *App) { a.kafkaBrokers = brokers } }

// WithAnalyticsStream names the delivery stream fan-out records are appended to.
func WithAnalyticsStream(stream string) func(a *App) {
    return func(a *App) { a.analyticsStream = stream }
}

// WithAnalyticsSink replaces the kafka sink.
func WithAnalyticsSink(sink changes.AnalyticsSink) func(a *App) {
    return func(a *App) { a.analyticsSink = sink }
}

func WithSearchIndexing(enabled bool) func(a *App) {
    return func(a *App) { a.searchIndexingEnabled = enabled }
}

func WithBatchSize(batchSize int) func(a *App) { return func(a *App) { a.batchSize = batchSize } }

func WithBatchWindow(window time.Duration) func(a *App) {
    return func(a *App) { a.batchWindow = window }
}

func WithLogHandler(handler slog.Handler) func(app *App) {
    return func(app *App) { app.logHandler = handler }
}
