package main

import (
    "context"
    "os"
    "os/signal"
    "strconv"
    "syscall"
    "time"

    "user-events-engine/internal/app"

    "github.com/joho/godotenv"
)

const shutdownTimeout = 10 * time.Second

func main() {
    ctx, ctxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer ctxCancel()

    // a missing .env file is fine, the environment may already be set
    _ = godotenv.Load()

    rabbitmqHost := mustGetEnv("RABBITMQ_HOST")
    rabbitmqPort := mustGetIntEnv("RABBITMQ_PORT")
    rabbitmqUser := mustGetEnv("RABBITMQ_USER")
    rabbitmqPassword := mustGetEnv("RABBITMQ_PASSWORD")
    mongodbURL := mustGetEnv("MONGODB_URL")
    opsApiHttpServerPort := mustGetIntEnv("OPS_API_HTTP_SERVER_PORT")

    opts := []app.Option{
        app.WithRabbitmqHost(rabbitmqHost),
        app.WithRabbitmqPort(rabbitmqPort),
        app.WithRabbitmqUser(rabbitmqUser),
        app.WithRabbitmqPassword(rabbitmqPassword),
        app.WithIdentityQueueName(getEnv("IDENTITY_QUEUE_NAME", app.RabbitMQIdentityQueueName)),
        app.WithDeadLetterExchange(getEnv("DEAD_LETTER_EXCHANGE", app.RabbitMQDeadLetterExchangeName)),
        app.WithMongoDBURL(mongodbURL),
        app.WithPrimaryStore(
            getEnv("PRIMARY_DB_NAME", app.DefaultPrimaryDBName),
            getEnv("PRIMARY_COLLECTION_NAME", app.DefaultPrimaryCollectionName),
        ),
        app.WithKafkaBrokers(mustGetEnv("KAFKA_BROKERS")),
        app.WithAnalyticsStream(mustGetEnv("ANALYTICS_TOPIC")),
        app.WithSearchIndexing(getBoolEnv("SEARCH_INDEXING_ENABLED", true)),
        app.WithBatchSize(getIntEnv("BATCH_SIZE", 10)),
        app.WithBatchWindow(time.Duration(getIntEnv("BATCH_WINDOW_MS", 500)) * time.Millisecond),
        app.WithOpsAPIConfig(app.OpsAPIConfig{
            OpsAPIHttpServerPort: opsApiHttpServerPort,
        }),
    }

    secondaryIdentityProvider := app.SecondaryIdentityProvider(getEnv("SECONDARY_IDENTITY_PROVIDER", string(app.MongoDBIdentityProvider)))
    opts = append(opts, app.WithSecondaryIdentityProvider(secondaryIdentityProvider))
    if secondaryIdentityProvider == app.Auth0IdentityProvider {
        opts = append(opts, app.WithAuth0Config(app.Auth0Config{
            Domain:       mustGetEnv("AUTH0_DOMAIN"),
            ClientID:     mustGetEnv("AUTH0_CLIENT_ID"),
            ClientSecret: mustGetEnv("AUTH0_CLIENT_SECRET"),
            Connection:   mustGetEnv("AUTH0_CONNECTION"),
        }))
    }

    app, err := app.NewApp(opts...)
    if err != nil {
        panic(err)
    }

    err = app.Run(ctx)
    if err != nil {
        panic(err)
    }

    select {
    case <-ctx.Done():
    case <-app.Done():
    }

    shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), shutdownTimeout)
    defer shutdownCtxCancel()

    app.Stop(shutdownCtx)
}

func mustGetEnv(envName string) string {
    value, found := os.LookupEnv(envName)
    if !found {
        panic("env var not defined: " + envName)
    }
    return value
}

func mustGetIntEnv(envName string) int {
    strEnvValue := mustGetEnv(envName)
    intEnvValue, err := strconv.Atoi(strEnvValue)
    if err != nil {
        panic("env var is not an int: " + envName)
    }
    return intEnvValue
}

func getEnv(envName string, defaultValue string) string {
    value, found := os.LookupEnv(envName)
    if !found {
        return defaultValue
    }
    return value
}

func getIntEnv(envName string, defaultValue int) int {
    if _, found := os.LookupEnv(envName); !found {
        return defaultValue
    }
    return mustGetIntEnv(envName)
}

func getBoolEnv(envName string, defaultValue bool) bool {
    strEnvValue, found := os.LookupEnv(envName)
    if !found {
        return defaultValue
    }
    boolEnvValue, err := strconv.ParseBool(strEnvValue)
    if err != nil {
        panic("env var is not a bool: " + envName)
    }
    return boolEnvValue
}
