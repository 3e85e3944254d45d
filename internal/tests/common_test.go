package tests

import (
    "context"
    "fmt"
    "log/slog"
    "time"

    "user-events-engine/internal/adapters/memory"
    "user-events-engine/internal/app"

    "github.com/cucumber/godog"
    "github.com/walletera/eventskit/rabbitmq"
    slogwatcher "github.com/walletera/logs-watcher/slog"
    "go.mongodb.org/mongo-driver/v2/bson"
    "go.mongodb.org/mongo-driver/v2/mongo"
    "go.mongodb.org/mongo-driver/v2/mongo/options"
    "go.uber.org/zap"
    "go.uber.org/zap/exp/zapslog"
    "go.uber.org/zap/zapcore"
)

type ctxKey string

const (
    appKey                    ctxKey = "app"
    appCtxCancelFuncKey       ctxKey = "appCtxCancelFunc"
    logsWatcherKey            ctxKey = "logsWatcher"
    analyticsSinkKey          ctxKey = "analyticsSink"
    rawEventKey               ctxKey = "rawEvent"
    logsWatcherWaitForTimeout = 5 * time.Second
    opsApiHttpServerPort      = 8585
    mongodbURL                = "mongodb://localhost:27017/?directConnection=true"
)

var mongodbClient *mongo.Client

func beforeScenarioHook(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
    handler, err := newZapHandler()
    if err != nil {
        return ctx, err
    }
    logsWatcher := slogwatcher.NewWatcher(handler)
    ctx = context.WithValue(ctx, logsWatcherKey, logsWatcher)

    client, err := getMongodbClient()
    if err != nil {
        return ctx, err
    }

    // cleanup databases before each scenario
    err = client.Database(app.SecondaryDBName).Collection(app.SecondaryAccountsCollectionName).Drop(ctx)
    if err != nil {
        return ctx, err
    }
    primaryDB := client.Database(app.DefaultPrimaryDBName)
    for _, collectionName := range []string{
        app.DefaultPrimaryCollectionName,
        app.SearchIndexCollectionName,
        app.CheckpointsCollectionName,
    } {
        err = primaryDB.Collection(collectionName).Drop(ctx)
        if err != nil {
            return ctx, err
        }
    }
    // the primary collection must exist for the engine to enable pre-images on it
    err = primaryDB.RunCommand(ctx, bson.D{{Key: "create", Value: app.DefaultPrimaryCollectionName}}).Err()
    if err != nil {
        return ctx, err
    }

    return ctx, nil
}

func afterScenarioHook(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
    logsWatcher := logsWatcherFromCtx(ctx)

    appFromCtx(ctx).Stop(ctx)
    foundLogEntry := logsWatcher.WaitFor("user-events-engine stopped", logsWatcherWaitForTimeout)
    if !foundLogEntry {
        return ctx, fmt.Errorf("app termination failed (didn't find expected log entry)")
    }

    if cancel, ok := ctx.Value(appCtxCancelFuncKey).(context.CancelFunc); ok {
        cancel()
    }

    err = logsWatcher.Stop()
    if err != nil {
        return ctx, fmt.Errorf("failed stopping the logsWatcher: %w", err)
    }

    return ctx, nil
}

func aRunningUserEventsEngine(ctx context.Context) (context.Context, error) {
    logHandler := logsWatcherFromCtx(ctx).DecoratedHandler()

    appCtx, appCtxCancelFunc := context.WithCancel(ctx)

    analyticsSink := memory.NewAnalyticsSink()
    engine, err := app.NewApp(
        app.WithOpsAPIConfig(app.OpsAPIConfig{
            OpsAPIHttpServerPort: opsApiHttpServerPort,
        }),
        app.WithRabbitmqHost(rabbitmq.DefaultHost),
        app.WithRabbitmqPort(rabbitmq.DefaultPort),
        app.WithRabbitmqUser(rabbitmq.DefaultUser),
        app.WithRabbitmqPassword(rabbitmq.DefaultPassword),
        app.WithMongoDBURL(mongodbURL),
        app.WithAnalyticsSink(analyticsSink),
        app.WithBatchWindow(100*time.Millisecond),
        app.WithLogHandler(logHandler),
    )
    if err != nil {
        appCtxCancelFunc()
        return ctx, fmt.Errorf("failed initializing user-events-engine: %w", err)
    }

    err = engine.Run(appCtx)
    if err != nil {
        appCtxCancelFunc()
        return ctx, fmt.Errorf("failed running user-events-engine: %w", err)
    }

    ctx = context.WithValue(ctx, appKey, engine)
    ctx = context.WithValue(ctx, appCtxCancelFuncKey, appCtxCancelFunc)
    ctx = context.WithValue(ctx, analyticsSinkKey, analyticsSink)

    foundLogEntry := logsWatcherFromCtx(ctx).WaitFor("user-events-engine started", logsWatcherWaitForTimeout)
    if !foundLogEntry {
        return ctx, fmt.Errorf("user-events-engine startup failed (didn't find expected log entry)")
    }

    return ctx, nil
}

func theUserEventsEngineProducesTheFollowingLog(ctx context.Context, logMsg string) (context.Context, error) {
    logsWatcher := logsWatcherFromCtx(ctx)
    foundLogEntry := logsWatcher.WaitFor(logMsg, logsWatcherWaitForTimeout)
    if !foundLogEntry {
        return ctx, fmt.Errorf("didn't find expected log entry: %s", logMsg)
    }
    return ctx, nil
}

func logsWatcherFromCtx(ctx context.Context) *slogwatcher.Watcher {
    value := ctx.Value(logsWatcherKey)
    if value == nil {
        panic("logs watcher not found in context")
    }
    watcher, ok := value.(*slogwatcher.Watcher)
    if !ok {
        panic("logs watcher has invalid type")
    }
    return watcher
}

func appFromCtx(ctx context.Context) *app.App {
    value := ctx.Value(appKey)
    if value == nil {
        panic("user-events-engine not found in context")
    }
    engine, ok := value.(*app.App)
    if !ok {
        panic("user-events-engine has invalid type")
    }
    return engine
}

func analyticsSinkFromCtx(ctx context.Context) *memory.AnalyticsSink {
    value := ctx.Value(analyticsSinkKey)
    if value == nil {
        panic("analytics sink not found in context")
    }
    sink, ok := value.(*memory.AnalyticsSink)
    if !ok {
        panic("analytics sink has invalid type")
    }
    return sink
}

func newZapHandler() (slog.Handler, error) {
    encoderConfig := zap.NewProductionEncoderConfig()
    encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
    zapConfig := zap.Config{
        Level:             zap.NewAtomicLevelAt(zap.DebugLevel),
        Development:       false,
        DisableStacktrace: true,
        Sampling: &zap.SamplingConfig{
            Initial:    100,
            Thereafter: 100,
        },
        Encoding:         "json",
        EncoderConfig:    encoderConfig,
        OutputPaths:      []string{"stderr"},
        ErrorOutputPaths: []string{"stderr"},
    }
    zapLogger, err := zapConfig.Build()
    if err != nil {
        return nil, err
    }
    if zapLogger.Core() == nil {
        return nil, fmt.Errorf("zapLogger.Core() is nil")
    }
    return zapslog.NewHandler(zapLogger.Core()), nil
}

func getMongodbClient() (*mongo.Client, error) {
    if mongodbClient != nil {
        return mongodbClient, nil
    }

    // Use the SetServerAPIOptions() method to set the Stable API version to 1
    serverAPI := options.ServerAPI(options.ServerAPIVersion1)
    opts := options.Client().ApplyURI(mongodbURL).SetServerAPIOptions(serverAPI)

    client, err := mongo.Connect(opts)
    if err != nil {
        return nil, err
    }
    mongodbClient = client

    return mongodbClient, nil
}
