package app

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "net/http"
    "time"

    "user-events-engine/internal/adapters/auth0"
    "user-events-engine/internal/adapters/input/http/ops"
    "user-events-engine/internal/adapters/kafka"
    "user-events-engine/internal/adapters/mongodb"
    rabbitmqadapter "user-events-engine/internal/adapters/rabbitmq"
    "user-events-engine/internal/batch"
    "user-events-engine/internal/domain/changes"
    "user-events-engine/internal/domain/identity"
    "user-events-engine/pkg/logattr"

    "github.com/walletera/eventskit/events"
    "github.com/walletera/eventskit/rabbitmq"
    "github.com/walletera/werrors"
    "go.mongodb.org/mongo-driver/v2/mongo"
    "go.mongodb.org/mongo-driver/v2/mongo/options"
    "go.mongodb.org/mongo-driver/v2/mongo/readpref"
    "go.uber.org/zap"
    "go.uber.org/zap/exp/zapslog"
    "go.uber.org/zap/zapcore"
    "golang.org/x/sync/errgroup"
)

const (
    RabbitMQIdentityExchangeName     = "identity.events"
    RabbitMQExchangeType             = "topic"
    RabbitMQIdentityRoutingKey       = "identity.replicated"
    RabbitMQIdentityQueueName        = "user-events-engine.identity"
    RabbitMQDeadLetterExchangeName   = "user-events-engine.dead-letters"
    RabbitMQDeadLetterRoutingKey     = "changes.failed"
    RabbitMQIdentityFailedRoutingKey = "identity.failed"

    DefaultPrimaryDBName         = "users"
    DefaultPrimaryCollectionName = "users"
    DefaultAnalyticsStream       = "user-events-analytics"

    SecondaryDBName                 = "identity"
    SecondaryAccountsCollectionName = "accounts"
    SearchIndexCollectionName       = "search_index"
    CheckpointsCollectionName       = "checkpoints"

    identityConsumerName = "identity"
    changesConsumerName  = "changes"
)

type App struct {
    rabbitmqHost              string
    rabbitmqPort              int
    rabbitmqUser              string
    rabbitmqPassword          string
    identityQueueName         string
    deadLetterExchange        string
    mongodbURL                string
    primaryDBName             string
    primaryCollectionName     string
    secondaryIdentityProvider SecondaryIdentityProvider
    auth0Config               Optional[Auth0Config]
    kafkaBrokers              string
    analyticsStream           string
    analyticsSink             changes.AnalyticsSink
    searchIndexingEnabled     bool
    batchSize                 int
    batchWindow               time.Duration
    opsAPIConfig              Optional[OpsAPIConfig]
    logHandler                slog.Handler
    logger                    *slog.Logger
    mongoClient               *mongo.Client
    httpServersToStop         []*http.Server
    closers                   []func() error
    cancelConsumers           context.CancelFunc
    consumersDone             chan struct{}
}

func NewApp(opts ...Option) (*App, error) {
    app := &App{}
    err := setDefaultOpts(app)
    if err != nil {
        return nil, fmt.Errorf("failed setting default options: %w", err)
    }
    for _, opt := range opts {
        opt(app)
    }
    return app, nil
}

// Run wires both consumers and starts them in the background. Deliveries
// made after Run returns are observed.
func (app *App) Run(ctx context.Context) error {
    app.logger = slog.
        New(app.logHandler).
        With(logattr.ServiceName("user-events-engine"))

    err := app.connectMongoDB()
    if err != nil {
        return err
    }

    provider, err := app.createIdentityProvider(ctx)
    if err != nil {
        return fmt.Errorf("error creating secondary identity provider: %w", err)
    }

    deadLetterPublisher, err := app.createRabbitMQClient(
        rabbitmq.WithExchangeName(app.deadLetterExchange),
        rabbitmq.WithExchangeType(RabbitMQExchangeType),
    )
    if err != nil {
        return fmt.Errorf("error creating dead letter publisher: %w", err)
    }
    app.closers = append(app.closers, deadLetterPublisher.Close)

    identityConsumer, err := app.createIdentityConsumer(provider, deadLetterPublisher)
    if err != nil {
        return fmt.Errorf("error creating identity consumer: %w", err)
    }

    changeStreamSource, err := app.createChangeStreamSource(ctx, deadLetterPublisher)
    if err != nil {
        return fmt.Errorf("error creating change stream consumer: %w", err)
    }

    consumersCtx, cancelConsumers := context.WithCancel(ctx)
    group, groupCtx := errgroup.WithContext(consumersCtx)

    err = identityConsumer.Start(groupCtx)
    if err != nil {
        cancelConsumers()
        return fmt.Errorf("error starting identity consumer: %w", err)
    }
    err = changeStreamSource.Start(groupCtx)
    if err != nil {
        cancelConsumers()
        return fmt.Errorf("error starting change stream consumer: %w", err)
    }

    group.Go(func() error {
        <-identityConsumer.Done()
        return nil
    })
    group.Go(func() error {
        return changeStreamSource.Run(groupCtx)
    })

    app.cancelConsumers = cancelConsumers
    app.consumersDone = make(chan struct{})
    go func() {
        defer close(app.consumersDone)
        if err := group.Wait(); err != nil {
            app.logger.Error("consumer failed", logattr.Error(err.Error()))
        }
    }()

    if app.opsAPIConfig.Set {
        opsApiHttpServer := app.startOpsAPIHTTPServer(app.logger)
        app.httpServersToStop = append(app.httpServersToStop, opsApiHttpServer)
    }

    app.logger.Info("user-events-engine started")

    return nil
}

// Done is closed when both consumers have stopped.
func (app *App) Done() <-chan struct{} {
    return app.consumersDone
}

func (app *App) Stop(ctx context.Context) {
    if app.cancelConsumers != nil {
        app.cancelConsumers()
        select {
        case <-app.consumersDone:
        case <-ctx.Done():
            app.logger.Error("timeout waiting for consumers to stop")
        }
    }
    for _, closeFunc := range app.closers {
        if err := closeFunc(); err != nil {
            app.logger.Error("error closing client", logattr.Error(err.Error()))
        }
    }
    if app.mongoClient != nil {
        err := app.mongoClient.Disconnect(context.TODO())
        if err != nil {
            app.logger.Error("error disconnecting from mongo", logattr.Error(err.Error()))
        }
    }
    for _, httpServer := range app.httpServersToStop {
        err := httpServer.Shutdown(ctx)
        if err != nil {
            app.logger.Error("error stopping http server", logattr.Error(err.Error()))
        }
    }
    app.logger.Info("user-events-engine stopped")
}

func setDefaultOpts(app *App) error {
    zapLogger, err := newZapLogger()
    if err != nil {
        return err
    }
    app.logHandler = zapslog.NewHandler(zapLogger.Core())
    app.rabbitmqHost = rabbitmq.DefaultHost
    app.rabbitmqPort = rabbitmq.DefaultPort
    app.rabbitmqUser = rabbitmq.DefaultUser
    app.rabbitmqPassword = rabbitmq.DefaultPassword
    app.identityQueueName = RabbitMQIdentityQueueName
    app.deadLetterExchange = RabbitMQDeadLetterExchangeName
    app.primaryDBName = DefaultPrimaryDBName
    app.primaryCollectionName = DefaultPrimaryCollectionName
    app.secondaryIdentityProvider = MongoDBIdentityProvider
    app.analyticsStream = DefaultAnalyticsStream
    app.searchIndexingEnabled = true
    return nil
}

func newZapLogger() (*zap.Logger, error) {
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
    return zapConfig.Build()
}

func (app *App) connectMongoDB() error {
    // Use the SetServerAPIOptions() method to set the Stable API version to 1
    serverAPI := options.ServerAPI(options.ServerAPIVersion1)
    opts := options.Client().ApplyURI(app.mongodbURL).SetServerAPIOptions(serverAPI)

    client, err := mongo.Connect(opts)
    if err != nil {
        return fmt.Errorf("error connecting to mongodb: %w", err)
    }
    app.mongoClient = client
    return nil
}

func (app *App) createRabbitMQClient(opts ...rabbitmq.ConsumerOpt) (*rabbitmq.Client, error) {
    clientOpts := []rabbitmq.ConsumerOpt{
        rabbitmq.WithHost(app.rabbitmqHost),
        rabbitmq.WithPort(uint(app.rabbitmqPort)),
        rabbitmq.WithUser(app.rabbitmqUser),
        rabbitmq.WithPassword(app.rabbitmqPassword),
    }
    client, err := rabbitmq.NewClient(append(clientOpts, opts...)...)
    if err != nil {
        return nil, fmt.Errorf("creating rabbitmq client: %w", err)
    }
    return client, nil
}

func (app *App) createIdentityProvider(ctx context.Context) (identity.Provider, error) {
    switch app.secondaryIdentityProvider {
    case MongoDBIdentityProvider:
        return mongodb.NewIdentityStore(app.mongoClient, SecondaryDBName, SecondaryAccountsCollectionName), nil
    case Auth0IdentityProvider:
        if !app.auth0Config.Set {
            return nil, fmt.Errorf("auth0 identity provider selected without auth0 config")
        }
        config := app.auth0Config.Value
        managementClient, err := auth0.NewManagementClient(ctx, auth0.Config{
            Domain:       config.Domain,
            ClientID:     config.ClientID,
            ClientSecret: config.ClientSecret,
            Connection:   config.Connection,
        })
        if err != nil {
            return nil, err
        }
        return auth0.NewIdentityStore(managementClient.User, config.Connection), nil
    default:
        return nil, fmt.Errorf("unknown secondary identity provider %q", app.secondaryIdentityProvider)
    }
}

func (app *App) createIdentityConsumer(provider identity.Provider, deadLetterPublisher events.Publisher) (*rabbitmqadapter.BatchConsumer, error) {
    rabbitMQClient, err := app.createRabbitMQClient(
        rabbitmq.WithExchangeName(RabbitMQIdentityExchangeName),
        rabbitmq.WithExchangeType(RabbitMQExchangeType),
        rabbitmq.WithConsumerRoutingKeys(RabbitMQIdentityRoutingKey),
        rabbitmq.WithQueueName(app.identityQueueName),
    )
    if err != nil {
        return nil, err
    }

    replicator := identity.NewReplicator(provider, app.logger.With(logattr.Component("identity.Replicator")))
    processor := batch.NewProcessor(
        identityConsumerName,
        identity.NewRecordHandler(
            identity.NewDeserializer(),
            replicator,
            app.logger.With(logattr.Component("identity.RecordHandler")),
        ),
        app.logger.With(logattr.Component("identity.batch.Processor")),
    )

    return rabbitmqadapter.NewBatchConsumer(
        identityConsumerName,
        rabbitMQClient,
        processor,
        app.logger.With(logattr.Component("identity.rabbitmq.BatchConsumer")),
        rabbitmqadapter.WithBatchSize(app.batchSize),
        rabbitmqadapter.WithBatchWindow(app.batchWindow),
        rabbitmqadapter.WithDeadLetter(deadLetterPublisher, events.RoutingInfo{
            Topic:      app.deadLetterExchange,
            RoutingKey: RabbitMQIdentityFailedRoutingKey,
        }),
        withErrorCallback(app.logger.With(logattr.Component("identity.rabbitmq.BatchConsumer"))),
    ), nil
}

func withErrorCallback(logger *slog.Logger) rabbitmqadapter.BatchConsumerOpt {
    return rabbitmqadapter.WithErrorCallback(func(wError werrors.WError) {
        logger.Error(
            "failed processing message",
            logattr.Error(wError.Message()))
    })
}

func (app *App) createChangeStreamSource(ctx context.Context, deadLetterPublisher events.Publisher) (*mongodb.ChangeStreamSource, error) {
    sink, err := app.createAnalyticsSink()
    if err != nil {
        return nil, err
    }

    userHandler := changes.NewUserHandler(
        mongodb.NewSearchIndex(app.mongoClient, app.primaryDBName, SearchIndexCollectionName),
        app.searchIndexingEnabled,
        app.logger.With(logattr.Component("changes.UserHandler")),
    )
    router := changes.NewRouter(
        changes.NewEntityTable(userHandler),
        sink,
        app.analyticsStream,
        app.logger.With(logattr.Component("changes.Router")),
    )
    processor := batch.NewProcessor(
        changesConsumerName,
        changes.NewRecordHandler(router),
        app.logger.With(logattr.Component("changes.batch.Processor")),
        batch.WithDeadLetter(deadLetterPublisher, events.RoutingInfo{
            Topic:      app.deadLetterExchange,
            RoutingKey: RabbitMQDeadLetterRoutingKey,
        }),
    )

    source := mongodb.NewChangeStreamSource(
        app.mongoClient,
        app.primaryDBName,
        app.primaryCollectionName,
        mongodb.NewCheckpointStore(app.mongoClient, app.primaryDBName, CheckpointsCollectionName),
        processor,
        app.batchSize,
        app.logger.With(logattr.Component("changes.mongodb.ChangeStreamSource")),
    )
    err = source.EnablePreImages(ctx)
    if err != nil {
        app.logger.Warn("removals may miss their old image", logattr.Error(err.Error()))
    }
    return source, nil
}

func (app *App) createAnalyticsSink() (changes.AnalyticsSink, error) {
    if app.analyticsSink != nil {
        return app.analyticsSink, nil
    }
    if app.kafkaBrokers == "" {
        return nil, fmt.Errorf("kafka brokers are required for the analytics sink")
    }
    sink := kafka.NewAnalyticsSink(kafka.NewWriter(app.kafkaBrokers))
    app.closers = append(app.closers, sink.Close)
    return sink, nil
}

func (app *App) startOpsAPIHTTPServer(appLogger *slog.Logger) *http.Server {
    handler := ops.NewHandler(
        map[string]ops.HealthCheck{
            "mongodb": func(ctx context.Context) error {
                return app.mongoClient.Ping(ctx, readpref.Primary())
            },
        },
        appLogger.With(logattr.Component("http.OpsAPIHandler")),
    )
    httpServer := &http.Server{
        Addr:    fmt.Sprintf("0.0.0.0:%d", app.opsAPIConfig.Value.OpsAPIHttpServerPort),
        Handler: handler,
    }

    go func() {
        defer appLogger.Info("http server stopped")
        if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            appLogger.Error("http server error", logattr.Error(err.Error()))
        }
    }()

    appLogger.Info("http server started")

    return httpServer
}
