package tests

import (
    "context"
    "errors"
    "fmt"
    "testing"
    "time"

    "user-events-engine/internal/adapters/mongodb"
    "user-events-engine/internal/app"
    "user-events-engine/internal/domain/identity"

    "github.com/cucumber/godog"
    "github.com/walletera/eventskit/events"
    "github.com/walletera/eventskit/rabbitmq"
)

const accountStatePollInterval = 100 * time.Millisecond

func TestIdentityReplication(t *testing.T) {

    suite := godog.TestSuite{
        ScenarioInitializer: InitializeIdentityReplicationFeature,
        Options: &godog.Options{
            Format:   "pretty",
            Paths:    []string{"features/identity_replication.feature"},
            TestingT: t, // Testing instance that will run subtests.
        },
    }

    if suite.Run() != 0 {
        t.Fatal("non-zero status returned, failed to run feature tests")
    }
}

func InitializeIdentityReplicationFeature(ctx *godog.ScenarioContext) {
    ctx.Before(beforeScenarioHook)
    ctx.Given(`^a running user-events-engine$`, aRunningUserEventsEngine)
    ctx.Step(`^an identity event is published:$`, anIdentityEventIsPublished)
    ctx.When(`^the same identity event is published again$`, theSameIdentityEventIsPublishedAgain)
    ctx.Step(`^the account "([^"]*)" is in state "([^"]*)" in the secondary region$`, theAccountIsInStateInTheSecondaryRegion)
    ctx.Then(`^the account "([^"]*)" does not exist in the secondary region$`, theAccountDoesNotExistInTheSecondaryRegion)
    ctx.Then(`^the user-events-engine produces the following log:$`, theUserEventsEngineProducesTheFollowingLog)
    ctx.After(afterScenarioHook)
}

func anIdentityEventIsPublished(ctx context.Context, event *godog.DocString) (context.Context, error) {
    if event == nil || len(event.Content) == 0 {
        return ctx, fmt.Errorf("the event is empty or was not defined")
    }
    ctx = context.WithValue(ctx, rawEventKey, []byte(event.Content))
    return publishIdentityEvent(ctx)
}

func theSameIdentityEventIsPublishedAgain(ctx context.Context) (context.Context, error) {
    return publishIdentityEvent(ctx)
}

func publishIdentityEvent(ctx context.Context) (context.Context, error) {
    publisher, err := rabbitmq.NewClient(
        rabbitmq.WithExchangeName(app.RabbitMQIdentityExchangeName),
        rabbitmq.WithExchangeType(app.RabbitMQExchangeType),
    )
    if err != nil {
        return ctx, fmt.Errorf("error creating rabbitmq client: %w", err)
    }
    defer publisher.Close()

    rawEvent, ok := ctx.Value(rawEventKey).([]byte)
    if !ok {
        return ctx, fmt.Errorf("no identity event was published before")
    }
    err = publisher.Publish(ctx, newPublishable(rawEvent), events.RoutingInfo{
        Topic:      app.RabbitMQIdentityExchangeName,
        RoutingKey: app.RabbitMQIdentityRoutingKey,
    })
    if err != nil {
        return ctx, fmt.Errorf("error publishing identity event to rabbitmq: %w", err)
    }

    return ctx, nil
}

func theAccountIsInStateInTheSecondaryRegion(ctx context.Context, username string, expectedState string) (context.Context, error) {
    store, err := secondaryIdentityStore()
    if err != nil {
        return ctx, err
    }

    deadline := time.Now().Add(logsWatcherWaitForTimeout)
    lastState := identity.StateAbsent
    for time.Now().Before(deadline) {
        account, err := store.Lookup(ctx, username)
        switch {
        case err == nil:
            lastState = identity.StateOf(account)
        case !errors.Is(err, identity.ErrUserNotFound):
            return ctx, fmt.Errorf("failed looking up account %s: %w", username, err)
        }
        if lastState.String() == expectedState {
            return ctx, nil
        }
        time.Sleep(accountStatePollInterval)
    }

    return ctx, fmt.Errorf("expected account %s to be %s, but it is %s", username, expectedState, lastState)
}

func theAccountDoesNotExistInTheSecondaryRegion(ctx context.Context, username string) (context.Context, error) {
    store, err := secondaryIdentityStore()
    if err != nil {
        return ctx, err
    }
    _, err = store.Lookup(ctx, username)
    if errors.Is(err, identity.ErrUserNotFound) {
        return ctx, nil
    }
    if err != nil {
        return ctx, fmt.Errorf("failed looking up account %s: %w", username, err)
    }
    return ctx, fmt.Errorf("expected account %s not to exist", username)
}

func secondaryIdentityStore() (*mongodb.IdentityStore, error) {
    client, err := getMongodbClient()
    if err != nil {
        return nil, err
    }
    return mongodb.NewIdentityStore(client, app.SecondaryDBName, app.SecondaryAccountsCollectionName), nil
}
