package identity

import (
    "context"
    "errors"
    "log/slog"

    "user-events-engine/pkg/logattr"

    "github.com/walletera/eventskit/events"
    "github.com/walletera/werrors"
)

var _ Handler = (*Replicator)(nil)

// Replicator drives the secondary identity store toward the primary. An
// account it provisions stays disabled until a ConfirmSignUp or a
// NewPasswordChallengeResponse for the same username has been applied.
type Replicator struct {
    provider Provider
    logger   *slog.Logger
}

func NewReplicator(provider Provider, logger *slog.Logger) *Replicator {
    return &Replicator{
        provider: provider,
        logger:   logger,
    }
}

// replicateFunc issues the provider calls for an applicable step.
type replicateFunc func(ctx context.Context, account Account, step Step) error

func (r *Replicator) HandleSignUp(ctx context.Context, event SignUp) werrors.WError {
    return r.replicate(ctx, event, event.Username, func(ctx context.Context, _ Account, _ Step) error {
        return r.provider.Create(ctx, NewAccount{
            Username:        event.Username,
            Email:           event.Email,
            Password:        event.Password,
            FirstName:       event.FirstName,
            LastName:        event.LastName,
            Profile:         event.Profile,
            SuppressMessage: true,
        })
    })
}

func (r *Replicator) HandleAdminCreateUser(ctx context.Context, event AdminCreateUser) werrors.WError {
    return r.replicate(ctx, event, event.Username, func(ctx context.Context, _ Account, _ Step) error {
        return r.provider.Create(ctx, NewAccount{
            Username:        event.Username,
            Email:           event.Email,
            Password:        event.Password,
            FirstName:       event.FirstName,
            LastName:        event.LastName,
            SuppressMessage: event.SuppressMessage,
        })
    })
}

func (r *Replicator) HandleConfirmSignUp(ctx context.Context, event ConfirmSignUp) werrors.WError {
    return r.replicate(ctx, event, event.Username, func(ctx context.Context, _ Account, step Step) error {
        err := r.provider.Confirm(ctx, event.Username, event.Code)
        if err != nil {
            return err
        }
        // An account disabled by an administrator is confirmed but stays disabled.
        if step.To != StateActive {
            return nil
        }
        return r.provider.Enable(ctx, event.Username)
    })
}

func (r *Replicator) HandleNewPasswordChallengeResponse(ctx context.Context, event NewPasswordChallengeResponse) werrors.WError {
    return r.replicate(ctx, event, event.Username, func(ctx context.Context, _ Account, _ Step) error {
        err := r.provider.SetPassword(ctx, event.Username, event.Password)
        if err != nil {
            return err
        }
        return r.provider.Enable(ctx, event.Username)
    })
}

func (r *Replicator) HandleDisable(ctx context.Context, event Disable) werrors.WError {
    return r.replicate(ctx, event, event.Username, func(ctx context.Context, _ Account, _ Step) error {
        return r.provider.Disable(ctx, event.Username)
    })
}

func (r *Replicator) HandleEnable(ctx context.Context, event Enable) werrors.WError {
    return r.replicate(ctx, event, event.Username, func(ctx context.Context, account Account, _ Step) error {
        if !account.Confirmed {
            return &PreconditionError{EventType: event.Type(), From: StateOf(account), Pending: true}
        }
        return r.provider.Enable(ctx, event.Username)
    })
}

func (r *Replicator) HandleChangePassword(ctx context.Context, event ChangePassword) werrors.WError {
    return r.replicate(ctx, event, event.Username, func(ctx context.Context, _ Account, _ Step) error {
        return r.provider.ResetPassword(ctx, event.Username)
    })
}

func (r *Replicator) HandleVerify(ctx context.Context, event Verify) werrors.WError {
    return r.replicate(ctx, event, event.Username, func(ctx context.Context, _ Account, _ Step) error {
        return r.provider.VerifyEmail(ctx, event.Username)
    })
}

func (r *Replicator) replicate(ctx context.Context, event events.EventData, username string, replicateStep replicateFunc) werrors.WError {
    logger := r.logger.With(
        logattr.EventType(event.Type()),
        logattr.Username(username),
        logattr.CorrelationId(event.CorrelationID()),
    )

    from := StateAbsent
    account, err := r.provider.Lookup(ctx, username)
    switch {
    case err == nil:
        from = StateOf(account)
    case !errors.Is(err, ErrUserNotFound):
        return r.fail(logger, err)
    }

    step, err := Transition(event.Type(), from)
    if err != nil {
        return r.fail(logger.With(logattr.State(from.String())), err)
    }
    if !step.Apply {
        logger.Info("duplicate event ignored", logattr.State(from.String()))
        return nil
    }

    err = replicateStep(ctx, account, step)
    if errors.Is(err, ErrUserAlreadyExists) {
        // Another delivery of the same event provisioned it first.
        logger.Info("duplicate event ignored", logattr.State(step.To.String()))
        return nil
    }
    if err != nil {
        return r.fail(logger.With(logattr.State(from.String())), err)
    }

    logger.Info(
        "user replicated",
        slog.String("from", from.String()),
        slog.String("to", step.To.String()),
    )
    return nil
}

func (r *Replicator) fail(logger *slog.Logger, err error) werrors.WError {
    werr := classify(err)
    logger.Error(
        "failed replicating user",
        logattr.Retryable(werr.IsRetryable()),
        logattr.Error(err.Error()),
    )
    return werr
}

func classify(err error) werrors.WError {
    var precondition *PreconditionError
    switch {
    case errors.As(err, &precondition):
        if precondition.Retryable() {
            return werrors.NewRetryableInternalError("%s", err.Error())
        }
        return werrors.NewNonRetryableInternalError("%s", err.Error())
    case errors.Is(err, ErrInvalidCode):
        return werrors.NewNonRetryableInternalError("%s", err.Error())
    case errors.Is(err, ErrUserNotFound):
        // The account may be provisioned by an event still in flight.
        return werrors.NewRetryableInternalError("%s", err.Error())
    default:
        return werrors.NewRetryableInternalError("identity provider failure: %s", err.Error())
    }
}
