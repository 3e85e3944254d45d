package identity

import (
    "context"
    "errors"
)

var (
    ErrUserNotFound      = errors.New("user not found")
    ErrUserAlreadyExists = errors.New("user already exists")
    ErrInvalidCode       = errors.New("invalid confirmation code")
)

// Account is the secondary region view of a user, as reported by the
// identity store. Only the Replicator mutates it, through a Provider.
type Account struct {
    Username              string
    Email                 string
    Enabled               bool
    Confirmed             bool
    PasswordSet           bool
    DisabledByAdmin       bool
    PasswordResetRequired bool
    EmailVerified         bool
}

// NewAccount describes an account to provision in the secondary store.
type NewAccount struct {
    Username        string
    Email           string
    Password        string
    FirstName       string
    LastName        string
    Profile         string
    SuppressMessage bool
}

// Provider is the secondary identity store capability.
//
// Create must provision the account disabled, with Password set as a
// permanent password, in a single call. SetPassword sets a permanent password
// and marks the account confirmed. Errors other than the sentinels above are
// treated as transient.
type Provider interface {
    Lookup(ctx context.Context, username string) (Account, error)
    Create(ctx context.Context, account NewAccount) error
    Confirm(ctx context.Context, username string, code string) error
    Enable(ctx context.Context, username string) error
    Disable(ctx context.Context, username string) error
    SetPassword(ctx context.Context, username string, password string) error
    ResetPassword(ctx context.Context, username string) error
    VerifyEmail(ctx context.Context, username string) error
}
