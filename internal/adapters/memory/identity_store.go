// Package memory holds in-process adapters used by tests and local runs.
package memory

import (
    "context"
    "fmt"
    "strings"
    "sync"

    "user-events-engine/internal/domain/identity"
)

var _ identity.Provider = (*IdentityStore)(nil)

type storedAccount struct {
    account  identity.Account
    password string
    profile  string
}

// IdentityStore is an in-memory secondary identity store with the same
// semantics the real adapters promise.
type IdentityStore struct {
    mu       sync.Mutex
    accounts map[string]*storedAccount
    failures map[string]error
    calls    []string
}

func NewIdentityStore() *IdentityStore {
    return &IdentityStore{
        accounts: make(map[string]*storedAccount),
        failures: make(map[string]error),
    }
}

// FailNext makes the next call to operation (e.g. "Enable") return err.
func (s *IdentityStore) FailNext(operation string, err error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.failures[operation] = err
}

// Calls returns the mutating calls issued so far, as "Operation:username".
func (s *IdentityStore) Calls() []string {
    s.mu.Lock()
    defer s.mu.Unlock()
    return append([]string(nil), s.calls...)
}

// Account returns a snapshot of the stored account.
func (s *IdentityStore) Account(username string) (identity.Account, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    stored, found := s.accounts[username]
    if !found {
        return identity.Account{}, false
    }
    return stored.account, true
}

func (s *IdentityStore) Password(username string) string {
    s.mu.Lock()
    defer s.mu.Unlock()
    if stored, found := s.accounts[username]; found {
        return stored.password
    }
    return ""
}

func (s *IdentityStore) Len() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.accounts)
}

func (s *IdentityStore) Lookup(ctx context.Context, username string) (identity.Account, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if err := s.injected("Lookup"); err != nil {
        return identity.Account{}, err
    }
    stored, found := s.accounts[username]
    if !found {
        return identity.Account{}, fmt.Errorf("%w: %s", identity.ErrUserNotFound, username)
    }
    return stored.account, nil
}

func (s *IdentityStore) Create(ctx context.Context, account identity.NewAccount) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if err := s.record("Create", account.Username); err != nil {
        return err
    }
    if _, found := s.accounts[account.Username]; found {
        return fmt.Errorf("%w: %s", identity.ErrUserAlreadyExists, account.Username)
    }
    s.accounts[account.Username] = &storedAccount{
        account: identity.Account{
            Username:    account.Username,
            Email:       account.Email,
            PasswordSet: account.Password != "",
        },
        password: account.Password,
        profile:  account.Profile,
    }
    return nil
}

func (s *IdentityStore) Confirm(ctx context.Context, username string, code string) error {
    return s.mutate("Confirm", username, func(stored *storedAccount) error {
        if strings.TrimSpace(code) == "" {
            return identity.ErrInvalidCode
        }
        stored.account.Confirmed = true
        stored.account.EmailVerified = true
        return nil
    })
}

func (s *IdentityStore) Enable(ctx context.Context, username string) error {
    return s.mutate("Enable", username, func(stored *storedAccount) error {
        stored.account.Enabled = true
        stored.account.DisabledByAdmin = false
        return nil
    })
}

func (s *IdentityStore) Disable(ctx context.Context, username string) error {
    return s.mutate("Disable", username, func(stored *storedAccount) error {
        stored.account.Enabled = false
        stored.account.DisabledByAdmin = true
        return nil
    })
}

func (s *IdentityStore) SetPassword(ctx context.Context, username string, password string) error {
    return s.mutate("SetPassword", username, func(stored *storedAccount) error {
        stored.password = password
        stored.account.PasswordSet = true
        stored.account.PasswordResetRequired = false
        stored.account.Confirmed = true
        return nil
    })
}

func (s *IdentityStore) ResetPassword(ctx context.Context, username string) error {
    return s.mutate("ResetPassword", username, func(stored *storedAccount) error {
        stored.account.PasswordResetRequired = true
        return nil
    })
}

func (s *IdentityStore) VerifyEmail(ctx context.Context, username string) error {
    return s.mutate("VerifyEmail", username, func(stored *storedAccount) error {
        stored.account.EmailVerified = true
        return nil
    })
}

func (s *IdentityStore) mutate(operation, username string, change func(stored *storedAccount) error) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if err := s.record(operation, username); err != nil {
        return err
    }
    stored, found := s.accounts[username]
    if !found {
        return fmt.Errorf("%w: %s", identity.ErrUserNotFound, username)
    }
    return change(stored)
}

func (s *IdentityStore) record(operation, username string) error {
    if err := s.injected(operation); err != nil {
        return err
    }
    s.calls = append(s.calls, operation+":"+username)
    return nil
}

func (s *IdentityStore) injected(operation string) error {
    err, found := s.failures[operation]
    if !found {
        return nil
    }
    delete(s.failures, operation)
    return err
}
