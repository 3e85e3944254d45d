package auth0

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "strings"

    "user-events-engine/internal/domain/identity"

    "github.com/auth0/go-auth0"
    "github.com/auth0/go-auth0/management"
)

const (
    confirmedKey             = "confirmed"
    disabledByAdminKey       = "disabled_by_admin"
    passwordResetRequiredKey = "password_reset_required"
    passwordSetKey           = "password_set"
    profileKey               = "profile"
)

var _ identity.Provider = (*IdentityStore)(nil)

// UserManager is the subset of the management API users endpoint in use.
type UserManager interface {
    Create(ctx context.Context, u *management.User, opts ...management.RequestOption) error
    List(ctx context.Context, opts ...management.RequestOption) (*management.UserList, error)
    Update(ctx context.Context, id string, u *management.User, opts ...management.RequestOption) error
}

type Config struct {
    Domain       string
    ClientID     string
    ClientSecret string
    Connection   string
}

// IdentityStore replicates accounts into an Auth0 tenant. Account state the
// tenant does not model natively lives in app_metadata.
type IdentityStore struct {
    users      UserManager
    connection string
}

func NewIdentityStore(users UserManager, connection string) *IdentityStore {
    return &IdentityStore{users: users, connection: connection}
}

func NewManagementClient(ctx context.Context, cfg Config) (*management.Management, error) {
    domain := strings.TrimSpace(cfg.Domain)
    if domain == "" {
        return nil, fmt.Errorf("auth0 management: domain is required")
    }
    client, err := management.New(
        domain,
        management.WithClientCredentials(ctx, cfg.ClientID, cfg.ClientSecret),
    )
    if err != nil {
        return nil, fmt.Errorf("auth0 management: failed to create client: %w", err)
    }
    return client, nil
}

func (s *IdentityStore) Lookup(ctx context.Context, username string) (identity.Account, error) {
    user, err := s.find(ctx, username)
    if err != nil {
        return identity.Account{}, err
    }
    metadata := appMetadata(user)
    return identity.Account{
        Username:              username,
        Email:                 user.GetEmail(),
        Enabled:               !user.GetBlocked(),
        Confirmed:             metadataFlag(metadata, confirmedKey),
        PasswordSet:           metadataFlag(metadata, passwordSetKey),
        DisabledByAdmin:       metadataFlag(metadata, disabledByAdminKey),
        PasswordResetRequired: metadataFlag(metadata, passwordResetRequiredKey),
        EmailVerified:         user.GetEmailVerified(),
    }, nil
}

func (s *IdentityStore) Create(ctx context.Context, account identity.NewAccount) error {
    user := &management.User{
        Connection:  auth0.String(s.connection),
        Username:    auth0.String(account.Username),
        Email:       auth0.String(account.Email),
        Blocked:     auth0.Bool(true),
        VerifyEmail: auth0.Bool(false),
        AppMetadata: &map[string]interface{}{
            confirmedKey:   false,
            passwordSetKey: account.Password != "",
        },
    }
    if account.Password != "" {
        user.Password = auth0.String(account.Password)
    }
    if account.FirstName != "" {
        user.GivenName = auth0.String(account.FirstName)
    }
    if account.LastName != "" {
        user.FamilyName = auth0.String(account.LastName)
    }
    if account.Profile != "" {
        user.UserMetadata = &map[string]interface{}{profileKey: account.Profile}
    }

    err := s.users.Create(ctx, user)
    if err != nil {
        if hasStatus(err, http.StatusConflict) {
            return fmt.Errorf("%w: %s", identity.ErrUserAlreadyExists, account.Username)
        }
        return fmt.Errorf("failed creating auth0 user %s: %w", account.Username, err)
    }
    return nil
}

func (s *IdentityStore) Confirm(ctx context.Context, username string, code string) error {
    if strings.TrimSpace(code) == "" {
        return identity.ErrInvalidCode
    }
    return s.update(ctx, username, &management.User{
        EmailVerified: auth0.Bool(true),
        AppMetadata:   &map[string]interface{}{confirmedKey: true},
    })
}

func (s *IdentityStore) Enable(ctx context.Context, username string) error {
    return s.update(ctx, username, &management.User{
        Blocked:     auth0.Bool(false),
        AppMetadata: &map[string]interface{}{disabledByAdminKey: false},
    })
}

func (s *IdentityStore) Disable(ctx context.Context, username string) error {
    return s.update(ctx, username, &management.User{
        Blocked:     auth0.Bool(true),
        AppMetadata: &map[string]interface{}{disabledByAdminKey: true},
    })
}

// SetPassword issues two updates: the password endpoint does not accept
// other attributes alongside it.
func (s *IdentityStore) SetPassword(ctx context.Context, username string, password string) error {
    user, err := s.find(ctx, username)
    if err != nil {
        return err
    }
    err = s.users.Update(ctx, user.GetID(), &management.User{
        Connection: auth0.String(s.connection),
        Password:   auth0.String(password),
    })
    if err != nil {
        return s.updateError(username, err)
    }
    err = s.users.Update(ctx, user.GetID(), &management.User{
        AppMetadata: &map[string]interface{}{
            confirmedKey:             true,
            passwordSetKey:           true,
            passwordResetRequiredKey: false,
        },
    })
    if err != nil {
        return s.updateError(username, err)
    }
    return nil
}

func (s *IdentityStore) ResetPassword(ctx context.Context, username string) error {
    return s.update(ctx, username, &management.User{
        AppMetadata: &map[string]interface{}{passwordResetRequiredKey: true},
    })
}

func (s *IdentityStore) VerifyEmail(ctx context.Context, username string) error {
    return s.update(ctx, username, &management.User{EmailVerified: auth0.Bool(true)})
}

func (s *IdentityStore) find(ctx context.Context, username string) (*management.User, error) {
    userList, err := s.users.List(
        ctx,
        management.Query(fmt.Sprintf("username:%q", username)),
        management.Parameter("search_engine", "v3"),
    )
    if err != nil {
        return nil, fmt.Errorf("failed searching auth0 user %s: %w", username, err)
    }
    if userList == nil || len(userList.Users) == 0 {
        return nil, fmt.Errorf("%w: %s", identity.ErrUserNotFound, username)
    }
    return userList.Users[0], nil
}

func (s *IdentityStore) update(ctx context.Context, username string, change *management.User) error {
    user, err := s.find(ctx, username)
    if err != nil {
        return err
    }
    err = s.users.Update(ctx, user.GetID(), change)
    if err != nil {
        return s.updateError(username, err)
    }
    return nil
}

func (s *IdentityStore) updateError(username string, err error) error {
    if hasStatus(err, http.StatusNotFound) {
        return fmt.Errorf("%w: %s", identity.ErrUserNotFound, username)
    }
    return fmt.Errorf("failed updating auth0 user %s: %w", username, err)
}

func hasStatus(err error, status int) bool {
    var managementErr management.Error
    return errors.As(err, &managementErr) && managementErr.Status() == status
}

func appMetadata(user *management.User) map[string]interface{} {
    if user.AppMetadata == nil {
        return nil
    }
    return *user.AppMetadata
}

func metadataFlag(metadata map[string]interface{}, key string) bool {
    flag, _ := metadata[key].(bool)
    return flag
}
