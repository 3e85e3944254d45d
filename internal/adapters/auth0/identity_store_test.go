package auth0

import (
    "context"
    "errors"
    "net/http"
    "testing"

    "user-events-engine/internal/domain/identity"

    "github.com/auth0/go-auth0"
    "github.com/auth0/go-auth0/management"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type statusError struct {
    status int
}

func (e statusError) Error() string {
    return http.StatusText(e.status)
}

func (e statusError) Status() int {
    return e.status
}

type update struct {
    id   string
    user *management.User
}

type userManagerMock struct {
    users     []*management.User
    created   []*management.User
    updates   []update
    createErr error
    updateErr error
}

func (m *userManagerMock) Create(ctx context.Context, u *management.User, opts ...management.RequestOption) error {
    if m.createErr != nil {
        return m.createErr
    }
    m.created = append(m.created, u)
    return nil
}

func (m *userManagerMock) List(ctx context.Context, opts ...management.RequestOption) (*management.UserList, error) {
    return &management.UserList{Users: m.users}, nil
}

func (m *userManagerMock) Update(ctx context.Context, id string, u *management.User, opts ...management.RequestOption) error {
    if m.updateErr != nil {
        return m.updateErr
    }
    m.updates = append(m.updates, update{id: id, user: u})
    return nil
}

func TestCreateProvisionsBlockedUser(t *testing.T) {
    users := &userManagerMock{}
    store := NewIdentityStore(users, "Username-Password-Authentication")

    err := store.Create(context.Background(), identity.NewAccount{
        Username: "alice",
        Email:    "alice@example.com",
        Password: "S3cret!pass",
        Profile:  "premium",
    })
    require.NoError(t, err)
    require.Len(t, users.created, 1)

    created := users.created[0]
    assert.True(t, created.GetBlocked())
    assert.Equal(t, "alice", created.GetUsername())
    assert.Equal(t, "Username-Password-Authentication", created.GetConnection())
    assert.Equal(t, "premium", (*created.UserMetadata)[profileKey])
    assert.Equal(t, true, (*created.AppMetadata)[passwordSetKey])
}

func TestCreateConflictIsAlreadyExists(t *testing.T) {
    store := NewIdentityStore(&userManagerMock{createErr: statusError{status: http.StatusConflict}}, "db")

    err := store.Create(context.Background(), identity.NewAccount{Username: "alice", Email: "alice@example.com"})
    assert.ErrorIs(t, err, identity.ErrUserAlreadyExists)
}

func TestLookupMapsMetadata(t *testing.T) {
    users := &userManagerMock{users: []*management.User{{
        ID:            auth0.String("auth0|1"),
        Email:         auth0.String("alice@example.com"),
        Blocked:       auth0.Bool(true),
        EmailVerified: auth0.Bool(true),
        AppMetadata: &map[string]interface{}{
            confirmedKey:       true,
            disabledByAdminKey: true,
            passwordSetKey:     true,
        },
    }}}
    store := NewIdentityStore(users, "db")

    account, err := store.Lookup(context.Background(), "alice")
    require.NoError(t, err)
    assert.Equal(t, identity.Account{
        Username:        "alice",
        Email:           "alice@example.com",
        Confirmed:       true,
        PasswordSet:     true,
        DisabledByAdmin: true,
        EmailVerified:   true,
    }, account)
    assert.Equal(t, identity.StateDisabled, identity.StateOf(account))
}

func TestLookupMissingUser(t *testing.T) {
    store := NewIdentityStore(&userManagerMock{}, "db")

    _, err := store.Lookup(context.Background(), "ghost")
    assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestSetPasswordUpdatesPasswordAlone(t *testing.T) {
    users := &userManagerMock{users: []*management.User{{ID: auth0.String("auth0|1")}}}
    store := NewIdentityStore(users, "db")

    require.NoError(t, store.SetPassword(context.Background(), "alice", "N3w!password"))
    require.Len(t, users.updates, 2)

    assert.Equal(t, "auth0|1", users.updates[0].id)
    assert.Equal(t, "N3w!password", users.updates[0].user.GetPassword())
    assert.Nil(t, users.updates[0].user.AppMetadata)
    assert.Nil(t, users.updates[1].user.Password)
    assert.Equal(t, true, (*users.updates[1].user.AppMetadata)[confirmedKey])
}

func TestConfirmRejectsEmptyCode(t *testing.T) {
    users := &userManagerMock{users: []*management.User{{ID: auth0.String("auth0|1")}}}
    store := NewIdentityStore(users, "db")

    err := store.Confirm(context.Background(), "alice", " ")
    assert.ErrorIs(t, err, identity.ErrInvalidCode)
    assert.Empty(t, users.updates)
}

func TestUpdateErrors(t *testing.T) {
    users := &userManagerMock{
        users:     []*management.User{{ID: auth0.String("auth0|1")}},
        updateErr: statusError{status: http.StatusNotFound},
    }
    store := NewIdentityStore(users, "db")
    assert.ErrorIs(t, store.Enable(context.Background(), "alice"), identity.ErrUserNotFound)

    users.updateErr = statusError{status: http.StatusTooManyRequests}
    err := store.Disable(context.Background(), "alice")
    require.Error(t, err)
    assert.False(t, errors.Is(err, identity.ErrUserNotFound))
}
