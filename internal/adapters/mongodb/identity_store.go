package mongodb

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "user-events-engine/internal/domain/identity"

    "go.mongodb.org/mongo-driver/v2/bson"
    "go.mongodb.org/mongo-driver/v2/mongo"
    "golang.org/x/crypto/bcrypt"
)

var _ identity.Provider = (*IdentityStore)(nil)

type AccountBSON struct {
    Username              string    `bson:"_id"`
    Email                 string    `bson:"email"`
    PasswordHash          string    `bson:"passwordHash,omitempty"`
    FirstName             string    `bson:"firstName,omitempty"`
    LastName              string    `bson:"lastName,omitempty"`
    Profile               string    `bson:"profile,omitempty"`
    Enabled               bool      `bson:"enabled"`
    Confirmed             bool      `bson:"confirmed"`
    DisabledByAdmin       bool      `bson:"disabledByAdmin"`
    PasswordResetRequired bool      `bson:"passwordResetRequired"`
    EmailVerified         bool      `bson:"emailVerified"`
    CreatedAt             time.Time `bson:"createdAt"`
    UpdatedAt             time.Time `bson:"updatedAt"`
}

func (a AccountBSON) toAccount() identity.Account {
    return identity.Account{
        Username:              a.Username,
        Email:                 a.Email,
        Enabled:               a.Enabled,
        Confirmed:             a.Confirmed,
        PasswordSet:           a.PasswordHash != "",
        DisabledByAdmin:       a.DisabledByAdmin,
        PasswordResetRequired: a.PasswordResetRequired,
        EmailVerified:         a.EmailVerified,
    }
}

// IdentityStore keeps the secondary region accounts in a mongo collection
// keyed by username.
type IdentityStore struct {
    client         *mongo.Client
    dbName         string
    collectionName string
    now            func() time.Time
}

func NewIdentityStore(client *mongo.Client, dbName string, collectionName string) *IdentityStore {
    return &IdentityStore{
        client:         client,
        dbName:         dbName,
        collectionName: collectionName,
        now:            time.Now,
    }
}

func (s *IdentityStore) Lookup(ctx context.Context, username string) (identity.Account, error) {
    result := s.collection().FindOne(ctx, bson.M{"_id": username})
    if err := result.Err(); err != nil {
        if errors.Is(err, mongo.ErrNoDocuments) {
            return identity.Account{}, fmt.Errorf("%w: %s", identity.ErrUserNotFound, username)
        }
        return identity.Account{}, fmt.Errorf("failed finding account %s: %w", username, err)
    }
    var account AccountBSON
    if err := result.Decode(&account); err != nil {
        return identity.Account{}, fmt.Errorf("failed decoding account %s: %w", username, err)
    }
    return account.toAccount(), nil
}

func (s *IdentityStore) Create(ctx context.Context, newAccount identity.NewAccount) error {
    passwordHash, err := hashPassword(newAccount.Password)
    if err != nil {
        return err
    }
    now := s.now()
    _, err = s.collection().InsertOne(ctx, AccountBSON{
        Username:     newAccount.Username,
        Email:        newAccount.Email,
        PasswordHash: passwordHash,
        FirstName:    newAccount.FirstName,
        LastName:     newAccount.LastName,
        Profile:      newAccount.Profile,
        Enabled:      false,
        CreatedAt:    now,
        UpdatedAt:    now,
    })
    if err != nil {
        if mongo.IsDuplicateKeyError(err) {
            return fmt.Errorf("%w: %s", identity.ErrUserAlreadyExists, newAccount.Username)
        }
        return fmt.Errorf("failed to save account %s: %w", newAccount.Username, err)
    }
    return nil
}

func (s *IdentityStore) Confirm(ctx context.Context, username string, code string) error {
    if strings.TrimSpace(code) == "" {
        return identity.ErrInvalidCode
    }
    return s.update(ctx, username, bson.M{
        "confirmed":     true,
        "emailVerified": true,
    })
}

func (s *IdentityStore) Enable(ctx context.Context, username string) error {
    return s.update(ctx, username, bson.M{
        "enabled":         true,
        "disabledByAdmin": false,
    })
}

func (s *IdentityStore) Disable(ctx context.Context, username string) error {
    return s.update(ctx, username, bson.M{
        "enabled":         false,
        "disabledByAdmin": true,
    })
}

func (s *IdentityStore) SetPassword(ctx context.Context, username string, password string) error {
    passwordHash, err := hashPassword(password)
    if err != nil {
        return err
    }
    return s.update(ctx, username, bson.M{
        "passwordHash":          passwordHash,
        "passwordResetRequired": false,
        "confirmed":             true,
    })
}

func (s *IdentityStore) ResetPassword(ctx context.Context, username string) error {
    return s.update(ctx, username, bson.M{"passwordResetRequired": true})
}

func (s *IdentityStore) VerifyEmail(ctx context.Context, username string) error {
    return s.update(ctx, username, bson.M{"emailVerified": true})
}

func (s *IdentityStore) update(ctx context.Context, username string, set bson.M) error {
    set["updatedAt"] = s.now()
    updateResult, err := s.collection().UpdateOne(ctx, bson.M{"_id": username}, bson.M{"$set": set})
    if err != nil {
        return fmt.Errorf("failed to update account %s: %w", username, err)
    }
    if updateResult.MatchedCount == 0 {
        return fmt.Errorf("%w: %s", identity.ErrUserNotFound, username)
    }
    return nil
}

func (s *IdentityStore) collection() *mongo.Collection {
    return s.client.Database(s.dbName).Collection(s.collectionName)
}

func hashPassword(password string) (string, error) {
    if password == "" {
        return "", nil
    }
    hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
    if err != nil {
        return "", fmt.Errorf("failed hashing password: %w", err)
    }
    return string(hash), nil
}
