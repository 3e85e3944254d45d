package identity

import (
    "context"
    "time"

    "user-events-engine/internal/dispatch"

    validation "github.com/go-ozzo/ozzo-validation"
    "github.com/go-ozzo/ozzo-validation/is"
    "github.com/walletera/eventskit/events"
    "github.com/walletera/werrors"
)

// Discriminators sent by the primary region producers.
const (
    SignUpEventType                       = "replicated_sign_up"
    ConfirmSignUpEventType                = "replicated_confirm_sign_up"
    NewPasswordChallengeResponseEventType = "replicated_respond_to_new_password_challenge"
    AdminCreateUserEventType              = "replicated_admin_create_user"
    DisableEventType                      = "replicated_admin_disable_user"
    EnableEventType                       = "replicated_admin_enable_user"
    ChangePasswordEventType               = "replicated_change_password"
    VerifyEventType                       = "replicated_verify_user"
)

var (
    _ events.Event[Handler] = SignUp{}
    _ events.Event[Handler] = ConfirmSignUp{}
    _ events.Event[Handler] = NewPasswordChallengeResponse{}
    _ events.Event[Handler] = AdminCreateUser{}
    _ events.Event[Handler] = Disable{}
    _ events.Event[Handler] = Enable{}
    _ events.Event[Handler] = ChangePassword{}
    _ events.Event[Handler] = Verify{}
)

// eventMeta carries the envelope an event was decoded from.
type eventMeta struct {
    envelope   dispatch.Envelope
    receivedAt time.Time
}

func (m eventMeta) ID() string { return m.envelope.ID() }

func (m eventMeta) Type() string { return m.envelope.Discriminator() }

func (m eventMeta) AggregateVersion() uint64 { return 0 }

func (m eventMeta) CorrelationID() string { return m.envelope.CorrelationID() }

func (m eventMeta) DataContentType() string { return "application/json" }

func (m eventMeta) CreatedAt() time.Time { return m.receivedAt }

func (m eventMeta) Serialize() ([]byte, error) { return m.envelope.Serialize() }

type SignUp struct {
    eventMeta
    Username  string `json:"username"`
    Email     string `json:"email"`
    Password  string `json:"password"`
    FirstName string `json:"first_name"`
    LastName  string `json:"last_name"`
    Profile   string `json:"profile,omitempty"`
}

func (e *SignUp) Validate() error {
    return validation.ValidateStruct(e,
        validation.Field(&e.Username, validation.Required),
        validation.Field(&e.Email, validation.Required, is.Email),
        validation.Field(&e.Password, validation.Required),
        validation.Field(&e.FirstName, validation.Required),
        validation.Field(&e.LastName, validation.Required),
    )
}

func (e SignUp) Accept(ctx context.Context, handler Handler) werrors.WError {
    return handler.HandleSignUp(ctx, e)
}

type ConfirmSignUp struct {
    eventMeta
    Username string `json:"username"`
    Code     string `json:"code"`
}

func (e *ConfirmSignUp) Validate() error {
    return validation.ValidateStruct(e,
        validation.Field(&e.Username, validation.Required),
        validation.Field(&e.Code, validation.Required),
    )
}

func (e ConfirmSignUp) Accept(ctx context.Context, handler Handler) werrors.WError {
    return handler.HandleConfirmSignUp(ctx, e)
}

type NewPasswordChallengeResponse struct {
    eventMeta
    Username string `json:"username"`
    Password string `json:"password"`
    Session  string `json:"session"`
}

func (e *NewPasswordChallengeResponse) Validate() error {
    return validation.ValidateStruct(e,
        validation.Field(&e.Username, validation.Required),
        validation.Field(&e.Password, validation.Required),
        validation.Field(&e.Session, validation.Required),
    )
}

func (e NewPasswordChallengeResponse) Accept(ctx context.Context, handler Handler) werrors.WError {
    return handler.HandleNewPasswordChallengeResponse(ctx, e)
}

type AdminCreateUser struct {
    eventMeta
    Username            string `json:"username"`
    Email               string `json:"email"`
    Password            string `json:"password"`
    FirstName           string `json:"first_name"`
    LastName            string `json:"last_name"`
    SuppressMessage     bool   `json:"suppress_message"`
    IsPasswordPermanent bool   `json:"is_password_permanent"`
}

func (e *AdminCreateUser) Validate() error {
    return validation.ValidateStruct(e,
        validation.Field(&e.Username, validation.Required),
        validation.Field(&e.Email, validation.Required, is.Email),
        validation.Field(&e.Password, validation.Required),
        validation.Field(&e.FirstName, validation.Required),
        validation.Field(&e.LastName, validation.Required),
    )
}

func (e AdminCreateUser) Accept(ctx context.Context, handler Handler) werrors.WError {
    return handler.HandleAdminCreateUser(ctx, e)
}

// usernameOnly is shared by the administrative events.
type usernameOnly struct {
    Username string `json:"username"`
}

func (u *usernameOnly) Validate() error {
    return validation.ValidateStruct(u,
        validation.Field(&u.Username, validation.Required),
    )
}

type Disable struct {
    eventMeta
    usernameOnly
}

func (e Disable) Accept(ctx context.Context, handler Handler) werrors.WError {
    return handler.HandleDisable(ctx, e)
}

type Enable struct {
    eventMeta
    usernameOnly
}

func (e Enable) Accept(ctx context.Context, handler Handler) werrors.WError {
    return handler.HandleEnable(ctx, e)
}

type ChangePassword struct {
    eventMeta
    usernameOnly
}

func (e ChangePassword) Accept(ctx context.Context, handler Handler) werrors.WError {
    return handler.HandleChangePassword(ctx, e)
}

type Verify struct {
    eventMeta
    usernameOnly
}

func (e Verify) Accept(ctx context.Context, handler Handler) werrors.WError {
    return handler.HandleVerify(ctx, e)
}
