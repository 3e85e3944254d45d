package identity

import (
    "context"

    "github.com/walletera/werrors"
)

type Handler interface {
    HandleSignUp(ctx context.Context, event SignUp) werrors.WError
    HandleConfirmSignUp(ctx context.Context, event ConfirmSignUp) werrors.WError
    HandleNewPasswordChallengeResponse(ctx context.Context, event NewPasswordChallengeResponse) werrors.WError
    HandleAdminCreateUser(ctx context.Context, event AdminCreateUser) werrors.WError
    HandleDisable(ctx context.Context, event Disable) werrors.WError
    HandleEnable(ctx context.Context, event Enable) werrors.WError
    HandleChangePassword(ctx context.Context, event ChangePassword) werrors.WError
    HandleVerify(ctx context.Context, event Verify) werrors.WError
}
