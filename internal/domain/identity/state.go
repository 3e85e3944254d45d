package identity

import (
    "errors"
    "fmt"
)

// ErrPreconditionViolation is returned when an event arrives for an account
// in a state the event cannot be applied to.
var ErrPreconditionViolation = errors.New("precondition violation")

// State is the replication state of a username in the secondary store. It is
// never persisted; StateOf derives it from the store's account fields.
type State int

const (
    StateAbsent State = iota
    StateProvisioned
    StateActive
    StateDisabled
    StatePasswordReset
)

func (s State) String() string {
    switch s {
    case StateAbsent:
        return "absent"
    case StateProvisioned:
        return "provisioned"
    case StateActive:
        return "active"
    case StateDisabled:
        return "disabled"
    case StatePasswordReset:
        return "password_reset"
    default:
        return fmt.Sprintf("state(%d)", int(s))
    }
}

// StateOf derives the state of an existing account.
func StateOf(account Account) State {
    switch {
    case !account.Enabled && account.DisabledByAdmin:
        return StateDisabled
    case !account.Enabled:
        return StateProvisioned
    case account.PasswordResetRequired:
        return StatePasswordReset
    default:
        return StateActive
    }
}

// Step is the outcome of a transition lookup. Apply is false when the event
// is a duplicate delivery and must not issue any call.
type Step struct {
    To    State
    Apply bool
}

func apply(to State) Step { return Step{To: to, Apply: true} }

func noop(to State) Step { return Step{To: to} }

// lifecycle lists, per event type, the states the event may be applied from.
// A missing entry is a precondition violation.
var lifecycle = map[string]map[State]Step{
    SignUpEventType: {
        StateAbsent:        apply(StateProvisioned),
        StateProvisioned:   noop(StateProvisioned),
        StateActive:        noop(StateActive),
        StateDisabled:      noop(StateDisabled),
        StatePasswordReset: noop(StatePasswordReset),
    },
    AdminCreateUserEventType: {
        StateAbsent:        apply(StateProvisioned),
        StateProvisioned:   noop(StateProvisioned),
        StateActive:        noop(StateActive),
        StateDisabled:      noop(StateDisabled),
        StatePasswordReset: noop(StatePasswordReset),
    },
    ConfirmSignUpEventType: {
        StateProvisioned:   apply(StateActive),
        StateDisabled:      apply(StateDisabled),
        StateActive:        noop(StateActive),
        StatePasswordReset: noop(StatePasswordReset),
    },
    NewPasswordChallengeResponseEventType: {
        StateProvisioned:   apply(StateActive),
        StatePasswordReset: apply(StateActive),
        StateActive:        noop(StateActive),
    },
    // Administrative events wait for the account to be confirmed; disabling a
    // provisioned account would let a later Enable skip the confirmation.
    DisableEventType: {
        StateActive:        apply(StateDisabled),
        StatePasswordReset: apply(StateDisabled),
        StateDisabled:      noop(StateDisabled),
    },
    EnableEventType: {
        StateDisabled:      apply(StateActive),
        StateActive:        noop(StateActive),
        StatePasswordReset: noop(StatePasswordReset),
    },
    ChangePasswordEventType: {
        StateActive:        apply(StatePasswordReset),
        StateDisabled:      apply(StateDisabled),
        StatePasswordReset: noop(StatePasswordReset),
    },
    VerifyEventType: {
        StateActive:        apply(StateActive),
        StatePasswordReset: apply(StatePasswordReset),
        StateDisabled:      apply(StateDisabled),
    },
}

// PreconditionError reports an event that cannot be applied from a state.
type PreconditionError struct {
    EventType string
    From      State
    // Pending is set when the account exists but still awaits confirmation.
    Pending bool
}

func (e *PreconditionError) Error() string {
    msg := fmt.Sprintf("%s: %s not allowed from %s", ErrPreconditionViolation, e.EventType, e.From)
    if e.Pending {
        msg += " (awaiting confirmation)"
    }
    return msg
}

func (e *PreconditionError) Is(target error) bool {
    return target == ErrPreconditionViolation
}

// Retryable is true when an earlier event for the same username may still be
// in flight, so a later delivery can succeed.
func (e *PreconditionError) Retryable() bool {
    return e.From == StateAbsent || e.From == StateProvisioned || e.Pending
}

// Transition looks up the step for eventType applied from state from.
func Transition(eventType string, from State) (Step, error) {
    steps, found := lifecycle[eventType]
    if !found {
        return Step{}, fmt.Errorf("unknown lifecycle event type %s", eventType)
    }
    step, allowed := steps[from]
    if !allowed {
        return Step{}, &PreconditionError{EventType: eventType, From: from}
    }
    return step, nil
}
