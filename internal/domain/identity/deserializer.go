package identity

import (
    "time"

    "user-events-engine/internal/dispatch"

    "github.com/walletera/eventskit/events"
)

type decodeFunc func(meta eventMeta, args dispatch.Arguments) (events.Event[Handler], error)

var _ events.Deserializer[Handler] = (*Deserializer)(nil)

// Deserializer turns envelopes into typed lifecycle events through a dispatch
// table built at construction time.
type Deserializer struct {
    table *dispatch.Table[decodeFunc]
    now   func() time.Time
}

func NewDeserializer() *Deserializer {
    return &Deserializer{
        table: newDispatchTable(),
        now:   time.Now,
    }
}

// Deserialize decodes a raw record. Errors wrap dispatch.ErrDecode,
// dispatch.ErrMissingHandler or dispatch.ErrInvocation.
func (d *Deserializer) Deserialize(rawEvent []byte) (events.Event[Handler], error) {
    envelope, err := dispatch.Decode(rawEvent)
    if err != nil {
        return nil, err
    }
    return d.FromEnvelope(envelope)
}

func (d *Deserializer) FromEnvelope(envelope dispatch.Envelope) (events.Event[Handler], error) {
    decode, err := dispatch.Dispatch(envelope, d.table)
    if err != nil {
        return nil, err
    }
    return decode(eventMeta{envelope: envelope, receivedAt: d.now()}, envelope.Arguments())
}

// EventTypes lists the supported discriminators.
func (d *Deserializer) EventTypes() []string {
    return d.table.Discriminators()
}

func newDispatchTable() *dispatch.Table[decodeFunc] {
    return dispatch.NewTable[decodeFunc]().
        Register(SignUpEventType, func(meta eventMeta, args dispatch.Arguments) (events.Event[Handler], error) {
            event := SignUp{eventMeta: meta}
            if err := dispatch.Bind(args, &event); err != nil {
                return nil, err
            }
            return event, nil
        }).
        Register(ConfirmSignUpEventType, func(meta eventMeta, args dispatch.Arguments) (events.Event[Handler], error) {
            event := ConfirmSignUp{eventMeta: meta}
            if err := dispatch.Bind(args, &event); err != nil {
                return nil, err
            }
            return event, nil
        }).
        Register(NewPasswordChallengeResponseEventType, func(meta eventMeta, args dispatch.Arguments) (events.Event[Handler], error) {
            event := NewPasswordChallengeResponse{eventMeta: meta}
            if err := dispatch.Bind(args, &event); err != nil {
                return nil, err
            }
            return event, nil
        }).
        Register(AdminCreateUserEventType, func(meta eventMeta, args dispatch.Arguments) (events.Event[Handler], error) {
            event := AdminCreateUser{eventMeta: meta}
            if err := dispatch.Bind(args, &event); err != nil {
                return nil, err
            }
            return event, nil
        }).
        Register(DisableEventType, func(meta eventMeta, args dispatch.Arguments) (events.Event[Handler], error) {
            event := Disable{eventMeta: meta}
            if err := dispatch.Bind(args, &event); err != nil {
                return nil, err
            }
            return event, nil
        }).
        Register(EnableEventType, func(meta eventMeta, args dispatch.Arguments) (events.Event[Handler], error) {
            event := Enable{eventMeta: meta}
            if err := dispatch.Bind(args, &event); err != nil {
                return nil, err
            }
            return event, nil
        }).
        Register(ChangePasswordEventType, func(meta eventMeta, args dispatch.Arguments) (events.Event[Handler], error) {
            event := ChangePassword{eventMeta: meta}
            if err := dispatch.Bind(args, &event); err != nil {
                return nil, err
            }
            return event, nil
        }).
        Register(VerifyEventType, func(meta eventMeta, args dispatch.Arguments) (events.Event[Handler], error) {
            event := Verify{eventMeta: meta}
            if err := dispatch.Bind(args, &event); err != nil {
                return nil, err
            }
            return event, nil
        })
}
