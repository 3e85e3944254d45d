package dispatch

import (
    "errors"
    "testing"

    validation "github.com/go-ozzo/ozzo-validation"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type greetArgs struct {
    Username string `json:"username"`
    Greeting string `json:"greeting"`
}

func (a *greetArgs) Validate() error {
    return validation.ValidateStruct(a,
        validation.Field(&a.Username, validation.Required),
    )
}

func TestDecode(t *testing.T) {
    envelope, err := Decode([]byte(`{"event_type":"greet","args":{"username":"alice"},"correlation_id":"c-1"}`))
    require.NoError(t, err)

    assert.Equal(t, "greet", envelope.Discriminator())
    assert.Equal(t, "c-1", envelope.CorrelationID())
    assert.NotEmpty(t, envelope.ID())
    assert.JSONEq(t, `"alice"`, string(envelope.Arguments()["username"]))
}

func TestDecodeMissingArgsIsEmpty(t *testing.T) {
    envelope, err := Decode([]byte(`{"event_type":"greet"}`))
    require.NoError(t, err)
    assert.Empty(t, envelope.Arguments())
}

func TestDecodeErrors(t *testing.T) {
    tests := []struct {
        name string
        raw  string
    }{
        {name: "malformed json", raw: `{"event_type":`},
        {name: "not an object", raw: `["greet"]`},
        {name: "empty", raw: ``},
        {name: "missing discriminator", raw: `{"args":{}}`},
        {name: "blank discriminator", raw: `{"event_type":"  "}`},
        {name: "args not an object", raw: `{"event_type":"greet","args":"x"}`},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            _, err := Decode([]byte(tt.raw))
            require.Error(t, err)
            assert.True(t, errors.Is(err, ErrDecode))
        })
    }
}

func TestEnvelopeIDIsDerivedFromPayload(t *testing.T) {
    first, err := Decode([]byte(`{"event_type":"greet","args":{"username":"alice","greeting":"hi"}}`))
    require.NoError(t, err)
    reordered, err := Decode([]byte(`{"event_type":"greet","args":{"greeting":"hi", "username":"alice"}}`))
    require.NoError(t, err)
    other, err := Decode([]byte(`{"event_type":"greet","args":{"username":"bob","greeting":"hi"}}`))
    require.NoError(t, err)

    assert.Equal(t, first.ID(), reordered.ID())
    assert.NotEqual(t, first.ID(), other.ID())
}

func TestDispatch(t *testing.T) {
    table := NewTable[string]().
        Register("greet", "greeter").
        Register("wave", "waver")

    envelope, err := NewEnvelope("greet", map[string]any{"username": "alice"})
    require.NoError(t, err)

    handler, err := Dispatch(envelope, table)
    require.NoError(t, err)
    assert.Equal(t, "greeter", handler)
    assert.Equal(t, []string{"greet", "wave"}, table.Discriminators())
}

func TestDispatchMissingHandler(t *testing.T) {
    table := NewTable[string]().Register("greet", "greeter")

    envelope, err := NewEnvelope("replicated_something_new", nil)
    require.NoError(t, err)

    _, err = Dispatch(envelope, table)
    require.Error(t, err)
    assert.True(t, errors.Is(err, ErrMissingHandler))
}

func TestRegisterTwicePanics(t *testing.T) {
    table := NewTable[string]().Register("greet", "greeter")
    assert.Panics(t, func() { table.Register("greet", "other") })
}

func TestBind(t *testing.T) {
    envelope, err := NewEnvelope("greet", map[string]any{"username": "alice", "greeting": "hello"})
    require.NoError(t, err)

    var args greetArgs
    require.NoError(t, Bind(envelope.Arguments(), &args))
    assert.Equal(t, greetArgs{Username: "alice", Greeting: "hello"}, args)
}

func TestBindInvocationErrors(t *testing.T) {
    tests := []struct {
        name string
        args map[string]any
    }{
        {name: "missing argument", args: map[string]any{"greeting": "hello"}},
        {name: "extra argument", args: map[string]any{"username": "alice", "mood": "happy"}},
        {name: "wrong type", args: map[string]any{"username": 42}},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            envelope, err := NewEnvelope("greet", tt.args)
            require.NoError(t, err)

            var args greetArgs
            err = Bind(envelope.Arguments(), &args)
            require.Error(t, err)
            assert.True(t, errors.Is(err, ErrInvocation))
        })
    }
}
