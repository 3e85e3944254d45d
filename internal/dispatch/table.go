package dispatch

import (
    "bytes"
    "encoding/json"
    "fmt"
    "sort"
)

// Table maps discriminators to handlers. It is built once by the consumer's
// initialization path and is read-only afterwards.
type Table[V any] struct {
    entries map[string]V
}

func NewTable[V any]() *Table[V] {
    return &Table[V]{entries: make(map[string]V)}
}

// Register adds a handler for discriminator. Registering the same discriminator
// twice is a programming error and panics.
func (t *Table[V]) Register(discriminator string, value V) *Table[V] {
    if discriminator == "" {
        panic("dispatch: empty discriminator")
    }
    if _, found := t.entries[discriminator]; found {
        panic(fmt.Sprintf("dispatch: discriminator %q already registered", discriminator))
    }
    t.entries[discriminator] = value
    return t
}

func (t *Table[V]) Lookup(discriminator string) (V, bool) {
    if t == nil {
        var zero V
        return zero, false
    }
    value, found := t.entries[discriminator]
    return value, found
}

// Discriminators returns the registered discriminators in lexical order.
func (t *Table[V]) Discriminators() []string {
    keys := make([]string, 0, len(t.entries))
    for k := range t.entries {
        keys = append(keys, k)
    }
    sort.Strings(keys)
    return keys
}

// Dispatch returns the handler registered for the envelope discriminator or
// ErrMissingHandler.
func Dispatch[V any](envelope Envelope, table *Table[V]) (V, error) {
    value, found := table.Lookup(envelope.Discriminator())
    if !found {
        var zero V
        return zero, fmt.Errorf("%w: %s", ErrMissingHandler, envelope.Discriminator())
    }
    return value, nil
}

// Validatable is implemented by argument targets that check required inputs.
type Validatable interface {
    Validate() error
}

// Bind expands args into target as named inputs. Unknown arguments, type
// mismatches and failed validation are reported as ErrInvocation.
func Bind(args Arguments, target any) error {
    body, err := json.Marshal(args)
    if err != nil {
        return fmt.Errorf("%w: %s", ErrInvocation, err.Error())
    }
    decoder := json.NewDecoder(bytes.NewReader(body))
    decoder.DisallowUnknownFields()
    if err := decoder.Decode(target); err != nil {
        return fmt.Errorf("%w: %s", ErrInvocation, err.Error())
    }
    if v, ok := target.(Validatable); ok {
        if err := v.Validate(); err != nil {
            return fmt.Errorf("%w: %s", ErrInvocation, err.Error())
        }
    }
    return nil
}
