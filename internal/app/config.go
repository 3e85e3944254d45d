package app

type Optional[T any] struct {
    Value T
    Set   bool
}

func NewOptional[T any](value T) Optional[T] {
    return Optional[T]{Value: value, Set: true}
}

type OpsAPIConfig struct {
    OpsAPIHttpServerPort int
}

type Auth0Config struct {
    Domain       string
    ClientID     string
    ClientSecret string
    Connection   string
}

type SecondaryIdentityProvider string

const (
    MongoDBIdentityProvider SecondaryIdentityProvider = "mongodb"
    Auth0IdentityProvider   SecondaryIdentityProvider = "auth0"
)
