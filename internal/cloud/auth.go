package cloud

import "context"

// Authenticator supplies the bearer token sent to the cloud endpoints.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is the application-wide shared secret. It is not a user
// credential: every client of a deployment sends the same value.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}
