package remote

// Authenticator provides credentials for the backup registry.
type Authenticator interface {
	// Authenticate returns credentials for the given registry. Empty
	// credentials fall back to the docker keychain.
	Authenticate(registry string) (username, password string, err error)
}

// BasicAuth is a fixed username/password pair.
type BasicAuth struct {
	Username string
	Password string
}

func (a BasicAuth) Authenticate(string) (string, string, error) {
	return a.Username, a.Password, nil
}
