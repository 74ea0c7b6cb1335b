package credential

import "errors"

var (
	// ErrNotFound indicates no key is stored for the username.
	ErrNotFound = errors.New("credential: api key not found")

	// ErrNoCredentials indicates neither an API key nor a username and password were configured.
	ErrNoCredentials = errors.New("credential: no api key or username/password configured")
)
