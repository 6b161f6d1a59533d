package session

// Credentials is the access/refresh token pair for one authenticated
// session. Both fields are set or both are empty, never one of the two.
type Credentials struct {
	Access  string
	Refresh string
}

func (c Credentials) Valid() bool {
	return c.Access != "" && c.Refresh != ""
}

// Store is durable storage for the credential pair and the cached user
// profile. Implementations must persist the pair atomically: a reader never
// observes only one of the two tokens.
type Store interface {
	SaveTokens(creds Credentials) error
	LoadTokens() (Credentials, error)
	SaveUser(data []byte) error
	LoadUser() ([]byte, error)
	// Clear removes tokens and user data wholesale.
	Clear() error
}
