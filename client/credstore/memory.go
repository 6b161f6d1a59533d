package credstore

import (
	"errors"
	"sync"

	"github.com/Skotchmaster/storefront/client/session"
)

// Memory keeps credentials for the lifetime of the process. Used in tests
// and anywhere persistence across restarts is not wanted.
type Memory struct {
	mu    sync.Mutex
	creds session.Credentials
	user  []byte
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) SaveTokens(creds session.Credentials) error {
	if !creds.Valid() {
		return errors.New("credential pair must have both tokens")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = creds
	return nil
}

func (m *Memory) LoadTokens() (session.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds, nil
}

func (m *Memory) SaveUser(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = append([]byte(nil), data...)
	return nil
}

func (m *Memory) LoadUser() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil, nil
	}
	return append([]byte(nil), m.user...), nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = session.Credentials{}
	m.user = nil
	return nil
}
