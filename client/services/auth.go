package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Skotchmaster/storefront/client/session"
)

// AuthService signs users in and out. Credential storage is delegated to
// the session client, which is the only component allowed to mutate it.
type AuthService struct {
	client *session.Client
	store  session.Store
}

func NewAuth(client *session.Client, store session.Store) *AuthService {
	return &AuthService{client: client, store: store}
}

type RegisterInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (uint, error) {
	var data struct {
		UserID uint `json:"user_id"`
	}
	if err := s.client.Post(ctx, "/api/v1/auth/register", in, &data, session.Unauthenticated()); err != nil {
		return 0, err
	}
	return data.UserID, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*User, error) {
	body := map[string]string{"username": username, "password": password}
	var data struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
		User    User   `json:"user"`
	}
	if err := s.client.Post(ctx, "/api/v1/auth/login", body, &data, session.Unauthenticated()); err != nil {
		return nil, err
	}

	creds := session.Credentials{Access: data.Access, Refresh: data.Refresh}
	if err := s.client.StoreTokens(creds); err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(data.User); err == nil {
		if err := s.store.SaveUser(raw); err != nil {
			return nil, fmt.Errorf("cache user profile: %w", err)
		}
	}
	return &data.User, nil
}

// Logout revokes the refresh token server-side, then clears local state.
// Local state is cleared even when the server call fails.
func (s *AuthService) Logout(ctx context.Context) error {
	creds, err := s.store.LoadTokens()
	if err == nil && creds.Refresh != "" {
		body := map[string]string{"refresh": creds.Refresh}
		if err := s.client.Post(ctx, "/api/v1/auth/logout", body, nil); err != nil && !session.IsUnauthorized(err) {
			if cerr := s.client.ClearTokens(); cerr != nil {
				return errors.Join(err, cerr)
			}
			return err
		}
	}
	return s.client.ClearTokens()
}

func (s *AuthService) Me(ctx context.Context) (*User, error) {
	var u User
	if err := s.client.Get(ctx, "/api/v1/auth/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CachedUser returns the profile stored at login, without a network call.
func (s *AuthService) CachedUser() (*User, error) {
	raw, err := s.store.LoadUser()
	if err != nil || raw == nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode cached user: %w", err)
	}
	return &u, nil
}
