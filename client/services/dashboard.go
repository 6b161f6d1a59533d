package services

import (
	"context"

	"github.com/Skotchmaster/storefront/client/session"
)

type DashboardService struct {
	client *session.Client
}

func NewDashboard(client *session.Client) *DashboardService {
	return &DashboardService{client: client}
}

type Profile struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
}

func (s *DashboardService) Profile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := s.client.Get(ctx, "/api/v1/dashboard/profile", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *DashboardService) UpdateProfile(ctx context.Context, update ProfileUpdate) (*Profile, error) {
	var p Profile
	if err := s.client.Put(ctx, "/api/v1/dashboard/profile", update, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *DashboardService) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{
		"current_password": current,
		"new_password":     next,
	}
	return s.client.Post(ctx, "/api/v1/dashboard/password", body, nil)
}

func (s *DashboardService) Orders(ctx context.Context) ([]Order, error) {
	var orders []Order
	if err := s.client.Get(ctx, "/api/v1/dashboard/orders", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
