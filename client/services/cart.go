package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/client/session"
)

// CartService is the typed wrapper over the cart endpoints. State handling
// (optimism, rollback) lives in the cart manager, not here.
type CartService struct {
	client *session.Client
}

func NewCart(client *session.Client) *CartService {
	return &CartService{client: client}
}

func (s *CartService) Fetch(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := s.client.Get(ctx, "/api/v1/cart", &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *CartService) Add(ctx context.Context, productID, quantity uint) (*CartItem, error) {
	body := map[string]uint{"product_id": productID, "quantity": quantity}
	var data struct {
		Item CartItem `json:"item"`
	}
	if err := s.client.Post(ctx, "/api/v1/cart/items", body, &data); err != nil {
		return nil, err
	}
	return &data.Item, nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, itemID, quantity uint) error {
	body := map[string]uint{"quantity": quantity}
	path := fmt.Sprintf("/api/v1/cart/items/%d", itemID)
	return s.client.Patch(ctx, path, body, nil)
}

func (s *CartService) Remove(ctx context.Context, itemID uint) error {
	path := fmt.Sprintf("/api/v1/cart/items/%d", itemID)
	return s.client.Delete(ctx, path, nil)
}

func (s *CartService) Clear(ctx context.Context) error {
	return s.client.Delete(ctx, "/api/v1/cart", nil)
}

func (s *CartService) Checkout(ctx context.Context) (*Order, error) {
	var data struct {
		OrderID uint   `json:"order_id"`
		Total   string `json:"total"`
		Status  string `json:"status"`
	}
	if err := s.client.Post(ctx, "/api/v1/cart/checkout", nil, &data); err != nil {
		return nil, err
	}
	order := &Order{ID: data.OrderID, Status: data.Status}
	if t, err := decimal.NewFromString(data.Total); err == nil {
		order.Total = t
	}
	return order, nil
}
