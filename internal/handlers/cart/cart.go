package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/logging"
	mwauth "github.com/Skotchmaster/storefront/internal/middleware/auth"
	"github.com/Skotchmaster/storefront/internal/response"
	cartsvc "github.com/Skotchmaster/storefront/internal/service/cart"
)

type CartHandler struct {
	Service  *cartsvc.Service
	Producer events.Producer
}

func (h *CartHandler) GetCart(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return err
	}

	view, err := h.Service.Get(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, "cart_get", err)
	}
	return response.Success(c, http.StatusOK, view, "Cart retrieved successfully.")
}

func (h *CartHandler) AddItem(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"product_id"`
		Quantity  uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "Invalid input.", map[string]any{"body": "invalid json"})
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, totals, err := h.Service.Add(c.Request().Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		return h.fail(c, "cart_add", err)
	}

	h.publish(c, userID, map[string]any{
		"type":      "cart_item_added",
		"userID":    userID,
		"productID": req.ProductID,
		"quantity":  item.Quantity,
	})

	msg := fmt.Sprintf("Added %d x %s to cart.", req.Quantity, item.Product.Name)
	return response.Success(c, http.StatusOK, map[string]any{"item": item, "cart_totals": totals}, msg)
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return err
	}

	itemID, err := strconv.Atoi(c.Param("id"))
	if err != nil || itemID <= 0 {
		return response.Error(c, http.StatusBadRequest, "Invalid input.", map[string]any{"id": "invalid item id"})
	}

	var req struct {
		Quantity uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "Invalid input.", map[string]any{"body": "invalid json"})
	}

	item, totals, err := h.Service.UpdateQuantity(c.Request().Context(), userID, uint(itemID), req.Quantity)
	if err != nil {
		return h.fail(c, "cart_update", err)
	}

	h.publish(c, userID, map[string]any{
		"type":     "cart_item_updated",
		"userID":   userID,
		"itemID":   itemID,
		"quantity": item.Quantity,
	})

	return response.Success(c, http.StatusOK, map[string]any{"item": item, "cart_totals": totals}, "Cart item updated successfully.")
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return err
	}

	itemID, err := strconv.Atoi(c.Param("id"))
	if err != nil || itemID <= 0 {
		return response.Error(c, http.StatusBadRequest, "Invalid input.", map[string]any{"id": "invalid item id"})
	}

	totals, err := h.Service.Remove(c.Request().Context(), userID, uint(itemID))
	if err != nil {
		return h.fail(c, "cart_remove", err)
	}

	h.publish(c, userID, map[string]any{
		"type":   "cart_item_removed",
		"userID": userID,
		"itemID": itemID,
	})

	return response.Success(c, http.StatusOK, map[string]any{"cart_totals": totals}, "Item removed from cart.")
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return err
	}

	totals, err := h.Service.Clear(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, "cart_clear", err)
	}

	h.publish(c, userID, map[string]any{
		"type":   "cart_cleared",
		"userID": userID,
	})

	return response.Success(c, http.StatusOK, map[string]any{"cart_totals": totals}, "Cart cleared successfully.")
}

func (h *CartHandler) Checkout(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return err
	}

	order, err := h.Service.Checkout(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, "cart_checkout", err)
	}

	h.publish(c, userID, map[string]any{
		"type":    "order_created",
		"userID":  userID,
		"orderID": order.ID,
		"total":   order.Total.StringFixed(2),
	})

	return response.Success(c, http.StatusCreated, map[string]any{
		"order_id": order.ID,
		"total":    order.Total.StringFixed(2),
		"status":   order.Status,
	}, "Order created successfully.")
}

func (h *CartHandler) fail(c echo.Context, op string, err error) error {
	l := logging.FromContext(c.Request().Context()).With("handler", op)
	switch {
	case errors.Is(err, cartsvc.ErrNotFound):
		l.Warn("cart_error", "status", 404, "error", err)
		return response.Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, cartsvc.ErrValidation):
		l.Warn("cart_error", "status", 400, "error", err)
		return response.Error(c, http.StatusBadRequest, err.Error(), nil)
	default:
		l.Error("cart_error", "status", 500, "error", err)
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}
}

func (h *CartHandler) publish(c echo.Context, userID uint, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, events.TopicCartEvents, fmt.Sprint(userID), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}
