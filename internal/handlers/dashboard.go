package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/hash"
	"github.com/Skotchmaster/storefront/internal/logging"
	mwauth "github.com/Skotchmaster/storefront/internal/middleware/auth"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/response"
)

type DashboardHandler struct {
	DB *gorm.DB
}

type profileView struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *DashboardHandler) GetProfile(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return response.Error(c, http.StatusUnauthorized, "Authentication required.", nil)
	}

	return response.Success(c, http.StatusOK, profileView{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, "Profile retrieved successfully.")
}

func (h *DashboardHandler) UpdateProfile(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Email     *string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "Profile update failed.", map[string]any{"body": "invalid json"})
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return response.Error(c, http.StatusUnauthorized, "Authentication required.", nil)
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Email != nil {
		if *req.Email == "" {
			return response.Error(c, http.StatusBadRequest, "Profile update failed.", map[string]any{"email": "This field may not be blank."})
		}
		user.Email = *req.Email
	}

	if err := h.DB.Save(&user).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("profile_update_failed", "error", err)
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	return response.Success(c, http.StatusOK, profileView{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, "Profile updated successfully.")
}

func (h *DashboardHandler) ChangePassword(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "Password change failed.", map[string]any{"body": "invalid json"})
	}
	if len(req.NewPassword) < 8 {
		return response.Error(c, http.StatusBadRequest, "Password change failed.", map[string]any{"new_password": "Password must be at least 8 characters."})
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return response.Error(c, http.StatusUnauthorized, "Authentication required.", nil)
	}
	if !hash.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		return response.Error(c, http.StatusBadRequest, "Password change failed.", map[string]any{"current_password": "Incorrect password."})
	}

	pwHash, err := hash.HashPassword(req.NewPassword)
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}
	if err := h.DB.Model(&user).Update("password_hash", pwHash).Error; err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	return response.Success(c, http.StatusOK, nil, "Password changed successfully.")
}

func (h *DashboardHandler) GetOrders(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return err
	}

	var orders []models.Order
	if err := h.DB.Where("user_id = ?", userID).Order("id DESC").Find(&orders).Error; err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	views := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		views = append(views, map[string]any{
			"id":         o.ID,
			"total":      o.Total.StringFixed(2),
			"status":     o.Status,
			"created_at": o.CreatedAt,
		})
	}
	return response.Success(c, http.StatusOK, views, "Orders retrieved successfully.")
}
