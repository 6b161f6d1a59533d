package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/hash"
	"github.com/Skotchmaster/storefront/internal/logging"
	mwauth "github.com/Skotchmaster/storefront/internal/middleware/auth"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/response"
	"github.com/Skotchmaster/storefront/internal/service/token"
)

type AuthHandler struct {
	DB       *gorm.DB
	Tokens   *token.Service
	Producer events.Producer
}

type userView struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

func viewOf(u *models.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return response.Error(c, http.StatusBadRequest, "Registration failed.", map[string]any{"body": "invalid json"})
	}

	fieldErrs := map[string]any{}
	if req.Username == "" {
		fieldErrs["username"] = "This field is required."
	}
	if req.Email == "" {
		fieldErrs["email"] = "This field is required."
	}
	if len(req.Password) < 8 {
		fieldErrs["password"] = "Password must be at least 8 characters."
	}
	if len(fieldErrs) > 0 {
		l.Warn("register_failed", "status", 400, "reason", "validation")
		return response.Error(c, http.StatusBadRequest, "Registration failed.", fieldErrs)
	}

	var existing models.User
	err := h.DB.Where("username = ? OR email = ?", req.Username, req.Email).First(&existing).Error
	if err == nil {
		l.Warn("register_failed", "status", 409, "reason", "user_exists")
		return response.Error(c, http.StatusConflict, "Registration failed.", map[string]any{"username": "Already taken."})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", err)
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: pwHash,
		Role:         "user",
	}
	if err := h.DB.Create(&user).Error; err != nil {
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", err)
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	h.publish(c, map[string]any{
		"type":     "user_registered",
		"userID":   user.ID,
		"username": user.Username,
	})

	l.Info("register_success", "status", 201, "userID", user.ID)
	return response.Success(c, http.StatusCreated, map[string]any{"user_id": user.ID}, "Registration successful.")
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return response.Error(c, http.StatusBadRequest, "Login failed.", map[string]any{"body": "invalid json"})
	}

	var user models.User
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
		return response.Error(c, http.StatusUnauthorized, "Invalid username or password.", nil)
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
		return response.Error(c, http.StatusUnauthorized, "Invalid username or password.", nil)
	}

	pair, err := h.Tokens.IssuePair(user.ID, user.Role)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create token", "error", err)
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	h.publish(c, map[string]any{
		"type":   "user_logged_in",
		"userID": user.ID,
	})

	l.Info("login_success", "userID", user.ID)
	return response.Success(c, http.StatusOK, map[string]any{
		"access":  pair.Access,
		"refresh": pair.Refresh,
		"user":    viewOf(&user),
	}, "Login successful.")
}

// Refresh rotates the presented refresh token. The old token is revoked by
// the rotation itself, so replaying it yields 401.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		l.Warn("refresh_failed", "status", 400, "reason", "missing token")
		return response.Error(c, http.StatusBadRequest, "Refresh token is required.", nil)
	}

	pair, err := h.Tokens.Rotate(req.Refresh)
	if err != nil {
		l.Warn("refresh_failed", "status", 401, "error", err)
		return response.Error(c, http.StatusUnauthorized, "Token refresh failed.", nil)
	}

	l.Info("refresh_success")
	return response.Success(c, http.StatusOK, map[string]any{
		"access":  pair.Access,
		"refresh": pair.Refresh,
	}, "Token refreshed.")
}

func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.Bind(&req); err == nil && req.Refresh != "" {
		if err := h.Tokens.Revoke(req.Refresh); err != nil {
			l.Error("logout_failed", "status", 500, "error", err)
			return response.Error(c, http.StatusInternalServerError, "Logout failed.", nil)
		}
	}

	l.Info("logout_success")
	return response.Success(c, http.StatusOK, nil, "Logout successful.")
}

func (h *AuthHandler) Me(c echo.Context) error {
	userID, err := mwauth.UserID(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return response.Error(c, http.StatusUnauthorized, "Authentication required.", nil)
	}
	return response.Success(c, http.StatusOK, viewOf(&user), "Token is valid.")
}

func (h *AuthHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, events.TopicUserEvents, fmt.Sprint(event["userID"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}
