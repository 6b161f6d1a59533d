package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/models"
)

const (
	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrInvalidRefresh = errors.New("invalid refresh token")
	ErrRefreshRevoked = errors.New("refresh token revoked")
	ErrRefreshExpired = errors.New("refresh token expired")
)

type Service struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
}

type Pair struct {
	Access  string
	Refresh string
}

// IssuePair signs a fresh access/refresh pair and records the refresh token
// (hashed) so it can be rotated exactly once.
func (s *Service) IssuePair(userID uint, role string) (Pair, error) {
	access, err := s.signAccess(userID, role)
	if err != nil {
		return Pair{}, err
	}

	jti := uuid.NewString()
	refreshExp := time.Now().Add(RefreshTTL)
	refresh, err := s.signRefresh(userID, role, jti, refreshExp)
	if err != nil {
		return Pair{}, err
	}

	stored := models.RefreshToken{
		TokenHash: sha256Hex(refresh),
		JTI:       jti,
		UserID:    userID,
		Role:      role,
		ExpiresAt: refreshExp.Unix(),
	}
	if err := s.DB.Create(&stored).Error; err != nil {
		return Pair{}, fmt.Errorf("db error: %w", err)
	}

	return Pair{Access: access, Refresh: refresh}, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token is
// revoked in the same transaction that issues the replacement, so a second
// rotation attempt with the same token fails.
func (s *Service) Rotate(rawToken string) (Pair, error) {
	claims, err := s.parseRefresh(rawToken)
	if err != nil {
		return Pair{}, err
	}

	userID := uint(claims["sub"].(float64))
	role, _ := claims["role"].(string)

	var pair Pair
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		var stored models.RefreshToken
		if err := tx.Where("token_hash = ?", sha256Hex(rawToken)).First(&stored).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidRefresh
			}
			return fmt.Errorf("db error: %w", err)
		}
		if stored.Revoked {
			return ErrRefreshRevoked
		}
		if time.Now().Unix() > stored.ExpiresAt {
			return ErrRefreshExpired
		}

		if err := tx.Model(&stored).Update("revoked", true).Error; err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		access, err := s.signAccess(userID, role)
		if err != nil {
			return err
		}
		jti := uuid.NewString()
		refreshExp := time.Now().Add(RefreshTTL)
		refresh, err := s.signRefresh(userID, role, jti, refreshExp)
		if err != nil {
			return err
		}
		next := models.RefreshToken{
			TokenHash: sha256Hex(refresh),
			JTI:       jti,
			UserID:    userID,
			Role:      role,
			ExpiresAt: refreshExp.Unix(),
		}
		if err := tx.Create(&next).Error; err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		pair = Pair{Access: access, Refresh: refresh}
		return nil
	})
	if txErr != nil {
		return Pair{}, txErr
	}
	return pair, nil
}

// Revoke marks a refresh token unusable (logout).
func (s *Service) Revoke(rawToken string) error {
	if err := s.DB.Model(&models.RefreshToken{}).
		Where("token_hash = ?", sha256Hex(rawToken)).
		Update("revoked", true).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Service) signAccess(userID uint, role string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(AccessTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.JWTSecret)
}

func (s *Service) signRefresh(userID uint, role, jti string, exp time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"typ":  "refresh",
		"jti":  jti,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.RefreshSecret)
}

func (s *Service) parseRefresh(rawToken string) (jwt.MapClaims, error) {
	t, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signature method: %v", t.Header["alg"])
		}
		return s.RefreshSecret, nil
	})
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefresh, err)
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidRefresh
	}
	if typ, ok := claims["typ"]; !ok || typ != "refresh" {
		return nil, fmt.Errorf("%w: not a refresh token", ErrInvalidRefresh)
	}
	if _, ok := claims["sub"].(float64); !ok {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidRefresh)
	}
	return claims, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
