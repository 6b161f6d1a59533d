package credstore

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/storefront/client/session"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUserData     = "user_data"
)

type record struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (record) TableName() string { return "credentials" }

// SQLite is the durable credential store, a small key/value table in a
// local database file. The token pair is written in one transaction so a
// crash can never leave half a pair behind.
type SQLite struct {
	db *gorm.DB
}

func Open(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("migrate credential store: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) SaveTokens(creds session.Credentials) error {
	if !creds.Valid() {
		return errors.New("credential pair must have both tokens")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, r := range []record{
			{Key: keyAccessToken, Value: creds.Access},
			{Key: keyRefreshToken, Value: creds.Refresh},
		} {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&r).Error; err != nil {
				return fmt.Errorf("save %s: %w", r.Key, err)
			}
		}
		return nil
	})
}

func (s *SQLite) LoadTokens() (session.Credentials, error) {
	access, err := s.get(keyAccessToken)
	if err != nil {
		return session.Credentials{}, err
	}
	refresh, err := s.get(keyRefreshToken)
	if err != nil {
		return session.Credentials{}, err
	}

	creds := session.Credentials{Access: access, Refresh: refresh}
	if !creds.Valid() {
		// A partial pair is treated as no pair at all.
		return session.Credentials{}, nil
	}
	return creds, nil
}

func (s *SQLite) SaveUser(data []byte) error {
	r := record{Key: keyUserData, Value: string(data)}
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&r).Error; err != nil {
		return fmt.Errorf("save user data: %w", err)
	}
	return nil
}

func (s *SQLite) LoadUser() ([]byte, error) {
	v, err := s.get(keyUserData)
	if err != nil {
		return nil, err
	}
	if v == "" {
		return nil, nil
	}
	return []byte(v), nil
}

func (s *SQLite) Clear() error {
	if err := s.db.Where("1 = 1").Delete(&record{}).Error; err != nil {
		return fmt.Errorf("clear credential store: %w", err)
	}
	return nil
}

func (s *SQLite) get(key string) (string, error) {
	var r record
	if err := s.db.Where("key = ?", key).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return r.Value, nil
}
