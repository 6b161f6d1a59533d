package models

import (
	"github.com/shopspring/decimal"
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	Email        string `gorm:"unique;not null"          json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"         json:"id"`
	TokenHash string `gorm:"unique;not null"    json:"-"`
	JTI       string `gorm:"index;not null"     json:"jti"`
	UserID    uint   `gorm:"index;not null"     json:"user_id"`
	Role      string `gorm:"not null"           json:"role"`
	ExpiresAt int64  `gorm:"not null"           json:"expires_at"`
	Revoked   bool   `gorm:"default:false"      json:"revoked"`
}

// Category is a flat grouping of catalog products (slabs, tiles, tables).
type Category struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"unique;not null"          json:"name"`
	Description string `json:"description"`
	IsActive    bool   `gorm:"default:true"             json:"is_active"`
}

type Product struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string          `gorm:"not null"                 json:"name"`
	Description   string          `gorm:"not null"                 json:"description"`
	SKU           string          `gorm:"unique;not null"          json:"sku"`
	Price         decimal.Decimal `gorm:"type:numeric(10,2)"       json:"price"`
	CategoryID    uint            `gorm:"index"                    json:"category_id"`
	StockQuantity uint            `json:"stock_quantity"`
	Image         string          `json:"image"`
	IsActive      bool            `gorm:"default:true"             json:"is_active"`
}

func (p *Product) InStock() bool {
	return p.StockQuantity > 0
}

// UnitPrice is frozen when the item enters the cart, so a later price
// change does not reprice items already added.
type CartItem struct {
	ID        uint            `gorm:"primaryKey"                 json:"id"`
	UserID    uint            `gorm:"index;not null"             json:"user_id"`
	ProductID uint            `gorm:"not null"                   json:"product_id"`
	Quantity  uint            `gorm:"default:1;check:quantity>0" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(10,2)"         json:"unit_price"`
}

type Order struct {
	ID        uint            `gorm:"primaryKey"         json:"id"`
	UserID    uint            `gorm:"index;not null"     json:"user_id"`
	Total     decimal.Decimal `gorm:"type:numeric(10,2)" json:"total"`
	Status    string          `gorm:"not null"           json:"status"`
	CreatedAt int64           `json:"created_at"`
}

type OrderItem struct {
	ID        uint            `gorm:"primaryKey"         json:"id"`
	OrderID   uint            `gorm:"index;not null"     json:"order_id"`
	ProductID uint            `gorm:"not null"           json:"product_id"`
	Quantity  uint            `gorm:"not null"           json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(10,2)" json:"unit_price"`
}
