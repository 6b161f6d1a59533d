package services

import (
	"github.com/shopspring/decimal"
)

type User struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

type Product struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	StockQuantity uint   `json:"stock_quantity"`
	InStock       bool   `json:"in_stock"`
	Image         string `json:"image"`
}

type Category struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	ProductCount int64  `json:"product_count"`
}

type CatalogProduct struct {
	ID            uint            `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	CategoryID    uint            `json:"category_id"`
	StockQuantity uint            `json:"stock_quantity"`
	Image         string          `json:"image"`
}

type CartItem struct {
	ID        uint            `json:"id"`
	Product   Product         `json:"product"`
	Quantity  uint            `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Cart struct {
	ItemCount uint            `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`
	Items     []*CartItem     `json:"items"`
}

type CartTotals struct {
	ItemCount uint            `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`
}

type Order struct {
	ID        uint            `json:"id"`
	Total     decimal.Decimal `json:"total"`
	Status    string          `json:"status"`
	CreatedAt int64           `json:"created_at"`
}

type Page[T any] struct {
	Items []T      `json:"items"`
	Meta  PageMeta `json:"meta"`
}

type PageMeta struct {
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}
