package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/models"
)

var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
)

const (
	MinQuantity = 1
	MaxQuantity = 99
)

// TaxRate is the fixed rate applied to the cart subtotal.
var TaxRate = decimal.NewFromFloat(0.09)

type Service struct {
	DB *gorm.DB
}

type ProductView struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	StockQuantity uint   `json:"stock_quantity"`
	InStock       bool   `json:"in_stock"`
	Image         string `json:"image"`
}

type ItemView struct {
	ID        uint        `json:"id"`
	Product   ProductView `json:"product"`
	Quantity  uint        `json:"quantity"`
	UnitPrice string      `json:"unit_price"`
	Subtotal  string      `json:"subtotal"`
}

type Totals struct {
	ItemCount uint   `json:"item_count"`
	Subtotal  string `json:"subtotal"`
	TaxAmount string `json:"tax_amount"`
	Total     string `json:"total"`
}

type View struct {
	ItemCount uint       `json:"item_count"`
	Subtotal  string     `json:"subtotal"`
	TaxAmount string     `json:"tax_amount"`
	Total     string     `json:"total"`
	Items     []ItemView `json:"items"`
}

func (s *Service) Get(ctx context.Context, userID uint) (*View, error) {
	items, err := s.items(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, items)
}

// Add puts a product in the cart, merging quantities when it is already
// there. The unit price is frozen at add time.
func (s *Service) Add(ctx context.Context, userID, productID uint, quantity uint) (*ItemView, *Totals, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, nil, err
	}

	var product models.Product
	if err := s.DB.WithContext(ctx).
		Where("id = ? AND is_active = ?", productID, true).
		First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("product not found: %w", ErrNotFound)
		}
		return nil, nil, fmt.Errorf("db error: %w", err)
	}

	var item models.CartItem
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&item).Error
	switch {
	case err == nil:
		merged := item.Quantity + quantity
		if merged > MaxQuantity {
			return nil, nil, fmt.Errorf("quantity must be between %d and %d: %w", MinQuantity, MaxQuantity, ErrValidation)
		}
		if err := validateStock(&product, merged); err != nil {
			return nil, nil, err
		}
		item.Quantity = merged
		if err := s.DB.WithContext(ctx).Save(&item).Error; err != nil {
			return nil, nil, fmt.Errorf("db error: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := validateStock(&product, quantity); err != nil {
			return nil, nil, err
		}
		item = models.CartItem{
			UserID:    userID,
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: product.Price,
		}
		if err := s.DB.WithContext(ctx).Create(&item).Error; err != nil {
			return nil, nil, fmt.Errorf("db error: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("db error: %w", err)
	}

	return s.itemAndTotals(ctx, userID, &item, &product)
}

func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID, quantity uint) (*ItemView, *Totals, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, nil, err
	}

	var item models.CartItem
	if err := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("cart item not found: %w", ErrNotFound)
		}
		return nil, nil, fmt.Errorf("db error: %w", err)
	}

	var product models.Product
	if err := s.DB.WithContext(ctx).First(&product, item.ProductID).Error; err != nil {
		return nil, nil, fmt.Errorf("db error: %w", err)
	}
	if err := validateStock(&product, quantity); err != nil {
		return nil, nil, err
	}

	item.Quantity = quantity
	if err := s.DB.WithContext(ctx).Save(&item).Error; err != nil {
		return nil, nil, fmt.Errorf("db error: %w", err)
	}

	return s.itemAndTotals(ctx, userID, &item, &product)
}

func (s *Service) Remove(ctx context.Context, userID, itemID uint) (*Totals, error) {
	res := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return nil, fmt.Errorf("db error: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("cart item not found: %w", ErrNotFound)
	}
	return s.totals(ctx, userID)
}

func (s *Service) Clear(ctx context.Context, userID uint) (*Totals, error) {
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.CartItem{}).Error; err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s.totals(ctx, userID)
}

// Checkout turns the cart into an order and empties it.
func (s *Service) Checkout(ctx context.Context, userID uint) (*models.Order, error) {
	var order models.Order
	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []models.CartItem
		if err := tx.Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if len(items) == 0 {
			return fmt.Errorf("no items in cart: %w", ErrValidation)
		}

		subtotal := decimal.Zero
		for _, it := range items {
			subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		subtotal = subtotal.Round(2)
		total := subtotal.Add(subtotal.Mul(TaxRate).Round(2))

		order = models.Order{
			UserID:    userID,
			Total:     total,
			Status:    "new",
			CreatedAt: time.Now().Unix(),
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		for _, it := range items {
			oi := models.OrderItem{
				OrderID:   order.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
			}
			if err := tx.Create(&oi).Error; err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}

		if err := tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return &order, nil
}

func (s *Service) items(ctx context.Context, userID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return items, nil
}

func (s *Service) buildView(ctx context.Context, items []models.CartItem) (*View, error) {
	view := &View{Items: make([]ItemView, 0, len(items))}
	subtotal := decimal.Zero

	for _, it := range items {
		var product models.Product
		if err := s.DB.WithContext(ctx).First(&product, it.ProductID).Error; err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		view.Items = append(view.Items, formatItem(&it, &product))
		view.ItemCount += it.Quantity
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(TaxRate).Round(2)
	view.Subtotal = subtotal.StringFixed(2)
	view.TaxAmount = tax.StringFixed(2)
	view.Total = subtotal.Add(tax).StringFixed(2)
	return view, nil
}

func (s *Service) totals(ctx context.Context, userID uint) (*Totals, error) {
	items, err := s.items(ctx, userID)
	if err != nil {
		return nil, err
	}

	t := &Totals{}
	subtotal := decimal.Zero
	for _, it := range items {
		t.ItemCount += it.Quantity
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(TaxRate).Round(2)
	t.Subtotal = subtotal.StringFixed(2)
	t.TaxAmount = tax.StringFixed(2)
	t.Total = subtotal.Add(tax).StringFixed(2)
	return t, nil
}

func (s *Service) itemAndTotals(ctx context.Context, userID uint, item *models.CartItem, product *models.Product) (*ItemView, *Totals, error) {
	iv := formatItem(item, product)
	t, err := s.totals(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return &iv, t, nil
}

func formatItem(item *models.CartItem, product *models.Product) ItemView {
	qty := decimal.NewFromInt(int64(item.Quantity))
	return ItemView{
		ID: item.ID,
		Product: ProductView{
			ID:            product.ID,
			Name:          product.Name,
			SKU:           product.SKU,
			StockQuantity: product.StockQuantity,
			InStock:       product.InStock(),
			Image:         product.Image,
		},
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice.StringFixed(2),
		Subtotal:  item.UnitPrice.Mul(qty).Round(2).StringFixed(2),
	}
}

func validateQuantity(q uint) error {
	if q < MinQuantity || q > MaxQuantity {
		return fmt.Errorf("quantity must be between %d and %d: %w", MinQuantity, MaxQuantity, ErrValidation)
	}
	return nil
}

func validateStock(p *models.Product, q uint) error {
	if !p.InStock() {
		return fmt.Errorf("product is out of stock: %w", ErrValidation)
	}
	if p.StockQuantity < q {
		return fmt.Errorf("only %d items available in stock: %w", p.StockQuantity, ErrValidation)
	}
	return nil
}
