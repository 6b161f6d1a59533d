package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/response"
	"github.com/Skotchmaster/storefront/internal/util"
)

type ProductHandler struct {
	DB       *gorm.DB
	Producer events.Producer
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

// applyProductFilters narrows a product query by the optional catalog
// filters: category id, price range, stock availability. Unparseable values
// are ignored rather than rejected.
func applyProductFilters(q *gorm.DB, c echo.Context) *gorm.DB {
	if v := c.QueryParam("category"); v != "" {
		if id, err := strconv.Atoi(v); err == nil && id > 0 {
			q = q.Where("category_id = ?", id)
		}
	}
	if v := c.QueryParam("min_price"); v != "" {
		if p, err := decimal.NewFromString(v); err == nil {
			q = q.Where("price >= ?", p)
		}
	}
	if v := c.QueryParam("max_price"); v != "" {
		if p, err := decimal.NewFromString(v); err == nil {
			q = q.Where("price <= ?", p)
		}
	}
	if v := c.QueryParam("in_stock"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			if b {
				q = q.Where("stock_quantity > 0")
			} else {
				q = q.Where("stock_quantity = 0")
			}
		}
	}
	return q
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return response.Error(c, http.StatusBadRequest, "Invalid product id.", nil)
	}

	var product models.Product
	if err := h.DB.Where("id = ? AND is_active = ?", id, true).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Error(c, http.StatusNotFound, "Product not found.", nil)
		}
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	return response.Success(c, http.StatusOK, product, "Product retrieved successfully.")
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.Product{}).Where("is_active = ?", true)
	q = applyProductFilters(q, c)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	var items []models.Product
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	meta := response.Meta{
		Page:       page,
		Size:       limit,
		Total:      total,
		TotalPages: (total + int64(limit) - 1) / int64(limit),
		HasPrev:    page > 1,
		HasNext:    int64(offset+limit) < total,
	}
	return response.Paginated(c, http.StatusOK, items, meta, "Products retrieved successfully.")
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req struct {
		Name          string `json:"name"`
		Description   string `json:"description"`
		SKU           string `json:"sku"`
		Price         string `json:"price"`
		CategoryID    uint   `json:"category_id"`
		StockQuantity uint   `json:"stock_quantity"`
		Image         string `json:"image"`
	}
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "Invalid input.", map[string]any{"body": "invalid json"})
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return response.Error(c, http.StatusBadRequest, "Invalid input.", map[string]any{"price": "Invalid price."})
	}

	if req.CategoryID != 0 && !h.categoryExists(req.CategoryID) {
		return response.Error(c, http.StatusBadRequest, "Invalid input.", map[string]any{"category_id": "Unknown category."})
	}

	prod := models.Product{
		Name:          req.Name,
		Description:   req.Description,
		SKU:           req.SKU,
		Price:         price.Round(2),
		CategoryID:    req.CategoryID,
		StockQuantity: req.StockQuantity,
		Image:         req.Image,
		IsActive:      true,
	}
	if err := h.DB.Create(&prod).Error; err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	h.publish(c, map[string]any{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return response.Success(c, http.StatusCreated, prod, "Product created successfully.")
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return response.Error(c, http.StatusBadRequest, "Invalid product id.", nil)
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Error(c, http.StatusNotFound, "Product not found.", nil)
		}
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	var req struct {
		Name          *string `json:"name"`
		Description   *string `json:"description"`
		Price         *string `json:"price"`
		CategoryID    *uint   `json:"category_id"`
		StockQuantity *uint   `json:"stock_quantity"`
		Image         *string `json:"image"`
		IsActive      *bool   `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "Invalid input.", map[string]any{"body": "invalid json"})
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		price, err := decimal.NewFromString(*req.Price)
		if err != nil || price.IsNegative() {
			return response.Error(c, http.StatusBadRequest, "Invalid input.", map[string]any{"price": "Invalid price."})
		}
		product.Price = price.Round(2)
	}
	if req.CategoryID != nil {
		if *req.CategoryID != 0 && !h.categoryExists(*req.CategoryID) {
			return response.Error(c, http.StatusBadRequest, "Invalid input.", map[string]any{"category_id": "Unknown category."})
		}
		product.CategoryID = *req.CategoryID
	}
	if req.StockQuantity != nil {
		product.StockQuantity = *req.StockQuantity
	}
	if req.Image != nil {
		product.Image = *req.Image
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	if err := h.DB.Save(&product).Error; err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	h.publish(c, map[string]any{
		"type":      "product_updated",
		"productID": product.ID,
	})

	return response.Success(c, http.StatusOK, product, "Product updated successfully.")
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return response.Error(c, http.StatusBadRequest, "Invalid product id.", nil)
	}

	if err := h.DB.Delete(&models.Product{}, id).Error; err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	h.publish(c, map[string]any{
		"type":      "product_deleted",
		"productID": id,
	})

	return response.Success(c, http.StatusOK, map[string]any{"deleted": id}, "Product deleted successfully.")
}

func (h *ProductHandler) categoryExists(id uint) bool {
	var n int64
	h.DB.Model(&models.Category{}).Where("id = ? AND is_active = ?", id, true).Count(&n)
	return n > 0
}

func (h *ProductHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, events.TopicProductEvents, fmt.Sprint(event["productID"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}
