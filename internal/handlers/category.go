package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/response"
	"github.com/Skotchmaster/storefront/internal/util"
)

// CategoryHandler serves the read-only category browse endpoints. Category
// management happens out of band; only active categories are visible.
type CategoryHandler struct {
	DB *gorm.DB
}

type categoryView struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	ProductCount int64  `json:"product_count"`
}

func (h *CategoryHandler) GetCategories(c echo.Context) error {
	var categories []models.Category
	if err := h.DB.Where("is_active = ?", true).Order("name ASC").Find(&categories).Error; err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	counts, err := h.productCounts()
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	views := make([]categoryView, 0, len(categories))
	for _, cat := range categories {
		views = append(views, categoryView{
			ID:           cat.ID,
			Name:         cat.Name,
			Description:  cat.Description,
			ProductCount: counts[cat.ID],
		})
	}
	return response.Success(c, http.StatusOK, views, "Categories retrieved successfully.")
}

func (h *CategoryHandler) GetCategory(c echo.Context) error {
	category, errResp := h.activeCategory(c)
	if category == nil {
		return errResp
	}

	var count int64
	if err := h.DB.Model(&models.Product{}).
		Where("category_id = ? AND is_active = ?", category.ID, true).
		Count(&count).Error; err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	return response.Success(c, http.StatusOK, categoryView{
		ID:           category.ID,
		Name:         category.Name,
		Description:  category.Description,
		ProductCount: count,
	}, "Category retrieved successfully.")
}

// GetCategoryProducts lists a category's products with the same filter and
// pagination behavior as the top-level product list.
func (h *CategoryHandler) GetCategoryProducts(c echo.Context) error {
	category, errResp := h.activeCategory(c)
	if category == nil {
		return errResp
	}

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.Product{}).
		Where("is_active = ?", true).
		Where("category_id = ?", category.ID)
	q = applyProductFilters(q, c)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}

	var items []models.Product
	if err := q.Order("name ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
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

// activeCategory resolves the :id param; on failure the response has already
// been written and the first return is nil.
func (h *CategoryHandler) activeCategory(c echo.Context) (*models.Category, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return nil, response.Error(c, http.StatusBadRequest, "Invalid category id.", nil)
	}

	var category models.Category
	if err := h.DB.Where("id = ? AND is_active = ?", id, true).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.Error(c, http.StatusNotFound, "Category not found.", nil)
		}
		return nil, response.Error(c, http.StatusInternalServerError, "Internal error.", nil)
	}
	return &category, nil
}

func (h *CategoryHandler) productCounts() (map[uint]int64, error) {
	var rows []struct {
		CategoryID uint
		N          int64
	}
	if err := h.DB.Model(&models.Product{}).
		Select("category_id, COUNT(*) AS n").
		Where("is_active = ?", true).
		Group("category_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.CategoryID] = r.N
	}
	return counts, nil
}
