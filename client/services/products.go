package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Skotchmaster/storefront/client/session"
)

type ProductService struct {
	client *session.Client
}

func NewProducts(client *session.Client) *ProductService {
	return &ProductService{client: client}
}

// ProductFilter narrows List results; zero fields are left out of the query.
type ProductFilter struct {
	CategoryID uint
	MinPrice   string
	MaxPrice   string
	InStock    *bool
}

func (f ProductFilter) query() url.Values {
	v := url.Values{}
	if f.CategoryID != 0 {
		v.Set("category", strconv.FormatUint(uint64(f.CategoryID), 10))
	}
	if f.MinPrice != "" {
		v.Set("min_price", f.MinPrice)
	}
	if f.MaxPrice != "" {
		v.Set("max_price", f.MaxPrice)
	}
	if f.InStock != nil {
		v.Set("in_stock", strconv.FormatBool(*f.InStock))
	}
	return v
}

func (s *ProductService) List(ctx context.Context, page, size int) (*Page[CatalogProduct], error) {
	return s.ListFiltered(ctx, ProductFilter{}, page, size)
}

func (s *ProductService) ListFiltered(ctx context.Context, filter ProductFilter, page, size int) (*Page[CatalogProduct], error) {
	q := filter.query()
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var result Page[CatalogProduct]
	if err := s.client.Get(ctx, "/api/v1/products?"+q.Encode(), &result, session.Unauthenticated()); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *ProductService) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := s.client.Get(ctx, "/api/v1/categories", &categories, session.Unauthenticated()); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *ProductService) ByCategory(ctx context.Context, categoryID uint, page, size int) (*Page[CatalogProduct], error) {
	path := fmt.Sprintf("/api/v1/categories/%d/products?page=%d&size=%d", categoryID, page, size)
	var result Page[CatalogProduct]
	if err := s.client.Get(ctx, path, &result, session.Unauthenticated()); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *ProductService) Get(ctx context.Context, id uint) (*CatalogProduct, error) {
	var p CatalogProduct
	path := fmt.Sprintf("/api/v1/products/%d", id)
	if err := s.client.Get(ctx, path, &p, session.Unauthenticated()); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProductService) Search(ctx context.Context, query string, page, size int) ([]CatalogProduct, int64, error) {
	path := fmt.Sprintf("/api/v1/search?q=%s&page=%d&size=%d", url.QueryEscape(query), page, size)
	var data struct {
		Total    int64            `json:"total"`
		Products []CatalogProduct `json:"products"`
	}
	if err := s.client.Get(ctx, path, &data, session.Unauthenticated()); err != nil {
		return nil, 0, err
	}
	return data.Products, data.Total, nil
}
