package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
)

var ErrInvalidProduct = errors.New("invalid product")

const DefaultCacheSize = 256

// price is stored as NUMERIC(14,4).
const priceScale = 4

var maxPrice = decimal.New(1, 10)

// Service is the catalog API. Single-product reads are served from an LRU
// cache that update and delete keep coherent.
type Service struct {
	repo  Repository
	cache *lru.Cache[string, Product]
	now   func() time.Time
}

func NewService(repo Repository, cacheSize int) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, Product](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("product cache: %w", err)
	}
	return &Service{
		repo:  repo,
		cache: cache,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) GetAllProducts(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

// GetFilteredProducts narrows the catalog by a case-sensitive substring of
// name or description, then by exact category.
func (s *Service) GetFilteredProducts(ctx context.Context, f Filter) ([]Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	if f.Search != "" {
		products = keep(products, func(p Product) bool {
			return strings.Contains(p.Name, f.Search) || strings.Contains(p.Description, f.Search)
		})
	}
	if f.Category != "" {
		products = keep(products, func(p Product) bool {
			return p.Category == f.Category
		})
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	if p, ok := s.cache.Get(id); ok {
		return p, nil
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	s.cache.Add(id, p)
	return p, nil
}

func (s *Service) AddProduct(ctx context.Context, in Input) (Product, error) {
	if err := validate(in); err != nil {
		return Product{}, err
	}
	now := s.now()
	p := Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, in Input) (Product, error) {
	if err := validate(in); err != nil {
		return Product{}, err
	}
	p := Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		UpdatedAt:   s.now(),
	}
	// Evict on both sides of the write: a reader that missed while the update
	// was in flight may have cached the old row.
	s.cache.Remove(id)
	if err := s.repo.Update(ctx, &p); err != nil {
		return Product{}, err
	}
	s.cache.Remove(id)
	return p, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) (Product, error) {
	s.cache.Remove(id)
	p, err := s.repo.Delete(ctx, id)
	s.cache.Remove(id)
	return p, err
}

func validate(in Input) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case strings.TrimSpace(in.Category) == "":
		return fmt.Errorf("%w: category is required", ErrInvalidProduct)
	case in.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case !in.Price.LessThan(maxPrice), !in.Price.Equal(in.Price.Truncate(priceScale)):
		return fmt.Errorf("%w: price must be below %s with at most %d decimals", ErrInvalidProduct, maxPrice, priceScale)
	}
	return nil
}

func keep(products []Product, pred func(Product) bool) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if pred(p) {
			out = append(out, p)
		}
	}
	return out
}
