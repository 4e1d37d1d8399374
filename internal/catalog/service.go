package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/obs"
)

// ErrInvalidProduct is returned when the upstream record for a product was
// quarantined and cannot be priced.
var ErrInvalidProduct = errors.New("catalog: product data invalid")

// Upstream is the raw product API. Client implements it.
type Upstream interface {
	ListProducts(ctx context.Context) ([]byte, error)
	GetProduct(ctx context.Context, id int) ([]byte, error)
	ListCategories(ctx context.Context) ([]byte, error)
	ListSubcategories(ctx context.Context, categoryID int) ([]byte, error)
}

// Filter narrows a product listing along the category navigation.
type Filter struct {
	CategoryID    int
	SubcategoryID int
}

func (f Filter) match(p Product) bool {
	if f.CategoryID > 0 && p.CategoryID != f.CategoryID {
		return false
	}
	if f.SubcategoryID > 0 && p.SubcategoryID != f.SubcategoryID {
		return false
	}
	return true
}

// Service reads the catalog through a shared cache.
type Service struct {
	Upstream Upstream
	Cache    *Cache
	Logger   zerolog.Logger
}

const productsKey = "products"

func productKey(id int) string { return "product:" + strconv.Itoa(id) }

// Products returns the parsed catalog filtered by f. Quarantined records are
// logged and counted, never returned.
func (s *Service) Products(ctx context.Context, f Filter) ([]Product, error) {
	if s == nil || s.Upstream == nil {
		return nil, errors.New("catalog service not configured")
	}
	var all []Product
	ok, err := s.Cache.GetJSON(ctx, productsKey, &all)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("catalog_cache_read_failed")
	}
	if !ok {
		body, err := s.Upstream.ListProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		parsed, err := Parse(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		s.reportRejected(parsed.Rejected)
		all = parsed.Products
		if err := s.Cache.SetJSON(ctx, productsKey, all); err != nil {
			s.Logger.Warn().Err(err).Msg("catalog_cache_write_failed")
		}
	}

	out := make([]Product, 0, len(all))
	for _, p := range all {
		if f.match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Product returns one parsed product.
func (s *Service) Product(ctx context.Context, id int) (Product, error) {
	if s == nil || s.Upstream == nil {
		return Product{}, errors.New("catalog service not configured")
	}
	if id < 1 {
		return Product{}, fmt.Errorf("product %d: %w", id, ErrProductNotFound)
	}
	var p Product
	if ok, err := s.Cache.GetJSON(ctx, productKey(id), &p); err == nil && ok {
		return p, nil
	}
	body, err := s.Upstream.GetProduct(ctx, id)
	if err != nil {
		return Product{}, fmt.Errorf("product %d: %w", id, err)
	}
	p, err = ParseProduct(body)
	if err != nil {
		reason := err.Error()
		var recErr *RecordError
		if errors.As(err, &recErr) {
			reason = recErr.Reason
		}
		s.reportRejected([]Rejected{{Index: 0, ID: strconv.Itoa(id), Reason: reason}})
		return Product{}, fmt.Errorf("%w: %w", ErrInvalidProduct, err)
	}
	if p.ID != id {
		return Product{}, fmt.Errorf("%w: upstream returned id %d for %d", ErrInvalidProduct, p.ID, id)
	}
	if err := s.Cache.SetJSON(ctx, productKey(id), p); err != nil {
		s.Logger.Warn().Err(err).Int("product_id", id).Msg("catalog_cache_write_failed")
	}
	return p, nil
}

// Categories returns the top-level navigation.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	if ok, err := s.Cache.GetJSON(ctx, "categories", &out); err == nil && ok {
		return out, nil
	}
	body, err := s.Upstream.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out, skipped, err := parseCategories(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if skipped > 0 {
		s.Logger.Warn().Int("skipped", skipped).Msg("catalog_categories_skipped")
	}
	_ = s.Cache.SetJSON(ctx, "categories", out)
	return out, nil
}

// Subcategories returns the children of categoryID.
func (s *Service) Subcategories(ctx context.Context, categoryID int) ([]Subcategory, error) {
	key := "subcategories:" + strconv.Itoa(categoryID)
	var out []Subcategory
	if ok, err := s.Cache.GetJSON(ctx, key, &out); err == nil && ok {
		return out, nil
	}
	body, err := s.Upstream.ListSubcategories(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list subcategories of %d: %w", categoryID, err)
	}
	out, skipped, err := parseSubcategories(body, categoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if skipped > 0 {
		s.Logger.Warn().Int("skipped", skipped).Int("category_id", categoryID).Msg("catalog_subcategories_skipped")
	}
	_ = s.Cache.SetJSON(ctx, key, out)
	return out, nil
}

func (s *Service) reportRejected(rejected []Rejected) {
	for _, r := range rejected {
		label, _, _ := strings.Cut(r.Reason, ":")
		obs.ObserveCatalogRejected(label)
		s.Logger.Warn().
			Int("index", r.Index).
			Str("product_id", r.ID).
			Str("reason", r.Reason).
			Msg("catalog_record_quarantined")
	}
}
