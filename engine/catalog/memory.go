package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

// MemorySource serves a static product list, such as the catalog bundled
// with a terminal.
type MemorySource struct {
	name     string
	products []domain.Product
}

// Compile-time interface check.
var _ Source = (*MemorySource)(nil)

// NewMemorySource creates a MemorySource named name.
func NewMemorySource(name string, products []domain.Product) *MemorySource {
	ps := slices.Clone(products)
	for i := range ps {
		ps[i].Source = name
	}
	return &MemorySource{name: name, products: ps}
}

func (m *MemorySource) Name() string { return m.name }

// Products returns a copy of every product.
func (m *MemorySource) Products() []domain.Product { return slices.Clone(m.products) }

func (m *MemorySource) QueryByCategory(_ context.Context, category string) ([]domain.Product, error) {
	return m.filter(func(p domain.Product) bool { return InCategory(p, category) }), nil
}

func (m *MemorySource) QueryBySize(_ context.Context, category, size string) ([]domain.Product, error) {
	return m.filter(func(p domain.Product) bool { return InCategory(p, category) && HasSize(p, size) }), nil
}

func (m *MemorySource) QueryByCode(_ context.Context, category, code string) ([]domain.Product, error) {
	return m.filter(func(p domain.Product) bool { return InCategory(p, category) && HasCode(p, code) }), nil
}

func (m *MemorySource) filter(keep func(domain.Product) bool) []domain.Product {
	var out []domain.Product
	for _, p := range m.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// LoadFile reads a JSON or YAML product list (a list, or an object with a
// "products" list). Products without any identity are logged and skipped.
func LoadFile(name, path string, log *slog.Logger) (*MemorySource, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()

	docs, err := domain.DecodeDocs(f, domain.FormatOf(path), "products")
	if err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w", path, err)
	}
	products := make([]domain.Product, 0, len(docs))
	for i, doc := range docs {
		p := domain.CanonicalizeProduct(doc)
		if err := domain.ValidateProduct(p); err != nil {
			log.Warn("catalog: skipping malformed product", "file", path, "index", i, "error", err)
			continue
		}
		products = append(products, p)
	}
	return NewMemorySource(name, products), nil
}
