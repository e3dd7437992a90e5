// Package catalog defines the product catalog query contract and its
// adapters: bundled files, SQL databases, NATS request/reply, a redis
// read-through cache and a breaker-guarded wrapper.
package catalog

import (
	"context"
	"strings"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
)

// Source is one read-only product catalog. Categories are catalog keys such
// as domain.CatalogSpeaker. Size queries compare normalized sizes; code
// queries compare case-insensitively.
type Source interface {
	Name() string
	QueryByCategory(ctx context.Context, category string) ([]domain.Product, error)
	QueryBySize(ctx context.Context, category, size string) ([]domain.Product, error)
	QueryByCode(ctx context.Context, category, code string) ([]domain.Product, error)
}

// InCategory reports whether p belongs to the catalog category.
func InCategory(p domain.Product, category string) bool {
	return strings.EqualFold(strings.TrimSpace(p.Category), strings.TrimSpace(category))
}

// HasSize reports whether p's size matches size after normalizing both.
// An empty size never matches.
func HasSize(p domain.Product, size string) bool {
	want := normalize.Size(size)
	return want != "" && normalize.Size(p.SpeakerSize) == want
}

// HasCode reports whether p's part number equals code, ignoring case.
func HasCode(p domain.Product, code string) bool {
	want := normalize.Code(code)
	return want != "" && normalize.Code(p.MetraCode) == want
}

// Query is a serializable catalog query, used on the wire and as a cache key.
type Query struct {
	Op       string `json:"op"`
	Category string `json:"category"`
	Value    string `json:"value,omitempty"`
}

// Query operations.
const (
	OpCategory = "category"
	OpSize     = "size"
	OpCode     = "code"
)

// Run dispatches q against src.
func Run(ctx context.Context, src Source, q Query) ([]domain.Product, error) {
	switch q.Op {
	case OpCategory:
		return src.QueryByCategory(ctx, q.Category)
	case OpSize:
		return src.QueryBySize(ctx, q.Category, q.Value)
	case OpCode:
		return src.QueryByCode(ctx, q.Category, q.Value)
	}
	return nil, domain.NewValidationError("op", q.Op, domain.ErrInvalidRecord)
}

// key is the normalized form of q used for caching.
func (q Query) key() string {
	v := q.Value
	switch q.Op {
	case OpSize:
		v = normalize.Size(v)
	case OpCode:
		v = normalize.Code(v)
	}
	return q.Op + ":" + strings.ToLower(strings.TrimSpace(q.Category)) + ":" + v
}

func tag(products []domain.Product, source string) []domain.Product {
	for i := range products {
		if products[i].Source == "" {
			products[i].Source = source
		}
	}
	return products
}
