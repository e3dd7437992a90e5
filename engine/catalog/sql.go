package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLSource serves products from a products table in SQLite or Postgres.
// Normalized size and code columns are written at upsert time so lookups
// compare like with like.
type SQLSource struct {
	db     *sql.DB
	driver string
	name   string
}

// Compile-time interface check.
var _ Source = (*SQLSource)(nil)

// OpenSQL opens a database for driver. SQLite file paths get WAL mode and a
// busy timeout.
func OpenSQL(driver, dsn string) (*SQLSource, error) {
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("catalog: %w: sql driver %q", domain.ErrUnsupportedFormat, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One connection keeps an in-memory database alive and shared.
		db.SetMaxOpenConns(1)
	}
	return NewSQLSource(db, driver), nil
}

// NewSQLSource wraps an open database.
func NewSQLSource(db *sql.DB, driver string) *SQLSource {
	return &SQLSource{db: db, driver: driver, name: "sql:" + driver}
}

func (s *SQLSource) Name() string { return s.name }

// Close closes the database.
func (s *SQLSource) Close() error { return s.db.Close() }

const schema = `CREATE TABLE IF NOT EXISTS products (
	product_key       TEXT PRIMARY KEY,
	seq               INTEGER NOT NULL,
	id                TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL DEFAULT '',
	sku               TEXT NOT NULL DEFAULT '',
	price             TEXT NOT NULL DEFAULT '0',
	category          TEXT NOT NULL DEFAULT '',
	category_key      TEXT NOT NULL DEFAULT '',
	brand             TEXT NOT NULL DEFAULT '',
	speaker_size      TEXT NOT NULL DEFAULT '',
	speaker_size_norm TEXT NOT NULL DEFAULT '',
	metra_code        TEXT NOT NULL DEFAULT '',
	metra_code_norm   TEXT NOT NULL DEFAULT ''
)`

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS products_category ON products (category_key)`,
	`CREATE INDEX IF NOT EXISTS products_size ON products (category_key, speaker_size_norm)`,
	`CREATE INDEX IF NOT EXISTS products_code ON products (category_key, metra_code_norm)`,
}

// Migrate creates the products table and its indexes.
func (s *SQLSource) Migrate(ctx context.Context) error {
	for _, stmt := range append([]string{schema}, indexes...) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("catalog: migrate: %w", err)
		}
	}
	return nil
}

// Upsert inserts or replaces products in one transaction, keyed by
// domain.ProductID. New rows are appended after existing ones; products
// without identity are rejected.
func (s *SQLSource) Upsert(ctx context.Context, products []domain.Product) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: upsert: %w", err)
	}
	defer tx.Rollback()

	var base int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM products`).Scan(&base); err != nil {
		return 0, fmt.Errorf("catalog: upsert: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO products
		(product_key, seq, id, name, sku, price, category, category_key, brand, speaker_size, speaker_size_norm, metra_code, metra_code_norm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_key) DO UPDATE SET
			id = excluded.id, name = excluded.name, sku = excluded.sku, price = excluded.price,
			category = excluded.category, category_key = excluded.category_key, brand = excluded.brand,
			speaker_size = excluded.speaker_size, speaker_size_norm = excluded.speaker_size_norm,
			metra_code = excluded.metra_code, metra_code_norm = excluded.metra_code_norm`))
	if err != nil {
		return 0, fmt.Errorf("catalog: upsert: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, p := range products {
		if err := domain.ValidateProduct(p); err != nil {
			return n, fmt.Errorf("catalog: upsert %q: %w", p.Name, err)
		}
		base++
		if _, err := stmt.ExecContext(ctx,
			domain.ProductID(p), base, p.ID, p.Name, p.SKU, p.Price, p.Category, categoryKey(p.Category), p.Brand,
			p.SpeakerSize, normalize.Size(p.SpeakerSize), p.MetraCode, normalize.Code(p.MetraCode),
		); err != nil {
			return n, fmt.Errorf("catalog: upsert %q: %w", p.Key(), err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: upsert commit: %w", err)
	}
	return n, nil
}

const selectProducts = `SELECT id, name, sku, price, category, brand, speaker_size, metra_code FROM products`

func (s *SQLSource) QueryByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return s.query(ctx, selectProducts+` WHERE category_key = ? ORDER BY seq`, categoryKey(category))
}

func (s *SQLSource) QueryBySize(ctx context.Context, category, size string) ([]domain.Product, error) {
	norm := normalize.Size(size)
	if norm == "" {
		return nil, nil
	}
	return s.query(ctx, selectProducts+` WHERE category_key = ? AND speaker_size_norm = ? ORDER BY seq`, categoryKey(category), norm)
}

func (s *SQLSource) QueryByCode(ctx context.Context, category, code string) ([]domain.Product, error) {
	norm := normalize.Code(code)
	if norm == "" {
		return nil, nil
	}
	return s.query(ctx, selectProducts+` WHERE category_key = ? AND metra_code_norm = ? ORDER BY seq`, categoryKey(category), norm)
}

func (s *SQLSource) query(ctx context.Context, q string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, &domain.SourceError{Source: s.name, Op: "query", Err: err}
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.Category, &p.Brand, &p.SpeakerSize, &p.MetraCode); err != nil {
			return nil, &domain.SourceError{Source: s.name, Op: "scan", Err: err}
		}
		p.Source = s.name
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.SourceError{Source: s.name, Op: "query", Err: err}
	}
	return out, nil
}

// rebind rewrites ? placeholders as $n for Postgres.
func (s *SQLSource) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func categoryKey(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
