package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLite is the default backend, a single file under DATA_DIR.
type SQLite struct {
	db  *sql.DB
	log *logrus.Logger
}

func NewSQLite(path string, log *logrus.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_fk=1&_busy_timeout=5000&_loc=UTC", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLite{db: db, log: log}, nil
}

func (s *SQLite) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS products (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL,
    slug            TEXT NOT NULL UNIQUE,
    url             TEXT NOT NULL UNIQUE,
    price_selector  TEXT NOT NULL,
    name_selector   TEXT NOT NULL,
    active          INTEGER NOT NULL DEFAULT 1,
    last_checked_at TIMESTAMP,
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS prices (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
    timestamp  TIMESTAMP NOT NULL,
    price      REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prices_product_timestamp ON prices(product_id, timestamp);
`)
	return err
}

func (s *SQLite) CreateProduct(ctx context.Context, p *Product) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (name, slug, url, price_selector, name_selector, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Slug, p.URL, p.PriceSelector, p.NameSelector, p.Active, time.Now().UTC())
	if err != nil {
		return sqliteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

const sqliteProductCols = `p.id, p.name, p.slug, p.url, p.price_selector, p.name_selector, p.active, p.last_checked_at, p.created_at,
       (SELECT price FROM prices WHERE product_id = p.id ORDER BY id DESC LIMIT 1) AS current_price`

func (s *SQLite) ListProducts(ctx context.Context) ([]Product, error) {
	return s.queryProducts(ctx, `SELECT `+sqliteProductCols+` FROM products p ORDER BY p.id`)
}

func (s *SQLite) ActiveProducts(ctx context.Context) ([]Product, error) {
	return s.queryProducts(ctx, `SELECT `+sqliteProductCols+` FROM products p WHERE p.active = 1 ORDER BY p.id`)
}

func (s *SQLite) queryProducts(ctx context.Context, q string, args ...any) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Product
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProduct(row rowScanner) (*Product, error) {
	var p Product
	var lastChecked sql.NullTime
	var price sql.NullFloat64
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.URL, &p.PriceSelector, &p.NameSelector,
		&p.Active, &lastChecked, &p.CreatedAt, &price)
	if err != nil {
		return nil, err
	}
	if lastChecked.Valid {
		t := lastChecked.Time
		p.LastCheckedAt = &t
	}
	if price.Valid {
		v := price.Float64
		p.CurrentPrice = &v
	}
	return &p, nil
}

func (s *SQLite) GetProduct(ctx context.Context, id int64) (*Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteProductCols+` FROM products p WHERE p.id = ?`, id)
	p, err := scanSQLiteProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *SQLite) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteProductCols+` FROM products p WHERE p.slug = ?`, slug)
	p, err := scanSQLiteProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *SQLite) UpdateProduct(ctx context.Context, p *Product) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET name = ?, slug = ?, url = ?, price_selector = ?, name_selector = ?, active = ?
		 WHERE id = ?`,
		p.Name, p.Slug, p.URL, p.PriceSelector, p.NameSelector, p.Active, p.ID)
	if err != nil {
		return sqliteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) TouchLastChecked(ctx context.Context, id int64, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE products SET last_checked_at = ? WHERE id = ?`, t.UTC(), id)
	return err
}

func (s *SQLite) AppendPrice(ctx context.Context, productID int64, price float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prices (product_id, timestamp, price) VALUES (?, ?, ?)`,
		productID, time.Now().UTC().Truncate(time.Second), price)
	return err
}

func (s *SQLite) LatestPrice(ctx context.Context, productID int64) (*PricePoint, error) {
	var pt PricePoint
	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, timestamp, price FROM prices WHERE product_id = ? ORDER BY id DESC LIMIT 1`,
		productID).Scan(&pt.ID, &pt.ProductID, &pt.Timestamp, &pt.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

func (s *SQLite) PriceHistory(ctx context.Context, productID int64) ([]PricePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, timestamp, price FROM prices WHERE product_id = ? ORDER BY timestamp ASC, id ASC`,
		productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var pt PricePoint
		if err := rows.Scan(&pt.ID, &pt.ProductID, &pt.Timestamp, &pt.Price); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (s *SQLite) PriceStats(ctx context.Context, productID int64) (Stats, error) {
	var count int
	var minP, maxP, avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(price), MIN(price), MAX(price), AVG(price) FROM prices WHERE product_id = ? AND price IS NOT NULL`,
		productID).Scan(&count, &minP, &maxP, &avg)
	if err != nil {
		return Stats{}, err
	}
	return buildStats(count, minP, maxP, avg), nil
}

func buildStats(count int, minP, maxP, avg sql.NullFloat64) Stats {
	st := Stats{TotalEntries: count}
	if count == 0 {
		return st
	}
	if minP.Valid {
		v := minP.Float64
		st.MinPrice = &v
	}
	if maxP.Valid {
		v := maxP.Float64
		st.MaxPrice = &v
	}
	if avg.Valid {
		v := round2(avg.Float64)
		st.AveragePrice = &v
	}
	return st
}

func (s *SQLite) ReplaceHistory(ctx context.Context, productID int64, points []PricePoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM prices WHERE product_id = ?`, productID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO prices (product_id, timestamp, price) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, pt := range points {
		if _, err := stmt.ExecContext(ctx, productID, pt.Timestamp.UTC(), pt.Price); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func sqliteErr(err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
