package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Postgres backend over a pgx pool. Every operation uses its own pooled
// connection, so the watcher and the API never contend for one.
type Postgres struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

func NewPostgres(ctx context.Context, dsn string, log *logrus.Logger) (*Postgres, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool, log: log}, nil
}

func (s *Postgres) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS products (
    id              BIGSERIAL PRIMARY KEY,
    name            TEXT NOT NULL,
    slug            TEXT NOT NULL UNIQUE,
    url             TEXT NOT NULL UNIQUE,
    price_selector  TEXT NOT NULL,
    name_selector   TEXT NOT NULL,
    active          BOOLEAN NOT NULL DEFAULT TRUE,
    last_checked_at TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS prices (
    id         BIGSERIAL PRIMARY KEY,
    product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
    timestamp  TIMESTAMPTZ NOT NULL,
    price      DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prices_product_timestamp ON prices(product_id, timestamp);
`)
	return err
}

func (s *Postgres) CreateProduct(ctx context.Context, p *Product) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO products (name, slug, url, price_selector, name_selector, active)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		p.Name, p.Slug, p.URL, p.PriceSelector, p.NameSelector, p.Active).Scan(&p.ID, &p.CreatedAt)
	return pgErr(err)
}

const pgProductCols = `p.id, p.name, p.slug, p.url, p.price_selector, p.name_selector, p.active, p.last_checked_at, p.created_at,
       (SELECT price FROM prices WHERE product_id = p.id ORDER BY id DESC LIMIT 1) AS current_price`

func (s *Postgres) ListProducts(ctx context.Context) ([]Product, error) {
	return s.queryProducts(ctx, `SELECT `+pgProductCols+` FROM products p ORDER BY p.id`)
}

func (s *Postgres) ActiveProducts(ctx context.Context) ([]Product, error) {
	return s.queryProducts(ctx, `SELECT `+pgProductCols+` FROM products p WHERE p.active ORDER BY p.id`)
}

func (s *Postgres) queryProducts(ctx context.Context, q string, args ...any) ([]Product, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.URL, &p.PriceSelector, &p.NameSelector,
			&p.Active, &p.LastCheckedAt, &p.CreatedAt, &p.CurrentPrice); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *Postgres) getProduct(ctx context.Context, q string, arg any) (*Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, q, arg).Scan(&p.ID, &p.Name, &p.Slug, &p.URL, &p.PriceSelector,
		&p.NameSelector, &p.Active, &p.LastCheckedAt, &p.CreatedAt, &p.CurrentPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.getProduct(ctx, `SELECT `+pgProductCols+` FROM products p WHERE p.id = $1`, id)
}

func (s *Postgres) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	return s.getProduct(ctx, `SELECT `+pgProductCols+` FROM products p WHERE p.slug = $1`, slug)
}

func (s *Postgres) UpdateProduct(ctx context.Context, p *Product) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET name = $1, slug = $2, url = $3, price_selector = $4, name_selector = $5, active = $6
		 WHERE id = $7`,
		p.Name, p.Slug, p.URL, p.PriceSelector, p.NameSelector, p.Active, p.ID)
	if err != nil {
		return pgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) TouchLastChecked(ctx context.Context, id int64, t time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE products SET last_checked_at = $1 WHERE id = $2`, t.UTC(), id)
	return err
}

func (s *Postgres) AppendPrice(ctx context.Context, productID int64, price float64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prices (product_id, timestamp, price) VALUES ($1, $2, $3)`,
		productID, time.Now().UTC().Truncate(time.Second), price)
	return err
}

func (s *Postgres) LatestPrice(ctx context.Context, productID int64) (*PricePoint, error) {
	var pt PricePoint
	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, timestamp, price FROM prices WHERE product_id = $1 ORDER BY id DESC LIMIT 1`,
		productID).Scan(&pt.ID, &pt.ProductID, &pt.Timestamp, &pt.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

func (s *Postgres) PriceHistory(ctx context.Context, productID int64) ([]PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, timestamp, price FROM prices WHERE product_id = $1 ORDER BY timestamp ASC, id ASC`,
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

func (s *Postgres) PriceStats(ctx context.Context, productID int64) (Stats, error) {
	var count int
	var minP, maxP, avg *float64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(price), MIN(price), MAX(price), AVG(price) FROM prices WHERE product_id = $1 AND price IS NOT NULL`,
		productID).Scan(&count, &minP, &maxP, &avg)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{TotalEntries: count}
	if count == 0 {
		return st, nil
	}
	st.MinPrice = minP
	st.MaxPrice = maxP
	if avg != nil {
		v := round2(*avg)
		st.AveragePrice = &v
	}
	return st, nil
}

func (s *Postgres) ReplaceHistory(ctx context.Context, productID int64, points []PricePoint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM prices WHERE product_id = $1`, productID); err != nil {
		return err
	}
	for _, pt := range points {
		if _, err := tx.Exec(ctx,
			`INSERT INTO prices (product_id, timestamp, price) VALUES ($1, $2, $3)`,
			productID, pt.Timestamp.UTC(), pt.Price); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func pgErr(err error) error {
	var perr *pgconn.PgError
	if errors.As(err, &perr) && perr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
