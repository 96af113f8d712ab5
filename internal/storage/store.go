package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/valeevte/PriceWatcher/internal/config"
)

var (
	// ErrNotFound is returned when a product lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint (url or slug) is hit.
	ErrDuplicate = errors.New("duplicate product")
)

// Store is the persistence boundary: product records plus the per-product
// price series. One concrete backend is selected at startup via DB_TYPE and
// injected everywhere; there is no runtime switching.
type Store interface {
	InitSchema(ctx context.Context) error

	CreateProduct(ctx context.Context, p *Product) error
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*Product, error)
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id int64) error
	ActiveProducts(ctx context.Context) ([]Product, error)
	TouchLastChecked(ctx context.Context, id int64, t time.Time) error

	AppendPrice(ctx context.Context, productID int64, price float64) error
	LatestPrice(ctx context.Context, productID int64) (*PricePoint, error)
	PriceHistory(ctx context.Context, productID int64) ([]PricePoint, error)
	PriceStats(ctx context.Context, productID int64) (Stats, error)
	// ReplaceHistory atomically swaps a product's series for the given
	// points. Used only by compaction; delete and re-insert run in one
	// transaction so a failure cannot leave a previously non-empty series
	// empty.
	ReplaceHistory(ctx context.Context, productID int64, points []PricePoint) error

	Close() error
}

// Open selects and connects the configured backend.
func Open(ctx context.Context, cfg config.Config, log *logrus.Logger) (Store, error) {
	switch cfg.DBType {
	case "sqlite":
		return NewSQLite(cfg.DBFile, log)
	case "postgres":
		return NewPostgres(ctx, cfg.PostgresDSN(), log)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", cfg.DBType)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
