package storage

import "time"

// Product is a tracked page-plus-selectors configuration. CurrentPrice is
// filled from the latest recorded point on reads; it is never stored.
type Product struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	URL           string     `json:"url"`
	PriceSelector string     `json:"price_selector"`
	NameSelector  string     `json:"name_selector"`
	Active        bool       `json:"active"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CurrentPrice  *float64   `json:"current_price,omitempty"`
}

// PricePoint is one immutable (timestamp, price) observation for a product.
type PricePoint struct {
	ID        int64     `json:"-"`
	ProductID int64     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// Stats are derived over a product's series; min/max/average are null when
// the series is empty. Average is rounded to 2 decimal places.
type Stats struct {
	TotalEntries int      `json:"total_entries"`
	MinPrice     *float64 `json:"min_price"`
	MaxPrice     *float64 `json:"max_price"`
	AveragePrice *float64 `json:"average_price"`
}
