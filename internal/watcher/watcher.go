package watcher

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/valeevte/PriceWatcher/internal/storage"
)

// Extractor pulls (name, price) out of a product page; nil values mean the
// field could not be extracted this iteration.
type Extractor interface {
	Fetch(ctx context.Context, url, priceSelector, nameSelector string) (*string, *float64)
}

// Renderer draws a product's series to an image file and returns its path,
// or "" when the series is empty.
type Renderer interface {
	Render(points []storage.PricePoint, slug string) (string, error)
}

// Notifier delivers an alert, optionally with a chart image. Failures stay
// inside the notifier.
type Notifier interface {
	Notify(text, imagePath string)
}

type Config struct {
	Interval time.Duration
}

// Watcher owns the monitoring loop: one pass over the active products per
// interval, sequentially, with compaction roughly once a day.
type Watcher struct {
	store     storage.Store
	extractor Extractor
	renderer  Renderer
	notifier  Notifier
	interval  time.Duration
	log       *logrus.Logger
}

func New(store storage.Store, extractor Extractor, renderer Renderer, notifier Notifier, cfg Config, log *logrus.Logger) *Watcher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Watcher{
		store:     store,
		extractor: extractor,
		renderer:  renderer,
		notifier:  notifier,
		interval:  interval,
		log:       log,
	}
}

// Run blocks until ctx is cancelled. The first pass happens immediately,
// then one per interval. Every compactEvery iterations (about once per 24h
// of wall-clock time) the whole history gets compacted after the pass.
func (w *Watcher) Run(ctx context.Context) {
	compactEvery := int(math.Round(24 * 60 * 60 / w.interval.Seconds()))
	if compactEvery < 1 {
		compactEvery = 1
	}

	w.log.WithFields(logrus.Fields{
		"interval":      w.interval,
		"compact_every": compactEvery,
	}).Info("price watcher started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	iteration := 0
	pass := func() {
		iteration++
		w.log.WithField("iteration", iteration).Info("starting iteration")
		w.CheckAll(ctx)
		if iteration%compactEvery == 0 {
			w.CompactAll(ctx)
		}
	}

	pass()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("price watcher stopping, context cancelled")
			return
		case <-ticker.C:
			pass()
		}
	}
}

// CheckAll runs one synchronous pass over all active products. A failure on
// one product never aborts the rest of the pass.
func (w *Watcher) CheckAll(ctx context.Context) {
	prods, err := w.store.ActiveProducts(ctx)
	if err != nil {
		w.log.WithError(err).Error("failed to list active products")
		return
	}
	if len(prods) == 0 {
		w.log.Info("no active products to check")
		return
	}
	for i := range prods {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.checkOne(ctx, &prods[i])
	}
}

// CheckProduct runs a single product check on demand. Unknown or inactive
// products report a not-found failure to the caller.
func (w *Watcher) CheckProduct(ctx context.Context, id int64) error {
	p, err := w.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if !p.Active {
		return fmt.Errorf("product %d is not active: %w", id, storage.ErrNotFound)
	}
	w.checkOne(ctx, p)
	return nil
}

// checkOne is the per-product state machine: extract, persist, render,
// compare, maybe notify. Panics are confined to the product being checked.
func (w *Watcher) checkOne(ctx context.Context, p *storage.Product) {
	plog := w.log.WithFields(logrus.Fields{"product_id": p.ID, "slug": p.Slug})
	defer func() {
		if r := recover(); r != nil {
			plog.WithField("panic", r).Error("recovered from panic while checking product")
		}
	}()

	name, price := w.extractor.Fetch(ctx, p.URL, p.PriceSelector, p.NameSelector)
	now := time.Now().UTC()

	if price == nil {
		// still record the attempt so "checked but no data" is visible
		if err := w.store.TouchLastChecked(ctx, p.ID, now); err != nil {
			plog.WithError(err).Warn("failed to update last checked timestamp")
		}
		plog.Info("no price extracted, skipping product this iteration")
		return
	}

	displayName := p.Name
	if name != nil {
		displayName = *name
	}

	previous, err := w.store.LatestPrice(ctx, p.ID)
	if err != nil {
		plog.WithError(err).Warn("failed to read latest price")
		previous = nil
	}

	if err := w.store.AppendPrice(ctx, p.ID, *price); err != nil {
		// keep going: losing one point beats stalling the loop
		plog.WithError(err).Error("failed to save price point")
	}
	if err := w.store.TouchLastChecked(ctx, p.ID, now); err != nil {
		plog.WithError(err).Warn("failed to update last checked timestamp")
	}

	chartPath := ""
	if history, err := w.store.PriceHistory(ctx, p.ID); err != nil {
		plog.WithError(err).Warn("failed to load price history for chart")
	} else if chartPath, err = w.renderer.Render(history, p.Slug); err != nil {
		plog.WithError(err).Warn("failed to render price history chart")
		chartPath = ""
	}

	switch {
	case previous == nil:
		plog.WithField("price", *price).Info("first price observation")
	case *price < previous.Price:
		discount := (previous.Price - *price) / previous.Price * 100
		plog.WithFields(logrus.Fields{
			"previous": previous.Price,
			"current":  *price,
			"discount": fmt.Sprintf("%.2f%%", discount),
		}).Info("price drop detected")
		msg := fmt.Sprintf(
			"📉 Price Drop Alert for %s!\n\nPrevious Price: %.2f€\nCurrent Price: %.2f€\nDiscount: %.2f%%\n\nCheck it out: %s",
			displayName, previous.Price, *price, discount, p.URL)
		w.notifier.Notify(msg, chartPath)
	case *price > previous.Price:
		plog.WithFields(logrus.Fields{"previous": previous.Price, "current": *price}).Info("price increased")
	default:
		plog.WithField("price", *price).Info("price unchanged")
	}
}
