package watcher

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/valeevte/PriceWatcher/internal/storage"
)

// CompactAll bounds series growth across all products: weeks in which the
// price never moved collapse to their earliest observation. Lossy and
// irreversible, run roughly once a day by the loop.
func (w *Watcher) CompactAll(ctx context.Context) {
	w.log.Info("compacting price history")
	prods, err := w.store.ListProducts(ctx)
	if err != nil {
		w.log.WithError(err).Error("compaction: failed to list products")
		return
	}
	for i := range prods {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.compactProduct(ctx, &prods[i])
	}
}

func (w *Watcher) compactProduct(ctx context.Context, p *storage.Product) {
	plog := w.log.WithFields(logrus.Fields{"product_id": p.ID, "slug": p.Slug})

	points, err := w.store.PriceHistory(ctx, p.ID)
	if err != nil {
		plog.WithError(err).Error("compaction: failed to load history")
		return
	}
	if len(points) == 0 {
		plog.Info("compaction: history empty, skipping")
		return
	}

	kept := compactWeekly(points)
	if len(kept) == len(points) {
		plog.Info("compaction: nothing to collapse")
		return
	}

	if err := w.store.ReplaceHistory(ctx, p.ID, kept); err != nil {
		plog.WithError(err).Error("compaction: failed to replace history")
		return
	}
	plog.WithFields(logrus.Fields{"original": len(points), "reduced": len(kept)}).
		Info("price history compacted")
}

// compactWeekly partitions ascending points by ISO year-week and keeps only
// the earliest point of any week whose prices are all identical; weeks with
// any movement are kept whole. Order is preserved.
func compactWeekly(points []storage.PricePoint) []storage.PricePoint {
	type group struct {
		pts      []storage.PricePoint
		uniform  bool
		firstVal float64
	}

	var order []string
	groups := make(map[string]*group)
	for _, pt := range points {
		year, week := pt.Timestamp.ISOWeek()
		key := fmt.Sprintf("%04d-%02d", year, week)
		g, ok := groups[key]
		if !ok {
			g = &group{uniform: true, firstVal: pt.Price}
			groups[key] = g
			order = append(order, key)
		}
		if pt.Price != g.firstVal {
			g.uniform = false
		}
		g.pts = append(g.pts, pt)
	}

	kept := make([]storage.PricePoint, 0, len(points))
	for _, key := range order {
		g := groups[key]
		if g.uniform {
			kept = append(kept, g.pts[0])
		} else {
			kept = append(kept, g.pts...)
		}
	}
	return kept
}
