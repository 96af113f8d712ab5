package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/valeevte/PriceWatcher/internal/storage"
)

func pt(ts time.Time, price float64) storage.PricePoint {
	return storage.PricePoint{Timestamp: ts, Price: price}
}

// All dates below sit inside well-defined ISO weeks of 2024.
var (
	mon     = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)  // week 10
	tue     = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)  // week 10
	wed     = time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)  // week 10
	nextMon = time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC) // week 11
)

func TestCompactWeekly(t *testing.T) {
	t.Run("uniform week collapses to earliest point", func(t *testing.T) {
		in := []storage.PricePoint{pt(mon, 9.99), pt(tue, 9.99), pt(wed, 9.99)}
		out := compactWeekly(in)
		if len(out) != 1 {
			t.Fatalf("kept %d points, want 1", len(out))
		}
		if !out[0].Timestamp.Equal(mon) {
			t.Errorf("kept point at %v, want earliest %v", out[0].Timestamp, mon)
		}
	})

	t.Run("mixed week is kept whole", func(t *testing.T) {
		in := []storage.PricePoint{pt(mon, 9.99), pt(tue, 9.99), pt(wed, 8.99)}
		out := compactWeekly(in)
		if len(out) != 3 {
			t.Fatalf("kept %d points, want 3", len(out))
		}
	})

	t.Run("weeks compact independently and in order", func(t *testing.T) {
		in := []storage.PricePoint{
			pt(mon, 9.99), pt(wed, 9.99), // uniform week 10
			pt(nextMon, 9.99), pt(nextMon.Add(time.Hour), 7.99), // mixed week 11
		}
		out := compactWeekly(in)
		if len(out) != 3 {
			t.Fatalf("kept %d points, want 3", len(out))
		}
		if !out[0].Timestamp.Equal(mon) {
			t.Errorf("first kept point at %v, want %v", out[0].Timestamp, mon)
		}
		for i := 1; i < len(out); i++ {
			if out[i].Timestamp.Before(out[i-1].Timestamp) {
				t.Errorf("kept points out of chronological order at %d", i)
			}
		}
	})

	t.Run("never grows", func(t *testing.T) {
		in := []storage.PricePoint{pt(mon, 1), pt(tue, 2), pt(wed, 3), pt(nextMon, 3)}
		if out := compactWeekly(in); len(out) > len(in) {
			t.Errorf("kept %d points from %d", len(out), len(in))
		}
	})

	t.Run("empty input stays empty", func(t *testing.T) {
		if out := compactWeekly(nil); len(out) != 0 {
			t.Errorf("kept %d points, want 0", len(out))
		}
	})

	t.Run("sunday belongs to the monday-start week", func(t *testing.T) {
		sun := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) // still ISO week 10
		in := []storage.PricePoint{pt(mon, 9.99), pt(sun, 9.99), pt(nextMon, 9.99)}
		out := compactWeekly(in)
		// week 10 collapses, week 11 keeps its single point
		if len(out) != 2 {
			t.Fatalf("kept %d points, want 2", len(out))
		}
	})
}

func TestCompactAll(t *testing.T) {
	ex := &fakeExtractor{fetch: func(string) (*string, *float64) { return nil, nil }}

	t.Run("uniform week is rewritten", func(t *testing.T) {
		store := newFakeStore(activeProduct(1, "widget"))
		store.series[1] = []storage.PricePoint{pt(mon, 9.99), pt(tue, 9.99), pt(wed, 9.99)}
		w, _, _ := newTestWatcher(store, ex)

		w.CompactAll(context.Background())

		if got := len(store.series[1]); got != 1 {
			t.Fatalf("series length after compaction = %d, want 1", got)
		}
		if _, ok := store.replaced[1]; !ok {
			t.Error("ReplaceHistory was not called")
		}
	})

	t.Run("series with movement is left alone", func(t *testing.T) {
		store := newFakeStore(activeProduct(1, "widget"))
		store.series[1] = []storage.PricePoint{pt(mon, 9.99), pt(tue, 8.99)}
		w, _, _ := newTestWatcher(store, ex)

		w.CompactAll(context.Background())

		if _, ok := store.replaced[1]; ok {
			t.Error("ReplaceHistory called although nothing collapsed")
		}
		if got := len(store.series[1]); got != 2 {
			t.Errorf("series length = %d, want 2", got)
		}
	})

	t.Run("empty series is skipped", func(t *testing.T) {
		store := newFakeStore(activeProduct(1, "widget"))
		w, _, _ := newTestWatcher(store, ex)

		w.CompactAll(context.Background())

		if _, ok := store.replaced[1]; ok {
			t.Error("ReplaceHistory called for an empty series")
		}
	})

	t.Run("covers inactive products too", func(t *testing.T) {
		inactive := activeProduct(2, "gadget")
		inactive.Active = false
		store := newFakeStore(inactive)
		store.series[2] = []storage.PricePoint{pt(mon, 5), pt(tue, 5)}
		w, _, _ := newTestWatcher(store, ex)

		w.CompactAll(context.Background())

		if got := len(store.series[2]); got != 1 {
			t.Errorf("inactive product series length = %d, want 1", got)
		}
	})
}
