package scraper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func servePage(t *testing.T, html string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, html)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const productPage = `<html><body>
<h2 class="product-title">  Widget Deluxe </h2>
<span class="money" data-price="true">&euro; 19,99 incl.</span>
</body></html>`

func TestFetch(t *testing.T) {
	e := NewExtractor(testLogger())
	ctx := context.Background()

	t.Run("extracts name and normalized price", func(t *testing.T) {
		srv := servePage(t, productPage)
		name, price := e.Fetch(ctx, srv.URL, `span.money[data-price="true"]`, "h2.product-title")
		if name == nil || *name != "Widget Deluxe" {
			t.Errorf("name = %v, want Widget Deluxe", name)
		}
		if price == nil || *price != 19.99 {
			t.Errorf("price = %v, want 19.99", price)
		}
	})

	t.Run("missing price selector yields nil price", func(t *testing.T) {
		srv := servePage(t, productPage)
		name, price := e.Fetch(ctx, srv.URL, "span.does-not-exist", "h2.product-title")
		if price != nil {
			t.Errorf("price = %v, want nil", *price)
		}
		if name == nil {
			t.Error("name = nil, want Widget Deluxe")
		}
	})

	t.Run("missing name selector yields nil name but a price", func(t *testing.T) {
		srv := servePage(t, productPage)
		name, price := e.Fetch(ctx, srv.URL, `span.money[data-price="true"]`, "h1.nope")
		if name != nil {
			t.Errorf("name = %v, want nil", *name)
		}
		if price == nil || *price != 19.99 {
			t.Errorf("price = %v, want 19.99", price)
		}
	})

	t.Run("unparseable price keeps the name", func(t *testing.T) {
		srv := servePage(t, `<html><body><h2 class="product-title">Widget</h2><span class="money">call us</span></body></html>`)
		name, price := e.Fetch(ctx, srv.URL, "span.money", "h2.product-title")
		if price != nil {
			t.Errorf("price = %v, want nil", *price)
		}
		if name == nil || *name != "Widget" {
			t.Errorf("name = %v, want Widget", name)
		}
	})

	t.Run("non-2xx response yields nil, nil", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		t.Cleanup(srv.Close)
		name, price := e.Fetch(ctx, srv.URL, "span.money", "h2.product-title")
		if name != nil || price != nil {
			t.Errorf("got (%v, %v), want (nil, nil)", name, price)
		}
	})

	t.Run("unreachable host yields nil, nil", func(t *testing.T) {
		name, price := e.Fetch(ctx, "http://127.0.0.1:1", "span.money", "h2.product-title")
		if name != nil || price != nil {
			t.Errorf("got (%v, %v), want (nil, nil)", name, price)
		}
	})
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"€ 19,99 incl.", 19.99, true},
		{"$25.00", 25.00, true},
		{"1299", 1299, true},
		{"  42,5 EUR ", 42.5, true},
		{"free", 0, false},
		{"", 0, false},
		{"1.299,99", 0, false}, // thousands separators are ambiguous, rejected
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := parsePrice(tc.raw)
			if ok != tc.ok || (ok && got != tc.want) {
				t.Errorf("parsePrice(%q) = (%v, %v), want (%v, %v)", tc.raw, got, ok, tc.want, tc.ok)
			}
		})
	}
}
