package scraper

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

const (
	requestTimeout = 10 * time.Second
	userAgent      = "PriceWatcher/1.0"
)

// Extractor fetches a product page and pulls out its name and price with
// CSS selectors. It never returns an error to the caller: every failure is
// logged and surfaces as a nil name and/or price.
type Extractor struct {
	client *http.Client
	log    *logrus.Logger
}

func NewExtractor(log *logrus.Logger) *Extractor {
	return &Extractor{
		client: &http.Client{Timeout: requestTimeout},
		log:    log,
	}
}

// Fetch returns the first match of each selector. The price is parsed from
// the element text; a parse failure yields a nil price but the name, when
// found, is still returned for diagnostics.
func (e *Extractor) Fetch(ctx context.Context, url, priceSelector, nameSelector string) (*string, *float64) {
	e.log.WithField("url", url).Info("fetching product page")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		e.log.WithError(err).WithField("url", url).Warn("building request failed")
		return nil, nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.WithError(err).WithField("url", url).Warn("fetching page failed")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.log.WithFields(logrus.Fields{"url": url, "status": resp.StatusCode}).Warn("unexpected response status")
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		e.log.WithError(err).WithField("url", url).Warn("parsing page failed")
		return nil, nil
	}

	var name *string
	if sel := doc.Find(nameSelector).First(); sel.Length() > 0 {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			name = &text
		}
	}
	if name == nil {
		e.log.WithField("url", url).Warn("product name not found")
	}

	var price *float64
	if sel := doc.Find(priceSelector).First(); sel.Length() > 0 {
		raw := strings.TrimSpace(sel.Text())
		if v, ok := parsePrice(raw); ok {
			price = &v
		} else {
			e.log.WithFields(logrus.Fields{"url": url, "raw": raw}).Warn("could not parse price text")
		}
	} else {
		e.log.WithField("url", url).Warn("price element not found")
	}

	if name != nil && price != nil {
		e.log.WithFields(logrus.Fields{"product": *name, "price": *price}).Info("extracted product info")
	}
	return name, price
}

// parsePrice strips everything but digits, '.' and ',' from raw price text,
// then treats ',' as a decimal separator ("€ 19,99 incl." -> 19.99).
func parsePrice(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.ReplaceAll(b.String(), ",", ".")
	// surrounding text may contribute stray separators ("incl." -> "19.99.")
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
