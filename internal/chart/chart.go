package chart

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/valeevte/PriceWatcher/internal/storage"
)

// Renderer writes per-product price history charts as PNG files under a
// single output directory, one file per product slug, overwritten on every
// render.
type Renderer struct {
	dir string
	log *logrus.Logger
}

func NewRenderer(dir string, log *logrus.Logger) *Renderer {
	return &Renderer{dir: dir, log: log}
}

// Path returns where the chart image for a product slug lives (whether or
// not it has been rendered yet).
func (r *Renderer) Path(slug string) string {
	return filepath.Join(r.dir, slug+".png")
}

// Render draws the series as a line chart with observation markers and
// writes it to Path(slug). An empty series returns ("", nil): no chart is
// available, which the caller must not treat as an error.
func (r *Renderer) Render(points []storage.PricePoint, slug string) (string, error) {
	if len(points) == 0 {
		r.log.WithField("slug", slug).Info("no data to render price history chart")
		return "", nil
	}

	xs := make([]time.Time, 0, len(points)+1)
	ys := make([]float64, 0, len(points)+1)
	for _, pt := range points {
		xs = append(xs, pt.Timestamp)
		ys = append(ys, pt.Price)
	}
	// go-chart cannot render a zero-width x range; pad single observations.
	if len(xs) == 1 {
		xs = append(xs, xs[0].Add(time.Minute))
		ys = append(ys, ys[0])
	}

	gridStyle := chart.Style{
		StrokeColor: chart.ColorAlternateGray,
		StrokeWidth: 1.0,
	}
	yAxis := chart.YAxis{
		Name:           "Price",
		GridMajorStyle: gridStyle,
		GridMinorStyle: gridStyle,
	}
	// a flat series has a zero y-delta, which go-chart refuses to render
	minY, maxY := ys[0], ys[0]
	for _, y := range ys {
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	if minY == maxY {
		yAxis.Range = &chart.ContinuousRange{Min: minY - 1, Max: maxY + 1}
	}

	graph := chart.Chart{
		Title:  "Price Evolution",
		Width:  1000,
		Height: 600,
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02 15:04"),
			TickStyle:      chart.Style{TextRotationDegrees: 45.0},
			GridMajorStyle: gridStyle,
			GridMinorStyle: gridStyle,
		},
		YAxis: yAxis,
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    slug,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeWidth: 2.0,
					DotWidth:    4.0,
				},
			},
		},
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", err
	}
	path := r.Path(slug)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := graph.Render(chart.PNG, f); err != nil {
		return "", err
	}
	r.log.WithField("path", path).Info("price history chart rendered")
	return path, nil
}
