package db

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoReadings is returned by the chart renderers when a session holds no
// checksum-valid frames.
var ErrNoReadings = errors.New("no valid readings")

const (
	chartSampleLimit = 5000
	histogramBins    = 20
)

// validReadings returns up to chartSampleLimit checksum-valid records for a
// session, oldest first.
func (db *DB) validReadings(sessionID string) ([]TelemetryRecord, error) {
	if _, err := db.Session(sessionID); err != nil {
		return nil, err
	}
	recs, err := db.RecentReadings(sessionID, chartSampleLimit)
	if err != nil {
		return nil, err
	}
	out := make([]TelemetryRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Reading.OK() {
			out = append(out, recs[i])
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoReadings, sessionID)
	}
	return out, nil
}

// RenderDistanceChart writes an echarts HTML page plotting distance over
// time for one session.
func (db *DB) RenderDistanceChart(w io.Writer, sessionID string) error {
	recs, err := db.validReadings(sessionID)
	if err != nil {
		return err
	}

	x := make([]string, len(recs))
	y := make([]opts.LineData, len(recs))
	for i, rec := range recs {
		x[i] = rec.RecordedAt.Format("15:04:05.000")
		y[i] = opts.LineData{Value: rec.Reading.Frame.Distance}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "TF-Luna distance", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Distance over time",
			Subtitle: fmt.Sprintf("session=%s frames=%d", sessionID, len(recs)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "distance (cm)"}),
	)
	line.SetXAxis(x).AddSeries("distance_cm", y)
	return line.Render(w)
}

// RenderDistanceHistogram writes a PNG histogram of the session's distances.
func (db *DB) RenderDistanceHistogram(w io.Writer, sessionID string) error {
	recs, err := db.validReadings(sessionID)
	if err != nil {
		return err
	}

	values := make(plotter.Values, len(recs))
	for i, rec := range recs {
		values[i] = float64(rec.Reading.Frame.Distance)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Distance histogram (%d frames)", len(recs))
	p.X.Label.Text = "distance (cm)"
	p.Y.Label.Text = "frames"

	hist, err := plotter.NewHist(values, histogramBins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	hist.LineStyle.Width = vg.Points(0.5)
	p.Add(hist)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
