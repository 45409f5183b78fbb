package report

import (
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/ports"
)

const (
	hitCountsName = "hit_frequency"
	evaluesName   = "evalue_distribution"

	// minEValue keeps zero E-values drawable on a log axis.
	minEValue = 1e-300
)

// Renderer draws the summary charts to image files.
type Renderer struct {
	format string
	width  vg.Length
	height vg.Length
	logger *slog.Logger
}

var _ ports.ReportRenderer = (*Renderer)(nil)

// NewRenderer writes charts in the given format (png, svg, pdf...).
func NewRenderer(format string, log *slog.Logger) *Renderer {
	if format == "" {
		format = "png"
	}
	return &Renderer{format: format, width: 10 * vg.Inch, height: 6 * vg.Inch, logger: log}
}

// Render writes both charts into dir and returns their paths.
func (r *Renderer) Render(rows []domain.SummaryRow, dir string) ([]string, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no hits to plot")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	counts := filepath.Join(dir, hitCountsName+"."+r.format)
	if err := r.HitCounts(rows, counts); err != nil {
		return nil, fmt.Errorf("hit frequency chart: %w", err)
	}

	evalues := filepath.Join(dir, evaluesName+"."+r.format)
	if err := r.EValues(rows, evalues); err != nil {
		return nil, fmt.Errorf("e-value chart: %w", err)
	}

	if r.logger != nil {
		r.logger.Debug("charts written", "files", []string{counts, evalues})
	}
	return []string{counts, evalues}, nil
}

// HitCounts renders hits per accession as bars stacked by group key.
func (r *Renderer) HitCounts(rows []domain.SummaryRow, path string) error {
	gc := CountByGroup(rows)

	p := plot.New()
	p.Title.Text = "Frequency of Hits for Each Pfam Domain"
	p.X.Label.Text = "Pfam Domain"
	p.Y.Label.Text = "Frequency"
	p.Legend.Top = true
	p.Legend.Add("Target Names")

	var below *plotter.BarChart
	for i, group := range gc.Groups {
		values := make(plotter.Values, len(gc.Accessions))
		for j, n := range gc.Counts[i] {
			values[j] = float64(n)
		}

		bar, err := plotter.NewBarChart(values, vg.Points(24))
		if err != nil {
			return fmt.Errorf("bars for %s: %w", group, err)
		}
		bar.LineStyle.Width = vg.Length(0)
		bar.Color = plotutil.Color(i)
		if below != nil {
			bar.StackOn(below)
		}
		below = bar

		p.Add(bar)
		p.Legend.Add(group, bar)
	}
	p.NominalX(gc.Accessions...)

	return p.Save(r.width, r.height, path)
}

// EValues renders one box per (accession, group key) on a log y axis.
func (r *Renderer) EValues(rows []domain.SummaryRow, path string) error {
	gc := CountByGroup(rows)
	byAccession := EValuesByGroup(rows)

	p := plot.New()
	p.Title.Text = "Distribution of E-values for Each Pfam Domain"
	p.X.Label.Text = "Pfam Domain"
	p.Y.Label.Text = "E-value"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{}
	p.Legend.Top = true
	p.Legend.Add("Target Names")

	n := float64(len(gc.Groups))
	slot := 0.8 / n
	width := vg.Points(60 / n)
	if width < vg.Points(4) {
		width = vg.Points(4)
	}

	lo, hi := 0.0, 0.0
	for gi, group := range gc.Groups {
		drawn := false
		for ai, accession := range gc.Accessions {
			values := byAccession[accession][group]
			if len(values) == 0 {
				continue
			}
			clamped := make(plotter.Values, len(values))
			for k, v := range values {
				if v < minEValue {
					v = minEValue
				}
				clamped[k] = v
				if lo == 0 || v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}

			loc := float64(ai) - 0.4 + slot*(float64(gi)+0.5)
			box, err := plotter.NewBoxPlot(width, loc, clamped)
			if err != nil {
				return fmt.Errorf("box for %s/%s: %w", accession, group, err)
			}
			box.FillColor = plotutil.Color(gi)
			p.Add(box)
			drawn = true
		}
		if drawn {
			p.Legend.Add(group, swatch{color: plotutil.Color(gi)})
		}
	}

	// A log axis needs a non-degenerate range.
	if lo == hi {
		p.Y.Min, p.Y.Max = lo/10, hi*10
	}
	p.NominalX(gc.Accessions...)

	return p.Save(r.width, r.height, path)
}

// swatch is a filled legend entry; box plots draw no thumbnail of their own.
type swatch struct {
	color color.Color
}

var _ plot.Thumbnailer = swatch{}

// Thumbnail fills the legend cell with the swatch colour.
func (s swatch) Thumbnail(c *draw.Canvas) {
	pts := []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
	}
	c.FillPolygon(s.color, c.ClipPolygonY(pts))
}
