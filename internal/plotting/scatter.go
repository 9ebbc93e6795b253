// Package plotting draws the charts of a region selection.
package plotting

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	ErrMissingColumn = errors.New("missing column")
	ErrNoRows        = errors.New("no rows to plot")
)

// Options controls ScatterPowerVsSize.
type Options struct {
	// X and Y default to "mean" and "power".
	X, Y string
	// Color is treated as categorical and defaults to "n_obs".
	Color string
	// Labels annotates every point with its regions.
	Labels bool
}

func (o *Options) defaults() {
	if o.X == "" {
		o.X = "mean"
	}
	if o.Y == "" {
		o.Y = "power"
	}
	if o.Color == "" {
		o.Color = "n_obs"
	}
}

// ScatterPowerVsSize plots power against the daily KPI level of every
// design in stats whose difference_percent equals differencePercent, with
// one colored series per value of the color column.
func ScatterPowerVsSize(stats dataframe.DataFrame, differencePercent float64, kpi string, opts Options) (*plot.Plot, error) {
	opts.defaults()
	need := []string{"difference_percent", opts.X, opts.Y, opts.Color}
	if opts.Labels {
		need = append(need, "regions")
	}
	names := map[string]bool{}
	for _, n := range stats.Names() {
		names[n] = true
	}
	for _, n := range need {
		if !names[n] {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, n)
		}
	}

	dp := stats.Col("difference_percent").Float()
	xs := stats.Col(opts.X).Float()
	ys := stats.Col(opts.Y).Float()
	colorCol := stats.Col(opts.Color)
	var labels []string
	if opts.Labels {
		labels = stats.Col("regions").Records()
	}

	groups := map[string]*group{}
	for i := range dp {
		if math.Abs(dp[i]-differencePercent) > 1e-9 {
			continue
		}
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		key := colorCol.Elem(i).String()
		g := groups[key]
		if g == nil {
			g = &group{key: key}
			if colorCol.Type() != series.String {
				g.num = colorCol.Elem(i).Float()
				g.numeric = true
			}
			groups[key] = g
		}
		g.xys = append(g.xys, plotter.XY{X: xs[i], Y: ys[i]})
		if opts.Labels {
			g.labels = append(g.labels, labels[i])
		}
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no design with difference_percent %v", ErrNoRows, differencePercent)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: power for MDE of %s%%", kpi, formatNumber(differencePercent))
	p.X.Label.Text = fmt.Sprintf("%s (daily avg.)", kpi)
	p.Y.Label.Text = opts.Y
	p.BackgroundColor = color.Transparent
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for i, g := range sortGroups(groups) {
		sc, err := plotter.NewScatter(g.xys)
		if err != nil {
			return nil, fmt.Errorf("scatter for %s=%s: %w", opts.Color, g.key, err)
		}
		sc.GlyphStyle.Color = translucent(plotutil.Color(i))
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("%s=%s", opts.Color, g.key), sc)

		if opts.Labels {
			lb, err := plotter.NewLabels(plotter.XYLabels{XYs: g.xys, Labels: g.labels})
			if err != nil {
				return nil, fmt.Errorf("labels for %s=%s: %w", opts.Color, g.key, err)
			}
			p.Add(lb)
		}
	}
	return p, nil
}

type group struct {
	key     string
	num     float64
	numeric bool
	xys     plotter.XYs
	labels  []string
}

func sortGroups(m map[string]*group) []*group {
	out := make([]*group, 0, len(m))
	for _, g := range m {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].numeric && out[j].numeric && out[i].num != out[j].num {
			return out[i].num < out[j].num
		}
		return out[i].key < out[j].key
	})
	return out
}

// translucent applies 0.7 opacity to c.
func translucent(c color.Color) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 179}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Save writes p to path. The format follows the file extension.
func Save(p *plot.Plot, path string, width, height vg.Length) error {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "png", "svg", "pdf", "jpg", "jpeg", "eps", "tif", "tiff":
	default:
		return fmt.Errorf("unsupported plot format %q (use png, svg or pdf)", filepath.Ext(path))
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

// FileName returns a file name for the plot of one MDE, such as
// "power_mde_2.5.png".
func FileName(differencePercent float64, ext string) string {
	return fmt.Sprintf("power_mde_%s.%s", formatNumber(differencePercent), strings.TrimPrefix(ext, "."))
}
