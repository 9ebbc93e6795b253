// Package analysis summarises a wide region panel before a power analysis:
// how much each region contributes, how noisy it is and which regions move
// together.
package analysis

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/geopower/internal/frame"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Options controls SummarizePanel.
type Options struct {
	// OutlierThreshold flags days with robust |z| above it. Zero disables
	// outlier detection.
	OutlierThreshold float64
	// TopPairs is the number of most correlated region pairs reported.
	TopPairs int
}

// DefaultOptions returns reasonable defaults for panel summaries.
func DefaultOptions() Options {
	return Options{OutlierThreshold: 3.5, TopPairs: 10}
}

// Report is a markdown-friendly summary of a region panel.
type Report struct {
	Name         string
	Rows         int
	Start, End   time.Time
	MissingDates int
	Regions      []RegionSummary
	Pairs        []PairCorr
	Warnings     []string
}

// RegionSummary holds per region statistics of the KPI.
type RegionSummary struct {
	Name    string
	NonNull int
	Missing int
	Total   float64
	// Share is the region's fraction of the KPI summed over all regions.
	Share float64
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
	// CV is Std / Mean.
	CV               float64
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
}

// PairCorr is a Pearson correlation between two regions.
type PairCorr struct {
	A, B string
	R    float64
}

// SummarizePanel summarises every numeric column of a wide panel except
// dateCol. Regions are reported by decreasing share.
func SummarizePanel(df dataframe.DataFrame, dateCol string, opt Options) (*Report, error) {
	dates, err := frame.DateColumn(df, dateCol)
	if err != nil {
		return nil, err
	}
	rep := &Report{Rows: df.Nrow()}
	if len(dates) > 0 {
		rep.Start, rep.End = dates[0], dates[0]
		seen := map[time.Time]bool{}
		for _, d := range dates {
			if d.Before(rep.Start) {
				rep.Start = d
			}
			if d.After(rep.End) {
				rep.End = d
			}
			seen[d] = true
		}
		span := int(rep.End.Sub(rep.Start).Hours()/24) + 1
		rep.MissingDates = span - len(seen)
		if rep.MissingDates > 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d days missing between %s and %s", rep.MissingDates, frame.FormatDate(rep.Start), frame.FormatDate(rep.End)))
		}
		if len(seen) < len(dates) {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d duplicate dates", len(dates)-len(seen)))
		}
	}

	types := df.Types()
	values := map[string][]float64{}
	grand := 0.0
	for i, name := range df.Names() {
		if name == dateCol {
			continue
		}
		if types[i] != series.Float && types[i] != series.Int {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("column %q is not numeric and was skipped", name))
			continue
		}
		all := df.Col(name).Float()
		var vals []float64
		for _, v := range all {
			if !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		rs := RegionSummary{Name: name, NonNull: len(vals), Missing: len(all) - len(vals)}
		if len(vals) > 0 {
			rs.Total = floats.Sum(vals)
			rs.Mean = stat.Mean(vals, nil)
			rs.Min, rs.Max = floats.Min(vals), floats.Max(vals)
		}
		if len(vals) > 1 {
			rs.Std = stat.StdDev(vals, nil)
		}
		if rs.Mean != 0 {
			rs.CV = rs.Std / rs.Mean
		}
		if opt.OutlierThreshold > 0 && len(vals) > 2 {
			rs.OutlierThreshold = opt.OutlierThreshold
			med, mad := medianMAD(vals)
			if mad > 0 {
				for _, v := range vals {
					z := 0.6745 * (v - med) / mad
					if math.Abs(z) > opt.OutlierThreshold {
						rs.OutliersCount++
					}
					if math.Abs(z) > rs.OutliersMaxAbsZ {
						rs.OutliersMaxAbsZ = math.Abs(z)
					}
				}
			}
		}
		if rs.Missing > 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("region %q has %d missing values", name, rs.Missing))
		}
		grand += rs.Total
		values[name] = all
		rep.Regions = append(rep.Regions, rs)
	}
	for i := range rep.Regions {
		if grand != 0 {
			rep.Regions[i].Share = rep.Regions[i].Total / grand
		}
	}
	sort.SliceStable(rep.Regions, func(i, j int) bool { return rep.Regions[i].Share > rep.Regions[j].Share })

	if opt.TopPairs > 0 {
		rep.Pairs = topPairs(rep.Regions, values, opt.TopPairs)
	}
	return rep, nil
}

// topPairs correlates regions over the days where both are present.
func topPairs(regions []RegionSummary, values map[string][]float64, n int) []PairCorr {
	var pairs []PairCorr
	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			a, b := values[regions[i].Name], values[regions[j].Name]
			var xa, xb []float64
			for k := range a {
				if math.IsNaN(a[k]) || math.IsNaN(b[k]) {
					continue
				}
				xa = append(xa, a[k])
				xb = append(xb, b[k])
			}
			if len(xa) < 3 {
				continue
			}
			r := stat.Correlation(xa, xb, nil)
			if math.IsNaN(r) {
				continue
			}
			pairs = append(pairs, PairCorr{A: regions[i].Name, B: regions[j].Name, R: r})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs
}

// Markdown renders the report as plain sections.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[PANEL SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	if !r.Start.IsZero() {
		b.WriteString(fmt.Sprintf("Dates: %s to %s", frame.FormatDate(r.Start), frame.FormatDate(r.End)))
		if r.MissingDates > 0 {
			b.WriteString(fmt.Sprintf(" (%d missing)", r.MissingDates))
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("Regions: %d\n\n", len(r.Regions)))

	b.WriteString("[REGIONS]\n")
	for _, c := range r.Regions {
		b.WriteString(fmt.Sprintf("- %s: share %.1f%%, mean %.4g, std %.4g, cv %.3f, min %.4g, max %.4g",
			safeName(c.Name), 100*c.Share, c.Mean, c.Std, c.CV, c.Min, c.Max))
		if c.Missing > 0 {
			b.WriteString(fmt.Sprintf("; missing %d", c.Missing))
		}
		if c.OutlierThreshold > 0 && c.OutliersCount > 0 {
			b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f (max |z|≈%.2f)", c.OutliersCount, c.OutlierThreshold, c.OutliersMaxAbsZ))
		}
		b.WriteString("\n")
	}
	if len(r.Pairs) > 0 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, p := range r.Pairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", p.A, p.B, p.R))
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// WriteTable renders the per region statistics as a text table.
func (r *Report) WriteTable(w io.Writer) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Region", "Share %", "Mean", "Std", "CV", "Missing", "Outliers"})
	for _, c := range r.Regions {
		t.Append([]string{
			c.Name,
			fmt.Sprintf("%.1f", 100*c.Share),
			fmt.Sprintf("%.4g", c.Mean),
			fmt.Sprintf("%.4g", c.Std),
			fmt.Sprintf("%.3f", c.CV),
			fmt.Sprintf("%d", c.Missing),
			fmt.Sprintf("%d", c.OutliersCount),
		})
	}
	t.Render()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	median = frame.MedianOf(vals)
	dev := make([]float64, len(vals))
	for i, v := range vals {
		dev[i] = math.Abs(v - median)
	}
	mad = frame.MedianOf(dev)
	return
}
