package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/KaramelBytes/geopower/internal/plotting"
	"github.com/KaramelBytes/geopower/internal/power"
	"github.com/KaramelBytes/geopower/internal/utils"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"
)

var (
	pltOutputDir string
	pltKPI       string
	pltMDE       []float64
	pltX         string
	pltY         string
	pltColor     string
	pltLabels    bool
	pltFormat    string
	pltWidth     float64
	pltHeight    float64
)

var plotCmd = &cobra.Command{
	Use:   "plot <stats>",
	Short: "Scatter power against KPI level for each MDE of a selection",
	Long: `Read the designs written by 'geopower select -o' and draw one scatter plot per
difference percent: power against the daily mean of the combination, colored by
test length.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		stats, err := readFrame(args[0], "")
		if err != nil {
			return err
		}
		targets := pltMDE
		if len(targets) == 0 {
			if !containsName(stats.Names(), power.ColDifferencePercent) {
				return fmt.Errorf("%s has no %s column", args[0], power.ColDifferencePercent)
			}
			targets = uniqueFloats(stats.Col(power.ColDifferencePercent).Float())
		}
		outDir := pltOutputDir
		if outDir == "" {
			outDir = c.OutputDir
		}
		if err := utils.EnsureDir(outDir); err != nil {
			return err
		}
		w := vg.Length(pickFloat(pltWidth, c.PlotWidth)) * vg.Inch
		h := vg.Length(pickFloat(pltHeight, c.PlotHeight)) * vg.Inch
		opts := plotting.Options{X: pltX, Y: pltY, Color: pltColor, Labels: pltLabels}
		for _, dp := range targets {
			p, err := plotting.ScatterPowerVsSize(stats, dp, pltKPI, opts)
			if err != nil {
				return fmt.Errorf("plot MDE %g%%: %w", dp, err)
			}
			path := filepath.Join(outDir, plotting.FileName(dp, pltFormat))
			if err := plotting.Save(p, path, w, h); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", okMark, path)
		}
		return nil
	},
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func uniqueFloats(vals []float64) []float64 {
	seen := map[float64]struct{}{}
	var out []float64
	for _, v := range vals {
		if v != v {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

func pickFloat(flag, fallback float64) float64 {
	if flag > 0 {
		return flag
	}
	return fallback
}

func init() {
	rootCmd.AddCommand(plotCmd)
	f := plotCmd.Flags()
	f.StringVarP(&pltOutputDir, "output-dir", "o", "", "directory for the plots (default from config)")
	f.StringVar(&pltKPI, "kpi", "kpi", "KPI name used in titles")
	f.Float64SliceVar(&pltMDE, "mde", nil, "difference percents to plot (default: every one in the file)")
	f.StringVar(&pltX, "x", "", "x column (default mean)")
	f.StringVar(&pltY, "y", "", "y column (default power)")
	f.StringVar(&pltColor, "color", "", "categorical color column (default n_obs)")
	f.BoolVar(&pltLabels, "labels", false, "annotate points with their regions")
	f.StringVar(&pltFormat, "format", "png", "image format: png|svg|pdf")
	f.Float64Var(&pltWidth, "width", 0, "width in inches (default from config)")
	f.Float64Var(&pltHeight, "height", 0, "height in inches (default from config)")
}
