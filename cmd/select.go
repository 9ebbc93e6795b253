package cmd

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/geopower/internal/power"
	"github.com/KaramelBytes/geopower/internal/source"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	selOutput          string
	selSheet           string
	selDateCol         string
	selCandidates      []string
	selAlphas          []float64
	selNObs            []int
	selAlternative     string
	selPowers          []float64
	selDiffPercents    []float64
	selMaxCombinations int
	selMaxGroupSize    int
	selSizeBounds      []float64
	selProfiles        string
	selProfileKey      string
	selLogFrequency    int
	selTop             int
)

var selectCmd = &cobra.Command{
	Use:   "select <panel>",
	Short: "Search combinations of candidate regions for power or MDE",
	Long: `Enumerate combinations of candidate regions of a wide daily panel (one date
column, one numeric column per region) and compute a one-sample t-test design for
each: the power for every --mde difference percent, or the minimum detectable
effect for every --power target.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		panel, err := readFrame(args[0], selSheet)
		if err != nil {
			return err
		}
		alt := c.Alternative
		if selAlternative != "" {
			alt = selAlternative
		}
		parsedAlt, err := power.ParseAlternative(alt)
		if err != nil {
			return err
		}
		opts := power.Options{
			MaxCombinations:    pickInt(selMaxCombinations, c.MaxCombinations),
			MaxGroupSize:       pickInt(selMaxGroupSize, c.MaxGroupSize),
			Alphas:             selAlphas,
			NObs:               selNObs,
			Alternative:        parsedAlt,
			Powers:             selPowers,
			DifferencePercents: selDiffPercents,
			LogFrequency:       pickInt(selLogFrequency, c.LogFrequency),
			Exclude:            []string{selDateCol},
		}
		if len(opts.Alphas) == 0 {
			opts.Alphas = []float64{c.Alpha}
		}
		if len(opts.NObs) == 0 {
			opts.NObs = []int{c.NObs}
		}
		switch len(selSizeBounds) {
		case 0:
		case 2:
			opts.SizeBounds = &power.Bounds{Lo: selSizeBounds[0], Hi: selSizeBounds[1]}
		default:
			return fmt.Errorf("--size-bounds takes two values, got %d", len(selSizeBounds))
		}
		if selProfiles != "" {
			prof, err := source.Load(selProfiles)
			if err != nil {
				return fmt.Errorf("load profiles: %w", err)
			}
			opts.Profiles = &power.Profiles{Frame: prof, Key: selProfileKey}
		}
		candidates := selCandidates
		if len(candidates) == 0 {
			for _, n := range panel.Names() {
				if n != selDateCol {
					candidates = append(candidates, n)
				}
			}
		}

		sel, err := power.SelectCandidateRegions(cmd.Context(), panel, candidates, opts)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Examined %d combinations, %d designs\n", okMark, sel.Examined, len(sel.Rows))
		if sel.Truncated {
			fmt.Fprintf(w, "%s Search stopped at --max-combinations=%d\n", warnMark, opts.MaxCombinations)
		}
		if selTop > 0 {
			writeTopDesigns(w, sel, len(opts.Powers) > 0, selTop)
		}
		if selOutput != "" {
			return writeFrame(cmd, sel.ToFrame(), selOutput)
		}
		return nil
	},
}

// writeTopDesigns prints the n best designs: lowest MDE when solving for the
// effect, highest power otherwise.
func writeTopDesigns(w io.Writer, sel *power.Selection, byMDE bool, n int) {
	rows := append([]power.CandidateStats(nil), sel.Rows...)
	key := func(r power.CandidateStats) float64 {
		if byMDE {
			return math.Abs(r.DifferencePercent)
		}
		return -r.Power
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ki, kj := key(rows[i]), key(rows[j])
		if math.IsNaN(kj) {
			return !math.IsNaN(ki)
		}
		return ki < kj
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Regions", "Size %", "Mean", "Std", "Alpha", "N", "MDE %", "Power"})
	for _, r := range rows {
		t.Append([]string{
			strings.Join(r.Regions, power.RegionSeparator),
			fmt.Sprintf("%.1f", 100*r.RegionsSize),
			fmt.Sprintf("%.4g", r.Mean),
			fmt.Sprintf("%.4g", r.Std),
			fmt.Sprintf("%.3g", r.Alpha),
			fmt.Sprintf("%d", r.NObs),
			fmt.Sprintf("%.2f", r.DifferencePercent),
			fmt.Sprintf("%.3f", r.Power),
		})
	}
	t.Render()
}

func pickInt(flag, fallback int) int {
	if flag > 0 {
		return flag
	}
	return fallback
}

func init() {
	rootCmd.AddCommand(selectCmd)
	f := selectCmd.Flags()
	f.StringVarP(&selOutput, "output", "o", "", "write every design to this path (.csv or .xlsx)")
	f.StringVar(&selSheet, "sheet", "", "XLSX: sheet name to read")
	f.StringVar(&selDateCol, "date-col", "date", "name of the date column")
	f.StringSliceVar(&selCandidates, "candidates", nil, "candidate regions (default: every region column)")
	f.Float64SliceVar(&selAlphas, "alpha", nil, "significance levels (default from config)")
	f.IntSliceVar(&selNObs, "n-obs", nil, "test lengths in observations (default from config)")
	f.StringVar(&selAlternative, "alternative", "", "larger|smaller|two-sided (default from config)")
	f.Float64SliceVar(&selPowers, "power", nil, "target powers; computes the MDE")
	f.Float64SliceVar(&selDiffPercents, "mde", nil, "difference percents; computes the power")
	f.IntVar(&selMaxCombinations, "max-combinations", 0, "maximum subsets to examine (default from config)")
	f.IntVar(&selMaxGroupSize, "max-group-size", 0, "largest combination size (default from config)")
	f.Float64SliceVar(&selSizeBounds, "size-bounds", nil, "keep combinations whose KPI share is strictly within lo,hi")
	f.StringVar(&selProfiles, "profiles", "", "CSV/XLSX of numeric attributes per region")
	f.StringVar(&selProfileKey, "profile-key", "region", "region column of --profiles")
	f.IntVar(&selLogFrequency, "log-frequency", 0, "subsets between progress logs (default from config)")
	f.IntVar(&selTop, "top", 10, "print the best designs (0 disables)")
	selectCmd.MarkFlagsMutuallyExclusive("power", "mde")
}
