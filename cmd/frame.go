package cmd

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/geopower/internal/frame"
	"github.com/go-gota/gota/series"
	"github.com/spf13/cobra"
)

var (
	frmOutput     string
	frmSheet      string
	frmDateCol    string
	frmFreqDays   int
	frmGroupBy    []string
	frmDuplicates bool
	frmAgg        []string
	frmWeekStart  string
	frmIncomplete bool
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize <file>",
	Short: "Normalize column names (lowercase, ASCII, underscores)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		df, err := readFrame(args[0], frmSheet)
		if err != nil {
			return err
		}
		before := df.Names()
		if df, err = frame.SanitiseHeader(df); err != nil {
			return err
		}
		for i, n := range df.Names() {
			if n != before[i] {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s -> %s\n", before[i], n)
			}
		}
		return writeFrame(cmd, df, frmOutput)
	},
}

var fillDatesCmd = &cobra.Command{
	Use:   "fill-dates <file>",
	Short: "Complete the date grid, adding empty rows for missing dates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		df, err := readFrame(args[0], frmSheet)
		if err != nil {
			return err
		}
		before := df.Nrow()
		df, err = frame.AddUniqueDates(cmd.Context(), df, frmDateCol, frmFreqDays, frmGroupBy)
		if err != nil {
			return err
		}
		if added := df.Nrow() - before; added > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Added %d missing rows\n", warnMark, added)
		}
		return writeFrame(cmd, df, frmOutput)
	},
}

var checkDatesCmd = &cobra.Command{
	Use:   "check-dates <file>",
	Short: "Check that dates cover a regular grid without gaps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		df, err := readFrame(args[0], frmSheet)
		if err != nil {
			return err
		}
		dates, err := frame.DateColumn(df, frmDateCol)
		if err != nil {
			return err
		}
		if err := frame.CheckAllDates(dates, frmFreqDays, frmDuplicates); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d dates on a %d-day grid\n", okMark, len(dates), frmFreqDays)
		return nil
	},
}

var weeklyCmd = &cobra.Command{
	Use:   "weekly <file>",
	Short: "Aggregate daily data into weeks starting on Monday",
	Long: `Aggregate daily data into weeks. By default every numeric column is summed;
use --agg column=reduction (sum, mean, median, min, max, std, count) to choose
per-column reductions, or --agg reduction to apply one to every numeric column.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		df, err := readFrame(args[0], frmSheet)
		if err != nil {
			return err
		}
		aggs := map[string]frame.Aggregation{}
		types := df.Types()
		for _, item := range frmAgg {
			col, name, ok := strings.Cut(item, "=")
			if !ok {
				a, err := frame.ParseAggregation(item)
				if err != nil {
					return err
				}
				for i, n := range df.Names() {
					if n != frmDateCol && (types[i] == series.Float || types[i] == series.Int) {
						aggs[n] = a
					}
				}
				continue
			}
			a, err := frame.ParseAggregation(name)
			if err != nil {
				return err
			}
			aggs[strings.TrimSpace(col)] = a
		}
		df, err = frame.AggregateWeekly(df, frmDateCol, aggs, frame.WeeklyOptions{
			WeekStartsOn:        frmWeekStart,
			KeepIncompleteWeeks: frmIncomplete,
		})
		if err != nil {
			return err
		}
		return writeFrame(cmd, df, frmOutput)
	},
}

func init() {
	for _, c := range []*cobra.Command{sanitizeCmd, fillDatesCmd, checkDatesCmd, weeklyCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringVar(&frmSheet, "sheet", "", "XLSX: sheet name to read")
		if c != checkDatesCmd {
			c.Flags().StringVarP(&frmOutput, "output", "o", "", "output path (.csv or .xlsx); CSV to stdout if omitted")
		}
		if c != sanitizeCmd {
			c.Flags().StringVar(&frmDateCol, "date-col", "date", "name of the date column")
		}
	}
	for _, c := range []*cobra.Command{fillDatesCmd, checkDatesCmd} {
		c.Flags().IntVar(&frmFreqDays, "freq", 1, "grid step in days")
	}
	fillDatesCmd.Flags().StringSliceVar(&frmGroupBy, "group-by", nil, "columns whose combinations each get a full date grid")
	checkDatesCmd.Flags().BoolVar(&frmDuplicates, "duplicates", true, "also reject repeated dates")
	weeklyCmd.Flags().StringSliceVar(&frmAgg, "agg", nil, "reductions: column=sum|mean|median|min|max|std|count (repeatable)")
	weeklyCmd.Flags().StringVar(&frmWeekStart, "week-start", "", "weekday the weeks start on (default Monday)")
	weeklyCmd.Flags().BoolVar(&frmIncomplete, "keep-incomplete", false, "keep weeks with fewer than seven days")
}
