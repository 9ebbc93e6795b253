package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KaramelBytes/geopower/internal/analysis"
	"github.com/KaramelBytes/geopower/internal/utils"
	"github.com/spf13/cobra"
)

var (
	descOutputDir  string
	descDateCol    string
	descSheet      string
	descOutlierThr float64
	descTopPairs   int
	descTable      bool
	descQuiet      bool
)

var describeCmd = &cobra.Command{
	Use:   "describe <files...>",
	Short: "Summarize wide region panels: shares, noise, outliers and correlations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		opt := analysis.DefaultOptions()
		if cmd.Flags().Changed("outlier-threshold") {
			opt.OutlierThreshold = descOutlierThr
		}
		if descTopPairs >= 0 {
			opt.TopPairs = descTopPairs
		}
		w := cmd.OutOrStdout()
		total := len(files)
		for i, path := range files {
			if !descQuiet && total > 1 {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			df, err := readFrame(path, descSheet)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			rep, err := analysis.SummarizePanel(df, descDateCol, opt)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			rep.Name = filepath.Base(path)
			for _, warn := range rep.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", warnMark, rep.Name, warn)
			}
			if descOutputDir != "" {
				base := strings.TrimSuffix(rep.Name, filepath.Ext(rep.Name))
				out := filepath.Join(descOutputDir, base+".summary.md")
				if err := utils.SafeWriteFile(out, []byte(rep.Markdown())); err != nil {
					return fmt.Errorf("write summary: %w", err)
				}
				fmt.Fprintf(w, "%s Wrote summary to %s\n", okMark, out)
				continue
			}
			if descTable {
				fmt.Fprintf(w, "%s\n", rep.Name)
				rep.WriteTable(w)
				continue
			}
			fmt.Fprintln(w, rep.Markdown())
		}
		return nil
	},
}

// expandInputs resolves globs, keeps literal paths that exist and returns
// the sorted unique list.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringVarP(&descOutputDir, "output-dir", "o", "", "write one <name>.summary.md per input into this directory")
	describeCmd.Flags().StringVar(&descDateCol, "date-col", "date", "name of the date column")
	describeCmd.Flags().StringVar(&descSheet, "sheet", "", "XLSX: sheet name to read")
	describeCmd.Flags().Float64Var(&descOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (0 disables)")
	describeCmd.Flags().IntVar(&descTopPairs, "top-pairs", 10, "number of most correlated region pairs to report")
	describeCmd.Flags().BoolVar(&descTable, "table", false, "print a region table instead of Markdown")
	describeCmd.Flags().BoolVar(&descQuiet, "quiet", false, "suppress progress lines")
}
