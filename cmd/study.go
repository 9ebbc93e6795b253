package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/geopower/internal/study"
	"github.com/KaramelBytes/geopower/internal/utils"
	"github.com/spf13/cobra"
)

var (
	studyOutDir string
	studyName   string
	studyKPI    string
)

const studyTemplate = `name: %s
description: ""
kpi: %s
data:
  path: data.csv
  layout: wide
  date_column: date
clean:
  sanitize_header: true
  fill_dates: true
  frequency_days: 1
weekly:
  enabled: false
selection:
  max_group_size: 3
  difference_percents: [2, 5, 10]
  n_obs: [14, 28]
output:
  dir: out
  plot_format: png
`

var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Run region selections described by a study.yaml file",
}

var studyInitCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a starter study.yaml",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		path := filepath.Join(dir, utils.StudyFile)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("study already exists at %s", path)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("stat study file: %w", err)
		}
		name := studyName
		if name == "" {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			name = filepath.Base(abs)
		}
		if err := utils.SafeWriteFile(path, []byte(fmt.Sprintf(studyTemplate, name, studyKPI))); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Study initialized: %s\n", okMark, path)
		return nil
	},
}

var studyRunCmd = &cobra.Command{
	Use:   "run [study.yaml|dir]",
	Short: "Run a study and write its outputs to a new run directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		start := ""
		if len(args) == 1 {
			start = args[0]
		}
		path, err := utils.FindStudyFile(start)
		if err != nil {
			return err
		}
		def, err := study.Load(path)
		if err != nil {
			return err
		}
		def.ApplyDefaults(c)
		m, err := study.Run(cmd.Context(), def, studyOutDir)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s Study '%s' finished: %d combinations, %d designs\n", okMark, m.Study, m.Examined, m.Designs)
		if m.Truncated {
			fmt.Fprintf(w, "%s Search stopped at max_combinations=%d\n", warnMark, def.Selection.MaxCombinations)
		}
		fmt.Fprintf(w, "Run directory: %s\n", m.Dir())
		return nil
	},
}

var studyShowCmd = &cobra.Command{
	Use:   "show <run-dir>",
	Short: "Show the manifest of a study run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := study.LoadManifest(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Run: %s\n", m.RunID)
		fmt.Fprintf(w, "Study: %s\n", m.Study)
		fmt.Fprintf(w, "Started: %s\n", m.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Duration: %s\n", m.FinishedAt.Sub(m.StartedAt).Round(time.Millisecond))
		fmt.Fprintf(w, "Combinations: %d (designs: %d, truncated: %t)\n", m.Examined, m.Designs, m.Truncated)
		fmt.Fprintln(w, "Inputs:")
		for _, in := range m.Inputs {
			fmt.Fprintf(w, "- %s\n", in)
		}
		fmt.Fprintln(w, "Outputs:")
		for _, out := range m.Outputs {
			fmt.Fprintf(w, "- %s\n", out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(studyCmd)
	studyCmd.AddCommand(studyInitCmd, studyRunCmd, studyShowCmd)
	studyInitCmd.Flags().StringVar(&studyName, "name", "", "study name (default: directory name)")
	studyInitCmd.Flags().StringVar(&studyKPI, "kpi", "sales", "KPI column name")
	studyRunCmd.Flags().StringVarP(&studyOutDir, "out", "o", "", "parent directory for the run (default: the study's output.dir)")
}
