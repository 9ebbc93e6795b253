package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cfgpkg "github.com/KaramelBytes/geopower/internal/config"
	"github.com/KaramelBytes/geopower/internal/queries"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	qryDir        string
	qryParams     []string
	qryParamsFile string
	qryDB         string
	qryOutput     string
	qryKeepGoing  bool
)

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "List, render and run SQL query templates",
}

var queriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available query templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := loadQueryLibrary(cmd)
		if err != nil {
			return err
		}
		names := lib.Names()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No queries found.")
			return nil
		}
		for _, n := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", n)
		}
		return nil
	},
}

var queriesRenderCmd = &cobra.Command{
	Use:   "render <name|file.sql>",
	Short: "Render a query template with parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := renderQuery(cmd, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(q))
		return nil
	},
}

var queriesRunCmd = &cobra.Command{
	Use:   "run <name|file.sql>",
	Short: "Render a query template and run it against a SQLite database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if qryDB == "" {
			return fmt.Errorf("--db is required")
		}
		q, err := renderQuery(cmd, args[0])
		if err != nil {
			return err
		}
		db, err := queries.Open(cmd.Context(), qryDB)
		if err != nil {
			return err
		}
		defer db.Close()
		df, err := queries.Run(cmd.Context(), db, q)
		if err != nil {
			return err
		}
		return writeFrame(cmd, df, qryOutput)
	},
}

// loadQueryLibrary returns the built-in queries merged with the ones found
// in --dir or the configured queries_dir.
func loadQueryLibrary(cmd *cobra.Command) (*queries.Library, error) {
	c, err := ensureConfig()
	if err != nil {
		return nil, err
	}
	lib, err := queries.NewLibrary(cmd.Context())
	if err != nil {
		return nil, err
	}
	dir := qryDir
	if dir == "" {
		dir = c.QueriesDir
	}
	if dir == "" {
		return lib, nil
	}
	extra, err := queries.LoadLibraryDir(cmd.Context(), dir, queryDirOptions(c))
	if err != nil {
		return nil, err
	}
	lib.Merge(extra)
	return lib, nil
}

func queryDirOptions(c *cfgpkg.Global) queries.DirOptions {
	opts := queries.DefaultDirOptions()
	opts.MaxDepth = c.MaxDepth
	opts.OnErrorContinue = qryKeepGoing
	return opts
}

func renderQuery(cmd *cobra.Command, ref string) (string, error) {
	params, err := queryParams()
	if err != nil {
		return "", err
	}
	if queries.Extension(ref) == queries.FormatSQL {
		if _, err := os.Stat(ref); err == nil {
			tpl, err := queries.ReadSQL(os.DirFS(filepath.Dir(ref)), filepath.Base(ref))
			if err != nil {
				return "", err
			}
			return queries.Render(tpl, params)
		}
	}
	lib, err := loadQueryLibrary(cmd)
	if err != nil {
		return "", err
	}
	return lib.Render(ref, params)
}

// queryParams merges --params-file with --param key=value pairs. Values are
// decoded as YAML so lists and numbers keep their type.
func queryParams() (map[string]any, error) {
	params := map[string]any{}
	if qryParamsFile != "" {
		m, err := queries.ReadYAML(os.DirFS(filepath.Dir(qryParamsFile)), filepath.Base(qryParamsFile))
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			params[k] = v
		}
	}
	for _, kv := range qryParams {
		k, raw, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --param %q (use key=value)", kv)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		params[strings.TrimSpace(k)] = v
	}
	return params, nil
}

func init() {
	rootCmd.AddCommand(queriesCmd)
	queriesCmd.AddCommand(queriesListCmd, queriesRenderCmd, queriesRunCmd)
	queriesCmd.PersistentFlags().StringVar(&qryDir, "dir", "", "directory of extra .sql templates (default from config)")
	queriesCmd.PersistentFlags().BoolVar(&qryKeepGoing, "keep-going", false, "skip templates that fail to load")
	for _, c := range []*cobra.Command{queriesRenderCmd, queriesRunCmd} {
		c.Flags().StringArrayVar(&qryParams, "param", nil, "template parameter key=value (repeatable)")
		c.Flags().StringVar(&qryParamsFile, "params-file", "", "YAML file of template parameters")
	}
	queriesRunCmd.Flags().StringVar(&qryDB, "db", "", "SQLite database path")
	queriesRunCmd.Flags().StringVarP(&qryOutput, "output", "o", "", "output path (.csv or .xlsx); CSV to stdout if omitted")
}
