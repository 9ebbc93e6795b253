package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	cfgpkg "github.com/KaramelBytes/geopower/internal/config"
	"github.com/KaramelBytes/geopower/internal/logger"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	flagEnv string

	// Loaded configuration
	cfg *cfgpkg.Global
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("⚠")
	errMark  = color.New(color.FgRed).Sprint("✗")
)

var rootCmd = &cobra.Command{
	Use:   "geopower",
	Short: "geopower: power analysis for geo experiments",
	Long: `geopower prepares daily KPI panels (one column per region), checks and completes
their date grid, aggregates them into weeks and searches combinations of candidate
test regions for the power or minimum detectable effect of a geo experiment.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, errMark, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.geopower/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagEnv, "env", "", "logging environment: development|production (overrides config)")
}

func loadConfig() {
	env := ""
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "%s Warning: failed to load config: %v\n", warnMark, err)
	} else {
		cfg = c
		env = c.Environment
	}
	if flagEnv != "" {
		env = flagEnv
	}
	if err := logger.Setup(env, debug); err != nil {
		fmt.Fprintf(os.Stderr, "%s Warning: failed to set up logging: %v\n", warnMark, err)
	}
}

// ensureConfig returns the loaded configuration, loading it on first use.
func ensureConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}
