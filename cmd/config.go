package cmd

import (
	"fmt"
	"strconv"

	cfgpkg "github.com/KaramelBytes/geopower/internal/config"
	"github.com/KaramelBytes/geopower/internal/power"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set geopower configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "environment: %s\n", c.Environment)
		fmt.Fprintf(w, "output_dir: %s\n", c.OutputDir)
		if c.QueriesDir != "" {
			fmt.Fprintf(w, "queries_dir: %s\n", c.QueriesDir)
		}
		fmt.Fprintf(w, "max_depth: %d\n", c.MaxDepth)
		fmt.Fprintf(w, "alpha: %.3f\n", c.Alpha)
		fmt.Fprintf(w, "alternative: %s\n", c.Alternative)
		fmt.Fprintf(w, "n_obs: %d\n", c.NObs)
		fmt.Fprintf(w, "max_combinations: %d\n", c.MaxCombinations)
		fmt.Fprintf(w, "max_group_size: %d\n", c.MaxGroupSize)
		fmt.Fprintf(w, "log_frequency: %d\n", c.LogFrequency)
		fmt.Fprintf(w, "plot_width: %.1f\n", c.PlotWidth)
		fmt.Fprintf(w, "plot_height: %.1f\n", c.PlotHeight)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		if err := setConfigValue(c, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Saved config\n", okMark)
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	positiveInt := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i <= 0 {
			return 0, fmt.Errorf("invalid positive int for %s: %v", key, val)
		}
		return i, nil
	}
	positiveFloat := func() (float64, error) {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 {
			return 0, fmt.Errorf("invalid positive float for %s: %v", key, val)
		}
		return f, nil
	}
	var err error
	switch key {
	case "environment":
		switch val {
		case "development", "production":
			c.Environment = val
		default:
			return fmt.Errorf("invalid environment: %s (use development or production)", val)
		}
	case "output_dir":
		c.OutputDir = val
	case "queries_dir":
		c.QueriesDir = val
	case "max_depth":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for max_depth: %v", val)
		}
		c.MaxDepth = i
	case "alpha":
		f, err := positiveFloat()
		if err != nil || f >= 1 {
			return fmt.Errorf("invalid alpha: %v (must be in (0,1))", val)
		}
		c.Alpha = f
	case "alternative":
		alt, err := power.ParseAlternative(val)
		if err != nil {
			return err
		}
		c.Alternative = string(alt)
	case "n_obs":
		c.NObs, err = positiveInt()
	case "max_combinations":
		c.MaxCombinations, err = positiveInt()
	case "max_group_size":
		c.MaxGroupSize, err = positiveInt()
	case "log_frequency":
		c.LogFrequency, err = positiveInt()
	case "plot_width":
		c.PlotWidth, err = positiveFloat()
	case "plot_height":
		c.PlotHeight, err = positiveFloat()
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
