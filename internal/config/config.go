package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir"`
	QueriesDir  string `mapstructure:"queries_dir" yaml:"queries_dir"`
	MaxDepth    int    `mapstructure:"max_depth" yaml:"max_depth"`

	// Power analysis defaults, overridable per command.
	Alpha           float64 `mapstructure:"alpha" yaml:"alpha"`
	Alternative     string  `mapstructure:"alternative" yaml:"alternative"`
	NObs            int     `mapstructure:"n_obs" yaml:"n_obs"`
	MaxCombinations int     `mapstructure:"max_combinations" yaml:"max_combinations"`
	MaxGroupSize    int     `mapstructure:"max_group_size" yaml:"max_group_size"`
	LogFrequency    int     `mapstructure:"log_frequency" yaml:"log_frequency"`

	// Plot size in inches.
	PlotWidth  float64 `mapstructure:"plot_width" yaml:"plot_width"`
	PlotHeight float64 `mapstructure:"plot_height" yaml:"plot_height"`
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.geopower/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".geopower")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("GEOPOWER")
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("output_dir", "")
	v.SetDefault("queries_dir", "")
	v.SetDefault("max_depth", 3)
	v.SetDefault("alpha", 0.05)
	v.SetDefault("alternative", "two-sided")
	v.SetDefault("n_obs", 28)
	v.SetDefault("max_combinations", 10000)
	v.SetDefault("max_group_size", 3)
	v.SetDefault("log_frequency", 100)
	v.SetDefault("plot_width", 10.0)
	v.SetDefault("plot_height", 6.0)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".geopower"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// the file is optional; a missing one leaves defaults and env in place
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	return &c, nil
}
