// Package study runs a complete region selection described by a YAML file:
// load the KPI, clean it, pick candidate regions and write the results.
package study

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/geopower/internal/config"
	"github.com/KaramelBytes/geopower/internal/power"
	"github.com/KaramelBytes/geopower/internal/queries"
	"gopkg.in/yaml.v3"
)

// Definition is the content of a study file.
type Definition struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	KPI         string    `yaml:"kpi"`
	Data        Data      `yaml:"data"`
	Clean       Clean     `yaml:"clean"`
	Weekly      Weekly    `yaml:"weekly"`
	Profiles    *Profiles `yaml:"profiles"`
	Selection   Selection `yaml:"selection"`
	Output      Output    `yaml:"output"`

	// Not serialized: directory of the study file, used to resolve paths.
	baseDir string
}

// Data locates the KPI. Either Path or SQLite is set.
type Data struct {
	Path   string `yaml:"path"`
	Sheet  string `yaml:"sheet"`
	SQLite string `yaml:"sqlite"`
	// Query names a library query rendered with QueryParams.
	Query       string         `yaml:"query"`
	QueryParams map[string]any `yaml:"query_params"`
	QueriesDir  string         `yaml:"queries_dir"`
	// Layout is "wide" (one column per region) or "long".
	Layout       string `yaml:"layout"`
	DateColumn   string `yaml:"date_column"`
	RegionColumn string `yaml:"region_column"`
	ValueColumn  string `yaml:"value_column"`
}

// Clean lists the preparation steps applied before selection.
type Clean struct {
	SanitizeHeader bool `yaml:"sanitize_header"`
	FillDates      bool `yaml:"fill_dates"`
	FrequencyDays  int  `yaml:"frequency_days"`
}

// Weekly enables aggregation into Monday weeks.
type Weekly struct {
	Enabled             bool   `yaml:"enabled"`
	Aggregation         string `yaml:"aggregation"`
	KeepIncompleteWeeks bool   `yaml:"keep_incomplete_weeks"`
}

// Profiles points at a file with one row per region.
type Profiles struct {
	Path string `yaml:"path"`
	Key  string `yaml:"key"`
}

// Selection mirrors power.Options.
type Selection struct {
	Candidates         []string  `yaml:"candidates"`
	MaxCombinations    int       `yaml:"max_combinations"`
	MaxGroupSize       int       `yaml:"max_group_size"`
	Alphas             []float64 `yaml:"alphas"`
	NObs               []int     `yaml:"n_obs"`
	Alternative        string    `yaml:"alternative"`
	Powers             []float64 `yaml:"powers"`
	DifferencePercents []float64 `yaml:"difference_percents"`
	SizeBounds         []float64 `yaml:"size_bounds"`
	LogFrequency       int       `yaml:"log_frequency"`
}

// Output controls where and how results are written.
type Output struct {
	Dir        string  `yaml:"dir"`
	PlotFormat string  `yaml:"plot_format"`
	PlotWidth  float64 `yaml:"plot_width"`
	PlotHeight float64 `yaml:"plot_height"`
}

// Load reads a study file.
func Load(path string) (*Definition, error) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	raw, err := queries.ReadYAML(os.DirFS(dir), name)
	if err != nil {
		return nil, fmt.Errorf("load study: %w", err)
	}
	def, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("load study %s: %w", path, err)
	}
	def.baseDir = dir
	return def, nil
}

// decode maps a YAML document onto a Definition, rejecting unknown keys.
func decode(raw map[string]any) (*Definition, error) {
	b, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// ApplyDefaults fills unset fields from the global configuration.
func (d *Definition) ApplyDefaults(cfg *config.Global) {
	s := &d.Selection
	if s.MaxCombinations == 0 {
		s.MaxCombinations = cfg.MaxCombinations
	}
	if s.MaxGroupSize == 0 {
		s.MaxGroupSize = cfg.MaxGroupSize
	}
	if len(s.Alphas) == 0 {
		s.Alphas = []float64{cfg.Alpha}
	}
	if len(s.NObs) == 0 {
		s.NObs = []int{cfg.NObs}
	}
	if s.Alternative == "" {
		s.Alternative = cfg.Alternative
	}
	if s.LogFrequency == 0 {
		s.LogFrequency = cfg.LogFrequency
	}
	if d.Data.QueriesDir == "" {
		d.Data.QueriesDir = cfg.QueriesDir
	}
	if d.Output.Dir == "" {
		d.Output.Dir = cfg.OutputDir
	}
	if d.Output.PlotWidth == 0 {
		d.Output.PlotWidth = cfg.PlotWidth
	}
	if d.Output.PlotHeight == 0 {
		d.Output.PlotHeight = cfg.PlotHeight
	}
	d.setDefaults()
}

func (d *Definition) setDefaults() {
	if d.Data.Layout == "" {
		d.Data.Layout = "wide"
	}
	if d.Data.DateColumn == "" {
		d.Data.DateColumn = "date"
	}
	if d.Data.RegionColumn == "" {
		d.Data.RegionColumn = "region"
	}
	if d.Data.ValueColumn == "" {
		d.Data.ValueColumn = d.KPI
	}
	if d.Clean.FrequencyDays == 0 {
		d.Clean.FrequencyDays = 1
	}
	if d.Output.PlotFormat == "" {
		d.Output.PlotFormat = "png"
	}
	if d.Output.Dir == "" {
		d.Output.Dir = "out"
	}
	if d.Profiles != nil && d.Profiles.Key == "" {
		d.Profiles.Key = "region"
	}
}

// Validate checks the definition before any data is read.
func (d *Definition) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if d.KPI == "" {
		errs = append(errs, errors.New("kpi is required"))
	}
	if (d.Data.Path == "") == (d.Data.SQLite == "") {
		errs = append(errs, errors.New("data needs exactly one of path or sqlite"))
	}
	if d.Data.SQLite != "" && d.Data.Query == "" {
		errs = append(errs, errors.New("data.query is required with sqlite"))
	}
	if d.Data.Layout != "wide" && d.Data.Layout != "long" {
		errs = append(errs, fmt.Errorf("data.layout must be wide or long, got %q", d.Data.Layout))
	}
	if n := len(d.Selection.SizeBounds); n != 0 && n != 2 {
		errs = append(errs, fmt.Errorf("selection.size_bounds needs two values, got %d", n))
	}
	if _, err := power.ParseAlternative(d.Selection.Alternative); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Resolve returns p relative to the study file directory unless absolute.
func (d *Definition) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || d.baseDir == "" {
		return p
	}
	return filepath.Join(d.baseDir, p)
}
