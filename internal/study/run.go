package study

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/geopower/internal/analysis"
	"github.com/KaramelBytes/geopower/internal/frame"
	"github.com/KaramelBytes/geopower/internal/logger"
	"github.com/KaramelBytes/geopower/internal/plotting"
	"github.com/KaramelBytes/geopower/internal/power"
	"github.com/KaramelBytes/geopower/internal/queries"
	"github.com/KaramelBytes/geopower/internal/source"
	"github.com/KaramelBytes/geopower/internal/utils"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/plot/vg"
)

// Output file names inside the run directory.
const (
	PanelFile    = "panel.csv"
	SummaryFile  = "summary.md"
	StatsCSVFile = "stats.csv"
	StatsXLSX    = "stats.xlsx"
)

// Run executes the study and writes its outputs to a fresh directory below
// outDir named after the run id. An empty outDir uses the definition's
// output directory.
func Run(ctx context.Context, def *Definition, outDir string) (*Manifest, error) {
	def.setDefaults()
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid study: %w", err)
	}
	if outDir == "" {
		outDir = def.Resolve(def.Output.Dir)
	}
	m := &Manifest{
		RunID:     uuid.NewString(),
		Study:     def.Name,
		StartedAt: time.Now(),
	}
	runDir := filepath.Join(outDir, m.RunID)
	if err := utils.EnsureDir(runDir); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	m.dir = runDir
	ctx = logger.WithFields(ctx, zap.String("study", def.Name), zap.String("run_id", m.RunID))
	logger.Info(ctx, "study started", zap.String("dir", runDir))

	panel, err := loadPanel(ctx, def, m)
	if err != nil {
		return nil, err
	}
	dateCol := def.Data.DateColumn
	if def.Clean.SanitizeHeader {
		if panel, err = frame.SanitiseHeader(panel); err != nil {
			return nil, err
		}
		dateCol = frame.SanitiseName(dateCol)
	}
	if def.Clean.FillDates {
		if panel, err = frame.AddUniqueDates(ctx, panel, dateCol, def.Clean.FrequencyDays, nil); err != nil {
			return nil, err
		}
	}
	dates, err := frame.DateColumn(panel, dateCol)
	if err != nil {
		return nil, err
	}
	if err := frame.CheckAllDates(dates, def.Clean.FrequencyDays, true); err != nil {
		return nil, err
	}
	if def.Weekly.Enabled {
		if panel, err = weekly(panel, dateCol, def.Weekly); err != nil {
			return nil, err
		}
	}
	if err := m.writeFrame(panel, PanelFile); err != nil {
		return nil, err
	}

	rep, err := analysis.SummarizePanel(panel, dateCol, analysis.DefaultOptions())
	if err != nil {
		return nil, err
	}
	rep.Name = def.Name
	if err := m.write(SummaryFile, []byte(rep.Markdown())); err != nil {
		return nil, err
	}

	opts, err := selectionOptions(def, dateCol)
	if err != nil {
		return nil, err
	}
	if def.Profiles != nil {
		prof, err := source.Load(def.Resolve(def.Profiles.Path))
		if err != nil {
			return nil, fmt.Errorf("load profiles: %w", err)
		}
		m.Inputs = append(m.Inputs, def.Resolve(def.Profiles.Path))
		key := def.Profiles.Key
		if def.Clean.SanitizeHeader {
			if prof, err = frame.SanitiseHeader(prof); err != nil {
				return nil, err
			}
			key = frame.SanitiseName(key)
		}
		opts.Profiles = &power.Profiles{Frame: prof, Key: key}
	}
	candidates := append([]string(nil), def.Selection.Candidates...)
	if def.Clean.SanitizeHeader {
		for i, c := range candidates {
			candidates[i] = frame.SanitiseName(c)
		}
	}
	if len(candidates) == 0 {
		for _, n := range panel.Names() {
			if n != dateCol {
				candidates = append(candidates, n)
			}
		}
	}

	sel, err := power.SelectCandidateRegions(ctx, panel, candidates, opts)
	if err != nil {
		return nil, err
	}
	m.Examined, m.Designs, m.Truncated = sel.Examined, len(sel.Rows), sel.Truncated
	stats := sel.ToFrame()
	if err := m.writeFrame(stats, StatsCSVFile); err != nil {
		return nil, err
	}
	if err := source.WriteXLSX(stats, filepath.Join(runDir, StatsXLSX), "stats"); err != nil {
		return nil, err
	}
	m.Outputs = append(m.Outputs, StatsXLSX)

	if len(sel.Rows) > 0 {
		w := vg.Length(def.Output.PlotWidth) * vg.Inch
		h := vg.Length(def.Output.PlotHeight) * vg.Inch
		for _, dp := range opts.DifferencePercents {
			p, err := plotting.ScatterPowerVsSize(stats, dp, def.KPI, plotting.Options{})
			if err != nil {
				logger.Warn(ctx, "plot skipped", zap.Float64("difference_percent", dp), zap.Error(err))
				continue
			}
			name := plotting.FileName(dp, def.Output.PlotFormat)
			if err := plotting.Save(p, filepath.Join(runDir, name), w, h); err != nil {
				return nil, err
			}
			m.Outputs = append(m.Outputs, name)
		}
	}

	m.FinishedAt = time.Now()
	if err := m.Save(); err != nil {
		return nil, err
	}
	logger.Info(ctx, "study finished", zap.Int("examined", m.Examined), zap.Int("designs", m.Designs))
	return m, nil
}

func loadPanel(ctx context.Context, def *Definition, m *Manifest) (dataframe.DataFrame, error) {
	var (
		df  dataframe.DataFrame
		err error
	)
	if def.Data.SQLite != "" {
		df, err = loadSQLite(ctx, def, m)
	} else {
		path := def.Resolve(def.Data.Path)
		if def.Data.Sheet != "" {
			df, err = source.LoadXLSX(path, def.Data.Sheet)
		} else {
			df, err = source.Load(path)
		}
		m.Inputs = append(m.Inputs, path)
	}
	if err != nil {
		return df, fmt.Errorf("load data: %w", err)
	}
	if def.Data.Layout == "long" {
		return source.Pivot(df, def.Data.DateColumn, def.Data.RegionColumn, def.Data.ValueColumn)
	}
	return df, nil
}

func loadSQLite(ctx context.Context, def *Definition, m *Manifest) (dataframe.DataFrame, error) {
	lib, err := queries.NewLibrary(ctx)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	if def.Data.QueriesDir != "" {
		extra, err := queries.LoadLibraryDir(ctx, def.Resolve(def.Data.QueriesDir), queries.DefaultDirOptions())
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		lib.Merge(extra)
	}
	params := map[string]any{"kpi": def.KPI}
	for k, v := range def.Data.QueryParams {
		params[k] = v
	}
	q, err := lib.Render(def.Data.Query, params)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	dbPath := def.Resolve(def.Data.SQLite)
	db, err := queries.Open(ctx, dbPath)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer db.Close()
	m.Inputs = append(m.Inputs, dbPath)
	m.Query = q
	return queries.Run(ctx, db, q)
}

func weekly(df dataframe.DataFrame, dateCol string, w Weekly) (dataframe.DataFrame, error) {
	var aggs map[string]frame.Aggregation
	if w.Aggregation != "" {
		a, err := frame.ParseAggregation(w.Aggregation)
		if err != nil {
			return df, err
		}
		types := df.Types()
		aggs = map[string]frame.Aggregation{}
		for i, n := range df.Names() {
			if n != dateCol && (types[i] == series.Float || types[i] == series.Int) {
				aggs[n] = a
			}
		}
	}
	return frame.AggregateWeekly(df, dateCol, aggs, frame.WeeklyOptions{KeepIncompleteWeeks: w.KeepIncompleteWeeks})
}

func selectionOptions(def *Definition, dateCol string) (power.Options, error) {
	s := def.Selection
	alt, err := power.ParseAlternative(s.Alternative)
	if err != nil {
		return power.Options{}, err
	}
	opts := power.Options{
		MaxCombinations:    s.MaxCombinations,
		MaxGroupSize:       s.MaxGroupSize,
		Alphas:             s.Alphas,
		NObs:               s.NObs,
		Alternative:        alt,
		Powers:             s.Powers,
		DifferencePercents: s.DifferencePercents,
		LogFrequency:       s.LogFrequency,
		Exclude:            []string{dateCol},
	}
	if len(s.SizeBounds) == 2 {
		opts.SizeBounds = &power.Bounds{Lo: s.SizeBounds[0], Hi: s.SizeBounds[1]}
	}
	return opts, nil
}
