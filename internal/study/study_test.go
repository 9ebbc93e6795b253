package study

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/geopower/internal/config"
	"github.com/KaramelBytes/geopower/internal/queries"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Global {
	return &config.Global{
		MaxCombinations: 1000,
		MaxGroupSize:    3,
		Alpha:           0.05,
		NObs:            28,
		Alternative:     "two-sided",
		LogFrequency:    100,
		PlotWidth:       6,
		PlotHeight:      4,
	}
}

func writeStudyDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("Date,North,South,East Coast\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 28; i++ {
		if i == 10 {
			continue // gap filled by the cleaning step
		}
		d := start.AddDate(0, 0, i)
		fmt.Fprintf(&b, "%s,%d,%d,%d\n", d.Format("2006-01-02"), 100+(i%7)*5, 50+(i%5)*3, 20+i%3)
	}
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("sales.csv", b.String())
	write("profiles.csv", "Region,Young\nnorth,0.3\nsouth,0.5\neast_coast,0.2\n")
	write("study.yaml", `name: demo
kpi: sales
data:
  path: sales.csv
  date_column: Date
clean:
  sanitize_header: true
  fill_dates: true
profiles:
  path: profiles.csv
selection:
  max_group_size: 2
  difference_percents: [5, 10]
  n_obs: [14, 28]
output:
  plot_format: svg
`)
	return dir
}

func TestLoadAndRun(t *testing.T) {
	dir := writeStudyDir(t)
	def, err := Load(filepath.Join(dir, "study.yaml"))
	require.NoError(t, err)
	require.Equal(t, "demo", def.Name)
	require.Equal(t, []float64{5, 10}, def.Selection.DifferencePercents)
	def.ApplyDefaults(testConfig())
	require.Equal(t, []float64{0.05}, def.Selection.Alphas)
	require.Equal(t, filepath.Join(dir, "sales.csv"), def.Resolve("sales.csv"))

	out := t.TempDir()
	m, err := Run(context.Background(), def, out)
	require.NoError(t, err)
	require.NotEmpty(t, m.RunID)
	require.Equal(t, 6, m.Examined)
	require.Equal(t, 24, m.Designs)
	require.False(t, m.Truncated)
	require.Equal(t, filepath.Join(out, m.RunID), m.Dir())
	require.ElementsMatch(t, []string{
		PanelFile, SummaryFile, StatsCSVFile, StatsXLSX, "power_mde_5.svg", "power_mde_10.svg",
	}, m.Outputs)
	for _, name := range m.Outputs {
		_, err := os.Stat(filepath.Join(m.Dir(), name))
		require.NoError(t, err, name)
	}

	stats, err := os.ReadFile(filepath.Join(m.Dir(), StatsCSVFile))
	require.NoError(t, err)
	header := strings.SplitN(string(stats), "\n", 2)[0]
	require.True(t, strings.HasPrefix(header, "regions,regions_number,regions_size"))
	require.Contains(t, header, "young__delta__")
	require.Contains(t, string(stats), "east_coast|north")

	panel, err := os.ReadFile(filepath.Join(m.Dir(), PanelFile))
	require.NoError(t, err)
	require.Contains(t, string(panel), "date,north,south,east_coast")
	require.Contains(t, string(panel), "2024-01-11")

	loaded, err := LoadManifest(m.Dir())
	require.NoError(t, err)
	require.Equal(t, m.RunID, loaded.RunID)
	require.Equal(t, m.Outputs, loaded.Outputs)
}

func TestRunFromSQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "geo.db")
	db, err := queries.Open(ctx, dbPath)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE daily_sales (date TEXT, region TEXT, sales REAL)`)
	require.NoError(t, err)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 14; i++ {
		d := start.AddDate(0, 0, i).Format("2006-01-02")
		_, err = db.ExecContext(ctx, `INSERT INTO daily_sales VALUES (?, 'north', ?), (?, 'south', ?)`, d, 100+i%4, d, 40+i%3)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	def := &Definition{
		Name: "sqlite",
		KPI:  "sales",
		Data: Data{
			SQLite:      dbPath,
			Query:       "daily_kpi_by_region",
			QueryParams: map[string]any{"table": "daily_sales"},
			Layout:      "long",
		},
		Weekly:    Weekly{Enabled: true},
		Selection: Selection{DifferencePercents: []float64{5}},
	}
	def.ApplyDefaults(testConfig())
	m, err := Run(ctx, def, t.TempDir())
	require.NoError(t, err)
	require.Contains(t, m.Query, "FROM daily_sales")
	require.Equal(t, []string{dbPath}, m.Inputs)
	require.Equal(t, 3, m.Examined)
	require.Equal(t, 3, m.Designs)

	panel, err := os.ReadFile(filepath.Join(m.Dir(), PanelFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(panel)), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[1], "2024-01-01,"))
}

func TestValidate(t *testing.T) {
	def := &Definition{}
	def.setDefaults()
	err := def.Validate()
	require.Error(t, err)
	for _, want := range []string{"name is required", "kpi is required", "exactly one of path or sqlite"} {
		require.Contains(t, err.Error(), want)
	}

	def = &Definition{Name: "x", KPI: "y", Data: Data{SQLite: "a.db"}, Selection: Selection{SizeBounds: []float64{0.1}}}
	def.setDefaults()
	err = def.Validate()
	require.Contains(t, err.Error(), "data.query is required")
	require.Contains(t, err.Error(), "size_bounds")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "study.yaml")
	require.NoError(t, os.WriteFile(p, []byte("name: x\nkpi: y\nunknown: 1\n"), 0o644))
	_, err := Load(p)
	require.Error(t, err)

	_, err = Load(filepath.Join(dir, "study.json"))
	require.ErrorIs(t, err, queries.ErrWrongFormat)
}
