package queries

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/require"
)

func TestExtension(t *testing.T) {
	cases := map[string]Format{
		"yml":               FormatYAML,
		"yaml":              FormatYAML,
		".YAML":             FormatYAML,
		"conf/study.yml":    FormatYAML,
		"sql":               FormatSQL,
		"/tmp/q/daily.sql":  FormatSQL,
		"csv":               FormatUnknown,
		"notes.txt":         FormatUnknown,
		"":                  FormatUnknown,
		"dir.sql/readme.md": FormatUnknown,
	}
	for in, want := range cases {
		require.Equal(t, want, Extension(in), in)
	}
}

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"conf/a.yml":             {Data: []byte("name: demo\nalphas: [0.05, 0.1]\n")},
		"conf/empty.yaml":        {Data: []byte("")},
		"conf/broken.yml":        {Data: []byte("a: [1, 2\n")},
		"conf/notes.txt":         {Data: []byte("ignored")},
		"conf/q.sql":             {Data: []byte("SELECT 1")},
		"conf/nested/b.yaml":     {Data: []byte("k: v\n")},
		"conf/nested/deep/c.yml": {Data: []byte("x: 1\n")},
		"conf/list.yml":          {Data: []byte("- 1\n- 2\n")},
		"sql/one.sql":            {Data: []byte("SELECT {{ x }}")},
		"sql/blank.sql":          {Data: []byte("")},
		"sql/sub/two.sql":        {Data: []byte("SELECT 2")},
	}
}

func TestReadYAML(t *testing.T) {
	m, err := ReadYAML(testFS(), "conf/a.yml")
	require.NoError(t, err)
	require.Equal(t, "demo", m["name"])
	require.Equal(t, []any{0.05, 0.1}, m["alphas"])

	m, err = ReadYAML(testFS(), "conf/empty.yaml")
	require.NoError(t, err)
	require.Nil(t, m)

	_, err = ReadYAML(testFS(), "conf/q.sql")
	require.ErrorIs(t, err, ErrWrongFormat)

	_, err = ReadYAML(testFS(), "conf/list.yml")
	require.ErrorIs(t, err, ErrWrongFormat)

	_, err = ReadYAML(testFS(), "conf/broken.yml")
	require.Error(t, err)
}

func TestReadSQL(t *testing.T) {
	q, err := ReadSQL(testFS(), "conf/q.sql")
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", q)

	_, err = ReadSQL(testFS(), "conf/a.yml")
	require.ErrorIs(t, err, ErrWrongFormat)

	_, err = ReadSQL(testFS(), "conf/missing.sql")
	require.Error(t, err)
}

func TestReadFromDirSQL(t *testing.T) {
	coll, failed, err := ReadFromDir(testFS(), "sql", "sql", DefaultDirOptions())
	require.NoError(t, err)
	require.Empty(t, failed)
	require.Equal(t, Collection{
		"one": "SELECT {{ x }}",
		"sub": Collection{"two": "SELECT 2"},
	}, coll)
}

func TestReadFromDirYAMLAbortsOnError(t *testing.T) {
	_, _, err := ReadFromDir(testFS(), "conf", "yml", DefaultDirOptions())
	require.Error(t, err)
}

func TestReadFromDirYAMLContinue(t *testing.T) {
	coll, failed, err := ReadFromDir(testFS(), "conf", ".yaml", DirOptions{OnErrorContinue: true, MaxDepth: 3})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"conf/broken.yml"}, failed)
	require.Contains(t, coll, "a")
	require.Contains(t, coll, "list")
	require.NotContains(t, coll, "empty")
	require.NotContains(t, coll, "q")
	require.NotContains(t, coll, "notes")
	nested := coll["nested"].(Collection)
	require.Equal(t, map[string]any{"k": "v"}, nested["b"])
	require.Contains(t, nested, "deep")
}

func TestReadFromDirMaxDepth(t *testing.T) {
	coll, _, err := ReadFromDir(testFS(), "conf", "yml", DirOptions{OnErrorContinue: true, MaxDepth: 1})
	require.NoError(t, err)
	nested := coll["nested"].(Collection)
	require.NotContains(t, nested, "deep")

	for _, depth := range []int{0, -1} {
		coll, _, err = ReadFromDir(testFS(), "conf", "yml", DirOptions{OnErrorContinue: true, MaxDepth: depth})
		require.NoError(t, err)
		require.NotContains(t, coll, "nested")
		require.Contains(t, coll, "a")
	}
}

func TestReadFromDirUnsupportedExtension(t *testing.T) {
	_, _, err := ReadFromDir(testFS(), "conf", "csv", DefaultDirOptions())
	require.ErrorIs(t, err, ErrUnsupportedExtension)
}

func TestRender(t *testing.T) {
	out, err := Render("SELECT {{ col }} FROM t{% if lim %} LIMIT {{ lim }}{% endif %}", map[string]any{"col": "sales", "lim": 10})
	require.NoError(t, err)
	require.Equal(t, "SELECT sales FROM t LIMIT 10", out)

	out, err = Render("SELECT * FROM t WHERE name = {{ name }}", map[string]any{"name": "'o<b>'"})
	require.NoError(t, err)
	require.Equal(t, "SELECT * FROM t WHERE name = 'o<b>'", out)

	out, err = Render("SELECT 1", nil)
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", out)

	_, err = Render("{% if %}", nil)
	require.Error(t, err)
}

func TestLibrary(t *testing.T) {
	lib, err := NewLibrary(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"daily_kpi_by_region", "kpi_totals", "profiles/age_bands"}, lib.Names())

	raw, ok := lib.Get("kpi_totals")
	require.True(t, ok)
	require.Contains(t, raw, "{{ kpi }}")

	q, err := lib.Render("daily_kpi_by_region", map[string]any{
		"kpi":        "sales",
		"table":      "daily_sales",
		"start_date": "2024-01-01",
		"regions":    []string{"north", "south"},
	})
	require.NoError(t, err)
	require.Contains(t, q, "SUM(sales) AS sales")
	require.Contains(t, q, "FROM daily_sales")
	require.Contains(t, q, "AND date >= '2024-01-01'")
	require.Contains(t, q, "IN ('north', 'south')")
	require.NotContains(t, q, "<=")

	_, err = lib.Render("nope", nil)
	require.Error(t, err)
}

func TestLibraryMerge(t *testing.T) {
	ctx := context.Background()
	lib, err := NewLibrary(ctx)
	require.NoError(t, err)
	extra, err := LoadLibrary(ctx, testFS(), "sql")
	require.NoError(t, err)
	lib.Merge(extra)
	require.Contains(t, lib.Names(), "sub/two")
	require.Contains(t, lib.Names(), "one")
}

func TestRunSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "geo.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `CREATE TABLE daily_sales (date TEXT, region TEXT, sales REAL, note TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO daily_sales VALUES
		('2024-01-01', 'north', 10.5, 'x'),
		('2024-01-01', 'south', 4, NULL),
		('2024-01-02', 'north', 11, 'y'),
		('2024-01-02', 'south', 5.5, NULL)`)
	require.NoError(t, err)

	lib, err := NewLibrary(ctx)
	require.NoError(t, err)
	q, err := lib.Render("daily_kpi_by_region", map[string]any{"kpi": "sales", "table": "daily_sales"})
	require.NoError(t, err)

	df, err := Run(ctx, db, q)
	require.NoError(t, err)
	require.Equal(t, []string{"date", "region", "sales"}, df.Names())
	require.Equal(t, 4, df.Nrow())
	require.Equal(t, []float64{10.5, 4, 11, 5.5}, df.Col("sales").Float())
	require.Equal(t, []string{"north", "south", "north", "south"}, df.Col("region").Records())

	totals, err := lib.Render("kpi_totals", map[string]any{"kpi": "sales", "table": "daily_sales"})
	require.NoError(t, err)
	df, err = Run(ctx, db, totals)
	require.NoError(t, err)
	days, err := df.Col("n_days").Int()
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, days)

	df, err = Run(ctx, db, "SELECT note FROM daily_sales ORDER BY rowid")
	require.NoError(t, err)
	require.True(t, df.Col("note").Elem(1).IsNA())
	require.Equal(t, "y", df.Col("note").Elem(2).String())

	_, err = Run(ctx, db, "SELECT * FROM missing")
	require.Error(t, err)
}

func TestToSeriesMixedNumbers(t *testing.T) {
	s := toSeries("v", []any{int64(1), 2.5, nil})
	vals := s.Float()
	require.Equal(t, 1.0, vals[0])
	require.Equal(t, 2.5, vals[1])
	require.True(t, math.IsNaN(vals[2]))
	require.Equal(t, series.Float, s.Type())
}
