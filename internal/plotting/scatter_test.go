package plotting

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"
)

func statsFrame() dataframe.DataFrame {
	return dataframe.New(
		series.New([]string{"a", "b", "a|b", "a", "b"}, series.String, "regions"),
		series.New([]float64{0.2, 0.3, 0.5, 0.2, 0.3}, series.Float, "regions_size"),
		series.New([]float64{0.4, 0.5, 0.9, 0.7, 0.8}, series.Float, "power"),
		series.New([]int{14, 14, 14, 28, 28}, series.Int, "n_obs"),
		series.New([]float64{5, 5, 5, 5, 10}, series.Float, "difference_percent"),
		series.New([]float64{100, 150, 250, 100, 150}, series.Float, "mean"),
	)
}

func TestScatterPowerVsSize(t *testing.T) {
	p, err := ScatterPowerVsSize(statsFrame(), 5, "sales", Options{Labels: true})
	require.NoError(t, err)
	require.Equal(t, "sales: power for MDE of 5%", p.Title.Text)
	require.Equal(t, "sales (daily avg.)", p.X.Label.Text)
	require.Equal(t, color.Transparent, p.BackgroundColor)

	p, err = ScatterPowerVsSize(statsFrame(), 2.5, "sales", Options{})
	require.ErrorIs(t, err, ErrNoRows)
	require.Nil(t, p)
}

func TestScatterPowerVsSizeMissingColumn(t *testing.T) {
	_, err := ScatterPowerVsSize(statsFrame(), 5, "sales", Options{Color: "n_weeks"})
	require.ErrorIs(t, err, ErrMissingColumn)
}

func TestSave(t *testing.T) {
	p, err := ScatterPowerVsSize(statsFrame(), 5, "sales", Options{})
	require.NoError(t, err)
	dir := t.TempDir()
	for _, name := range []string{"power.png", "power.svg"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(p, path, 6*vg.Inch, 4*vg.Inch))
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Greater(t, info.Size(), int64(0))
	}
	require.Error(t, Save(p, filepath.Join(dir, "power.bmp"), 6*vg.Inch, 4*vg.Inch))
}

func TestGroupsSortNumerically(t *testing.T) {
	gs := sortGroups(map[string]*group{
		"28": {key: "28", num: 28, numeric: true},
		"7":  {key: "7", num: 7, numeric: true},
		"14": {key: "14", num: 14, numeric: true},
	})
	require.Equal(t, "7", gs[0].key)
	require.Equal(t, "14", gs[1].key)
	require.Equal(t, "28", gs[2].key)
}

func TestFileName(t *testing.T) {
	require.Equal(t, "power_mde_2.5.png", FileName(2.5, "png"))
	require.Equal(t, "power_mde_10.svg", FileName(10, ".svg"))
}
