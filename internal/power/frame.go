package power

import (
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// RegionSeparator joins region names in the regions column.
const RegionSeparator = "|"

// Column names of the stats frame.
const (
	ColRegions           = "regions"
	ColRegionsNumber     = "regions_number"
	ColRegionsSize       = "regions_size"
	ColAlpha             = "alpha"
	ColPower             = "power"
	ColNObs              = "n_obs"
	ColDifferencePercent = "difference_percent"
	ColDifference        = "difference"
	ColEffectSize        = "effect_size"
	ColAlternative       = "alternative"
	ColMean              = "mean"
	ColStd               = "std"
)

var outputColumns = map[string]bool{
	ColRegions: true, ColRegionsNumber: true, ColRegionsSize: true, ColAlpha: true,
	ColPower: true, ColNObs: true, ColDifferencePercent: true, ColDifference: true,
	ColEffectSize: true, ColAlternative: true, ColMean: true, ColStd: true,
}

// DeltaColumn and DeltaPercColumn name the profile comparison columns.
func DeltaColumn(attr string) string     { return attr + "__delta__" }
func DeltaPercColumn(attr string) string { return attr + "__delta_perc__" }

// ToFrame lays the selection out with one row per design. Profile
// attributes follow the fixed columns, then their deltas, then the
// percentage deltas of attributes with a non-zero reference.
func (s *Selection) ToFrame() dataframe.DataFrame {
	n := len(s.Rows)
	regions := make([]string, n)
	number := make([]int, n)
	nobs := make([]int, n)
	alt := make([]string, n)
	floatCols := map[string][]float64{}
	floatOrder := []string{ColRegionsSize, ColAlpha, ColPower, ColDifferencePercent, ColDifference, ColEffectSize, ColMean, ColStd}
	for _, c := range floatOrder {
		floatCols[c] = make([]float64, n)
	}
	attrCols := map[string][]float64{}
	var percAttrs []string
	for _, a := range s.Attributes {
		attrCols[a] = make([]float64, n)
		attrCols[DeltaColumn(a)] = make([]float64, n)
		if math.Abs(s.Reference[a]) > 1e-6 {
			percAttrs = append(percAttrs, a)
			attrCols[DeltaPercColumn(a)] = make([]float64, n)
		}
	}

	for i, r := range s.Rows {
		regions[i] = strings.Join(r.Regions, RegionSeparator)
		number[i] = r.RegionsNumber()
		nobs[i] = r.NObs
		alt[i] = string(r.Alternative)
		floatCols[ColRegionsSize][i] = r.RegionsSize
		floatCols[ColAlpha][i] = r.Alpha
		floatCols[ColPower][i] = r.Power
		floatCols[ColDifferencePercent][i] = r.DifferencePercent
		floatCols[ColDifference][i] = r.Difference
		floatCols[ColEffectSize][i] = r.EffectSize
		floatCols[ColMean][i] = r.Mean
		floatCols[ColStd][i] = r.Std
		for _, a := range s.Attributes {
			attrCols[a][i] = r.Profile[a]
			attrCols[DeltaColumn(a)][i] = r.Delta[a]
		}
		for _, a := range percAttrs {
			attrCols[DeltaPercColumn(a)][i] = r.DeltaPerc[a]
		}
	}

	cols := []series.Series{
		series.New(regions, series.String, ColRegions),
		series.New(number, series.Int, ColRegionsNumber),
		series.New(floatCols[ColRegionsSize], series.Float, ColRegionsSize),
		series.New(floatCols[ColAlpha], series.Float, ColAlpha),
		series.New(floatCols[ColPower], series.Float, ColPower),
		series.New(nobs, series.Int, ColNObs),
		series.New(floatCols[ColDifferencePercent], series.Float, ColDifferencePercent),
		series.New(floatCols[ColDifference], series.Float, ColDifference),
		series.New(floatCols[ColEffectSize], series.Float, ColEffectSize),
		series.New(alt, series.String, ColAlternative),
		series.New(floatCols[ColMean], series.Float, ColMean),
		series.New(floatCols[ColStd], series.Float, ColStd),
	}
	for _, a := range s.Attributes {
		cols = append(cols, series.New(attrCols[a], series.Float, a))
	}
	for _, a := range s.Attributes {
		cols = append(cols, series.New(attrCols[DeltaColumn(a)], series.Float, DeltaColumn(a)))
	}
	for _, a := range percAttrs {
		cols = append(cols, series.New(attrCols[DeltaPercColumn(a)], series.Float, DeltaPercColumn(a)))
	}
	return dataframe.New(cols...)
}
