package power

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/geopower/internal/logger"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/combin"
)

var (
	ErrUnknownRegion    = errors.New("unknown region")
	ErrProfileMismatch  = errors.New("profile regions do not match panel regions")
	ErrNoTarget         = errors.New("exactly one of powers or difference percents must be set")
	ErrInvalidBounds    = errors.New("invalid size bounds")
	ErrNoCandidates     = errors.New("no candidate regions")
	defaultLogFrequency = 100
)

// Bounds is an open interval on the share of the total KPI held by a
// combination of regions.
type Bounds struct {
	Lo, Hi float64
}

func (b Bounds) contains(x float64) bool { return x > b.Lo && x < b.Hi }

// Profiles holds one row per region with numeric attributes, such as the
// share of each age band. Key names the region column and defaults to
// "region". Profiles are averaged using each region's share of the KPI.
type Profiles struct {
	Frame dataframe.DataFrame
	Key   string
}

// reservedSize cannot be used as a region name.
const reservedSize = "__size__"

// Options configures SelectCandidateRegions.
type Options struct {
	// MaxCombinations caps the number of subsets examined.
	MaxCombinations int
	// MaxGroupSize is the largest number of regions in a combination.
	MaxGroupSize int
	Alphas       []float64
	NObs         []int
	Alternative  Alternative
	// Exactly one of Powers and DifferencePercents is set. With Powers the
	// MDE is computed, with DifferencePercents the power.
	Powers             []float64
	DifferencePercents []float64
	Profiles           *Profiles
	SizeBounds         *Bounds
	// LogFrequency is the number of subsets between progress logs.
	LogFrequency int
	// Exclude names panel columns that are not regions, such as the date.
	Exclude []string
}

// CandidateStats is one design for one combination of regions.
type CandidateStats struct {
	Regions []string
	// RegionsSize is the share of the total KPI held by Regions.
	RegionsSize float64
	Mean        float64
	Std         float64
	Design
	// Profile is the size-weighted profile of Regions.
	Profile map[string]float64
	// Delta and DeltaPerc compare Profile with the reference profile of all
	// regions. DeltaPerc is missing for attributes whose reference is zero.
	Delta     map[string]float64
	DeltaPerc map[string]float64
}

// RegionsNumber is the number of regions in the combination.
func (c CandidateStats) RegionsNumber() int { return len(c.Regions) }

// Selection is the result of SelectCandidateRegions.
type Selection struct {
	Rows []CandidateStats
	// Attributes lists profile attributes in profile frame order.
	Attributes []string
	// Reference is the size-weighted profile of all regions.
	Reference map[string]float64
	// Examined counts the subsets enumerated, including filtered ones.
	Examined int
	// Truncated reports whether MaxCombinations stopped the search.
	Truncated bool
}

func (o *Options) normalize() error {
	if o.MaxCombinations <= 0 {
		return fmt.Errorf("%w: max combinations must be positive", ErrInvalidParams)
	}
	if o.MaxGroupSize <= 0 {
		return fmt.Errorf("%w: max group size must be positive", ErrInvalidParams)
	}
	if len(o.Alphas) == 0 || len(o.NObs) == 0 {
		return fmt.Errorf("%w: alphas and n_obs must not be empty", ErrInvalidParams)
	}
	if (len(o.Powers) == 0) == (len(o.DifferencePercents) == 0) {
		return ErrNoTarget
	}
	if o.Alternative == "" {
		o.Alternative = TwoSided
	}
	if o.LogFrequency <= 0 {
		o.LogFrequency = defaultLogFrequency
	}
	if o.SizeBounds != nil {
		b := *o.SizeBounds
		if b.Lo < 0 || b.Hi > 1 || b.Lo >= b.Hi {
			return fmt.Errorf("%w: need 0 <= lo < hi <= 1, got (%v, %v)", ErrInvalidBounds, b.Lo, b.Hi)
		}
	}
	if o.Profiles != nil && o.Profiles.Key == "" {
		o.Profiles.Key = "region"
	}
	return nil
}

type panelData struct {
	regions []string
	values  map[string][]float64
	share   map[string]float64
	nrow    int
}

// readPanel extracts region columns from a wide panel. Missing values count
// as zero in sums.
func readPanel(panel dataframe.DataFrame, exclude []string) (*panelData, error) {
	if panel.Err != nil {
		return nil, panel.Err
	}
	skip := map[string]bool{}
	for _, e := range exclude {
		skip[e] = true
	}
	types := panel.Types()
	p := &panelData{values: map[string][]float64{}, share: map[string]float64{}, nrow: panel.Nrow()}
	total := 0.0
	for i, name := range panel.Names() {
		if skip[name] {
			continue
		}
		if name == reservedSize {
			return nil, fmt.Errorf("%w: column %q is reserved", ErrInvalidParams, reservedSize)
		}
		if types[i] != series.Float && types[i] != series.Int {
			return nil, fmt.Errorf("%w: region column %q is not numeric (exclude it)", ErrInvalidParams, name)
		}
		vals := panel.Col(name).Float()
		for j, v := range vals {
			if math.IsNaN(v) {
				vals[j] = 0
			}
		}
		p.regions = append(p.regions, name)
		p.values[name] = vals
		s := floats.Sum(vals)
		p.share[name] = s
		total += s
	}
	if len(p.regions) == 0 {
		return nil, fmt.Errorf("%w: panel has no region columns", ErrInvalidParams)
	}
	for _, r := range p.regions {
		if total != 0 {
			p.share[r] /= total
		} else {
			p.share[r] = math.NaN()
		}
	}
	return p, nil
}

type profileData struct {
	attrs []string
	rows  map[string]map[string]float64
	size  map[string]float64
	ref   map[string]float64
}

func readProfiles(ctx context.Context, pr *Profiles, pd *panelData) (*profileData, error) {
	df := pr.Frame
	if df.Err != nil {
		return nil, df.Err
	}
	keyCol := df.Col(pr.Key)
	if keyCol.Err != nil {
		return nil, fmt.Errorf("%w: profile key column %q", ErrInvalidParams, pr.Key)
	}
	keys := keyCol.Records()
	prof := &profileData{rows: map[string]map[string]float64{}, size: pd.share}
	types := df.Types()
	cols := map[string][]float64{}
	for i, name := range df.Names() {
		if name == pr.Key {
			continue
		}
		if types[i] != series.Float && types[i] != series.Int {
			continue
		}
		if outputColumns[name] {
			return nil, fmt.Errorf("%w: profile attribute %q clashes with an output column", ErrInvalidParams, name)
		}
		prof.attrs = append(prof.attrs, name)
		cols[name] = df.Col(name).Float()
	}

	for i, k := range keys {
		if _, ok := pd.values[k]; !ok {
			return nil, fmt.Errorf("%w: %q is only in profiles", ErrProfileMismatch, k)
		}
		row := map[string]float64{}
		for _, a := range prof.attrs {
			row[a] = cols[a][i]
		}
		prof.rows[k] = row
	}
	for _, r := range pd.regions {
		if _, ok := prof.rows[r]; !ok {
			return nil, fmt.Errorf("%w: %q is only in the panel", ErrProfileMismatch, r)
		}
	}

	total := 0.0
	for _, r := range pd.regions {
		total += pd.share[r]
	}
	if math.Abs(total-1) > 0.02 {
		logger.Warn(ctx, "region sizes do not add up to 1, reference profile may not be accurate",
			zap.Float64("total", total))
	}
	prof.ref = prof.weighted(pd.regions)
	return prof, nil
}

// weighted returns the size-weighted mean profile of regions.
func (pd *profileData) weighted(regions []string) map[string]float64 {
	out := make(map[string]float64, len(pd.attrs))
	w := 0.0
	for _, r := range regions {
		w += pd.size[r]
	}
	for _, a := range pd.attrs {
		acc := 0.0
		for _, r := range regions {
			acc += pd.size[r] * pd.rows[r][a]
		}
		if w != 0 {
			out[a] = acc / w
		} else {
			out[a] = math.NaN()
		}
	}
	return out
}

func (pd *profileData) compare(profile map[string]float64) (delta, perc map[string]float64) {
	delta = make(map[string]float64, len(pd.attrs))
	perc = make(map[string]float64, len(pd.attrs))
	for _, a := range pd.attrs {
		d := profile[a] - pd.ref[a]
		delta[a] = d
		if math.Abs(pd.ref[a]) > 1e-6 {
			perc[a] = 100 * d / pd.ref[a]
		}
	}
	return delta, perc
}

// SelectCandidateRegions enumerates combinations of candidates from size 1
// up to MaxGroupSize and returns a test design for every combination that
// passes the size bounds, crossed with every alpha, n_obs and target.
//
// For each combination the KPI is summed across its regions per date; the
// mean and sample standard deviation of that series parametrise the design.
// Candidates are enumerated in sorted order. The search stops once
// MaxCombinations subsets have been examined, counting filtered ones.
func SelectCandidateRegions(ctx context.Context, panel dataframe.DataFrame, candidates []string, opts Options) (*Selection, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	pd, err := readPanel(panel, opts.Exclude)
	if err != nil {
		return nil, err
	}
	cands, err := candidateList(candidates, pd)
	if err != nil {
		return nil, err
	}
	if pd.nrow < 2 {
		return nil, fmt.Errorf("%w: panel needs at least two rows, got %d", ErrInvalidParams, pd.nrow)
	}

	sel := &Selection{}
	var prof *profileData
	if opts.Profiles != nil {
		prof, err = readProfiles(ctx, opts.Profiles, pd)
		if err != nil {
			return nil, err
		}
		sel.Attributes = prof.attrs
		sel.Reference = prof.ref
	}

	params := opts.paramGrid()
	for _, p := range params {
		if err := p.validate(); err != nil {
			return nil, err
		}
	}

	log := logger.Get(ctx).With(zap.Int("candidates", len(cands)), zap.Int("max_combinations", opts.MaxCombinations))
	sum := make([]float64, pd.nrow)
	group := make([]string, 0, opts.MaxGroupSize)

	for k := 1; k <= opts.MaxGroupSize && k <= len(cands); k++ {
		if sel.Examined >= opts.MaxCombinations {
			sel.Truncated = true
			log.Info("maximum number of combinations reached", zap.Int("examined", sel.Examined))
			break
		}
		n := float64(len(cands))
		subsets := combin.GeneralizedBinomial(n, float64(k))
		if subsets*n >= 1<<62 {
			// combin counts subsets in an int
			sel.Truncated = true
			log.Warn("too many subsets to enumerate", zap.Int("size", k), zap.Float64("subsets", subsets))
			break
		}
		log.Info("exploring group size", zap.Int("size", k), zap.Float64("subsets", subsets))
		gen := combin.NewCombinationGenerator(len(cands), k)
		idx := make([]int, k)
		for gen.Next() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			idx = gen.Combination(idx)
			sel.Examined++
			group = group[:0]
			size := 0.0
			for _, i := range idx {
				group = append(group, cands[i])
				size += pd.share[cands[i]]
			}
			if opts.SizeBounds == nil || opts.SizeBounds.contains(size) {
				rows, err := evaluate(pd, prof, group, size, sum, params)
				if err != nil {
					return nil, err
				}
				sel.Rows = append(sel.Rows, rows...)
			}
			if sel.Examined%opts.LogFrequency == 0 {
				log.Info("combinations examined", zap.Int("examined", sel.Examined), zap.Int("designs", len(sel.Rows)))
			}
			if sel.Examined >= opts.MaxCombinations {
				sel.Truncated = true
				break
			}
		}
		if sel.Truncated {
			log.Info("maximum number of combinations reached", zap.Int("examined", sel.Examined))
			break
		}
	}
	log.Info("selection finished", zap.Int("examined", sel.Examined), zap.Int("designs", len(sel.Rows)))
	return sel, nil
}

func candidateList(candidates []string, pd *panelData) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, c := range candidates {
		if _, ok := pd.values[c]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, c)
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCandidates
	}
	sort.Strings(out)
	return out, nil
}

func (o Options) paramGrid() []Params {
	var out []Params
	for _, a := range o.Alphas {
		for _, n := range o.NObs {
			if len(o.Powers) > 0 {
				for _, pw := range o.Powers {
					out = append(out, Params{Alpha: a, NObs: n, Alternative: o.Alternative, Solve: SolveMDE, Power: pw})
				}
				continue
			}
			for _, dp := range o.DifferencePercents {
				out = append(out, Params{Alpha: a, NObs: n, Alternative: o.Alternative, Solve: SolvePower, DifferencePercent: dp})
			}
		}
	}
	return out
}

func evaluate(pd *panelData, prof *profileData, group []string, size float64, sum []float64, params []Params) ([]CandidateStats, error) {
	for i := range sum {
		sum[i] = 0
	}
	for _, r := range group {
		floats.Add(sum, pd.values[r])
	}
	mean := stat.Mean(sum, nil)
	std := stat.StdDev(sum, nil)

	regions := append([]string(nil), group...)
	var profile, delta, perc map[string]float64
	if prof != nil {
		profile = prof.weighted(regions)
		delta, perc = prof.compare(profile)
	}
	out := make([]CandidateStats, 0, len(params))
	for _, p := range params {
		d, err := TestDesignSummary(mean, std, p)
		if err != nil {
			return nil, err
		}
		out = append(out, CandidateStats{
			Regions:     regions,
			RegionsSize: size,
			Mean:        mean,
			Std:         std,
			Design:      d,
			Profile:     profile,
			Delta:       delta,
			DeltaPerc:   perc,
		})
	}
	return out, nil
}
