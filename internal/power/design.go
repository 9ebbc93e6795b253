// Package power searches combinations of geo regions for experiment
// designs. For every combination of candidate test regions it aggregates the
// KPI, summarises the demographic profile, and computes either the power of
// a one-sample t-test for a given minimum detectable effect (MDE) or the MDE
// reachable at a given power.
package power

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var ErrInvalidParams = errors.New("invalid parameters")

// Alternative is the alternative hypothesis of the test.
type Alternative string

const (
	Larger   Alternative = "larger"
	TwoSided Alternative = "two-sided"
	Smaller  Alternative = "smaller"
)

// ParseAlternative accepts larger, smaller, two-sided (or two_sided).
func ParseAlternative(s string) (Alternative, error) {
	switch s {
	case "larger":
		return Larger, nil
	case "smaller":
		return Smaller, nil
	case "two-sided", "two_sided", "":
		return TwoSided, nil
	}
	return "", fmt.Errorf("%w: alternative must be one of larger, two-sided, smaller (got %q)", ErrInvalidParams, s)
}

// Solve selects the unknown of a test design.
type Solve int

const (
	// SolvePower computes the power reached for DifferencePercent.
	SolvePower Solve = iota
	// SolveMDE computes the smallest DifferencePercent detectable with Power.
	SolveMDE
)

// Params are the inputs of one test design.
type Params struct {
	Alpha             float64
	NObs              int
	Alternative       Alternative
	Solve             Solve
	Power             float64
	DifferencePercent float64
}

// Design is the summary of a test design. Power and DifferencePercent hold
// either the input or the solved value depending on Params.Solve.
type Design struct {
	Alpha             float64
	Power             float64
	NObs              int
	DifferencePercent float64
	// Difference is the absolute effect in KPI units.
	Difference float64
	// EffectSize is the standardized effect (Cohen's d).
	EffectSize  float64
	Alternative Alternative
}

func (p Params) validate() error {
	if p.Alpha <= 0 || p.Alpha >= 1 {
		return fmt.Errorf("%w: alpha must be in (0,1), got %v", ErrInvalidParams, p.Alpha)
	}
	if p.NObs < 2 {
		return fmt.Errorf("%w: n_obs must be at least 2, got %d", ErrInvalidParams, p.NObs)
	}
	switch p.Alternative {
	case Larger, Smaller, TwoSided:
	default:
		return fmt.Errorf("%w: unknown alternative %q", ErrInvalidParams, p.Alternative)
	}
	if p.Solve == SolveMDE && (p.Power <= 0 || p.Power >= 1) {
		return fmt.Errorf("%w: power must be in (0,1), got %v", ErrInvalidParams, p.Power)
	}
	return nil
}

// TestDesignSummary designs a one-sample t-test on a KPI whose null
// hypothesis has the given mean and standard deviation. A zero or undefined
// standard deviation, or a zero mean, leaves the solved quantities as NaN.
func TestDesignSummary(mean, std float64, p Params) (Design, error) {
	if err := p.validate(); err != nil {
		return Design{}, err
	}
	d := Design{Alpha: p.Alpha, NObs: p.NObs, Alternative: p.Alternative}
	degenerate := !(std > 0) || math.IsInf(std, 0) || math.IsNaN(mean)

	switch p.Solve {
	case SolvePower:
		d.DifferencePercent = p.DifferencePercent
		d.Difference = p.DifferencePercent / 100 * mean
		if degenerate {
			d.EffectSize, d.Power = math.NaN(), math.NaN()
			return d, nil
		}
		d.EffectSize = d.Difference / std
		d.Power = tTestPower(d.EffectSize, p.NObs, p.Alpha, p.Alternative)
	case SolveMDE:
		d.Power = p.Power
		es := solveEffectSize(p.Power, p.NObs, p.Alpha, p.Alternative)
		d.EffectSize = es
		if degenerate {
			d.Difference, d.DifferencePercent = math.NaN(), math.NaN()
			return d, nil
		}
		d.Difference = es * std
		if mean == 0 {
			d.DifferencePercent = math.NaN()
		} else {
			d.DifferencePercent = 100 * d.Difference / mean
		}
	default:
		return Design{}, fmt.Errorf("%w: unknown solve mode %d", ErrInvalidParams, p.Solve)
	}
	return d, nil
}

// tTestPower returns the power of a one-sample t-test with standardized
// effect es: the probability that a noncentral t with n-1 degrees of freedom
// and noncentrality es*sqrt(n) falls in the rejection region.
func tTestPower(es float64, n int, alpha float64, alt Alternative) float64 {
	nu := float64(n - 1)
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nu}
	ncp := es * math.Sqrt(float64(n))
	switch alt {
	case Larger:
		crit := t.Quantile(1 - alpha)
		return 1 - nctCDF(crit, nu, ncp)
	case Smaller:
		crit := t.Quantile(alpha)
		return nctCDF(crit, nu, ncp)
	default:
		crit := t.Quantile(1 - alpha/2)
		return clamp01(1 - nctCDF(crit, nu, ncp) + nctCDF(-crit, nu, ncp))
	}
}

// solveEffectSize finds the standardized effect reaching target power by
// bisection. The effect is negative for the "smaller" alternative.
func solveEffectSize(target float64, n int, alpha float64, alt Alternative) float64 {
	sign := 1.0
	if alt == Smaller {
		sign = -1
	}
	pw := func(es float64) float64 { return tTestPower(sign*es, n, alpha, alt) }
	if pw(0) >= target {
		return 0
	}
	lo, hi := 0.0, 1.0
	for pw(hi) < target {
		hi *= 2
		if hi > 1e6 {
			return math.NaN()
		}
	}
	for i := 0; i < 200 && hi-lo > 1e-12; i++ {
		mid := (lo + hi) / 2
		if pw(mid) < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return sign * (lo + hi) / 2
}
