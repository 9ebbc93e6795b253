package power

import (
	"math"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	nctMaxIter = 10000
	nctErrMax  = 1e-12
)

// nctCDF returns P(T <= t) for a noncentral t with nu degrees of freedom and
// noncentrality delta. It sums the Poisson-weighted incomplete beta series of
// Lenth (1989, AS 243).
func nctCDF(t, nu, delta float64) float64 {
	if t < 0 {
		return 1 - nctCDF(-t, nu, -delta)
	}
	tail := distuv.UnitNormal.CDF(-delta)
	x := t * t / (t*t + nu)
	if x == 0 {
		return tail
	}
	lambda := delta * delta
	p := 0.5 * math.Exp(-0.5*lambda)
	if p == 0 {
		// Poisson weights underflow; the normal approximation is accurate
		// at this noncentrality.
		return nctNormalApprox(t, nu, delta)
	}
	q := math.Sqrt(2/math.Pi) * p * delta
	s := 0.5 - p
	a, b := 0.5, 0.5*nu
	rxb := math.Pow(1-x, b)
	lbeta := lgamma(a) + lgamma(b) - lgamma(a+b)
	xodd := mathext.RegIncBeta(a, b, x)
	godd := 2 * rxb * math.Exp(a*math.Log(x)-lbeta)
	xeven := 1 - rxb
	geven := b * x * rxb
	sum := p*xodd + q*xeven
	for en := 1.0; en <= nctMaxIter; en++ {
		a++
		xodd -= godd
		xeven -= geven
		godd *= x * (a + b - 1) / a
		geven *= x * (a + b - 0.5) / (a + 0.5)
		p *= lambda / (2 * en)
		q *= lambda / (2*en + 1)
		s -= p
		sum += p*xodd + q*xeven
		if 2*s*(xodd-godd) <= nctErrMax {
			break
		}
	}
	return clamp01(sum + tail)
}

// nctNormalApprox is Abramowitz and Stegun 26.7.10.
func nctNormalApprox(t, nu, delta float64) float64 {
	z := (t*(1-1/(4*nu)) - delta) / math.Sqrt(1+t*t/(2*nu))
	return distuv.UnitNormal.CDF(z)
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
