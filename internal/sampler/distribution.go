package sampler

import (
	"math"
	"time"

	"circpad"
)

// SampleDistribution draws a non-negative integer microsecond delay from
// d, clamped to at most d.MaxSample when d.MaxSample is non-zero (zero
// means no clamp), then adds d.Shift plus, when
// d.UseRTTShift is set, rtt's own microsecond value (§4.E: "available to
// timing distributions as an additive shift when specified"). Callers
// sampling a LengthDist (a count, not a delay) should pass rtt=0.
func (s *Sampler) SampleDistribution(d circpad.Distribution, rtt time.Duration) uint64 {
	raw := s.drawRaw(d)
	if raw < 0 {
		raw = 0
	}
	clamped := raw
	if d.MaxSample > 0 && clamped > float64(d.MaxSample) {
		clamped = float64(d.MaxSample)
	}
	shift := d.Shift
	if d.UseRTTShift && rtt > 0 {
		shift += uint64(rtt.Microseconds())
	}
	return uint64(clamped) + shift
}

func (s *Sampler) drawRaw(d circpad.Distribution) float64 {
	switch d.Family {
	case circpad.Uniform:
		lo, hi := d.P1, d.P2
		if hi <= lo {
			return lo
		}
		return lo + s.rng.Float64()*(hi-lo)
	case circpad.Geometric:
		p := d.P1
		if p <= 0 {
			p = math.SmallestNonzeroFloat64
		}
		if p >= 1 {
			return 0
		}
		// Number of Bernoulli(p) trials until the first success, in
		// microseconds: inverse-CDF sampling.
		u := s.rng.Float64()
		return math.Floor(math.Log(1-u) / math.Log(1-p))
	case circpad.Exponential:
		rate := d.P1
		if rate <= 0 {
			rate = math.SmallestNonzeroFloat64
		}
		return s.rng.ExpFloat64() / rate
	case circpad.LogNormal:
		mu, sigma := d.P1, d.P2
		return math.Exp(mu + sigma*s.rng.NormFloat64())
	case circpad.Weibull:
		scale, shape := d.P1, d.P2
		if shape <= 0 {
			shape = 1
		}
		u := s.rng.Float64()
		return scale * math.Pow(-math.Log(1-u), 1/shape)
	case circpad.Pareto:
		scale, shape := d.P1, d.P2
		if shape <= 0 {
			shape = 1
		}
		u := s.rng.Float64()
		return scale / math.Pow(1-u, 1/shape)
	default:
		return 0
	}
}
