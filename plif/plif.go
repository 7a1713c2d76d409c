// Package plif implements piecewise-linear penalty functions used as
// transition and signal scores by the gene-structure decoder.
package plif

import (
	"fmt"
	"math"
)

// NegInf is the score of an impossible event. It is a large finite value so
// that sums of impossible scores stay ordered and comparable.
const NegInf = -1e300

// Unreachable is the threshold below which a score counts as impossible.
const Unreachable = -1e20

// PenaltyFunction maps a numeric argument (usually a segment length) and an
// auxiliary feature vector to a score.
type PenaltyFunction interface {
	// Lookup returns the score for value, reading features if NeedsFeatures.
	Lookup(value float64, features []float64) float64
	// MaxReach is the largest argument for which the function can score.
	MaxReach() float64
	// NeedsFeatures reports whether the auxiliary features affect the score.
	NeedsFeatures() bool
	// FeatureChannels is the number of leading feature channels Lookup
	// reads, zero when it reads none.
	FeatureChannels() int
	// AccumulateDerivative adds the gradient of Lookup with respect to the
	// function's penalties into acc.
	AccumulateDerivative(acc *Derivatives, value float64, features []float64)
}

// Transform is applied to the looked-up value before interpolation.
type Transform int

const (
	Linear Transform = iota
	Log
	LogPlus1
	LogPlus3
	LinearPlus3
)

var transformNames = [...]string{"linear", "log", "log(+1)", "log(+3)", "(+3)"}

func (t Transform) String() string {
	if t < 0 || int(t) >= len(transformNames) {
		return fmt.Sprintf("Transform(%d)", int(t))
	}
	return transformNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Transform) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Transform) UnmarshalText(b []byte) error {
	s := string(b)
	if s == "" {
		*t = Linear
		return nil
	}
	for i, name := range transformNames {
		if name == s {
			*t = Transform(i)
			return nil
		}
	}
	return fmt.Errorf("plif: unknown transform %q", s)
}

func (t Transform) apply(d float64) float64 {
	switch t {
	case Log:
		return math.Log(d)
	case LogPlus1:
		return math.Log(d + 1)
	case LogPlus3:
		return math.Log(d + 3)
	case LinearPlus3:
		return d + 3
	}
	return d
}

// PLiF is a piecewise-linear function given by its supporting points.
// Outside [MinValue, MaxValue] it scores NegInf. When UseSVM > 0 the
// interpolated value is taken from features[UseSVM-1] instead of the
// numeric argument.
type PLiF struct {
	ID        int       `json:"id" yaml:"id"`
	Name      string    `json:"name,omitempty" yaml:"name,omitempty"`
	Limits    []float64 `json:"limits" yaml:"limits"`
	Penalties []float64 `json:"penalties" yaml:"penalties"`
	Transform Transform `json:"transform" yaml:"transform"`
	MinValue  float64   `json:"min_value" yaml:"min_value"`
	MaxValue  float64   `json:"max_value" yaml:"max_value"`
	UseSVM    int       `json:"use_svm,omitempty" yaml:"use_svm,omitempty"`
}

// New creates a PLiF over limits and penalties that accepts any argument in
// [limits[0], limits[last]].
func New(limits, penalties []float64) *PLiF {
	p := &PLiF{
		Limits:    append([]float64(nil), limits...),
		Penalties: append([]float64(nil), penalties...),
	}
	if len(limits) > 0 {
		p.MinValue = limits[0]
		p.MaxValue = limits[len(limits)-1]
	}
	return p
}

// Validate checks the supporting points.
func (p *PLiF) Validate() error {
	if len(p.Limits) == 0 {
		return fmt.Errorf("plif %d: no limits", p.ID)
	}
	if len(p.Limits) != len(p.Penalties) {
		return fmt.Errorf("plif %d: %d limits but %d penalties", p.ID, len(p.Limits), len(p.Penalties))
	}
	for i := 1; i < len(p.Limits); i++ {
		if p.Limits[i] < p.Limits[i-1] {
			return fmt.Errorf("plif %d: limits not sorted at %d", p.ID, i)
		}
	}
	if p.MinValue > p.MaxValue {
		return fmt.Errorf("plif %d: min_value %g > max_value %g", p.ID, p.MinValue, p.MaxValue)
	}
	if p.UseSVM < 0 {
		return fmt.Errorf("plif %d: negative use_svm %d", p.ID, p.UseSVM)
	}
	return nil
}

// MaxReach implements PenaltyFunction.
func (p *PLiF) MaxReach() float64 { return p.MaxValue }

// NeedsFeatures implements PenaltyFunction.
func (p *PLiF) NeedsFeatures() bool { return p.UseSVM > 0 }

// FeatureChannels implements PenaltyFunction.
func (p *PLiF) FeatureChannels() int { return max(p.UseSVM, 0) }

// value returns the transformed interpolation argument.
func (p *PLiF) value(x float64, features []float64) float64 {
	d := x
	if p.UseSVM > 0 {
		d = features[p.UseSVM-1]
	}
	return p.Transform.apply(d)
}

// bin returns the number of leading limits that are <= d. A NaN argument
// falls into the first bin.
func (p *PLiF) bin(d float64) int {
	idx := 0
	for _, l := range p.Limits {
		if !(l <= d) {
			break
		}
		idx++
	}
	return idx
}

// Lookup implements PenaltyFunction.
func (p *PLiF) Lookup(x float64, features []float64) float64 {
	if x < p.MinValue || x > p.MaxValue {
		return NegInf
	}
	d := p.value(x, features)
	n := len(p.Limits)
	idx := p.bin(d)
	switch idx {
	case 0:
		return p.Penalties[0]
	case n:
		return p.Penalties[n-1]
	}
	lo, hi := p.Limits[idx-1], p.Limits[idx]
	return (p.Penalties[idx]*(d-lo) + p.Penalties[idx-1]*(hi-d)) / (hi - lo)
}

// AccumulateDerivative implements PenaltyFunction.
func (p *PLiF) AccumulateDerivative(acc *Derivatives, x float64, features []float64) {
	if x < p.MinValue || x > p.MaxValue {
		return
	}
	d := p.value(x, features)
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= Unreachable {
		return
	}
	bins := acc.bins(p, len(p.Limits))
	n := len(p.Limits)
	idx := p.bin(d)
	switch idx {
	case 0:
		bins[0]++
		return
	case n:
		bins[n-1]++
		return
	}
	lo, hi := p.Limits[idx-1], p.Limits[idx]
	frac := (d - lo) / (hi - lo)
	bins[idx] += frac
	bins[idx-1] += 1 - frac
}
