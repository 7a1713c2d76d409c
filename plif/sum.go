package plif

// Sum scores the sum of its parts. It is used when a transition or signal is
// scored by several functions at once, e.g. a length PLiF plus one PLiF per
// content channel.
type Sum struct {
	Parts []PenaltyFunction
}

// NewSum returns the sum of parts.
func NewSum(parts ...PenaltyFunction) *Sum {
	return &Sum{Parts: parts}
}

// Lookup implements PenaltyFunction.
func (s *Sum) Lookup(x float64, features []float64) float64 {
	total := 0.0
	for _, p := range s.Parts {
		v := p.Lookup(x, features)
		if v <= Unreachable {
			return NegInf
		}
		total += v
	}
	return total
}

// MaxReach implements PenaltyFunction.
func (s *Sum) MaxReach() float64 {
	reach := 0.0
	for i, p := range s.Parts {
		if r := p.MaxReach(); i == 0 || r > reach {
			reach = r
		}
	}
	return reach
}

// NeedsFeatures implements PenaltyFunction.
func (s *Sum) NeedsFeatures() bool {
	for _, p := range s.Parts {
		if p.NeedsFeatures() {
			return true
		}
	}
	return false
}

// FeatureChannels implements PenaltyFunction.
func (s *Sum) FeatureChannels() int {
	n := 0
	for _, p := range s.Parts {
		n = max(n, p.FeatureChannels())
	}
	return n
}

// AccumulateDerivative implements PenaltyFunction.
func (s *Sum) AccumulateDerivative(acc *Derivatives, x float64, features []float64) {
	for _, p := range s.Parts {
		p.AccumulateDerivative(acc, x, features)
	}
}
