package plif

import "gonum.org/v1/gonum/floats"

// Derivatives collects per-bin gradient counts for a set of PLiFs. It is
// owned by the caller; call Reset between independent training examples.
// A Derivatives is not safe for concurrent use.
type Derivatives struct {
	acc map[*PLiF][]float64
}

// NewDerivatives returns an empty accumulator.
func NewDerivatives() *Derivatives {
	return &Derivatives{acc: make(map[*PLiF][]float64)}
}

func (d *Derivatives) bins(p *PLiF, n int) []float64 {
	if d.acc == nil {
		d.acc = make(map[*PLiF][]float64)
	}
	b, ok := d.acc[p]
	if !ok || len(b) != n {
		b = make([]float64, n)
		d.acc[p] = b
	}
	return b
}

// Bins returns the accumulated derivative of p, one entry per limit. The
// slice is nil if nothing was accumulated for p.
func (d *Derivatives) Bins(p *PLiF) []float64 {
	return d.acc[p]
}

// Total returns the sum of all bins accumulated for p.
func (d *Derivatives) Total(p *PLiF) float64 {
	return floats.Sum(d.acc[p])
}

// Clear drops the accumulated derivative of p.
func (d *Derivatives) Clear(p *PLiF) {
	delete(d.acc, p)
}

// Reset drops all accumulated derivatives.
func (d *Derivatives) Reset() {
	clear(d.acc)
}

// Len returns the number of functions with accumulated derivatives.
func (d *Derivatives) Len() int {
	return len(d.acc)
}
