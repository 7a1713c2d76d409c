// Package batch scores many candidate sequences against one trained
// weighted-degree model without running a path search.
package batch

import (
	"errors"
	"fmt"

	"github.com/happyhackingspace/exon/internal/sequtil"
)

// ErrModel is returned for inconsistent batch models.
var ErrModel = errors.New("batch: invalid model")

// Model is a trained weighted-degree position model: support vectors of
// equal length with their coefficients. A k-mer of length d shared by a
// support vector and a candidate at the same position contributes
// alpha * Weights[d-1].
type Model struct {
	Degree         int       `json:"degree" yaml:"degree"`
	Weights        []float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	SupportVectors []string  `json:"support_vectors" yaml:"support_vectors"`
	Alphas         []float64 `json:"alphas" yaml:"alphas"`
	Normalization  float64   `json:"normalization,omitempty" yaml:"normalization,omitempty"`
}

// DefaultWeights returns the standard degree weights
// 2(D-d+1) / (D(D+1)) for d = 1..D.
func DefaultWeights(degree int) []float64 {
	w := make([]float64, degree)
	den := float64(degree * (degree + 1))
	for d := 1; d <= degree; d++ {
		w[d-1] = 2 * float64(degree-d+1) / den
	}
	return w
}

// Validate checks the model and fills in default weights and
// normalization. Support vectors are normalised in place.
func (m *Model) Validate() error {
	if m.Degree < 1 {
		return fmt.Errorf("%w: degree %d < 1", ErrModel, m.Degree)
	}
	if len(m.Weights) == 0 {
		m.Weights = DefaultWeights(m.Degree)
	}
	if len(m.Weights) != m.Degree {
		return fmt.Errorf("%w: %d weights for degree %d", ErrModel, len(m.Weights), m.Degree)
	}
	if len(m.SupportVectors) == 0 {
		return fmt.Errorf("%w: no support vectors", ErrModel)
	}
	if len(m.Alphas) != len(m.SupportVectors) {
		return fmt.Errorf("%w: %d alphas for %d support vectors", ErrModel, len(m.Alphas), len(m.SupportVectors))
	}
	if m.Normalization == 0 {
		m.Normalization = 1
	}
	for i, sv := range m.SupportVectors {
		m.SupportVectors[i] = sequtil.Normalize(sv)
		if len(m.SupportVectors[i]) != len(m.SupportVectors[0]) {
			return fmt.Errorf("%w: support vector %d has length %d, want %d", ErrModel, i, len(m.SupportVectors[i]), len(m.SupportVectors[0]))
		}
	}
	return nil
}

// Length returns the sequence length the model scores.
func (m *Model) Length() int {
	if len(m.SupportVectors) == 0 {
		return 0
	}
	return len(m.SupportVectors[0])
}
