package batch

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSeq(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = "ACGT"[rng.IntN(4)]
	}
	return string(b)
}

func randomModel(rng *rand.Rand, degree, length, svs int) *Model {
	m := &Model{Degree: degree, Normalization: 2.5}
	for range svs {
		m.SupportVectors = append(m.SupportVectors, randomSeq(rng, length))
		m.Alphas = append(m.Alphas, rng.Float64()*2-1)
	}
	return m
}

// kernelScore evaluates the weighted-degree sum directly.
func kernelScore(m *Model, seq string) float64 {
	total := 0.0
	for i, sv := range m.SupportVectors {
		for j := range len(seq) {
			for d := 1; d <= m.Degree && j+d <= len(seq); d++ {
				if sv[j:j+d] == seq[j:j+d] {
					total += m.Alphas[i] * m.Weights[d-1]
				}
			}
		}
	}
	return total / m.Normalization
}

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights(3)
	assert.InDeltaSlice(t, []float64{0.5, 1.0 / 3, 1.0 / 6}, w, 1e-12)
	sum := 0.0
	for _, v := range DefaultWeights(7) {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestScoreMatchesKernel(t *testing.T) {
	rng := rand.New(rand.NewPCG(6, 6))
	m := randomModel(rng, 4, 12, 8)
	seqs := make([]string, 23)
	for i := range seqs {
		seqs[i] = randomSeq(rng, 12)
	}
	seqs[3] = m.SupportVectors[2]

	for _, threads := range []int{1, 3, 8, 40} {
		cfg := DefaultConfig()
		cfg.Threads = threads
		s, err := NewScorer(m, cfg)
		require.NoError(t, err)
		got, err := s.Score(t.Context(), seqs)
		require.NoError(t, err)
		for i, seq := range seqs {
			if math.Abs(got[i]-kernelScore(m, seq)) > 1e-9 {
				t.Errorf("threads=%d seq %d: score %v, want %v", threads, i, got[i], kernelScore(m, seq))
			}
		}
	}
}

func TestScoreAppliesFactor(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 9))
	m := randomModel(rng, 3, 8, 4)
	seqs := []string{randomSeq(rng, 8), m.SupportVectors[0]}

	s, err := NewScorer(m, Config{Threads: 2, Factor: 1})
	require.NoError(t, err)
	base, err := s.Score(t.Context(), seqs)
	require.NoError(t, err)

	s, err = NewScorer(m, Config{Threads: 2, Factor: -3})
	require.NoError(t, err)
	scaled, err := s.Score(t.Context(), seqs)
	require.NoError(t, err)
	for i := range seqs {
		assert.InDelta(t, -3*base[i], scaled[i], 1e-9)
	}
}

func TestPositionContributionsSumToScore(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 7))
	m := randomModel(rng, 5, 10, 6)
	s, err := NewScorer(m, Config{Threads: 1, Factor: 1})
	require.NoError(t, err)

	seq := randomSeq(rng, 10)
	got, err := s.Score(t.Context(), []string{seq})
	require.NoError(t, err)
	sum := 0.0
	for j := range 10 {
		sum += s.PositionContribution(seq, j)
	}
	assert.InDelta(t, got[0], sum, 1e-9)
}

func TestScoreProgressAndCache(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	m := randomModel(rng, 3, 9, 5)
	s, err := NewScorer(m, Config{Threads: 2, Factor: 1, CacheBytes: 1 << 20})
	require.NoError(t, err)

	calls := 0
	last := 0
	s.SetProgress(func(done, total int) {
		calls++
		last = done
		assert.Equal(t, 9, total)
	})
	seqs := []string{randomSeq(rng, 9), randomSeq(rng, 9)}
	first, err := s.Score(t.Context(), seqs)
	require.NoError(t, err)
	assert.Equal(t, 9, calls)
	assert.Equal(t, 9, last)

	calls = 0
	second, err := s.Score(t.Context(), []string{seqs[1], seqs[0]})
	require.NoError(t, err)
	assert.Zero(t, calls, "cached scores should not be recomputed")
	assert.Equal(t, first[0], second[1])
	assert.Equal(t, first[1], second[0])

	s.Reset()
	_, err = s.Score(t.Context(), seqs[:1])
	require.NoError(t, err)
	assert.Equal(t, 9, calls)
}

func TestScoreCancelledReturnsPartialResults(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 1))
	m := randomModel(rng, 2, 6, 3)
	s, err := NewScorer(m, Config{Threads: 2, Factor: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	seqs := []string{m.SupportVectors[0], m.SupportVectors[1]}
	s.SetProgress(func(done, total int) {
		if done == 3 {
			cancel()
		}
	})
	got, err := s.Score(ctx, seqs)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, got, 2)

	partial := 0.0
	for j := range 3 {
		partial += s.PositionContribution(seqs[0], j)
	}
	assert.InDelta(t, partial, got[0], 1e-9)
}

func TestScoreRejectsWrongLength(t *testing.T) {
	m := &Model{Degree: 2, SupportVectors: []string{"ACGT"}, Alphas: []float64{1}}
	s, err := NewScorer(m, DefaultConfig())
	require.NoError(t, err)
	_, err = s.Score(t.Context(), []string{"ACG"})
	assert.Error(t, err)
}

func TestModelValidate(t *testing.T) {
	cases := map[string]*Model{
		"degree":  {Degree: 0, SupportVectors: []string{"A"}, Alphas: []float64{1}},
		"weights": {Degree: 2, Weights: []float64{1}, SupportVectors: []string{"AC"}, Alphas: []float64{1}},
		"empty":   {Degree: 2},
		"alphas":  {Degree: 2, SupportVectors: []string{"AC", "GT"}, Alphas: []float64{1}},
		"lengths": {Degree: 2, SupportVectors: []string{"AC", "GTA"}, Alphas: []float64{1, 1}},
	}
	for name, m := range cases {
		assert.ErrorIs(t, m.Validate(), ErrModel, name)
	}

	m := &Model{Degree: 2, SupportVectors: []string{"ac gt"}, Alphas: []float64{1}}
	require.NoError(t, m.Validate())
	assert.Equal(t, "ACGT", m.SupportVectors[0])
	assert.Equal(t, 1.0, m.Normalization)
	assert.Len(t, m.Weights, 2)
}

func TestRanges(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 10}}, ranges(10, 3))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, ranges(2, 8))
	assert.Nil(t, ranges(0, 4))
}
