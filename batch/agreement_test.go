package batch

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/exon/dynprog"
)

// A chain model with one state per sequence position admits a single
// path; its decode score is the sum of the per-position contributions.
func TestScoreAgreesWithChainDecode(t *testing.T) {
	rng := rand.New(rand.NewPCG(12, 12))
	const L = 9
	m := randomModel(rng, 4, L, 7)
	s, err := NewScorer(m, Config{Threads: 3, Factor: 1})
	require.NoError(t, err)

	for range 4 {
		seq := randomSeq(rng, L)
		want, err := s.Score(t.Context(), []string{seq})
		require.NoError(t, err)

		edges := make([]dynprog.Edge, 0, L-1)
		for j := 0; j+1 < L; j++ {
			edges = append(edges, dynprog.Edge{From: j, To: j + 1})
		}
		g, err := dynprog.NewTransitionGraph(L, edges)
		require.NoError(t, err)

		p := make([]float64, L)
		q := make([]float64, L)
		positions := make([]int, L)
		emissions := make([][][]float64, L)
		for j := range L {
			positions[j] = j
			p[j], q[j] = dynprog.NegInf, dynprog.NegInf
			emissions[j] = make([][]float64, L)
			for k := range L {
				emissions[j][k] = []float64{dynprog.NegInf}
			}
			emissions[j][j][0] = s.PositionContribution(seq, j)
		}
		p[0], q[L-1] = 0, 0

		d, err := dynprog.NewDecoder(&dynprog.Model{P: p, Q: q, Graph: g},
			&dynprog.Input{Positions: positions, Emissions: emissions})
		require.NoError(t, err)
		res, err := d.Decode(t.Context(), dynprog.DefaultOptions())
		require.NoError(t, err)

		best := res.Paths[0]
		require.True(t, best.Reachable())
		assert.Len(t, best.States, L)
		assert.InDelta(t, want[0], best.Score, 1e-9)
	}
}
