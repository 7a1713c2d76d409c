package dynprog

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/happyhackingspace/exon/plif"
)

// bruteForce enumerates every admissible path of in under m and returns
// their scores, best first.
func bruteForce(m *Model, in *Input, useORF bool) []float64 {
	d, err := NewDecoder(m, in)
	if err != nil {
		panic(err)
	}
	pos := in.Positions
	T := len(pos)
	global := d.LookBack()

	var feats []float64
	if in.Content != nil {
		feats = make([]float64, in.Content.NumChannels())
	}

	admissible := func(from, to, ts, t int) bool {
		dist := pos[t] - pos[ts]
		reach := global
		if pen := m.Penalty(from, to); pen != nil {
			reach = min(reach, int(math.Ceil(pen.MaxReach())))
		}
		if dist > reach {
			return false
		}
		if !useORF || m.frame(from, 0) == NoFrame {
			return true
		}
		orfTo := m.frame(to, 1)
		if dist%3 != orfTarget(m.frame(from, 0), orfTo) {
			return false
		}
		for c := pos[t] - orfTo - 3; c >= pos[ts]; c -= 3 {
			if c >= 0 && in.StopCodons[c] {
				return false
			}
		}
		return true
	}

	edge := func(from, to, ts, t int) float64 {
		v := m.Graph.Value(from, to)
		if pen := m.Penalty(from, to); pen != nil {
			var f []float64
			if pen.NeedsFeatures() {
				f = in.Content.Query(ts, t, m.frame(from, 0), feats)
			}
			v += pen.Lookup(float64(pos[t]-pos[ts]), f)
		}
		return v
	}

	var scores []float64
	var walk func(state, t int, score float64)
	walk = func(state, t int, score float64) {
		if score <= plif.Unreachable {
			return
		}
		if t == T-1 {
			if s := score + m.Q[state]; s > plif.Unreachable {
				scores = append(scores, s)
			}
			return
		}
		for next := t + 1; next < T; next++ {
			for j := range m.NumStates() {
				if !m.Graph.Allowed(state, j) || !admissible(state, j, t, next) {
					continue
				}
				walk(j, next, score+edge(state, j, t, next)+d.Emission(j, next))
			}
		}
	}
	for j := range m.NumStates() {
		walk(j, 0, m.P[j]+d.Emission(j, 0))
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	return scores
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*(1+math.Abs(a)+math.Abs(b))
}

// checkAgainstOracle decodes with every nbest in ks and compares the scores
// against brute-force enumeration.
func checkAgainstOracle(t *testing.T, m *Model, in *Input, useORF bool, ks ...int) {
	t.Helper()
	want := bruteForce(m, in, useORF)
	if len(want) == 0 {
		t.Fatal("oracle found no path")
	}
	d, err := NewDecoder(m, in)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range ks {
		res, err := d.Decode(t.Context(), Options{NBest: k, UseORF: useORF})
		if err != nil {
			t.Fatalf("nbest=%d: %v", k, err)
		}
		if len(res.Paths) != k {
			t.Fatalf("nbest=%d: got %d paths", k, len(res.Paths))
		}
		for r, p := range res.Paths {
			if r >= len(want) {
				if p.Reachable() {
					t.Errorf("nbest=%d rank %d: score %v, oracle has only %d paths", k, r, p.Score, len(want))
				}
				continue
			}
			if !closeTo(p.Score, want[r]) {
				t.Errorf("nbest=%d rank %d: score %v, want %v", k, r, p.Score, want[r])
			}
			if r > 0 && p.Score > res.Paths[r-1].Score {
				t.Errorf("nbest=%d: rank %d score %v above rank %d score %v", k, r, p.Score, r-1, res.Paths[r-1].Score)
			}
		}
	}
}

func randomEmissions(rng *rand.Rand, n, T int) [][][]float64 {
	em := make([][][]float64, n)
	for s := range em {
		em[s] = make([][]float64, T)
		for t := range em[s] {
			em[s][t] = []float64{rng.Float64()*2 - 1}
		}
	}
	return em
}

func randomScores(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.Float64()*2 - 1
	}
	return v
}

func emptyPenalties(n int) [][]plif.PenaltyFunction {
	pen := make([][]plif.PenaltyFunction, n)
	for i := range pen {
		pen[i] = make([]plif.PenaltyFunction, n)
	}
	return pen
}

func mustGraph(t *testing.T, n int, edges []Edge) *TransitionGraph {
	t.Helper()
	g, err := NewTransitionGraph(n, edges)
	if err != nil {
		t.Fatal(err)
	}
	return g
}
