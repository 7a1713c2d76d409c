package dynprog

import (
	"context"
	"log/slog"

	"github.com/happyhackingspace/exon/plif"
)

// DecodeAdjacent decodes a plain state sequence where every position index
// is visited and each transition spans exactly one step. Penalties,
// reading frames and loss are ignored. emissions[state][t] are final
// scores. Paths hold one element per position.
func DecodeAdjacent(ctx context.Context, m *Model, emissions [][]float64, nbest int) (*Result, error) {
	if m.Graph == nil {
		return nil, configErrorf("decode adjacent", "transitions not set")
	}
	n := m.NumStates()
	if len(m.P) != n || len(m.Q) != n {
		return nil, configErrorf("decode adjacent", "initial/terminal scores have %d/%d entries, want %d", len(m.P), len(m.Q), n)
	}
	if nbest < 1 || nbest > MaxNBest {
		return nil, configErrorf("decode adjacent", "nbest %d outside [1,%d]", nbest, MaxNBest)
	}
	if len(emissions) != n {
		return nil, configErrorf("decode adjacent", "emissions cover %d states, want %d", len(emissions), n)
	}
	T := len(emissions[0])
	if T == 0 {
		return nil, configErrorf("decode adjacent", "no positions")
	}
	for s, row := range emissions {
		if len(row) != T {
			return nil, configErrorf("decode adjacent", "state %d has %d positions, want %d", s, len(row), T)
		}
	}

	K := nbest
	slog.Debug("Decoding adjacent", "states", n, "positions", T, "nbest", K)

	// Scores live in a two-row ring; back-pointers need the full table.
	delta := [2][]float64{make([]float64, n*K), make([]float64, n*K)}
	psi := make([]int, T*n*K)
	ktable := make([]int, T*n*K)
	cell := func(j, k int) int { return j*K + k }

	for j := range n {
		delta[0][cell(j, 0)] = m.P[j] + finiteOr(emissions[j][0])
		for k := 1; k < K; k++ {
			delta[0][cell(j, k)] = NegInf
		}
	}

	list := newNBestList(K)
	for t := 1; t < T; t++ {
		if t%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		prev, cur := delta[(t-1)%2], delta[t%2]
		for j := range n {
			emit := finiteOr(emissions[j][t])
			base := (t*n + j) * K
			if emit <= plif.Unreachable {
				for k := range K {
					cur[cell(j, k)] = emit
					psi[base+k], ktable[base+k] = 0, 0
				}
				continue
			}
			list.reset()
			for _, src := range m.Graph.Sources(j) {
				for diff := range K {
					list.push(prev[cell(src.State, diff)]+src.Value, backPointer{state: src.State, pos: t - 1, rank: diff})
				}
			}
			for k := range K {
				if k < list.len() {
					cur[cell(j, k)] = list.vals[k] + emit
					psi[base+k], ktable[base+k] = list.refs[k].state, list.refs[k].rank
				} else {
					cur[cell(j, k)] = NegInf
					psi[base+k], ktable[base+k] = 0, 0
				}
			}
		}
	}

	last := delta[(T-1)%2]
	ends := newNBestList(K)
	for diff := range K {
		for i := range n {
			ends.push(last[cell(i, diff)]+m.Q[i], backPointer{state: i, pos: T - 1, rank: diff})
		}
	}

	res := &Result{Paths: make([]Path, K), LookBack: 1}
	for k := range K {
		if k >= ends.len() {
			res.Paths[k] = Path{Score: NegInf}
			continue
		}
		states := make([]int, T)
		positions := make([]int, T)
		state, rank := ends.refs[k].state, ends.refs[k].rank
		for t := T - 1; t >= 0; t-- {
			states[t], positions[t] = state, t
			if t > 0 {
				i := (t*n+state)*K + rank
				state, rank = psi[i], ktable[i]
			}
		}
		res.Paths[k] = Path{Score: ends.vals[k], States: states, Positions: positions}
	}
	return res, nil
}
