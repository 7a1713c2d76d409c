package dynprog

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/happyhackingspace/exon/plif"
)

// NegInf is the score of an impossible cell.
const NegInf = plif.NegInf

// Decoder runs the generalized N-best Viterbi search of a model over one
// input. A Decoder is not safe for concurrent use.
type Decoder struct {
	model *Model
	input *Input

	lookBack  int
	emission  [][]float64 // emission[state][t], signal penalties applied
	zeroFeats []float64
}

// NewDecoder validates the model and input and pre-scores the emissions.
func NewDecoder(m *Model, in *Input) (*Decoder, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := in.validate(m); err != nil {
		return nil, err
	}
	genomeLen := in.GenomeLen
	if genomeLen <= 0 {
		genomeLen = in.Positions[len(in.Positions)-1] + 1
	}
	d := &Decoder{
		model:    m,
		input:    in,
		lookBack: m.Graph.MaxLookBack(m.Penalties, genomeLen),
	}
	if in.Content != nil {
		d.zeroFeats = make([]float64, in.Content.NumChannels())
	}
	d.emission = d.scoreEmissions()
	return d, nil
}

// LookBack returns the global lookback in genome coordinates.
func (d *Decoder) LookBack() int { return d.lookBack }

// Emission returns the pre-scored emission of state at position index t.
func (d *Decoder) Emission(state, t int) float64 { return d.emission[state][t] }

// emissionScore scores the raw channels of state at t. Scoring stops at
// the first unbound signal; without a signal for channel 0 the raw value is
// used as is. Non-finite raw values, +Inf included, mark states that cannot
// emit and are kept as NegInf.
func (d *Decoder) emissionScore(state, t int, acc *plif.Derivatives) float64 {
	raw := d.input.Emissions[state][t]
	score := 0.0
	for k, v := range raw {
		pen := d.model.signal(state, k)
		if pen == nil {
			if k == 0 {
				return finiteOr(v)
			}
			break
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= plif.Unreachable {
			score = NegInf
			continue
		}
		score += pen.Lookup(v, d.zeroFeats)
		if acc != nil {
			pen.AccumulateDerivative(acc, v, d.zeroFeats)
		}
	}
	return score
}

func finiteOr(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NegInf
	}
	return v
}

func (d *Decoder) scoreEmissions() [][]float64 {
	n := d.model.NumStates()
	T := d.input.SeqLen()
	em := make([][]float64, n)
	for j := range n {
		em[j] = make([]float64, T)
		for t := range T {
			em[j][t] = d.emissionScore(j, t, nil)
		}
	}
	return em
}

// dpTables are the score and back-pointer tables of one decode, indexed
// [(t*N+j)*K+k].
type dpTables struct {
	n, k   int
	delta  []float64
	psi    []int
	ptable []int
	ktable []int
}

func newDPTables(seqLen, n, k int) *dpTables {
	size := seqLen * n * k
	return &dpTables{
		n:      n,
		k:      k,
		delta:  make([]float64, size),
		psi:    make([]int, size),
		ptable: make([]int, size),
		ktable: make([]int, size),
	}
}

func (tb *dpTables) at(t, j, k int) int { return (t*tb.n+j)*tb.k + k }

func (tb *dpTables) set(t, j, k int, v float64, bp backPointer) {
	i := tb.at(t, j, k)
	tb.delta[i] = v
	tb.psi[i] = bp.state
	tb.ptable[i] = bp.pos
	tb.ktable[i] = bp.rank
}

// Check reports the configuration errors Decode would return for opts.
func (d *Decoder) Check(opts Options) error {
	m, in := d.model, d.input
	if opts.NBest < 1 || opts.NBest > MaxNBest {
		return configErrorf("decode", "nbest %d outside [1,%d]", opts.NBest, MaxNBest)
	}
	if opts.UseORF && m.ORF != nil && len(in.StopCodons) < in.Positions[in.SeqLen()-1] {
		return configErrorf("decode", "reading-frame checks need stop codons up to coordinate %d, have %d",
			in.Positions[in.SeqLen()-1], len(in.StopCodons))
	}
	if opts.WithLoss {
		return in.validateLoss(m)
	}
	return nil
}

// Decode returns the opts.NBest best paths. Configuration problems are
// returned as ConfigError before any work is done. An unreachable final
// position is not an error; check Path.Reachable.
func (d *Decoder) Decode(ctx context.Context, opts Options) (*Result, error) {
	m, in := d.model, d.input
	if err := d.Check(opts); err != nil {
		return nil, err
	}
	var loss *SegmentLossTable
	if opts.WithLoss {
		loss = NewSegmentLossTable(in.Loss, in.Reference)
	}

	n := m.NumStates()
	T := in.SeqLen()
	K := opts.NBest
	pos := in.Positions
	start := time.Now()
	slog.Debug("Decoding", "states", n, "positions", T, "nbest", K, "lookback", d.lookBack,
		"orf", opts.UseORF, "loss", opts.WithLoss)

	tb := newDPTables(T, n, K)
	for j := range n {
		tb.set(0, j, 0, m.P[j]+d.emission[j][0], backPointer{})
		for k := 1; k < K; k++ {
			tb.set(0, j, k, NegInf, backPointer{})
		}
	}

	orf := orfScanner{stop: in.StopCodons}
	list := newNBestList(K)
	var feats []float64
	if in.Content != nil {
		feats = make([]float64, in.Content.NumChannels())
	}

	for t := 1; t < T; t++ {
		if t%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if loss != nil {
			loss.Init(T, d.lookBack)
			if err := loss.FindTill(pos, t); err != nil {
				return nil, err
			}
		}

		for j := range n {
			emit := d.emission[j][t]
			if emit <= plif.Unreachable {
				for k := range K {
					tb.set(t, j, k, emit, backPointer{})
				}
				continue
			}

			list.reset()
			bestVal := math.Inf(-1)
			var best backPointer
			found := false

			for _, src := range m.Graph.Sources(j) {
				ii := src.State
				pen := m.Penalty(ii, j)
				lookBack := min(edgeLookBack(pen, d.lookBack), d.lookBack)

				target := -1
				orfTo := m.frame(j, 1)
				if opts.UseORF {
					target = orfTarget(m.frame(ii, 0), orfTo)
				}
				orfLast := pos[t]
				lossCursor := t
				lossCached := 0.0

				for ts := t - 1; ts >= 0 && pos[t]-pos[ts] <= lookBack; ts-- {
					if target != -1 {
						if (pos[t]-pos[ts])%3 != target {
							continue
						}
						if !orf.extend(orfTo, pos[ts], &orfLast, pos[t]) {
							continue
						}
					}

					val := src.Value
					if loss != nil {
						val += loss.Extend(pos, src.SegmentID, ts, &lossCursor, &lossCached)
					}
					if pen != nil {
						var f []float64
						if pen.NeedsFeatures() {
							f = in.Content.Query(ts, t, m.frame(ii, 0), feats)
						}
						val += pen.Lookup(float64(pos[t]-pos[ts]), f)
					}

					if K == 1 {
						if v := val + tb.delta[tb.at(ts, ii, 0)]; v > bestVal {
							bestVal = v
							best = backPointer{state: ii, pos: ts}
							found = true
						}
						continue
					}
					for diff := range K {
						list.push(val+tb.delta[tb.at(ts, ii, diff)], backPointer{state: ii, pos: ts, rank: diff})
					}
				}
			}

			if K == 1 {
				if found {
					tb.set(t, j, 0, bestVal+emit, best)
				} else {
					tb.set(t, j, 0, NegInf, backPointer{})
				}
				continue
			}
			for k := range K {
				if k < list.len() {
					tb.set(t, j, k, list.vals[k]+emit, list.refs[k])
				} else {
					tb.set(t, j, k, NegInf, backPointer{})
				}
			}
		}
	}

	res := &Result{Paths: d.backtrack(tb, K), LookBack: d.lookBack}
	slog.Debug("Decoding completed", "duration", time.Since(start), "best", res.Paths[0].Score)
	if !res.Paths[0].Reachable() {
		slog.Warn("No reachable path", "positions", T, "states", n)
	}
	return res, nil
}

// backtrack selects the K best terminal cells and follows their
// back-pointers to position 0.
func (d *Decoder) backtrack(tb *dpTables, K int) []Path {
	return backtrackTables(tb, d.model.Q, d.input.SeqLen(), K)
}

func backtrackTables(tb *dpTables, q []float64, T, K int) []Path {
	n := tb.n
	ends := newNBestList(K)
	for diff := range K {
		for i := range n {
			ends.push(tb.delta[tb.at(T-1, i, diff)]+q[i], backPointer{state: i, pos: T - 1, rank: diff})
		}
	}

	paths := make([]Path, K)
	for k := range K {
		if k >= ends.len() {
			paths[k] = Path{Score: NegInf}
			continue
		}
		end := ends.refs[k]
		states := []int{end.state}
		positions := []int{T - 1}
		state, p, rank := end.state, T-1, end.rank
		for p > 0 {
			i := tb.at(p, state, rank)
			state, p, rank = tb.psi[i], tb.ptable[i], tb.ktable[i]
			states = append(states, state)
			positions = append(positions, p)
		}
		slices.Reverse(states)
		slices.Reverse(positions)
		paths[k] = Path{Score: ends.vals[k], States: states, Positions: positions}
	}
	return paths
}
