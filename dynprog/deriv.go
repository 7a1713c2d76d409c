package dynprog

import (
	"gonum.org/v1/gonum/floats"

	"github.com/happyhackingspace/exon/plif"
)

// Gradient holds the usage statistics of one path. Scores[i] and Losses[i]
// belong to path element i: the transition into it, its emission and, at
// the ends, the initial and terminal scores.
type Gradient struct {
	P []float64   `json:"p"`
	Q []float64   `json:"q"`
	A [][]float64 `json:"a"` // A[from][to]

	Scores     []float64 `json:"scores"`
	Losses     []float64 `json:"losses"`
	TotalScore float64   `json:"total_score"`
	TotalLoss  float64   `json:"total_loss"`
}

func newGradient(n, length int) *Gradient {
	g := &Gradient{
		P:      make([]float64, n),
		Q:      make([]float64, n),
		A:      make([][]float64, n),
		Scores: make([]float64, length),
		Losses: make([]float64, length),
	}
	for i := range g.A {
		g.A[i] = make([]float64, n)
	}
	return g
}

// PathGradient walks path, counts initial, terminal and edge usage and
// adds the derivatives of every penalty and signal function it touches to
// acc, which may be nil. acc is not cleared first.
//
// TotalScore reproduces the decoder score of the path; for a path decoded
// with loss the decoder score is TotalScore+TotalLoss. Losses are only
// computed when the input carries a reference and a loss tensor.
func (d *Decoder) PathGradient(path Path, acc *plif.Derivatives) (*Gradient, error) {
	if err := d.validatePath(path); err != nil {
		return nil, err
	}
	m, in := d.model, d.input
	pos := in.Positions
	n := m.NumStates()
	L := path.Len()
	g := newGradient(n, L)

	first, last := path.States[0], path.States[L-1]
	g.P[first]++
	g.Q[last]++
	g.Scores[0] += m.P[first] + d.emissionScore(first, path.Positions[0], acc)
	g.Scores[L-1] += m.Q[last]

	var loss *SegmentLossTable
	if in.Reference != nil && in.Loss != nil {
		if err := in.validateLoss(m); err != nil {
			return nil, err
		}
		loss = NewSegmentLossTable(in.Loss, in.Reference)
	}
	var feats []float64
	if in.Content != nil {
		feats = make([]float64, in.Content.NumChannels())
	}

	for i := 1; i < L; i++ {
		from, to := path.States[i-1], path.States[i]
		fromPos, toPos := path.Positions[i-1], path.Positions[i]

		if loss != nil {
			loss.Init(len(pos), pos[toPos]-pos[fromPos]+10)
			if err := loss.FindTill(pos, toPos); err != nil {
				return nil, err
			}
			cursor, cached := toPos, 0.0
			g.Losses[i] = loss.Extend(pos, m.Graph.SegmentID(from, to), fromPos, &cursor, &cached)
		}

		g.A[from][to]++
		g.Scores[i] += m.Graph.Value(from, to)

		if pen := m.Penalty(from, to); pen != nil {
			var f []float64
			if pen.NeedsFeatures() {
				f = in.Content.Query(fromPos, toPos, m.frame(from, 0), feats)
			}
			length := float64(pos[toPos] - pos[fromPos])
			g.Scores[i] += pen.Lookup(length, f)
			if acc != nil {
				pen.AccumulateDerivative(acc, length, f)
			}
		}

		g.Scores[i] += d.emissionScore(to, toPos, acc)
	}

	g.TotalScore = floats.Sum(g.Scores)
	g.TotalLoss = floats.Sum(g.Losses)
	return g, nil
}

func (d *Decoder) validatePath(path Path) error {
	n := d.model.NumStates()
	T := d.input.SeqLen()
	if path.Len() == 0 {
		return configErrorf("path gradient", "empty path")
	}
	if len(path.Positions) != path.Len() {
		return configErrorf("path gradient", "%d states but %d positions", path.Len(), len(path.Positions))
	}
	for i, s := range path.States {
		p := path.Positions[i]
		if s < 0 || s >= n {
			return configErrorf("path gradient", "element %d: state %d outside [0,%d)", i, s, n)
		}
		if p < 0 || p >= T {
			return configErrorf("path gradient", "element %d: position %d outside [0,%d)", i, p, T)
		}
		if i == 0 {
			continue
		}
		if p <= path.Positions[i-1] {
			return configErrorf("path gradient", "element %d: position %d does not follow %d", i, p, path.Positions[i-1])
		}
		if !d.model.Graph.Allowed(path.States[i-1], s) {
			return configErrorf("path gradient", "element %d: transition %d->%d not allowed", i, path.States[i-1], s)
		}
	}
	return nil
}
