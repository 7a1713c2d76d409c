package dynprog

import (
	"math"

	"github.com/happyhackingspace/exon/plif"
)

// MaxNBest is the largest number of paths a single decode may request.
const MaxNBest = 32000

// Model is the state machine: initial and terminal scores, the transition
// graph, the penalty functions scoring transitions and signals, and the
// reading-frame phases of the states.
type Model struct {
	P     []float64
	Q     []float64
	Graph *TransitionGraph

	// Penalties[from][to] scores the length of a segment i -> j. Nil entries
	// contribute nothing; the whole matrix may be nil.
	Penalties [][]plif.PenaltyFunction
	// Signals[state][channel] scores the raw emission channels of a state.
	// A nil entry ends the channel list of that state.
	Signals [][]plif.PenaltyFunction
	// ORF[state] holds the reading-frame phase at which a segment leaving
	// the state starts and at which a segment entering it ends, or NoFrame.
	ORF [][2]int
}

// NumStates returns the number of states.
func (m *Model) NumStates() int { return m.Graph.NumStates() }

// Penalty returns the penalty function of from -> to, or nil.
func (m *Model) Penalty(from, to int) plif.PenaltyFunction {
	return penaltyAt(m.Penalties, from, to)
}

func (m *Model) signal(state, channel int) plif.PenaltyFunction {
	if state >= len(m.Signals) || channel >= len(m.Signals[state]) {
		return nil
	}
	return m.Signals[state][channel]
}

func (m *Model) frame(state, side int) int {
	if m.ORF == nil {
		return NoFrame
	}
	return m.ORF[state][side]
}

// Validate checks that the model is internally consistent.
func (m *Model) Validate() error {
	if m.Graph == nil {
		return configErrorf("model", "transitions not set")
	}
	n := m.Graph.NumStates()
	if len(m.P) != n {
		return configErrorf("model", "initial scores have %d entries, want %d", len(m.P), n)
	}
	if len(m.Q) != n {
		return configErrorf("model", "terminal scores have %d entries, want %d", len(m.Q), n)
	}
	if m.Penalties != nil {
		if len(m.Penalties) != n {
			return configErrorf("model", "penalty matrix has %d rows, want %d", len(m.Penalties), n)
		}
		for i, row := range m.Penalties {
			if len(row) != n {
				return configErrorf("model", "penalty row %d has %d entries, want %d", i, len(row), n)
			}
			for j, pen := range row {
				if pen != nil && pen.MaxReach() >= maxPenaltyReach {
					return configErrorf("model", "penalty %d->%d reaches %g, limit is %g", i, j, pen.MaxReach(), float64(maxPenaltyReach))
				}
			}
		}
	}
	if m.Signals != nil && len(m.Signals) != n {
		return configErrorf("model", "signal matrix has %d rows, want %d", len(m.Signals), n)
	}
	if m.ORF != nil {
		if len(m.ORF) != n {
			return configErrorf("model", "orf info has %d rows, want %d", len(m.ORF), n)
		}
		for s, o := range m.ORF {
			for _, phase := range o {
				if phase != NoFrame && (phase < 0 || phase > 2) {
					return configErrorf("model", "state %d: frame phase %d outside {-1,0,1,2}", s, phase)
				}
			}
		}
		for j := range n {
			for _, src := range m.Graph.Sources(j) {
				from, to := m.ORF[src.State][0], m.ORF[j][1]
				if (from == NoFrame) != (to == NoFrame) {
					return configErrorf("model", "edge %d->%d: frame phases %d and %d must both be set or both be -1", src.State, j, from, to)
				}
			}
		}
	}
	return nil
}

// numSignals returns the channel count the signal matrix expects.
func (m *Model) numSignals() int {
	k := 0
	for _, row := range m.Signals {
		k = max(k, len(row))
	}
	return k
}

// Input holds the per-sequence data a decode runs over.
type Input struct {
	// Positions are strictly increasing genome coordinates of the candidate
	// positions.
	Positions []int
	// Emissions[state][t][channel] are raw signal values.
	Emissions [][][]float64
	// Content provides features for penalties that need them. May be nil
	// if no penalty does.
	Content *ContentScorer
	// StopCodons marks stop-codon starts per genome coordinate. Required
	// when decoding with reading-frame checks.
	StopCodons []bool
	// GenomeLen caps the global lookback. Zero means unknown.
	GenomeLen int

	// Reference and Loss enable loss-augmented decoding.
	Reference *Reference
	Loss      *SegmentLoss
}

// SeqLen returns the number of candidate positions.
func (in *Input) SeqLen() int { return len(in.Positions) }

func (in *Input) validate(m *Model) error {
	n := m.NumStates()
	T := len(in.Positions)
	if T == 0 {
		return configErrorf("input", "no positions")
	}
	for t := 1; t < T; t++ {
		if in.Positions[t] <= in.Positions[t-1] {
			return configErrorf("input", "positions not strictly increasing at %d (%d <= %d)", t, in.Positions[t], in.Positions[t-1])
		}
	}
	if len(in.Emissions) != n {
		return configErrorf("input", "emissions cover %d states, want %d", len(in.Emissions), n)
	}
	channels := -1
	for s, rows := range in.Emissions {
		if len(rows) != T {
			return configErrorf("input", "state %d has %d emission rows, want %d", s, len(rows), T)
		}
		for t, row := range rows {
			if channels == -1 {
				channels = len(row)
			}
			if len(row) != channels || len(row) == 0 {
				return configErrorf("input", "state %d position %d has %d channels, want %d", s, t, len(row), channels)
			}
		}
	}
	if k := m.numSignals(); k > channels {
		return configErrorf("input", "signal matrix has %d channels but emissions carry %d", k, channels)
	}
	available := 0
	if in.Content != nil {
		available = in.Content.NumChannels()
	}
	for i, row := range m.Penalties {
		for j, pen := range row {
			if pen != nil && pen.FeatureChannels() > available {
				return configErrorf("input", "penalty %d->%d reads feature channel %d but content provides %d",
					i, j, pen.FeatureChannels(), available)
			}
		}
	}
	for s, row := range m.Signals {
		for k, pen := range row {
			if pen != nil && pen.FeatureChannels() > available {
				return configErrorf("input", "signal %d of state %d reads feature channel %d but content provides %d",
					k, s, pen.FeatureChannels(), available)
			}
		}
	}
	if in.Content != nil && len(in.Content.lin) != T {
		return configErrorf("input", "content scorer covers %d positions, want %d", len(in.Content.lin), T)
	}
	return nil
}

func (in *Input) validateLoss(m *Model) error {
	if in.Reference == nil || in.Loss == nil {
		return configErrorf("input", "loss-augmented decoding needs a reference segmentation and a loss tensor")
	}
	ids := m.Graph.MaxSegmentID() + 1
	if err := in.Loss.validate(ids); err != nil {
		return err
	}
	return in.Reference.validate(len(in.Positions), ids-1)
}

// Options select the decoding variant.
type Options struct {
	NBest    int
	UseORF   bool
	WithLoss bool
}

// DefaultOptions returns single-best decoding without reading-frame checks
// or loss.
func DefaultOptions() Options {
	return Options{NBest: 1}
}

// Path is one decoded state sequence. Positions are position indices, not
// genome coordinates.
type Path struct {
	Score     float64 `json:"score"`
	States    []int   `json:"states"`
	Positions []int   `json:"positions"`
}

// Reachable reports whether the path has a finite score. An unreachable
// path's state and position sequences carry no meaning.
func (p Path) Reachable() bool {
	return p.Score > plif.Unreachable && !math.IsNaN(p.Score) && !math.IsInf(p.Score, 1)
}

// Len returns the number of path elements.
func (p Path) Len() int { return len(p.States) }

// Result holds the n best paths, best first.
type Result struct {
	Paths    []Path `json:"paths"`
	LookBack int    `json:"look_back"`
}

// Scores returns the path scores, best first.
func (r *Result) Scores() []float64 {
	s := make([]float64, len(r.Paths))
	for k, p := range r.Paths {
		s[k] = p.Score
	}
	return s
}

// Padded returns the paths as nbest × seqLen state and position matrices,
// each row terminated by -1 after its last element when shorter.
func (r *Result) Padded(seqLen int) (states, positions [][]int) {
	states = make([][]int, len(r.Paths))
	positions = make([][]int, len(r.Paths))
	for k, p := range r.Paths {
		states[k] = make([]int, seqLen)
		positions[k] = make([]int, seqLen)
		n := copy(states[k], p.States)
		copy(positions[k], p.Positions)
		if n < seqLen {
			states[k][n] = -1
			positions[k][n] = -1
		}
	}
	return states, positions
}
