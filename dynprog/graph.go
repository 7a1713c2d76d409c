package dynprog

import (
	"math"
	"sort"

	"github.com/happyhackingspace/exon/plif"
)

// DefaultMaxLookBack is the lookback used for edges without a penalty
// function, unless a penalty reaches further.
const DefaultMaxLookBack = 20000

// maxPenaltyReach bounds the reach of a single penalty function.
const maxPenaltyReach = 1e6

// Edge is an allowed transition From -> To.
type Edge struct {
	From      int     `json:"from" yaml:"from"`
	To        int     `json:"to" yaml:"to"`
	Value     float64 `json:"value" yaml:"value"`
	SegmentID int     `json:"segment_id,omitempty" yaml:"segment_id,omitempty"`
}

// Source is an incoming edge of some destination state.
type Source struct {
	State     int
	Value     float64
	SegmentID int
}

// TransitionGraph holds the allowed transitions grouped by destination
// state, plus a dense mirror for lookups by state pair.
type TransitionGraph struct {
	n       int
	offsets []int // sources of j are sources[offsets[j]:offsets[j+1]]
	sources []Source

	value   []float64
	segment []int
	allowed []bool

	maxSegmentID int
}

// NewTransitionGraph builds the graph for n states. Edges need not be
// sorted; edges into the same destination keep their relative order.
func NewTransitionGraph(n int, edges []Edge) (*TransitionGraph, error) {
	if n <= 0 {
		return nil, configErrorf("transitions", "number of states must be positive, got %d", n)
	}
	g := &TransitionGraph{
		n:       n,
		offsets: make([]int, n+1),
		sources: make([]Source, len(edges)),
		value:   make([]float64, n*n),
		segment: make([]int, n*n),
		allowed: make([]bool, n*n),
	}

	sorted := make([]Edge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].To < sorted[b].To })

	for k, e := range sorted {
		if e.From < 0 || e.From >= n {
			return nil, configErrorf("transitions", "edge %d: from-state %d out of range [0,%d)", k, e.From, n)
		}
		if e.To < 0 || e.To >= n {
			return nil, configErrorf("transitions", "edge %d: to-state %d out of range [0,%d)", k, e.To, n)
		}
		if e.SegmentID < 0 {
			return nil, configErrorf("transitions", "edge %d->%d: negative segment id %d", e.From, e.To, e.SegmentID)
		}
		idx := e.From*n + e.To
		if g.allowed[idx] {
			return nil, configErrorf("transitions", "duplicate edge %d->%d", e.From, e.To)
		}
		g.allowed[idx] = true
		g.value[idx] = e.Value
		g.segment[idx] = e.SegmentID
		g.sources[k] = Source{State: e.From, Value: e.Value, SegmentID: e.SegmentID}
		g.offsets[e.To+1]++
		g.maxSegmentID = max(g.maxSegmentID, e.SegmentID)
	}
	for j := range n {
		g.offsets[j+1] += g.offsets[j]
	}
	return g, nil
}

// FromColumns builds the graph from parallel columns: from, to, value and
// optionally segment id. Any other number of columns is a ConfigError.
func FromColumns(n int, cols [][]float64) (*TransitionGraph, error) {
	if len(cols) != 3 && len(cols) != 4 {
		return nil, configErrorf("transitions", "expected 3 or 4 columns, got %d", len(cols))
	}
	m := len(cols[0])
	for c, col := range cols {
		if len(col) != m {
			return nil, configErrorf("transitions", "column %d has %d rows, want %d", c, len(col), m)
		}
	}
	edges := make([]Edge, m)
	for k := range m {
		edges[k] = Edge{From: int(cols[0][k]), To: int(cols[1][k]), Value: cols[2][k]}
		if len(cols) == 4 {
			edges[k].SegmentID = int(cols[3][k])
		}
	}
	return NewTransitionGraph(n, edges)
}

// NumStates returns the number of states.
func (g *TransitionGraph) NumStates() int { return g.n }

// NumEdges returns the number of allowed transitions.
func (g *TransitionGraph) NumEdges() int { return len(g.sources) }

// Sources returns the incoming edges of state j.
func (g *TransitionGraph) Sources(j int) []Source {
	return g.sources[g.offsets[j]:g.offsets[j+1]]
}

// Allowed reports whether the transition i -> j exists.
func (g *TransitionGraph) Allowed(i, j int) bool { return g.allowed[i*g.n+j] }

// Value returns the base score of i -> j, zero if the edge does not exist.
func (g *TransitionGraph) Value(i, j int) float64 { return g.value[i*g.n+j] }

// SegmentID returns the segment id of i -> j, zero if the edge does not exist.
func (g *TransitionGraph) SegmentID(i, j int) int { return g.segment[i*g.n+j] }

// MaxSegmentID returns the largest segment id over all edges.
func (g *TransitionGraph) MaxSegmentID() int { return g.maxSegmentID }

// Edges returns all edges grouped by destination.
func (g *TransitionGraph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.sources))
	for j := range g.n {
		for _, s := range g.Sources(j) {
			edges = append(edges, Edge{From: s.State, To: j, Value: s.Value, SegmentID: s.SegmentID})
		}
	}
	return edges
}

// edgeLookBack returns how far back an edge scored by pen may reach.
func edgeLookBack(pen plif.PenaltyFunction, global int) int {
	if pen == nil {
		return global
	}
	return int(math.Ceil(pen.MaxReach()))
}

// MaxLookBack returns the global lookback: DefaultMaxLookBack raised to the
// reach of the furthest-reaching penalty on an allowed edge, capped by
// genomeLen. penalties is indexed [from][to] and may be nil.
func (g *TransitionGraph) MaxLookBack(penalties [][]plif.PenaltyFunction, genomeLen int) int {
	lookBack := DefaultMaxLookBack
	for j := range g.n {
		for _, s := range g.Sources(j) {
			if pen := penaltyAt(penalties, s.State, j); pen != nil {
				if r := pen.MaxReach(); r > float64(lookBack) {
					lookBack = int(math.Ceil(r))
				}
			}
		}
	}
	if genomeLen > 0 {
		lookBack = min(lookBack, genomeLen)
	}
	return lookBack
}

func penaltyAt(penalties [][]plif.PenaltyFunction, from, to int) plif.PenaltyFunction {
	if from >= len(penalties) || to >= len(penalties[from]) {
		return nil
	}
	return penalties[from][to]
}
