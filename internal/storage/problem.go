package storage

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/happyhackingspace/exon/dynprog"
	"github.com/happyhackingspace/exon/plif"
)

// Problem is the file form of one decoding problem: the state machine with
// its penalty functions and the per-sequence inputs.
type Problem struct {
	States      []StateSpec      `json:"states" yaml:"states"`
	Transitions []TransitionSpec `json:"transitions" yaml:"transitions"`
	PLiFs       []*plif.PLiF     `json:"plifs,omitempty" yaml:"plifs,omitempty"`

	Positions []int `json:"positions" yaml:"positions"`
	// Emissions[state][t][channel] are raw signal values.
	Emissions [][][]float64 `json:"emissions" yaml:"emissions"`

	Genome    *GenomeSpec          `json:"genome,omitempty" yaml:"genome,omitempty"`
	Content   *ContentSpec         `json:"content,omitempty" yaml:"content,omitempty"`
	Reference *dynprog.Reference   `json:"reference,omitempty" yaml:"reference,omitempty"`
	Loss      *dynprog.SegmentLoss `json:"loss,omitempty" yaml:"loss,omitempty"`

	dir string
}

// StateSpec describes one state. Signals name the PLiFs scoring the
// emission channels in order.
type StateSpec struct {
	Name    string   `json:"name" yaml:"name"`
	P       float64  `json:"p" yaml:"p"`
	Q       float64  `json:"q" yaml:"q"`
	ORF     *[2]int  `json:"orf,omitempty" yaml:"orf,omitempty"`
	Signals []string `json:"signals,omitempty" yaml:"signals,omitempty"`
}

// TransitionSpec describes one allowed transition. Several penalty names
// are summed.
type TransitionSpec struct {
	From      string   `json:"from" yaml:"from"`
	To        string   `json:"to" yaml:"to"`
	Value     float64  `json:"value" yaml:"value"`
	SegmentID int      `json:"segment_id,omitempty" yaml:"segment_id,omitempty"`
	Penalty   []string `json:"penalty,omitempty" yaml:"penalty,omitempty"`
}

// GenomeSpec names the genome sequence, either inline or as a FASTA file
// relative to the problem file.
type GenomeSpec struct {
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	Sequence string `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	Strand   string `json:"strand,omitempty" yaml:"strand,omitempty"`
}

// ContentSpec configures the content scorer: either precomputed
// cumulative rows or a k-mer dictionary evaluated over the genome, plus
// optional tiling probes.
type ContentSpec struct {
	NumSVM        int                 `json:"num_svm" yaml:"num_svm"`
	Rows          [][]float64         `json:"rows,omitempty" yaml:"rows,omitempty"`
	Dictionary    *dynprog.Dictionary `json:"dictionary,omitempty" yaml:"dictionary,omitempty"`
	FrameChannels *[3]int             `json:"frame_channels,omitempty" yaml:"frame_channels,omitempty"`
	Probes        []dynprog.Probe     `json:"probes,omitempty" yaml:"probes,omitempty"`
	Tiling        []string            `json:"tiling,omitempty" yaml:"tiling,omitempty"`
}

// Built is a problem resolved into decoder inputs.
type Built struct {
	Model  *dynprog.Model
	Input  *dynprog.Input
	States *Alphabet
	PLiFs  []*plif.PLiF
	Genome []byte
}

// Build resolves names and loads the genome.
func (p *Problem) Build() (*Built, error) {
	states := NewAlphabet()
	for _, s := range p.States {
		if s.Name == "" {
			return nil, fmt.Errorf("state %d has no name", states.Size())
		}
		if states.Get(s.Name) != -1 {
			return nil, fmt.Errorf("duplicate state %q", s.Name)
		}
		states.Add(s.Name)
	}
	n := states.Size()
	if n == 0 {
		return nil, fmt.Errorf("no states")
	}

	plifs := make(map[string]*plif.PLiF, len(p.PLiFs))
	for i, f := range p.PLiFs {
		if f.Name == "" {
			return nil, fmt.Errorf("plif %d has no name", i)
		}
		if _, ok := plifs[f.Name]; ok {
			return nil, fmt.Errorf("duplicate plif %q", f.Name)
		}
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("plif %q: %w", f.Name, err)
		}
		// Without an explicit range the function accepts its own limits.
		if f.MinValue == 0 && f.MaxValue == 0 {
			f.MinValue, f.MaxValue = f.Limits[0], f.Limits[len(f.Limits)-1]
		}
		plifs[f.Name] = f
	}
	resolve := func(names []string) (plif.PenaltyFunction, error) {
		parts := make([]plif.PenaltyFunction, 0, len(names))
		for _, name := range names {
			f, ok := plifs[name]
			if !ok {
				return nil, fmt.Errorf("unknown plif %q", name)
			}
			parts = append(parts, f)
		}
		switch len(parts) {
		case 0:
			return nil, nil
		case 1:
			return parts[0], nil
		}
		return plif.NewSum(parts...), nil
	}

	m := &dynprog.Model{P: make([]float64, n), Q: make([]float64, n)}
	hasORF := false
	for i, s := range p.States {
		m.P[i] = finiteScore(s.P)
		m.Q[i] = finiteScore(s.Q)
		hasORF = hasORF || s.ORF != nil
	}
	if hasORF {
		m.ORF = make([][2]int, n)
		for i, s := range p.States {
			m.ORF[i] = [2]int{dynprog.NoFrame, dynprog.NoFrame}
			if s.ORF != nil {
				m.ORF[i] = *s.ORF
			}
		}
	}

	m.Signals = make([][]plif.PenaltyFunction, n)
	for i, s := range p.States {
		for _, name := range s.Signals {
			f, ok := plifs[name]
			if !ok {
				return nil, fmt.Errorf("state %q: unknown signal plif %q", s.Name, name)
			}
			m.Signals[i] = append(m.Signals[i], f)
		}
	}

	edges := make([]dynprog.Edge, len(p.Transitions))
	var penalties [][]plif.PenaltyFunction
	for k, tr := range p.Transitions {
		from, to := states.Get(tr.From), states.Get(tr.To)
		if from == -1 || to == -1 {
			return nil, fmt.Errorf("transition %d: unknown state in %q -> %q", k, tr.From, tr.To)
		}
		edges[k] = dynprog.Edge{From: from, To: to, Value: tr.Value, SegmentID: tr.SegmentID}
		pen, err := resolve(tr.Penalty)
		if err != nil {
			return nil, fmt.Errorf("transition %s -> %s: %w", tr.From, tr.To, err)
		}
		if pen == nil {
			continue
		}
		if penalties == nil {
			penalties = make([][]plif.PenaltyFunction, n)
			for i := range penalties {
				penalties[i] = make([]plif.PenaltyFunction, n)
			}
		}
		penalties[from][to] = pen
	}
	g, err := dynprog.NewTransitionGraph(n, edges)
	if err != nil {
		return nil, err
	}
	m.Graph = g
	m.Penalties = penalties

	in := &dynprog.Input{
		Positions: p.Positions,
		Emissions: p.Emissions,
		Reference: p.Reference,
		Loss:      p.Loss,
	}
	b := &Built{Model: m, Input: in, States: states, PLiFs: p.PLiFs}

	if p.Genome != nil {
		if b.Genome, err = p.loadGenome(); err != nil {
			return nil, err
		}
		in.StopCodons = dynprog.StopCodons(b.Genome)
		in.GenomeLen = len(b.Genome)
	}
	if p.Content != nil {
		if in.Content, err = p.buildContent(b.Genome, plifs); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (p *Problem) loadGenome() ([]byte, error) {
	strand, err := ParseStrand(p.Genome.Strand)
	if err != nil {
		return nil, err
	}
	if p.Genome.Sequence != "" {
		return Oriented([]byte(p.Genome.Sequence), strand), nil
	}
	path := p.Genome.Path
	if !filepath.IsAbs(path) && p.dir != "" {
		path = filepath.Join(p.dir, path)
	}
	rec, err := ReadGenome(path, strand)
	if err != nil {
		return nil, err
	}
	return rec.Sequence, nil
}

func (p *Problem) buildContent(genome []byte, plifs map[string]*plif.PLiF) (*dynprog.ContentScorer, error) {
	cs := p.Content
	var c *dynprog.ContentScorer
	switch {
	case cs.Rows != nil:
		var err error
		if c, err = dynprog.NewContentScorerFromRows(p.Positions, cs.NumSVM, cs.Rows); err != nil {
			return nil, err
		}
	case cs.Dictionary != nil:
		if genome == nil {
			return nil, fmt.Errorf("content dictionary needs a genome")
		}
		c = dynprog.NewContentScorer(p.Positions, cs.NumSVM)
		if err := c.PrecomputeContent(genome, cs.Dictionary); err != nil {
			return nil, err
		}
	default:
		c = dynprog.NewContentScorer(p.Positions, cs.NumSVM)
	}

	if len(cs.Tiling) > 0 {
		tiling := make([]*plif.PLiF, len(cs.Tiling))
		for i, name := range cs.Tiling {
			f, ok := plifs[name]
			if !ok {
				return nil, fmt.Errorf("unknown tiling plif %q", name)
			}
			tiling[i] = f
		}
		if err := c.PrecomputeTiling(cs.Probes, tiling); err != nil {
			return nil, err
		}
	}
	if cs.FrameChannels != nil {
		if err := c.SetFrameChannels(*cs.FrameChannels); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func finiteScore(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return plif.NegInf
	}
	return v
}
