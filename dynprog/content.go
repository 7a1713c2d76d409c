package dynprog

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/happyhackingspace/exon/internal/sequtil"
	"github.com/happyhackingspace/exon/plif"
)

// Modulo restricts a content channel to genome coordinates i with
// i % Period == Phase. A zero Period counts every coordinate.
type Modulo struct {
	Period int `json:"period,omitempty" yaml:"period,omitempty"`
	Phase  int `json:"phase,omitempty" yaml:"phase,omitempty"`
}

func (m Modulo) counts(i int) bool {
	return m.Period <= 0 || i%m.Period == m.Phase
}

// Dictionary holds k-mer weights of the content classifiers, one row per
// channel. Row c is laid out as consecutive blocks of 4^Degrees[k] weights.
type Dictionary struct {
	Degrees []int       `json:"degrees" yaml:"degrees"`
	Weights [][]float64 `json:"weights" yaml:"weights"`
	Modulo  []Modulo    `json:"modulo,omitempty" yaml:"modulo,omitempty"`
}

func (d *Dictionary) blockOffsets() []int {
	offsets := make([]int, len(d.Degrees)+1)
	for k, deg := range d.Degrees {
		offsets[k+1] = offsets[k] + sequtil.NumWords(deg)
	}
	return offsets
}

// Probe is one tiling-array measurement at a genome coordinate.
type Probe struct {
	Pos       int     `json:"pos" yaml:"pos"`
	Intensity float64 `json:"intensity" yaml:"intensity"`
}

// ContentScorer answers interval queries over cumulative per-position
// feature rows. The first NumSVM channels hold classifier outputs and are
// normalised by interval length; later channels (tiling) are plain sums.
type ContentScorer struct {
	pos    []int
	numSVM int
	lin    [][]float64 // lin[t][channel], cumulative over positions

	frame    [3]int
	hasFrame bool
}

// NewContentScorer returns a scorer for the candidate positions pos with
// numSVM classifier channels, all zero.
func NewContentScorer(pos []int, numSVM int) *ContentScorer {
	c := &ContentScorer{pos: pos, numSVM: numSVM, lin: make([][]float64, len(pos))}
	for t := range c.lin {
		c.lin[t] = make([]float64, numSVM)
	}
	return c
}

// NewContentScorerFromRows wraps already cumulative rows lin[t][channel].
func NewContentScorerFromRows(pos []int, numSVM int, lin [][]float64) (*ContentScorer, error) {
	if len(lin) != len(pos) {
		return nil, configErrorf("content", "%d rows for %d positions", len(lin), len(pos))
	}
	for t, row := range lin {
		if len(row) < numSVM {
			return nil, configErrorf("content", "row %d has %d channels, want at least %d", t, len(row), numSVM)
		}
		if t > 0 && len(row) != len(lin[0]) {
			return nil, configErrorf("content", "row %d has %d channels, want %d", t, len(row), len(lin[0]))
		}
	}
	return &ContentScorer{pos: pos, numSVM: numSVM, lin: lin}, nil
}

// NumChannels returns the total number of channels.
func (c *ContentScorer) NumChannels() int {
	if len(c.lin) == 0 {
		return c.numSVM
	}
	return len(c.lin[0])
}

// NumSVM returns the number of length-normalised channels.
func (c *ContentScorer) NumSVM() int { return c.numSVM }

// Row returns the cumulative values at position index t.
func (c *ContentScorer) Row(t int) []float64 { return c.lin[t] }

// SetFrameChannels declares three classifier channels holding content
// computed for codon phase 0, 1 and 2.
func (c *ContentScorer) SetFrameChannels(ch [3]int) error {
	for _, k := range ch {
		if k < 0 || k >= c.numSVM {
			return configErrorf("content", "frame channel %d out of range [0,%d)", k, c.numSVM)
		}
	}
	c.frame = ch
	c.hasFrame = true
	return nil
}

// Query writes the features of the interval between position indices from
// and to into dst, which must hold NumChannels values. For frame != -1 the
// three frame channels are disabled except the one matching the reading
// frame of the interval.
func (c *ContentScorer) Query(from, to, frame int, dst []float64) []float64 {
	dst = dst[:c.NumChannels()]
	floats.SubTo(dst, c.lin[to], c.lin[from])
	if length := c.pos[to] - c.pos[from]; length != 0 {
		floats.Scale(1/float64(length), dst[:c.numSVM])
	}
	if frame != -1 && c.hasFrame {
		for _, k := range c.frame {
			dst[k] = plif.NegInf
		}
		row := c.frame[(c.pos[from]%3+frame)%3]
		dst[c.frame[frame]] = (c.lin[to][row] - c.lin[from][row]) / float64(c.pos[to]-c.pos[from])
	}
	return dst
}

// PrecomputeContent fills the classifier channels from k-mer dictionary
// weights over genome. Each row t+1 adds the weights of all words starting
// in [pos[t], pos[t+1]) to row t.
func (c *ContentScorer) PrecomputeContent(genome []byte, dict *Dictionary) error {
	if len(dict.Weights) != c.numSVM {
		return configErrorf("content", "dictionary has %d channels, want %d", len(dict.Weights), c.numSVM)
	}
	if len(dict.Modulo) != 0 && len(dict.Modulo) != c.numSVM {
		return configErrorf("content", "%d modulo entries for %d channels", len(dict.Modulo), c.numSVM)
	}
	offsets := dict.blockOffsets()
	for s, w := range dict.Weights {
		if len(w) != offsets[len(dict.Degrees)] {
			return configErrorf("content", "channel %d has %d weights, want %d", s, len(w), offsets[len(dict.Degrees)])
		}
	}
	words := make([][]int, len(dict.Degrees))
	for k, deg := range dict.Degrees {
		var err error
		if words[k], err = sequtil.Words(genome, deg); err != nil {
			return configErrorf("content", "%v", err)
		}
	}

	acc := make([]float64, c.numSVM)
	for t := 0; t+1 < len(c.pos); t++ {
		from, to := c.pos[t], c.pos[t+1]
		if from < 0 || to > len(genome) {
			return configErrorf("content", "interval [%d,%d) outside genome of length %d", from, to, len(genome))
		}
		clear(acc)
		for i := from; i < to; i++ {
			for k := range dict.Degrees {
				word := words[k][i] + offsets[k]
				for s := range c.numSVM {
					if len(dict.Modulo) > 0 && !dict.Modulo[s].counts(i) {
						continue
					}
					acc[s] += dict.Weights[s][word]
				}
			}
		}
		floats.AddTo(c.lin[t+1][:c.numSVM], c.lin[t][:c.numSVM], acc)
	}
	slog.Debug("Content values precomputed", "positions", len(c.pos), "channels", c.numSVM, "degrees", dict.Degrees)
	return nil
}

// PrecomputeTiling appends one channel per tiling PLiF. Each PLiF must read
// its own channel (UseSVM == channel index + 1). Row t holds the running sum
// of the PLiF scores of all probes located before pos[t].
func (c *ContentScorer) PrecomputeTiling(probes []Probe, plifs []*plif.PLiF) error {
	base := c.NumChannels()
	for i, p := range plifs {
		if p.UseSVM-1 != base+i {
			return configErrorf("tiling", "plif %d reads channel %d, want %d", p.ID, p.UseSVM-1, base+i)
		}
	}
	sorted := make([]Probe, len(probes))
	copy(sorted, probes)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Pos < sorted[b].Pos })

	width := base + len(plifs)
	features := make([]float64, width)
	sums := make([]float64, len(plifs))
	next := 0
	for t := range c.pos {
		for next < len(sorted) && sorted[next].Pos < c.pos[t] {
			for i, p := range plifs {
				features[base+i] = sorted[next].Intensity
				sums[i] += p.Lookup(0, features)
			}
			next++
		}
		row := make([]float64, width)
		copy(row, c.lin[t])
		copy(row[base:], sums)
		c.lin[t] = row
	}
	slog.Debug("Tiling values precomputed", "probes", len(probes), "channels", len(plifs))
	return nil
}

// StopCodons marks every genome coordinate where a TAA, TAG or TGA triplet
// starts.
func StopCodons(genome []byte) []bool {
	stop := make([]bool, len(genome))
	for i := range genome {
		stop[i] = sequtil.IsStopCodon(genome, i)
	}
	return stop
}
