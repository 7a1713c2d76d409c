package batch

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/happyhackingspace/exon/internal/sequtil"
)

// Config controls batch scoring.
type Config struct {
	// Threads is the number of scoring goroutines.
	Threads int `json:"threads" yaml:"threads"`
	// Factor scales every contribution.
	Factor float64 `json:"factor" yaml:"factor"`
	// CacheBytes enables a score cache of that size; zero disables it.
	CacheBytes int `json:"cache_bytes" yaml:"cache_bytes"`
}

// DefaultConfig returns one thread per CPU, factor 1 and no cache.
func DefaultConfig() Config {
	return Config{
		Threads: runtime.GOMAXPROCS(0),
		Factor:  1,
	}
}

// Scorer scores candidate sequences against a Model. Score may not be
// called concurrently on one Scorer.
type Scorer struct {
	model    *Model
	cfg      Config
	cache    *fastcache.Cache
	progress func(done, total int)
}

// NewScorer validates m and returns a scorer for it.
func NewScorer(m *Model, cfg Config) (*Scorer, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	s := &Scorer{model: m, cfg: cfg}
	if cfg.CacheBytes > 0 {
		s.cache = fastcache.New(cfg.CacheBytes)
	}
	return s, nil
}

// SetProgress registers fn to be called after every position.
func (s *Scorer) SetProgress(fn func(done, total int)) {
	s.progress = fn
}

// Reset drops all cached scores.
func (s *Scorer) Reset() {
	if s.cache != nil {
		s.cache.Reset()
	}
}

// Score returns one score per sequence. Sequences must have the model's
// length. If ctx is cancelled between positions, the partially accumulated
// scores are returned together with ctx.Err().
func (s *Scorer) Score(ctx context.Context, seqs []string) ([]float64, error) {
	m := s.model
	L := m.Length()
	result := make([]float64, len(seqs))

	norm := make([][]byte, 0, len(seqs))
	pending := make([]int, 0, len(seqs))
	for i, seq := range seqs {
		b := []byte(sequtil.Normalize(seq))
		if len(b) != L {
			return nil, fmt.Errorf("batch: sequence %d has length %d, model scores length %d", i, len(b), L)
		}
		if v, ok := s.cached(b); ok {
			result[i] = v
			continue
		}
		norm = append(norm, b)
		pending = append(pending, i)
	}

	start := time.Now()
	slog.Debug("Batch scoring", "sequences", len(seqs), "cached", len(seqs)-len(pending),
		"length", L, "threads", s.cfg.Threads)
	if len(pending) == 0 {
		return result, nil
	}

	scores := make([]float64, len(pending))
	scale := s.cfg.Factor / m.Normalization
	p := newPool(s.cfg.Threads)
	defer p.close()

	table := newPositionTable(m.Degree)
	parts := ranges(len(pending), s.cfg.Threads)
	tasks := make([]func(), len(parts))
	for j := range L {
		if err := ctx.Err(); err != nil {
			s.scatter(result, pending, scores)
			return result, err
		}
		table.build(m, j)
		for k, r := range parts {
			tasks[k] = func() {
				for i := r[0]; i < r[1]; i++ {
					scores[i] += scale * table.lookup(norm[i], j)
				}
			}
		}
		p.run(tasks)
		if s.progress != nil {
			s.progress(j+1, L)
		}
	}

	s.scatter(result, pending, scores)
	if s.cache != nil {
		for k := range pending {
			s.store(norm[k], scores[k])
		}
	}
	slog.Debug("Batch scoring completed", "duration", time.Since(start))
	return result, nil
}

func (s *Scorer) scatter(result []float64, pending []int, scores []float64) {
	for k, i := range pending {
		result[i] = scores[k]
	}
}

func (s *Scorer) cached(seq []byte) (float64, bool) {
	if s.cache == nil {
		return 0, false
	}
	buf, ok := s.cache.HasGet(nil, seq)
	if !ok || len(buf) != 8 {
		return 0, false
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), true
}

func (s *Scorer) store(seq []byte, v float64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	s.cache.Set(seq, buf)
}

// PositionContribution returns the contribution of position j to the score
// of seq, before the factor is applied.
func (s *Scorer) PositionContribution(seq string, j int) float64 {
	table := newPositionTable(s.model.Degree)
	table.build(s.model, j)
	return table.lookup([]byte(sequtil.Normalize(seq)), j) / s.model.Normalization
}
