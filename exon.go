// Package exon predicts gene structures by N-best generalized Viterbi
// decoding over a segment state machine.
//
//	p, _ := exon.Load("problem.yaml")
//	pred, _ := p.Decode(ctx, exon.DecodeConfig{NBest: 3})
//	for _, path := range pred.Paths {
//	    fmt.Println(path.Score, path.States)
//	}
package exon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/happyhackingspace/exon/dynprog"
	"github.com/happyhackingspace/exon/internal/storage"
	"github.com/happyhackingspace/exon/plif"
)

// Predictor decodes one loaded problem.
type Predictor struct {
	built   *storage.Built
	decoder *dynprog.Decoder
}

// DecodeConfig selects the decoding variant. Loss-augmented decoding is
// used whenever the problem carries an active loss tensor unless NoLoss is
// set.
type DecodeConfig struct {
	NBest  int
	UseORF bool
	NoLoss bool
}

// Prediction is the result of one decode.
type Prediction struct {
	RunID    string          `json:"run_id"`
	LookBack int             `json:"look_back"`
	WithLoss bool            `json:"with_loss"`
	Paths    []PredictedPath `json:"paths"`
}

// PredictedPath is one decoded path with state names and genome
// coordinates resolved.
type PredictedPath struct {
	Rank        int      `json:"rank"`
	Score       float64  `json:"score"`
	Reachable   bool     `json:"reachable"`
	States      []string `json:"states,omitempty"`
	StateIDs    []int    `json:"state_ids,omitempty"`
	Positions   []int    `json:"positions,omitempty"`
	Coordinates []int    `json:"coordinates,omitempty"`
}

// PathGradient is the gradient of one path together with the derivatives
// of every named PLiF it touched.
type PathGradient struct {
	*dynprog.Gradient
	PLiFs map[string][]float64 `json:"plifs,omitempty"`
}

// Load reads a problem file (YAML or JSON) and prepares a decoder for it.
func Load(path string) (*Predictor, error) {
	p, err := storage.NewStorage("").LoadProblem(path)
	if err != nil {
		return nil, fmt.Errorf("exon: %w", err)
	}
	b, err := p.Build()
	if err != nil {
		return nil, fmt.Errorf("exon: %s: %w", path, err)
	}
	return newPredictor(b)
}

// New prepares a decoder for an already assembled model and input. names
// labels the states and may be nil.
func New(m *dynprog.Model, in *dynprog.Input, names []string) (*Predictor, error) {
	states := storage.NewAlphabet()
	for _, name := range names {
		states.Add(name)
	}
	return newPredictor(&storage.Built{Model: m, Input: in, States: states})
}

func newPredictor(b *storage.Built) (*Predictor, error) {
	start := time.Now()
	d, err := dynprog.NewDecoder(b.Model, b.Input)
	if err != nil {
		return nil, fmt.Errorf("exon: %w", err)
	}
	slog.Debug("Decoder prepared", "states", b.Model.NumStates(), "positions", b.Input.SeqLen(), "lookback", d.LookBack(), "duration", time.Since(start))
	return &Predictor{built: b, decoder: d}, nil
}

// States returns the state names in id order.
func (p *Predictor) States() []string {
	return append([]string(nil), p.built.States.ToStr...)
}

// LossActive reports whether the problem carries a reference and a loss
// tensor with at least one significant entry.
func (p *Predictor) LossActive() bool {
	in := p.built.Input
	return in.Reference != nil && in.Loss != nil && in.Loss.Active()
}

// Decode runs the N-best search.
func (p *Predictor) Decode(ctx context.Context, cfg DecodeConfig) (*Prediction, error) {
	opts := dynprog.DefaultOptions()
	if cfg.NBest != 0 {
		opts.NBest = cfg.NBest
	}
	opts.UseORF = cfg.UseORF
	opts.WithLoss = !cfg.NoLoss && p.LossActive()

	res, err := p.decoder.Decode(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("exon: %w", err)
	}
	pred := &Prediction{
		RunID:    uuid.NewString(),
		LookBack: res.LookBack,
		WithLoss: opts.WithLoss,
		Paths:    make([]PredictedPath, len(res.Paths)),
	}
	for k, path := range res.Paths {
		pred.Paths[k] = p.resolve(k, path)
	}
	return pred, nil
}

func (p *Predictor) resolve(rank int, path dynprog.Path) PredictedPath {
	out := PredictedPath{Rank: rank, Score: path.Score, Reachable: path.Reachable()}
	if !out.Reachable {
		return out
	}
	pos := p.built.Input.Positions
	out.StateIDs = path.States
	out.Positions = path.Positions
	out.States = p.built.States.Names(path.States)
	out.Coordinates = make([]int, path.Len())
	for i, t := range path.Positions {
		out.Coordinates[i] = pos[t]
	}
	return out
}

// Gradient computes the usage counts and penalty derivatives of a path.
func (p *Predictor) Gradient(path PredictedPath) (*PathGradient, error) {
	if !path.Reachable {
		return nil, fmt.Errorf("exon: path %d is unreachable", path.Rank)
	}
	acc := plif.NewDerivatives()
	g, err := p.decoder.PathGradient(dynprog.Path{
		Score:     path.Score,
		States:    path.StateIDs,
		Positions: path.Positions,
	}, acc)
	if err != nil {
		return nil, fmt.Errorf("exon: %w", err)
	}
	out := &PathGradient{Gradient: g}
	for _, f := range p.built.PLiFs {
		if bins := acc.Bins(f); bins != nil {
			if out.PLiFs == nil {
				out.PLiFs = make(map[string][]float64)
			}
			out.PLiFs[f.Name] = bins
		}
	}
	return out, nil
}
